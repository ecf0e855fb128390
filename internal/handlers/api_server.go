// internal/handlers/api_server.go
package handlers

import (
	"net/http"

	"github.com/pzielinski/wordrace/internal/middleware"
	"github.com/sirupsen/logrus"
)

// PingHandler answers health checks.
func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// NewRouter wires the HTTP surface: account endpoints plus the match
// websocket, wrapped in request logging.
func NewRouter(logger *logrus.Logger, ms *MatchServer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", PingHandler)
	mux.HandleFunc("/user/create", CreateUserHandler)
	mux.HandleFunc("/user/login", LoginHandler)
	mux.HandleFunc("/user/claim", ClaimEphemeralHandler)
	mux.HandleFunc("/user/sessions", SessionsHandler)

	mux.HandleFunc("/match/ws", MatchWSHandler(logger, ms))

	return middleware.LogMiddleware(logger)(mux)
}
