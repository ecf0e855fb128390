// internal/handlers/match_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/pzielinski/wordrace/internal/database"
	"github.com/pzielinski/wordrace/internal/waitroom"
	"github.com/sirupsen/logrus"
)

// MatchMessage is the shape of every inbound message on /match/ws.
type MatchMessage struct {
	Type string `json:"type"`

	// waitroom_request
	Game  string `json:"game,omitempty"`
	Topic string `json:"topic,omitempty"`
	Owned bool   `json:"owned,omitempty"`

	// waitroom_request (invited join)
	RoomID string `json:"room_id,omitempty"`

	// player_invitation
	UserID string `json:"user_id,omitempty"`

	// response
	Answer string `json:"answer,omitempty"`
	Round  *int   `json:"round,omitempty"`
}

// MatchWSHandler upgrades the HTTP connection to WebSocket and drives one
// user through waitroom matching and gameplay over a single connection.
func MatchWSHandler(logger *logrus.Logger, ms *MatchServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"match"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "match" {
			c.Close(BadSubprotocolError, "client must speak the match subprotocol")
			return
		}

		userID, err := EnsureEphemeralUser(w, r)
		if err != nil {
			logger.Warnf("user authentication failed: %v", err)
			c.Close(websocket.StatusPolicyViolation, "Authentication failed.")
			return
		}

		username := lookupUsername(r.Context(), userID)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess := &matchSession{
			userID:   userID,
			username: username,
			ws:       c,
			cancel:   cancel,
		}
		ms.registerSession(sess)
		logger.Infof("user %s (%s) connected to matcher from %s", userID, username, remoteAddr)

		readMatchMessages(ctx, c, ms, sess, logger)

		// ---- cleanup after the read loop exits ----
		logger.Infof("user %s read loop exited, cleaning up", userID)
		if room := sess.currentRoom(); room != nil {
			room.RemoveUser(userID)
		}
		if g := sess.currentGame(); g != nil {
			g.HandleDisconnect(userID)
		}
		ms.unregisterSession(sess)
	}
}

// lookupUsername fetches the display name from postgres, falling back to a
// generated guest name when the database is absent or the lookup fails.
func lookupUsername(ctx context.Context, userID uuid.UUID) string {
	if database.DB == nil {
		return fmt.Sprintf("Guest_%s", userID.String()[:4])
	}
	dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	user, err := database.GetUserByID(dbCtx, userID)
	if err != nil {
		log.Printf("failed to fetch user %s details: %v", userID, err)
		return fmt.Sprintf("Guest_%s", userID.String()[:4])
	}
	if user.Username == "" || user.Username == "Guest" {
		return fmt.Sprintf("Guest_%s", userID.String()[:4])
	}
	return user.Username
}

// readMatchMessages blocks on the websocket, routing each inbound message by
// session state until the connection closes.
func readMatchMessages(ctx context.Context, c *websocket.Conn, ms *MatchServer, sess *matchSession, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("websocket closed normally for user %s", sess.userID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("websocket context canceled for user %s", sess.userID)
			} else {
				logger.Warnf("read error for user %s: %v (status: %d)", sess.userID, err, status)
			}
			return
		}

		if msgType != websocket.MessageText {
			logger.Warnf("non-text message type %d from user %s, ignoring", msgType, sess.userID)
			continue
		}

		var msg MatchMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("invalid json from user %s: %v", sess.userID, err)
			sendWsError(ctx, c, "Invalid JSON format")
			continue
		}

		handleMatchMessage(ctx, c, ms, sess, msg, logger)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// handleMatchMessage interprets one inbound message against the session's
// current state.
func handleMatchMessage(ctx context.Context, c *websocket.Conn, ms *MatchServer, sess *matchSession, msg MatchMessage, logger *logrus.Logger) {
	switch msg.Type {
	case "waitroom_request":
		handleWaitroomRequest(ctx, c, ms, sess, msg, logger)

	case "player_invitation":
		room := sess.currentRoom()
		if room == nil {
			sendWsError(ctx, c, "You are not in a waitroom")
			return
		}
		if !room.IsOwned() || room.OwnerID != sess.userID {
			sendWsError(ctx, c, "Only the waitroom owner can invite")
			return
		}
		invitee, err := uuid.Parse(msg.UserID)
		if err != nil {
			sendWsError(ctx, c, "Invalid user_id for invitation")
			return
		}
		room.Mu.Lock()
		room.InviteUserUnsafe(invitee)
		roomID := room.ID
		gameType := room.GameType
		topic := room.Topic
		room.Mu.Unlock()

		// notify the invited user if they are online
		if target := ms.getSession(invitee); target != nil {
			sendWsMessage(ctx, target.ws, map[string]interface{}{
				"type":    "player_invitation",
				"room_id": roomID.String(),
				"from":    sess.username,
				"game":    gameType,
				"topic":   topic,
			})
		}

	case "start_game":
		room := sess.currentRoom()
		if room == nil {
			sendWsError(ctx, c, "You are not in a waitroom")
			return
		}
		if room.IsOwned() && room.OwnerID != sess.userID {
			sendWsError(ctx, c, "Only the waitroom owner can start the game")
			return
		}
		room.Mu.Lock()
		full := len(room.Members) >= waitroom.Capacity
		room.Mu.Unlock()
		if !full {
			sendWsError(ctx, c, "Waitroom is not full yet")
			return
		}
		room.ForceConvert()

	case "leave_waitroom":
		room := sess.currentRoom()
		if room == nil {
			sendWsError(ctx, c, "You are not in a waitroom")
			return
		}
		sess.setRoom(nil, nil)
		room.RemoveUser(sess.userID)

	case "response":
		g := sess.currentGame()
		if g == nil {
			sendWsError(ctx, c, "No active game")
			return
		}
		if msg.Round == nil {
			sendWsError(ctx, c, "Missing round index")
			return
		}
		outcome := g.SubmitAnswer(sess.userID, msg.Answer, *msg.Round)
		if outcome.GameOver {
			sendWsMessage(ctx, c, map[string]interface{}{"type": "game_ended"})
		}

	case "ping":
		sendWsMessage(ctx, c, map[string]string{"type": "pong"})

	default:
		logger.Warnf("unknown message type '%s' from user %s", msg.Type, sess.userID)
		sendWsError(ctx, c, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

// handleWaitroomRequest routes the three join flavors: shared matchmaking,
// creating an owned room, and joining an owned room by invitation.
func handleWaitroomRequest(ctx context.Context, c *websocket.Conn, ms *MatchServer, sess *matchSession, msg MatchMessage, logger *logrus.Logger) {
	if sess.currentGame() != nil {
		sendWsError(ctx, c, "You are already in a game")
		return
	}
	if sess.currentRoom() != nil {
		sendWsError(ctx, c, "You are already in a waitroom")
		return
	}

	wconn := &waitroom.Conn{
		UserID:   sess.userID,
		Username: sess.username,
		OutChan:  make(chan map[string]interface{}, 10),
	}
	wconn.OnEvict = func() { sess.clearRoomIf(wconn) }

	var room *waitroom.Room
	if msg.RoomID != "" {
		if msg.Game != "" || msg.Topic != "" || msg.Owned {
			sendWsError(ctx, c, "room_id cannot be combined with game, topic or owned")
			return
		}
		roomID, err := uuid.Parse(msg.RoomID)
		if err != nil {
			sendWsError(ctx, c, "Invalid room_id")
			return
		}
		room, err = ms.Rooms.JoinOwned(roomID, wconn)
		if err != nil {
			sendWsError(ctx, c, err.Error())
			return
		}
	} else {
		if msg.Game != GameTypeRace && msg.Game != GameTypeFindingWords {
			sendWsError(ctx, c, fmt.Sprintf("Unknown game type: %s", msg.Game))
			return
		}
		if msg.Topic == "" {
			sendWsError(ctx, c, "Missing topic")
			return
		}
		if msg.Owned {
			room = ms.Rooms.CreateOwned(msg.Game, msg.Topic, wconn)
		} else {
			room, _ = ms.Rooms.JoinShared(msg.Game, msg.Topic, wconn)
		}
	}

	sess.setRoom(room, wconn)
	go waitroomWritePump(ctx, c, wconn, logger)
}

// waitroomWritePump relays waitroom-phase messages from the OutChan to the
// websocket and keeps the connection alive with pings. Game-phase events are
// written directly by the broadcast closures instead.
func waitroomWritePump(ctx context.Context, c *websocket.Conn, conn *waitroom.Conn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("failed to marshal outgoing msg for user %v: %v", conn.UserID, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for user %v: %v", conn.UserID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("failed to ping user %v: %v, assuming disconnect", conn.UserID, err)
				return
			}
		}
	}
}

// writeEvent marshals a scheduler event and writes it to the client.
func writeEvent(ctx context.Context, c *websocket.Conn, ev interface{}) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return c.Write(ctx, websocket.MessageText, data)
}

// sendWsMessage marshals a message and sends it to the WebSocket client.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	if c == nil {
		log.Println("Error: Attempted to send WebSocket message on nil connection.")
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Write(writeCtx, websocket.MessageText, msgBytes); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			log.Printf("Error writing WebSocket message: %v (Status: %d)", err, status)
		}
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(ctx context.Context, c *websocket.Conn, errorMsg string) {
	sendWsMessage(ctx, c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
}
