// internal/handlers/match_server.go
package handlers

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/pzielinski/wordrace/internal/cache"
	"github.com/pzielinski/wordrace/internal/database"
	"github.com/pzielinski/wordrace/internal/game"
	"github.com/pzielinski/wordrace/internal/models"
	"github.com/pzielinski/wordrace/internal/waitroom"
	"github.com/pzielinski/wordrace/internal/words"
	"github.com/sirupsen/logrus"
)

// Supported game types and their round counts.
const (
	GameTypeRace         = "race"
	GameTypeFindingWords = "finding_words"

	raceRoundCount         = 5
	findingWordsRoundCount = 3
)

// MatchServer is the high-level coordinator: it owns the waitroom store, the
// game store, the word provider, and the per-connection session registry.
type MatchServer struct {
	Rooms    *waitroom.Store
	Games    *game.Store
	Provider words.Provider
	Logger   *logrus.Logger

	// Timing overrides game.DefaultTiming when non-zero, used by tests.
	Timing game.Timing

	mu       sync.Mutex
	sessions map[uuid.UUID]*matchSession
}

func NewMatchServer(logger *logrus.Logger, provider words.Provider) *MatchServer {
	ms := &MatchServer{
		Rooms:    waitroom.NewStore(),
		Games:    game.NewStore(),
		Provider: provider,
		Logger:   logger,
		sessions: make(map[uuid.UUID]*matchSession),
	}
	ms.Rooms.OnConvert = ms.StartGameFromRoom
	return ms
}

// matchSession tracks one websocket connection through its lifecycle:
// freshly connected, waiting in a room, then playing.
type matchSession struct {
	userID   uuid.UUID
	username string
	ws       *websocket.Conn
	cancel   func()

	mu    sync.Mutex
	room  *waitroom.Room
	wconn *waitroom.Conn
	game  *game.ActiveGame
}

func (s *matchSession) setRoom(room *waitroom.Room, wconn *waitroom.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
	s.wconn = wconn
}

// clearRoomIf resets the waitroom state only if the session still points at
// the given conn, so a stale eviction cannot wipe a newer membership.
func (s *matchSession) clearRoomIf(wconn *waitroom.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wconn == wconn {
		s.room = nil
		s.wconn = nil
	}
}

func (s *matchSession) currentRoom() *waitroom.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *matchSession) currentGame() *game.ActiveGame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game
}

func (s *matchSession) enterGame(g *game.ActiveGame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = nil
	s.wconn = nil
	s.game = g
}

func (ms *MatchServer) registerSession(sess *matchSession) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if old, ok := ms.sessions[sess.userID]; ok && old != sess {
		// same user reconnected; drop the previous connection
		if old.cancel != nil {
			old.cancel()
		}
	}
	ms.sessions[sess.userID] = sess
}

func (ms *MatchServer) unregisterSession(sess *matchSession) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.sessions[sess.userID] == sess {
		delete(ms.sessions, sess.userID)
	}
}

func (ms *MatchServer) getSession(userID uuid.UUID) *matchSession {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.sessions[userID]
}

// rulesFor returns the answer-checking rules and round count for a game type.
// A fresh rng per match keeps concurrent matches independent.
func (ms *MatchServer) rulesFor(gameType string) (game.Rules, int, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	switch gameType {
	case GameTypeRace:
		return words.NewRaceRules(ms.Provider, rng), raceRoundCount, nil
	case GameTypeFindingWords:
		return words.NewFindingWordsRules(ms.Provider, rng), findingWordsRoundCount, nil
	default:
		return nil, 0, fmt.Errorf("unknown game type %q", gameType)
	}
}

// timing applies the server-wide override, falling back to the defaults.
func (ms *MatchServer) timing() game.Timing {
	if ms.Timing != (game.Timing{}) {
		return ms.Timing
	}
	return game.DefaultTiming()
}

// StartGameFromRoom runs when a full waitroom's grace period elapses. It
// generates the rounds, builds an ActiveGame over the members' live
// connections, and kicks the scheduler off.
func (ms *MatchServer) StartGameFromRoom(room *waitroom.Room, members []*waitroom.Conn) {
	rules, roundCount, err := ms.rulesFor(room.GameType)
	if err != nil {
		ms.Logger.Errorf("waitroom %s converted with bad game type: %v", room.ID, err)
		ms.failConversion(members, "unsupported game type")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	rounds, err := rules.GenerateRounds(ctx, room.Topic, roundCount)
	cancel()
	if err != nil {
		ms.Logger.Errorf("waitroom %s: round generation failed for topic %q: %v", room.ID, room.Topic, err)
		ms.failConversion(members, "could not prepare questions for this topic")
		return
	}

	participants := make([]*models.Participant, 0, len(members))
	memberSessions := make([]*matchSession, 0, len(members))
	for _, m := range members {
		sess := ms.getSession(m.UserID)
		if sess == nil {
			ms.Logger.Warnf("waitroom %s: member %s has no live session, aborting game", room.ID, m.UserID)
			ms.failConversion(members, "a player disconnected during matching")
			return
		}
		participants = append(participants, &models.Participant{
			UserID:   m.UserID,
			Username: m.Username,
			Conn:     sess.ws,
		})
		memberSessions = append(memberSessions, sess)
	}

	g := game.NewActiveGame(room.GameType, room.Topic, rounds, rules, participants)
	g.Timing = ms.timing()
	g.BroadcastFn = createBroadcastFunc(g, ms.Logger)
	g.BroadcastToPlayerFn = createBroadcastToPlayerFunc(g, ms.Logger)
	g.FinalizeFn = ms.finalizeRecord
	g.OnGameEnd = func(gameID uuid.UUID, _ []game.ScoreboardEntry) {
		ms.Games.Delete(gameID)
		for _, p := range g.Participants {
			if sess := ms.getSession(p.UserID); sess != nil {
				sess.mu.Lock()
				if sess.game == g {
					sess.game = nil
				}
				sess.mu.Unlock()
			}
		}
	}

	for _, sess := range memberSessions {
		sess.enterGame(g)
	}

	ms.Games.Add(g)
	ms.Rooms.Delete(room.ID)
	ms.Logger.Infof("game %s started from waitroom %s (%s/%s)", g.ID, room.ID, room.GameType, room.Topic)
	g.Begin()
}

// failConversion tells stranded members their match fell through.
func (ms *MatchServer) failConversion(members []*waitroom.Conn, reason string) {
	for _, m := range members {
		m.WriteError(reason)
		m.Write(map[string]interface{}{"type": "waitroom_canceled"})
		if sess := ms.getSession(m.UserID); sess != nil {
			sess.setRoom(nil, nil)
		}
	}
}

// finalizeRecord persists one session record fire-and-forget, once to
// postgres and once onto the redis results queue. Either sink may be absent
// in database-less runs.
func (ms *MatchServer) finalizeRecord(rec models.GameSessionRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if database.DB != nil {
			if err := database.InsertGameSession(ctx, rec); err != nil {
				log.Printf("failed to persist session record for user %s: %v", rec.UserID, err)
			}
		}
		if cache.Rdb != nil {
			if err := cache.PublishSessionRecord(ctx, rec); err != nil {
				log.Printf("failed to publish session record for user %s: %v", rec.UserID, err)
			}
		}
	}()
}

// createBroadcastFunc returns a function suitable for ActiveGame.BroadcastFn.
// It is called while the game lock is held, so it snapshots connections and
// writes asynchronously.
func createBroadcastFunc(g *game.ActiveGame, logger *logrus.Logger) func(ev game.Event) {
	return func(ev game.Event) {
		conns := make([]*websocket.Conn, 0, len(g.Participants))
		for _, p := range g.Participants {
			if p.Connected && p.Conn != nil {
				conns = append(conns, p.Conn)
			}
		}

		go func(conns []*websocket.Conn, ev game.Event, gameID uuid.UUID) {
			for _, c := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				err := writeEvent(ctx, c, ev)
				cancel()
				if err != nil {
					logger.Warnf("failed to write broadcast %s for game %s: %v", ev.Type, gameID, err)
				}
			}
		}(conns, ev, g.ID)
	}
}

// createBroadcastToPlayerFunc returns a function suitable for
// ActiveGame.BroadcastToPlayerFn. Also called under the game lock.
func createBroadcastToPlayerFunc(g *game.ActiveGame, logger *logrus.Logger) func(userID uuid.UUID, ev game.Event) {
	return func(userID uuid.UUID, ev game.Event) {
		var target *websocket.Conn
		for _, p := range g.Participants {
			if p.UserID == userID {
				if p.Connected && p.Conn != nil {
					target = p.Conn
				}
				break
			}
		}
		if target == nil {
			return
		}

		go func(c *websocket.Conn, ev game.Event, userID, gameID uuid.UUID) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := writeEvent(ctx, c, ev)
			cancel()
			if err != nil {
				logger.Warnf("failed to write %s to player %s in game %s: %v", ev.Type, userID, gameID, err)
			}
		}(target, ev, userID, g.ID)
	}
}
