// internal/game/store.go
package game

import (
	"sync"

	"github.com/google/uuid"
)

type Store struct {
	mu    sync.Mutex
	games map[uuid.UUID]*ActiveGame
}

func NewStore() *Store {
	return &Store{
		games: make(map[uuid.UUID]*ActiveGame),
	}
}

func (s *Store) Add(g *ActiveGame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = g
}

func (s *Store) Get(id uuid.UUID) (*ActiveGame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, exists := s.games[id]
	return g, exists
}

func (s *Store) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, id)
}

// GetByParticipant returns the game a user is currently playing in, or nil.
func (s *Store) GetByParticipant(userID uuid.UUID) *ActiveGame {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.games {
		g.Mu.Lock()
		p := g.participantLocked(userID)
		finished := g.Finished
		g.Mu.Unlock()
		if p != nil && !finished {
			return g
		}
	}
	return nil
}
