// internal/waitroom/store.go
package waitroom

import (
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrRoomNotFound = errors.New("waitroom not found")
	ErrNotInvited   = errors.New("user not invited to this waitroom")
	ErrRoomFull     = errors.New("waitroom is full")
	ErrRoomConsumed = errors.New("waitroom already converted to a game")
)

type sharedKey struct {
	gameType string
	topic    string
}

// Store manages active ephemeral waitrooms in memory. Shared rooms are
// additionally indexed by (game type, topic) so matchmaking can find a
// half-full room without scanning.
type Store struct {
	// OnConvert is installed on every room the store creates. Set it before
	// the first join.
	OnConvert func(room *Room, members []*Conn)

	mu     sync.Mutex
	rooms  map[uuid.UUID]*Room
	shared map[sharedKey]uuid.UUID
}

// NewStore initializes and returns an empty Store.
func NewStore() *Store {
	return &Store{
		rooms:  make(map[uuid.UUID]*Room),
		shared: make(map[sharedKey]uuid.UUID),
	}
}

// Get retrieves a room by ID.
func (s *Store) Get(id uuid.UUID) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

// JoinShared places the user into the open shared room for the given game
// type and topic, creating one if none is waiting. Returns the room and
// whether the caller created it.
func (s *Store) JoinShared(gameType, topic string, conn *Conn) (*Room, bool) {
	key := sharedKey{gameType: gameType, topic: topic}

	s.mu.Lock()
	if id, ok := s.shared[key]; ok {
		if room, exists := s.rooms[id]; exists {
			room.Mu.Lock()
			if !room.Converted && len(room.Members) < Capacity {
				room.AddConnUnsafe(conn)
				if len(room.Members) >= Capacity {
					// full now; stop routing new joiners here
					delete(s.shared, key)
				}
				room.Mu.Unlock()
				s.mu.Unlock()
				return room, false
			}
			room.Mu.Unlock()
		}
		// index pointed at a dead or consumed room
		delete(s.shared, key)
	}

	room := newRoom(gameType, topic, uuid.Nil)
	room.OnEmpty = func(roomID uuid.UUID) { s.Delete(roomID) }
	room.OnConvert = s.OnConvert
	room.Mu.Lock()
	room.AddConnUnsafe(conn)
	room.Mu.Unlock()

	s.rooms[room.ID] = room
	s.shared[key] = room.ID
	s.mu.Unlock()

	log.Printf("waitroom store: opened shared room %s for %s/%s", room.ID, gameType, topic)
	return room, true
}

// CreateOwned opens a room owned by the connecting user. Owned rooms never
// appear in the shared index; opponents join by invitation only.
func (s *Store) CreateOwned(gameType, topic string, owner *Conn) *Room {
	room := newRoom(gameType, topic, owner.UserID)
	room.OnEmpty = func(roomID uuid.UUID) { s.Delete(roomID) }
	room.OnConvert = s.OnConvert
	room.Mu.Lock()
	room.AddConnUnsafe(owner)
	room.Mu.Unlock()

	s.mu.Lock()
	s.rooms[room.ID] = room
	s.mu.Unlock()

	log.Printf("waitroom store: user %s opened owned room %s for %s/%s", owner.UserID, room.ID, gameType, topic)
	return room
}

// JoinOwned admits an invited user into an owned room.
func (s *Store) JoinOwned(roomID uuid.UUID, conn *Conn) (*Room, error) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.Mu.Lock()
	defer room.Mu.Unlock()
	if room.Converted {
		return nil, ErrRoomConsumed
	}
	if room.IsOwned() && !room.Invited[conn.UserID] {
		return nil, ErrNotInvited
	}
	if len(room.Members) >= Capacity {
		return nil, ErrRoomFull
	}
	room.AddConnUnsafe(conn)
	return room, nil
}

// Delete removes a room and its shared index entry.
func (s *Store) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, exists := s.rooms[id]
	if !exists {
		return
	}
	delete(s.rooms, id)
	key := sharedKey{gameType: room.GameType, topic: room.Topic}
	if s.shared[key] == id {
		delete(s.shared, key)
	}
	log.Printf("waitroom store: deleted room %s", id)
}

// FindByUser returns the room a user currently waits in, or nil.
func (s *Store) FindByUser(userID uuid.UUID) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range s.rooms {
		room.Mu.Lock()
		_, in := room.Members[userID]
		converted := room.Converted
		room.Mu.Unlock()
		if in && !converted {
			return room
		}
	}
	return nil
}
