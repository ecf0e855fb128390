// internal/waitroom/waitroom.go
package waitroom

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Capacity is the number of players a room needs before it converts into a
// running match.
const Capacity = 2

// DefaultConvertGrace is how long a full room waits before converting. The
// pause lets a just-joined player bail out without dragging the other player
// into a dead match.
const DefaultConvertGrace = 1 * time.Second

// Conn is a single user's presence in a waitroom.
type Conn struct {
	UserID   uuid.UUID
	Username string

	// OnEvict runs once, off the room lock, after the conn is dropped from
	// an unconverted room (leave, owner cancellation, stale replacement).
	// The websocket itself stays open; only the waitroom membership ends.
	OnEvict func()

	OutChan chan map[string]interface{}
}

// Write pushes a message onto the user's OutChan non-blockingly. Logs if dropped.
func (conn *Conn) Write(msg map[string]interface{}) {
	select {
	case conn.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		log.Printf("waitroom Conn Write WARNING: OutChan for user %s closed or full. Dropped message type '%s'.", conn.UserID, msgType)
	}
}

// WriteError is a convenience to send an error object.
func (conn *Conn) WriteError(msg string) {
	conn.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}

// Room is an ephemeral grouping of users waiting for a match to fill up.
// A room is either shared (OwnerID == uuid.Nil, found via matchmaking) or
// owned (created by one user who invites a specific opponent).
type Room struct {
	ID       uuid.UUID `json:"id"`
	GameType string    `json:"gameType"`
	Topic    string    `json:"topic"`

	// OwnerID is uuid.Nil for shared matchmaking rooms.
	OwnerID uuid.UUID `json:"ownerID,omitempty"`

	// Invited holds userIDs the owner invited. Empty for shared rooms.
	Invited map[uuid.UUID]bool `json:"-"`

	// Members holds the live connections, in arrival order.
	Members map[uuid.UUID]*Conn `json:"-"`
	Order   []uuid.UUID         `json:"-"`

	Converted bool      `json:"-"`
	CreatedAt time.Time `json:"-"`

	ConvertGrace time.Duration `json:"-"`
	convertTimer *time.Timer

	// OnEmpty is called after the last member leaves, so the store can drop
	// the room. Assigned by the store that created the room.
	OnEmpty func(roomID uuid.UUID) `json:"-"`

	// OnConvert fires exactly once, after the grace period, when the room is
	// still full. The room is already marked Converted when it runs.
	OnConvert func(room *Room, members []*Conn) `json:"-"`

	Mu sync.Mutex
}

func newRoom(gameType, topic string, ownerID uuid.UUID) *Room {
	id, _ := uuid.NewRandom()
	return &Room{
		ID:           id,
		GameType:     gameType,
		Topic:        topic,
		OwnerID:      ownerID,
		Invited:      make(map[uuid.UUID]bool),
		Members:      make(map[uuid.UUID]*Conn),
		CreatedAt:    time.Now(),
		ConvertGrace: DefaultConvertGrace,
	}
}

// IsOwned reports whether the room was created by a specific user.
func (r *Room) IsOwned() bool {
	return r.OwnerID != uuid.Nil
}

// AddConnUnsafe registers a member connection. Assumes lock is held.
// Arms the conversion timer once the room is full.
func (r *Room) AddConnUnsafe(conn *Conn) {
	if old, ok := r.Members[conn.UserID]; ok && old != conn {
		// replacing a stale connection for the same user
		close(old.OutChan)
		if old.OnEvict != nil {
			go old.OnEvict()
		}
		r.Members[conn.UserID] = conn
		conn.Write(map[string]interface{}{
			"type":    "joined_waitroom",
			"room_id": r.ID.String(),
			"game":    r.GameType,
			"topic":   r.Topic,
			"players": r.MemberNamesUnsafe(),
		})
		return
	}
	r.Members[conn.UserID] = conn
	r.Order = append(r.Order, conn.UserID)
	log.Printf("waitroom %s: user %s (%s) joined (%d/%d)", r.ID, conn.UserID, conn.Username, len(r.Members), Capacity)

	for _, other := range r.Members {
		if other.UserID != conn.UserID {
			other.Write(map[string]interface{}{
				"type":     "player_joined",
				"user_id":  conn.UserID.String(),
				"username": conn.Username,
			})
		}
	}
	conn.Write(map[string]interface{}{
		"type":    "joined_waitroom",
		"room_id": r.ID.String(),
		"game":    r.GameType,
		"topic":   r.Topic,
		"players": r.MemberNamesUnsafe(),
	})

	if len(r.Members) >= Capacity {
		r.armConvertUnsafe()
	}
}

// ForceConvert skips the remainder of the grace period, or, for owned rooms,
// is the only way to convert at all. Only meaningful on a full room;
// otherwise it is a no-op.
func (r *Room) ForceConvert() {
	r.Mu.Lock()
	if r.convertTimer != nil {
		r.convertTimer.Stop()
		r.convertTimer = nil
	}
	r.Mu.Unlock()
	r.tryConvert(true)
}

// armConvertUnsafe schedules the grace-delayed conversion check. Owned rooms
// never convert on their own; they hold until the owner starts the game.
// Assumes lock is held.
func (r *Room) armConvertUnsafe() {
	if r.Converted || r.convertTimer != nil || r.IsOwned() {
		return
	}
	r.convertTimer = time.AfterFunc(r.ConvertGrace, func() {
		r.tryConvert(false)
	})
}

// tryConvert runs after the grace period or on an owner's start. The room
// converts only if it is still full and nobody converted it already; a
// member leaving during the grace disarms the timer, but this re-check under
// the lock is what actually guarantees a single winner.
func (r *Room) tryConvert(forced bool) {
	r.Mu.Lock()
	r.convertTimer = nil
	if r.Converted || len(r.Members) < Capacity || (r.IsOwned() && !forced) {
		r.Mu.Unlock()
		return
	}
	r.Converted = true
	members := r.membersInOrderUnsafe()
	onConvert := r.OnConvert
	r.Mu.Unlock()

	log.Printf("waitroom %s: converting to game (%s/%s)", r.ID, r.GameType, r.Topic)
	if onConvert != nil {
		onConvert(r, members)
	}
}

// membersInOrderUnsafe snapshots current members following arrival order.
// Assumes lock is held.
func (r *Room) membersInOrderUnsafe() []*Conn {
	members := make([]*Conn, 0, len(r.Members))
	for _, id := range r.Order {
		if conn, ok := r.Members[id]; ok {
			members = append(members, conn)
		}
	}
	return members
}

// RemoveUser drops a member, disarms a pending conversion, and triggers
// OnEmpty when the room drains. Acquires lock. A converted room ignores
// removals; the game layer owns those users now.
func (r *Room) RemoveUser(userID uuid.UUID) {
	r.Mu.Lock()

	if r.Converted {
		r.Mu.Unlock()
		return
	}
	conn, ok := r.Members[userID]
	if !ok {
		r.Mu.Unlock()
		return
	}
	log.Printf("waitroom %s: user %s left", r.ID, userID)

	delete(r.Members, userID)
	for i, id := range r.Order {
		if id == userID {
			r.Order = append(r.Order[:i], r.Order[i+1:]...)
			break
		}
	}

	if r.convertTimer != nil {
		r.convertTimer.Stop()
		r.convertTimer = nil
	}

	leavePayload := map[string]interface{}{
		"type":     "player_left",
		"user_id":  userID.String(),
		"username": conn.Username,
	}
	r.BroadcastAllUnsafe(leavePayload)

	ownerLeft := r.IsOwned() && userID == r.OwnerID
	isEmpty := len(r.Members) == 0
	onEmpty := r.OnEmpty

	evicted := []*Conn{conn}
	if ownerLeft {
		// an owned room dies with its owner
		for _, other := range r.membersInOrderUnsafe() {
			other.Write(map[string]interface{}{"type": "waitroom_canceled"})
			evicted = append(evicted, other)
		}
		r.Members = make(map[uuid.UUID]*Conn)
		r.Order = nil
		isEmpty = true
	}
	r.Mu.Unlock()

	for _, ev := range evicted {
		go r.releaseConn(ev)
	}

	if isEmpty && onEmpty != nil {
		onEmpty(r.ID)
	}
}

// releaseConn closes a dropped member's OutChan (ending its write pump) and
// fires its eviction callback.
func (r *Room) releaseConn(conn *Conn) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("waitroom %s: recovered closing OutChan for user %s: %v", r.ID, conn.UserID, rec)
		}
	}()
	close(conn.OutChan)
	if conn.OnEvict != nil {
		conn.OnEvict()
	}
}

// InviteUserUnsafe marks a user as allowed to join an owned room. Assumes
// lock is held.
func (r *Room) InviteUserUnsafe(userID uuid.UUID) {
	if _, exists := r.Invited[userID]; !exists {
		r.Invited[userID] = true
		log.Printf("waitroom %s: user %s invited", r.ID, userID)
	}
}

// BroadcastAllUnsafe sends msg to every member. Assumes lock is held; Write
// is non-blocking so holding the lock here is safe.
func (r *Room) BroadcastAllUnsafe(msg map[string]interface{}) {
	for _, conn := range r.Members {
		conn.Write(msg)
	}
}

// MemberNamesUnsafe lists usernames in arrival order. Assumes lock is held.
func (r *Room) MemberNamesUnsafe() []string {
	names := make([]string, 0, len(r.Order))
	for _, id := range r.Order {
		if conn, ok := r.Members[id]; ok {
			names = append(names, conn.Username)
		}
	}
	return names
}
