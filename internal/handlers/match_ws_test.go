// internal/handlers/match_ws_test.go
package handlers

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pzielinski/wordrace/internal/words"
)

func newTestMatchServer() *MatchServer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewMatchServer(logger, words.NewStaticProvider(words.SampleSets()))
}

func newTestSession(ms *MatchServer, username string) *matchSession {
	sess := &matchSession{
		userID:   uuid.New(),
		username: username,
		cancel:   func() {},
	}
	ms.registerSession(sess)
	return sess
}

// inertCtx is already canceled so write pumps spawned by the handler exit
// immediately; these tests drive handler state only, never the wire.
func inertCtx() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestWaitroomRequestRejectsRoomIDWithGameFields(t *testing.T) {
	ms := newTestMatchServer()
	sess := newTestSession(ms, "alice")
	ctx := inertCtx()

	msg := MatchMessage{
		Type:   "waitroom_request",
		RoomID: uuid.NewString(),
		Game:   GameTypeRace,
		Topic:  "animals",
	}
	handleWaitroomRequest(ctx, nil, ms, sess, msg, ms.Logger)
	assert.Nil(t, sess.currentRoom(), "mixed join request must not be admitted")

	msg = MatchMessage{Type: "waitroom_request", RoomID: uuid.NewString(), Owned: true}
	handleWaitroomRequest(ctx, nil, ms, sess, msg, ms.Logger)
	assert.Nil(t, sess.currentRoom())
}

func TestOwnerLeaveFreesEvictedMembersForNewRequests(t *testing.T) {
	ms := newTestMatchServer()
	ctx := inertCtx()

	owner := newTestSession(ms, "olga")
	handleWaitroomRequest(ctx, nil, ms, owner, MatchMessage{
		Type: "waitroom_request", Game: GameTypeRace, Topic: "animals", Owned: true,
	}, ms.Logger)
	room := owner.currentRoom()
	require.NotNil(t, room)

	invitee := newTestSession(ms, "ivan")
	room.Mu.Lock()
	room.InviteUserUnsafe(invitee.userID)
	room.Mu.Unlock()

	handleWaitroomRequest(ctx, nil, ms, invitee, MatchMessage{
		Type: "waitroom_request", RoomID: room.ID.String(),
	}, ms.Logger)
	require.NotNil(t, invitee.currentRoom())

	handleMatchMessage(ctx, nil, ms, owner, MatchMessage{Type: "leave_waitroom"}, ms.Logger)

	require.Eventually(t, func() bool {
		return invitee.currentRoom() == nil
	}, time.Second, 5*time.Millisecond, "eviction must clear the member's waitroom state")

	// both the leaver and the evicted member can immediately queue again on
	// the same session; leaving a room never ends the connection
	handleWaitroomRequest(ctx, nil, ms, invitee, MatchMessage{
		Type: "waitroom_request", Game: GameTypeRace, Topic: "animals",
	}, ms.Logger)
	assert.NotNil(t, invitee.currentRoom())

	handleWaitroomRequest(ctx, nil, ms, owner, MatchMessage{
		Type: "waitroom_request", Game: GameTypeRace, Topic: "food",
	}, ms.Logger)
	assert.NotNil(t, owner.currentRoom())
}
