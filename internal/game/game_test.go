// internal/game/game_test.go
package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pzielinski/wordrace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcaster collects events instead of sending them over WS.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []Event
	playerEvents map[uuid.UUID][]Event
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{
		playerEvents: make(map[uuid.UUID][]Event),
	}
}

func (mb *mockBroadcaster) broadcastFn(ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) broadcastToPlayerFn(userID uuid.UUID, ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[userID] = append(mb.playerEvents[userID], ev)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = nil
	mb.playerEvents = make(map[uuid.UUID][]Event)
}

func (mb *mockBroadcaster) lastEventOfType(typ EventType) *Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i := len(mb.allEvents) - 1; i >= 0; i-- {
		if mb.allEvents[i].Type == typ {
			ev := mb.allEvents[i]
			return &ev
		}
	}
	return nil
}

func (mb *mockBroadcaster) lastPlayerEventOfType(userID uuid.UUID, typ EventType) *Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	events := mb.playerEvents[userID]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == typ {
			ev := events[i]
			return &ev
		}
	}
	return nil
}

// stubRules checks answers against the round's ground truth directly.
type stubRules struct{}

func (stubRules) GenerateRounds(_ context.Context, _ string, count int) ([]models.Round, error) {
	return fixtureRounds(count), nil
}

func (stubRules) IsAnswerCorrect(round models.Round, answer string) bool {
	return answer != "" && answer == round.Answer
}

func fixtureRounds(count int) []models.Round {
	rounds := make([]models.Round, count)
	for i := range rounds {
		rounds[i] = models.Round{
			Prompt:  fmt.Sprintf("prompt-%d", i),
			Options: []string{"a", "b", "c", fmt.Sprintf("answer-%d", i)},
			Answer:  fmt.Sprintf("answer-%d", i),
		}
	}
	return rounds
}

type endCapture struct {
	mu         sync.Mutex
	ended      bool
	scoreboard []ScoreboardEntry
	records    []models.GameSessionRecord
}

func (ec *endCapture) onGameEnd(_ uuid.UUID, sb []ScoreboardEntry) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.ended = true
	ec.scoreboard = sb
}

func (ec *endCapture) finalize(rec models.GameSessionRecord) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.records = append(ec.records, rec)
}

func (ec *endCapture) hasEnded() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.ended
}

func (ec *endCapture) recordCount() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return len(ec.records)
}

// setupTestGame builds a started game with short timers and mock broadcasters.
func setupTestGame(t *testing.T, numPlayers, numRounds int) (*ActiveGame, []*models.Participant, *mockBroadcaster, *endCapture) {
	t.Helper()

	participants := make([]*models.Participant, numPlayers)
	for i := 0; i < numPlayers; i++ {
		participants[i] = &models.Participant{
			UserID:   uuid.New(),
			Username: fmt.Sprintf("player-%d", i),
		}
	}

	g := NewActiveGame("race", "animals", fixtureRounds(numRounds), stubRules{}, participants)
	g.Timing = Timing{
		StartDelay:   10 * time.Millisecond,
		RoundTimeout: 250 * time.Millisecond,
		SettleDelay:  10 * time.Millisecond,
	}

	mb := newMockBroadcaster()
	g.BroadcastFn = mb.broadcastFn
	g.BroadcastToPlayerFn = mb.broadcastToPlayerFn

	ec := &endCapture{}
	g.OnGameEnd = ec.onGameEnd
	g.FinalizeFn = ec.finalize

	g.Begin()
	require.Eventually(t, func() bool {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		return g.Started && g.roundActive
	}, time.Second, 5*time.Millisecond, "first round should start")

	return g, participants, mb, ec
}

func waitForRound(t *testing.T, g *ActiveGame, idx int) {
	t.Helper()
	require.Eventually(t, func() bool {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		return g.RoundIndex == idx && g.roundActive && !g.Finished
	}, 2*time.Second, 5*time.Millisecond, "round %d should be active", idx)
}

func TestPointsFollowAnswerOrder(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 2, 3)

	first := g.SubmitAnswer(players[0].UserID, "answer-0", 0)
	require.True(t, first.Accepted)
	assert.True(t, first.Correct)
	assert.Equal(t, 25, first.Points)
	assert.False(t, first.RoundComplete)

	second := g.SubmitAnswer(players[1].UserID, "answer-0", 0)
	require.True(t, second.Accepted)
	assert.True(t, second.Correct)
	assert.Equal(t, 20, second.Points)
	assert.True(t, second.RoundComplete, "second answer fills the quorum")

	assert.Equal(t, 25, players[0].Score)
	assert.Equal(t, 20, players[1].Score)
}

func TestWrongAnswerScoresZero(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 2, 2)

	out := g.SubmitAnswer(players[0].UserID, "nonsense", 0)
	require.True(t, out.Accepted)
	assert.False(t, out.Correct)
	assert.Equal(t, 0, out.Points)
	assert.Equal(t, 0, players[0].Score)

	// the wrong answer still counts toward the quorum
	out2 := g.SubmitAnswer(players[1].UserID, "answer-0", 0)
	require.True(t, out2.Accepted)
	assert.Equal(t, 25, out2.Points, "first correct answer takes the top points")
	assert.True(t, out2.RoundComplete)
}

func TestStaleRoundClaimIsDropped(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 2, 3)

	out := g.SubmitAnswer(players[0].UserID, "answer-1", 1)
	assert.False(t, out.Accepted)
	assert.Equal(t, 0, players[0].Score)

	g.Mu.Lock()
	assert.Equal(t, 0, g.AnswersInRound)
	g.Mu.Unlock()
}

func TestSecondAnswerSameRoundIsLatched(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 2, 3)

	first := g.SubmitAnswer(players[0].UserID, "nonsense", 0)
	require.True(t, first.Accepted)

	retry := g.SubmitAnswer(players[0].UserID, "answer-0", 0)
	assert.False(t, retry.Accepted, "a participant gets one answer per round")
	assert.Equal(t, 0, players[0].Score)

	g.Mu.Lock()
	assert.Equal(t, 1, g.AnswersInRound)
	g.Mu.Unlock()
}

func TestRoundTimeoutAdvancesGame(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 2, 2)

	g.SubmitAnswer(players[0].UserID, "answer-0", 0)
	// player 1 never answers; the timeout must end the round
	waitForRound(t, g, 1)

	res := mb.lastPlayerEventOfType(players[0].UserID, EventRoundResult)
	require.NotNil(t, res)
	assert.Equal(t, "answer-0", res.Correct)
	assert.Equal(t, "answer-0", res.Your)
	require.NotNil(t, res.Points)
	assert.Equal(t, 25, *res.Points)

	idle := mb.lastPlayerEventOfType(players[1].UserID, EventRoundResult)
	require.NotNil(t, idle)
	assert.Empty(t, idle.Your)
	require.NotNil(t, idle.Points)
	assert.Equal(t, 0, *idle.Points)
}

func TestLateTimeoutDoesNotDoubleComplete(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 2, 3)

	g.SubmitAnswer(players[0].UserID, "answer-0", 0)
	g.SubmitAnswer(players[1].UserID, "answer-0", 0)
	waitForRound(t, g, 1)

	// simulate the round 0 timeout firing after the all-answered completion
	g.timeoutRound(0)

	g.Mu.Lock()
	assert.Equal(t, 1, g.RoundIndex, "stale timeout must not advance the game")
	g.Mu.Unlock()
}

func TestAnswersDuringSettleWindowAreDropped(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 2, 3)

	// stretch the settle window so the next question stays unrevealed while
	// we try to answer it
	g.Mu.Lock()
	g.Timing.SettleDelay = 300 * time.Millisecond
	g.Mu.Unlock()

	g.SubmitAnswer(players[0].UserID, "answer-0", 0)
	out := g.SubmitAnswer(players[1].UserID, "answer-0", 0)
	require.True(t, out.RoundComplete)

	// round 1 is now the current index but its question has not been sent
	early := g.SubmitAnswer(players[0].UserID, "answer-1", 1)
	assert.False(t, early.Accepted, "answers before the question reveal are dropped")
	early2 := g.SubmitAnswer(players[1].UserID, "answer-1", 1)
	assert.False(t, early2.Accepted)

	g.Mu.Lock()
	assert.Equal(t, 1, g.RoundIndex, "the unrevealed round must not complete")
	assert.Equal(t, 0, g.AnswersInRound)
	g.Mu.Unlock()

	waitForRound(t, g, 1)
	accepted := g.SubmitAnswer(players[0].UserID, "answer-1", 1)
	assert.True(t, accepted.Accepted, "the same answer is valid once the question is out")

	q := mb.lastEventOfType(EventNewQuestion)
	require.NotNil(t, q)
	require.NotNil(t, q.Round)
	assert.Equal(t, 1, *q.Round, "round 1's question is broadcast before any answer counts")
}

func TestDisconnectShrinksAnswerQuorum(t *testing.T) {
	g, players, _, ec := setupTestGame(t, 2, 3)

	g.HandleDisconnect(players[1].UserID)
	assert.Equal(t, 1, ec.recordCount(), "leaver gets a session record immediately")

	out := g.SubmitAnswer(players[0].UserID, "answer-0", 0)
	require.True(t, out.Accepted)
	assert.True(t, out.RoundComplete, "remaining player alone fills the quorum")
}

func TestDisconnectAfterAnsweringDropsCountedAnswer(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 2, 3)

	g.SubmitAnswer(players[1].UserID, "answer-0", 0)
	g.HandleDisconnect(players[1].UserID)

	g.Mu.Lock()
	assert.Equal(t, 0, g.AnswersInRound, "leaver's counted answer is dropped with their quorum slot")
	assert.Equal(t, 1, g.RequiredAnswers)
	assert.Equal(t, 0, g.RoundIndex, "remaining player still gets to answer")
	g.Mu.Unlock()
}

func TestAllDisconnectedTearsDownGame(t *testing.T) {
	g, players, _, ec := setupTestGame(t, 2, 3)

	g.HandleDisconnect(players[0].UserID)
	g.HandleDisconnect(players[1].UserID)

	require.Eventually(t, ec.hasEnded, time.Second, 5*time.Millisecond)
	assert.Nil(t, ec.scoreboard, "abandoned games publish no scoreboard")
	assert.Equal(t, 2, ec.recordCount())

	g.Mu.Lock()
	assert.True(t, g.Finished)
	g.Mu.Unlock()
}

func TestGameFinishesWithScoreboard(t *testing.T) {
	g, players, mb, ec := setupTestGame(t, 2, 1)

	g.SubmitAnswer(players[0].UserID, "answer-0", 0)
	g.SubmitAnswer(players[1].UserID, "nonsense", 0)

	require.Eventually(t, ec.hasEnded, 2*time.Second, 5*time.Millisecond)

	final := mb.lastEventOfType(EventFinalResult)
	require.NotNil(t, final)
	require.Len(t, final.Scoreboard, 2)
	assert.Equal(t, "player-0", final.Scoreboard[0].Username)
	assert.Equal(t, 25, final.Scoreboard[0].Score)
	assert.Equal(t, 1, final.Scoreboard[0].Place)
	assert.Equal(t, 2, final.Scoreboard[1].Place)

	assert.Equal(t, 2, ec.recordCount())
	g.Mu.Lock()
	assert.True(t, g.Finished)
	g.Mu.Unlock()
}

func TestFullMatchRunsAllRounds(t *testing.T) {
	g, players, mb, ec := setupTestGame(t, 2, 3)

	for i := 0; i < 3; i++ {
		waitForRound(t, g, i)
		g.SubmitAnswer(players[0].UserID, fmt.Sprintf("answer-%d", i), i)
		g.SubmitAnswer(players[1].UserID, "nonsense", i)
	}

	require.Eventually(t, ec.hasEnded, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 75, players[0].Score)
	assert.Equal(t, 0, players[1].Score)

	questions := 0
	mb.mu.Lock()
	for _, ev := range mb.allEvents {
		if ev.Type == EventNewQuestion {
			questions++
		}
	}
	mb.mu.Unlock()
	assert.Equal(t, 3, questions)
}

func TestScoreboardTiesSharePlace(t *testing.T) {
	participants := []*models.Participant{
		{UserID: uuid.New(), Username: "a", Score: 30},
		{UserID: uuid.New(), Username: "b", Score: 30},
		{UserID: uuid.New(), Username: "c", Score: 10},
	}
	g := NewActiveGame("race", "animals", fixtureRounds(1), stubRules{}, participants)

	g.Mu.Lock()
	sb := g.scoreboardLocked()
	g.Mu.Unlock()

	require.Len(t, sb, 3)
	assert.Equal(t, 1, sb[0].Place)
	assert.Equal(t, 1, sb[1].Place)
	assert.Equal(t, 2, sb[2].Place)
	assert.Equal(t, "c", sb[2].Username)
}

func TestPointsForPosition(t *testing.T) {
	assert.Equal(t, 25, PointsForPosition(0))
	assert.Equal(t, 20, PointsForPosition(1))
	assert.Equal(t, 15, PointsForPosition(2))
	assert.Equal(t, 10, PointsForPosition(3))
	assert.Equal(t, 5, PointsForPosition(4))
	assert.Equal(t, 5, PointsForPosition(9), "positions past the table earn the floor")
	assert.Equal(t, 0, PointsForPosition(-1))
}

func TestAnswersAfterFinishReportGameOver(t *testing.T) {
	g, players, _, ec := setupTestGame(t, 2, 1)

	g.SubmitAnswer(players[0].UserID, "answer-0", 0)
	g.SubmitAnswer(players[1].UserID, "answer-0", 0)
	require.Eventually(t, ec.hasEnded, 2*time.Second, 5*time.Millisecond)

	out := g.SubmitAnswer(players[0].UserID, "answer-0", 1)
	assert.True(t, out.GameOver)
	assert.False(t, out.Accepted)
}
