// internal/game/active_game.go
package game

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pzielinski/wordrace/internal/models"
)

// OnGameEndFunc is invoked exactly once when a match finishes or is torn
// down, after the final scoreboard (if any) has been broadcast. scoreboard is
// nil when the match was abandoned before completion.
type OnGameEndFunc func(gameID uuid.UUID, scoreboard []ScoreboardEntry)

// FinalizeFunc receives a participant's historical session record. It must
// not block; the persistence wiring runs it fire-and-forget.
type FinalizeFunc func(rec models.GameSessionRecord)

// Timing holds the fixed delays driving round progression.
type Timing struct {
	StartDelay   time.Duration // game_starting -> round 0 question
	RoundTimeout time.Duration // question -> forced round end
	SettleDelay  time.Duration // round result -> next question / final result
}

func DefaultTiming() Timing {
	return Timing{
		StartDelay:   1 * time.Second,
		RoundTimeout: 10 * time.Second,
		SettleDelay:  1 * time.Second,
	}
}

// AnswerOutcome reports what SubmitAnswer did. A rejected answer (stale round,
// duplicate, unknown participant) leaves every counter untouched.
type AnswerOutcome struct {
	Accepted      bool
	Correct       bool
	Points        int
	RoundComplete bool
	GameOver      bool
}

// ActiveGame holds the entire state of one in-progress match in memory. Its
// counters are the only shared mutable state in the coordinator; every
// mutation happens under Mu with a round-index precondition, which is what
// makes the timeout-vs-all-answered race resolve to exactly one winner.
type ActiveGame struct {
	ID       uuid.UUID
	GameType string
	Topic    string

	// Rounds is immutable once the game is created.
	Rounds      []models.Round
	TotalRounds int

	RoundIndex      int
	AnswersInRound  int
	RequiredAnswers int
	correctInRound  int

	Participants []*models.Participant
	CreatedAt    time.Time

	Timing Timing

	Started  bool
	Finished bool

	// roundActive is true only between a round's question broadcast and its
	// completion. Answers arriving during the settle window target a round
	// whose question nobody has seen yet, so they are rejected.
	roundActive bool

	rules Rules

	startTimer  *time.Timer
	roundTimer  *time.Timer
	settleTimer *time.Timer

	begun bool

	Mu sync.Mutex

	// BroadcastFn sends an event to all connected participants. If nil, no
	// broadcast is done.
	BroadcastFn func(ev Event)

	// BroadcastToPlayerFn sends an event to a single participant.
	BroadcastToPlayerFn func(userID uuid.UUID, ev Event)

	OnGameEnd  OnGameEndFunc
	FinalizeFn FinalizeFunc
}

// NewActiveGame builds a match from a converted waitroom. rounds must come
// from rules.GenerateRounds for the same topic.
func NewActiveGame(gameType, topic string, rounds []models.Round, rules Rules, participants []*models.Participant) *ActiveGame {
	id, _ := uuid.NewRandom()
	for _, p := range participants {
		p.Connected = true
		p.LastAnsweredRound = -1
	}
	return &ActiveGame{
		ID:              id,
		GameType:        gameType,
		Topic:           topic,
		Rounds:          rounds,
		TotalRounds:     len(rounds),
		RequiredAnswers: len(participants),
		Participants:    participants,
		CreatedAt:       time.Now(),
		Timing:          DefaultTiming(),
		rules:           rules,
	}
}

// SubmitAnswer validates and scores one inbound answer. roundClaimed is the
// round index the client believes is current; a mismatch means the answer
// lost a race against the scheduler and is silently dropped.
func (g *ActiveGame) SubmitAnswer(userID uuid.UUID, answer string, roundClaimed int) AnswerOutcome {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.Finished {
		return AnswerOutcome{GameOver: true}
	}
	if !g.Started || !g.roundActive || roundClaimed != g.RoundIndex || g.RoundIndex >= g.TotalRounds {
		return AnswerOutcome{}
	}

	p := g.participantLocked(userID)
	if p == nil || !p.Connected {
		return AnswerOutcome{}
	}
	if p.LastAnsweredRound == g.RoundIndex {
		// answer already latched for this round
		return AnswerOutcome{}
	}

	round := g.Rounds[g.RoundIndex]
	correct := g.rules.IsAnswerCorrect(round, answer)

	points := 0
	if correct {
		points = PointsForPosition(g.correctInRound)
		g.correctInRound++
		p.Score += points
		p.GoodAnswers++
	}
	p.LastAnsweredRound = g.RoundIndex
	p.LastAnswer = answer
	p.LastPoints = points
	g.AnswersInRound++

	complete := g.AnswersInRound >= g.RequiredAnswers
	if complete {
		g.completeRoundLocked(g.RoundIndex)
	}
	return AnswerOutcome{Accepted: true, Correct: correct, Points: points, RoundComplete: complete}
}

// HandleDisconnect finalizes the leaving participant's session record and
// shrinks the answer quorum so remaining players are never stuck waiting on
// someone who will not answer again.
func (g *ActiveGame) HandleDisconnect(userID uuid.UUID) {
	g.Mu.Lock()

	p := g.participantLocked(userID)
	if p == nil || !p.Connected {
		g.Mu.Unlock()
		return
	}
	log.Printf("game %s: participant %s disconnected", g.ID, userID)

	p.Connected = false
	p.Conn = nil
	rec := g.sessionRecordLocked(p)

	if p.LastAnsweredRound == g.RoundIndex {
		// their answer is already counted this round; drop it together with
		// the quorum slot so AnswersInRound never exceeds RequiredAnswers
		g.AnswersInRound--
	}
	g.RequiredAnswers--

	if g.RequiredAnswers <= 0 {
		g.teardownLocked()
		finalize := g.FinalizeFn
		onEnd := g.OnGameEnd
		g.Mu.Unlock()
		if finalize != nil {
			finalize(rec)
		}
		if onEnd != nil {
			onEnd(g.ID, nil)
		}
		return
	}

	if g.Started && g.roundActive && g.AnswersInRound > 0 && g.AnswersInRound >= g.RequiredAnswers {
		g.completeRoundLocked(g.RoundIndex)
	}

	finalize := g.FinalizeFn
	g.Mu.Unlock()
	if finalize != nil {
		finalize(rec)
	}
}

// teardownLocked marks the game finished and stops all pending timers.
// Assumes lock is held.
func (g *ActiveGame) teardownLocked() {
	g.Finished = true
	g.roundActive = false
	if g.startTimer != nil {
		g.startTimer.Stop()
	}
	if g.roundTimer != nil {
		g.roundTimer.Stop()
	}
	if g.settleTimer != nil {
		g.settleTimer.Stop()
	}
}

// participantLocked finds a participant by user id. Assumes lock is held.
func (g *ActiveGame) participantLocked(userID uuid.UUID) *models.Participant {
	for _, p := range g.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// sessionRecordLocked snapshots a participant's historical record. Assumes
// lock is held.
func (g *ActiveGame) sessionRecordLocked(p *models.Participant) models.GameSessionRecord {
	opponents := make([]uuid.UUID, 0, len(g.Participants)-1)
	for _, other := range g.Participants {
		if other.UserID != p.UserID {
			opponents = append(opponents, other.UserID)
		}
	}
	accuracy := 0.0
	if g.TotalRounds > 0 {
		accuracy = float64(p.GoodAnswers) / float64(g.TotalRounds)
	}
	return models.GameSessionRecord{
		UserID:      p.UserID,
		GameType:    g.GameType,
		Topic:       g.Topic,
		Score:       p.Score,
		GoodAnswers: p.GoodAnswers,
		Accuracy:    accuracy,
		DurationSec: int(time.Since(g.CreatedAt).Seconds()),
		Opponents:   opponents,
		Timestamp:   time.Now().UnixMilli(),
	}
}

// finalRecordsLocked snapshots session records for every participant still
// connected at the end of the match. Leavers were finalized on disconnect.
// Assumes lock is held.
func (g *ActiveGame) finalRecordsLocked() []models.GameSessionRecord {
	recs := make([]models.GameSessionRecord, 0, len(g.Participants))
	for _, p := range g.Participants {
		if p.Connected {
			recs = append(recs, g.sessionRecordLocked(p))
		}
	}
	return recs
}

// scoreboardLocked ranks participants by score descending. Equal scores share
// a place: scores 30,30,10 rank 1,1,2. Assumes lock is held.
func (g *ActiveGame) scoreboardLocked() []ScoreboardEntry {
	ranked := make([]*models.Participant, len(g.Participants))
	copy(ranked, g.Participants)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	entries := make([]ScoreboardEntry, 0, len(ranked))
	place := 0
	prevScore := 0
	for i, p := range ranked {
		if i == 0 || p.Score < prevScore {
			place++
			prevScore = p.Score
		}
		entries = append(entries, ScoreboardEntry{
			Username: p.Username,
			Score:    p.Score,
			Place:    place,
		})
	}
	return entries
}

// fireEvent broadcasts an event to all connected participants. Assumes lock
// is held; the broadcast function must not block (the handler layer snapshots
// connections and writes asynchronously).
func (g *ActiveGame) fireEvent(ev Event) {
	if g.BroadcastFn != nil {
		g.BroadcastFn(ev)
	} else {
		log.Printf("game %s: BroadcastFn is nil, dropping event %s", g.ID, ev.Type)
	}
}

// fireEventToPlayer sends an event to a single connected participant.
// Assumes lock is held.
func (g *ActiveGame) fireEventToPlayer(userID uuid.UUID, ev Event) {
	if g.BroadcastToPlayerFn == nil {
		log.Printf("game %s: BroadcastToPlayerFn is nil, dropping event %s", g.ID, ev.Type)
		return
	}
	p := g.participantLocked(userID)
	if p != nil && p.Connected {
		g.BroadcastToPlayerFn(userID, ev)
	}
}
