// internal/game/scheduler.go
package game

import (
	"log"
	"time"
)

// Begin announces the match and arms the timer that reveals the first
// question. Safe to call once; repeats are no-ops.
func (g *ActiveGame) Begin() {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.begun || g.Finished {
		return
	}
	g.begun = true

	players := make([]string, 0, len(g.Participants))
	for _, p := range g.Participants {
		players = append(players, p.Username)
	}
	g.fireEvent(Event{Type: EventGameStarting, Players: players})

	log.Printf("game %s: starting %s (%s), %d rounds, %d players",
		g.ID, g.GameType, g.Topic, g.TotalRounds, len(g.Participants))

	g.startTimer = time.AfterFunc(g.Timing.StartDelay, func() {
		g.startRound(0)
	})
}

// startRound reveals the question for round idx and arms the timeout timer.
// Stale invocations (the game moved on or ended while the timer was pending)
// do nothing.
func (g *ActiveGame) startRound(idx int) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.Finished || idx != g.RoundIndex || idx >= g.TotalRounds {
		return
	}
	g.Started = true
	g.roundActive = true

	round := g.Rounds[idx]
	g.fireEvent(Event{
		Type:       EventNewQuestion,
		Question:   round.Prompt,
		Options:    round.Options,
		Letters:    round.Letters,
		Round:      intPtr(idx),
		TimeoutSec: int(g.Timing.RoundTimeout / time.Second),
	})

	g.roundTimer = time.AfterFunc(g.Timing.RoundTimeout, func() {
		g.timeoutRound(idx)
	})
}

func (g *ActiveGame) timeoutRound(idx int) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.completeRoundLocked(idx)
}

// completeRoundLocked ends round expected if and only if it is still the
// current round. Both the timeout timer and the all-answered path funnel
// here; whichever runs first advances RoundIndex and the loser sees the
// mismatch and backs off. Assumes lock is held.
func (g *ActiveGame) completeRoundLocked(expected int) {
	if g.Finished || !g.Started || !g.roundActive || expected != g.RoundIndex || expected >= g.TotalRounds {
		return
	}
	if g.roundTimer != nil {
		g.roundTimer.Stop()
	}

	round := g.Rounds[expected]
	g.RoundIndex++
	g.roundActive = false

	for _, p := range g.Participants {
		if !p.Connected {
			continue
		}
		ev := Event{
			Type:    EventRoundResult,
			Correct: round.Answer,
			Points:  intPtr(0),
			Score:   intPtr(p.Score),
		}
		if p.LastAnsweredRound == expected {
			ev.Your = p.LastAnswer
			ev.Points = intPtr(p.LastPoints)
		}
		g.fireEventToPlayer(p.UserID, ev)
	}

	g.AnswersInRound = 0
	g.correctInRound = 0

	next := g.RoundIndex
	g.settleTimer = time.AfterFunc(g.Timing.SettleDelay, func() {
		if next < g.TotalRounds {
			g.startRound(next)
		} else {
			g.finishGame()
		}
	})
}

// finishGame broadcasts the final scoreboard, finalizes the session records
// of everyone still connected, and hands the game id back to the store.
func (g *ActiveGame) finishGame() {
	g.Mu.Lock()

	if g.Finished {
		g.Mu.Unlock()
		return
	}
	g.teardownLocked()

	scoreboard := g.scoreboardLocked()
	g.fireEvent(Event{Type: EventFinalResult, Scoreboard: scoreboard})

	log.Printf("game %s: finished after %d rounds", g.ID, g.TotalRounds)

	finalize := g.FinalizeFn
	onEnd := g.OnGameEnd
	snapshots := g.finalRecordsLocked()
	g.Mu.Unlock()

	if finalize != nil {
		for _, rec := range snapshots {
			finalize(rec)
		}
	}
	if onEnd != nil {
		onEnd(g.ID, scoreboard)
	}
}
