package usecase

import (
	"math"
	"time"

	"venture-idea-analyzer/internal/domain/model"
)

// ReconcileState is the client-facing view of a job derived from server
// state alone, never from how long a client has been waiting.
type ReconcileState string

const (
	StateLoading  ReconcileState = "loading"
	StatePartial  ReconcileState = "partial"
	StateComplete ReconcileState = "complete"
	StateFailed   ReconcileState = "failed"
	StateStalled  ReconcileState = "stalled"
)

const (
	stallThreshold = 60 * time.Second
	stallMajority  = 6

	pollBaseInterval = 2 * time.Second
	pollMaxInterval  = 15 * time.Second
	pollActivityAge  = 10 * time.Second
	pollMaxAttempts  = 120
)

// Verdict maps a job snapshot to a reconcile state. Completion is
// conjunctive: terminal status, a well-formed report and all eight
// stages materialized; any piece missing keeps the verdict below
// complete.
func Verdict(job *model.AnalysisJob) ReconcileState {
	if job == nil {
		return StateLoading
	}
	if job.Status == model.JobStatusFailed {
		return StateFailed
	}
	count := job.CompletedStageCount()
	if job.Status.Terminal() && reportWellFormed(job) && count == len(model.AnalysisStages) {
		return StateComplete
	}
	if count > 0 {
		return StatePartial
	}
	return StateLoading
}

func reportWellFormed(job *model.AnalysisJob) bool {
	r := job.FinalReport
	if r == nil || len(r.CategoryScores) == 0 {
		return false
	}
	return !math.IsNaN(r.OverallScore) && r.OverallScore >= 0 && r.OverallScore <= 100
}

// Progress maps a job to a 0-100 display percentage. The stage region
// spans 10-90 so the bar visibly moves on submission and never claims
// completion before the verdict does.
func Progress(job *model.AnalysisJob) int {
	if job == nil {
		return 0
	}
	switch Verdict(job) {
	case StateComplete, StateFailed:
		return 100
	}
	p := 10 + job.CompletedStageCount()*(80/len(model.AnalysisStages))
	if p > 90 {
		p = 90
	}
	return p
}

// Assessment is what one polling observation tells the client to do.
type Assessment struct {
	State        ReconcileState
	Progress     int
	PollAfter    time.Duration
	OfferPartial bool
	ForceRefresh bool
	GiveUp       bool
}

// Tracker accumulates polling history for one client watching one job:
// when stage activity was last seen and how far the poll interval has
// backed off.
type Tracker struct {
	lastCount    int
	lastActivity time.Time
	interval     time.Duration
	attempts     int
}

func NewTracker(now time.Time) *Tracker {
	return &Tracker{lastActivity: now, interval: pollBaseInterval}
}

// Observe folds one polled snapshot into the tracker and returns the
// client's next move. A stall is declared only from observed server
// inactivity; elapsed client time alone never flips the state.
func (t *Tracker) Observe(job *model.AnalysisJob, now time.Time) Assessment {
	t.attempts++
	state := Verdict(job)
	a := Assessment{State: state, Progress: Progress(job)}
	if state == StateComplete || state == StateFailed {
		return a
	}

	count := 0
	if job != nil {
		count = job.CompletedStageCount()
	}
	if count > t.lastCount {
		t.lastCount = count
		t.lastActivity = now
		t.interval = pollBaseInterval
	}

	idle := now.Sub(t.lastActivity)
	if idle > stallThreshold && count < len(model.AnalysisStages) {
		a.State = StateStalled
		a.ForceRefresh = true
		a.OfferPartial = count >= stallMajority
	} else if idle > pollActivityAge && t.interval < pollMaxInterval {
		t.interval = t.interval * 3 / 2
		if t.interval > pollMaxInterval {
			t.interval = pollMaxInterval
		}
	}
	a.PollAfter = t.interval

	if t.attempts >= pollMaxAttempts {
		a.GiveUp = true
		a.OfferPartial = count > 0
	}
	return a
}
