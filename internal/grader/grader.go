// Package grader holds the per-question answer state machine and the
// remote-first, answer-key-fallback grading protocol.
package grader

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pavelanni/examquiz/internal/model"
)

// Status is the grading state of one question instance.
type Status string

const (
	StatusUnanswered Status = "unanswered"
	StatusCorrect    Status = "correct"
	StatusIncorrect  Status = "incorrect"
)

// Source identifies where a verdict came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// RemoteResult is a successfully obtained remote grading response.
// IsCorrect is nil when the response carried no verdict.
type RemoteResult struct {
	IsCorrect *bool
}

// Remote grades an answer out of process. Any returned error sends the
// grader to the answer-key fallback.
type Remote interface {
	Grade(ctx context.Context, questionID string, answer model.Symbol) (RemoteResult, error)
}

// Reporter receives the outcome of a question, once.
type Reporter func(isCorrect bool, points int)

// Verdict is the unified grading outcome regardless of source.
type Verdict struct {
	IsCorrect bool   `json:"is_correct"`
	Points    int    `json:"points"`
	Source    Source `json:"source"`
}

// State is a snapshot of a grader for rendering.
type State struct {
	Status   Status       `json:"status"`
	Selected model.Symbol `json:"selected,omitempty"`
	Grading  bool         `json:"grading"`
	// Answer is only filled once the question is terminal.
	Answer model.Symbol `json:"correct_answer,omitempty"`
}

// Grader owns the single-selection state of one displayed question.
type Grader struct {
	question model.Question
	remote   Remote
	report   Reporter

	mu       sync.Mutex
	status   Status
	selected model.Symbol
	inFlight bool
}

// New creates a grader for q. remote may be nil to grade from the answer key
// only; report may be nil.
func New(q model.Question, remote Remote, report Reporter) *Grader {
	return &Grader{
		question: q,
		remote:   remote,
		report:   report,
		status:   StatusUnanswered,
	}
}

// Question returns the question this grader was created for.
func (g *Grader) Question() model.Question {
	return g.question
}

// Submit grades sym and reports the outcome. It returns false without side
// effects when the question is already answered or a grading attempt is in
// flight.
func (g *Grader) Submit(ctx context.Context, sym model.Symbol) (Verdict, bool) {
	g.mu.Lock()
	if g.status != StatusUnanswered || g.inFlight {
		g.mu.Unlock()
		return Verdict{}, false
	}
	g.selected = sym
	g.inFlight = true
	g.mu.Unlock()

	v := g.decide(ctx, sym)

	g.mu.Lock()
	if v.IsCorrect {
		g.status = StatusCorrect
	} else {
		g.status = StatusIncorrect
	}
	g.inFlight = false
	g.mu.Unlock()

	if g.report != nil {
		g.report(v.IsCorrect, v.Points)
	}
	return v, true
}

func (g *Grader) decide(ctx context.Context, sym model.Symbol) Verdict {
	local := g.question.IsCorrect(sym)
	v := Verdict{IsCorrect: local, Source: SourceLocal}

	if g.remote != nil {
		res, err := g.remote.Grade(ctx, g.question.ID, sym)
		if err != nil {
			slog.Warn("remote grading unavailable, using answer key",
				"question_id", g.question.ID, "error", err)
		} else {
			v.Source = SourceRemote
			if res.IsCorrect != nil {
				v.IsCorrect = *res.IsCorrect
			}
			if v.IsCorrect != local {
				slog.Debug("remote verdict overrides answer key",
					"question_id", g.question.ID, "remote", v.IsCorrect)
			}
		}
	}

	if v.IsCorrect {
		v.Points = g.question.Points()
	}
	return v
}

// State returns a snapshot of the grader.
func (g *Grader) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := State{Status: g.status, Selected: g.selected, Grading: g.inFlight}
	if g.status != StatusUnanswered {
		st.Answer = g.question.Answer()
	}
	return st
}
