// Package session aggregates per-question grading outcomes into a running
// score over the displayed subset of a question pool.
package session

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/pavelanni/examquiz/internal/grader"
	"github.com/pavelanni/examquiz/internal/model"
)

// DefaultSampleSize is the number of questions drawn by SampleRandom when
// no positive count is given.
const DefaultSampleSize = 5

// Display describes what the session currently shows.
type Display string

const (
	DisplayLoading Display = "loading"
	DisplayError   Display = "error"
	DisplayEmpty   Display = "empty"
	DisplayReady   Display = "ready"
)

// Totals is the running score of the displayed set.
type Totals struct {
	Score    int `json:"score"`
	Answered int `json:"answered"`
	Correct  int `json:"correct"`
}

// PoolSource delivers the question pool.
type PoolSource interface {
	ListQuestions(examNo int) ([]model.Question, error)
}

// Session owns the pool, the displayed graders and the totals.
type Session struct {
	remote  grader.Remote
	shuffle func(n int, swap func(i, j int))

	mu        sync.Mutex
	pool      []model.Question
	loadErr   error
	loaded    bool
	epoch     uint64
	displayed []*grader.Grader
	byID      map[string]*grader.Grader
	totals    Totals
}

// Option configures a Session.
type Option func(*Session)

// WithShuffle replaces the random permutation used by SampleRandom.
func WithShuffle(fn func(n int, swap func(i, j int))) Option {
	return func(s *Session) { s.shuffle = fn }
}

// New creates an empty session whose graders use remote (nil for answer-key
// grading only).
func New(remote grader.Remote, opts ...Option) *Session {
	s := &Session{
		remote:  remote,
		shuffle: rand.Shuffle,
		byID:    map[string]*grader.Grader{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load fetches the pool from src and displays all of it. On failure the
// session is left in the error state with an empty pool.
func (s *Session) Load(src PoolSource, examNo int) error {
	pool, err := src.ListQuestions(examNo)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	if err != nil {
		s.loadErr = err
		s.pool = nil
		s.displayLocked(nil)
		return err
	}
	s.loadErr = nil
	s.pool = pool
	s.displayLocked(pool)
	slog.Info("question pool loaded", "exam_no", examNo, "count", len(pool))
	return nil
}

// LoadFiltered displays the questions whose number equals questionNo, or the
// full pool when questionNo is 0. An empty result is a valid display.
func (s *Session) LoadFiltered(questionNo int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if questionNo == 0 {
		s.displayLocked(s.pool)
		return
	}
	var qs []model.Question
	for _, q := range s.pool {
		if q.QuestionNo == questionNo {
			qs = append(qs, q)
		}
	}
	s.displayLocked(qs)
}

// SampleRandom displays up to count questions drawn from the full pool in
// random order.
func (s *Session) SampleRandom(count int) {
	if count <= 0 {
		count = DefaultSampleSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	qs := make([]model.Question, len(s.pool))
	copy(qs, s.pool)
	s.shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	if count < len(qs) {
		qs = qs[:count]
	}
	s.displayLocked(qs)
}

// ResetToFullPool displays the entire pool.
func (s *Session) ResetToFullPool() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.displayLocked(s.pool)
}

// displayLocked retires every current grader and starts a new epoch.
func (s *Session) displayLocked(qs []model.Question) {
	s.epoch++
	epoch := s.epoch
	s.totals = Totals{}
	s.displayed = make([]*grader.Grader, 0, len(qs))
	s.byID = make(map[string]*grader.Grader, len(qs))
	for _, q := range qs {
		g := grader.New(q, s.remote, func(isCorrect bool, points int) {
			s.recordAt(epoch, isCorrect, points)
		})
		s.displayed = append(s.displayed, g)
		s.byID[q.ID] = g
	}
}

// RecordOutcome adds one graded answer to the totals. Callers report each
// question at most once; no deduplication happens here.
func (s *Session) RecordOutcome(isCorrect bool, points int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(isCorrect, points)
}

func (s *Session) recordAt(epoch uint64, isCorrect bool, points int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		slog.Debug("discarding verdict for retired question", "epoch", epoch, "current", s.epoch)
		return
	}
	s.recordLocked(isCorrect, points)
}

func (s *Session) recordLocked(isCorrect bool, points int) {
	s.totals.Answered++
	if isCorrect {
		s.totals.Correct++
		s.totals.Score += points
	}
}

// Submit grades an answer for a displayed question. found is false when the
// question is not displayed; ok is false when the submission was a no-op.
func (s *Session) Submit(ctx context.Context, questionID string, sym model.Symbol) (v grader.Verdict, found, ok bool) {
	g := s.Grader(questionID)
	if g == nil {
		return grader.Verdict{}, false, false
	}
	v, ok = g.Submit(ctx, sym)
	return v, true, ok
}

// Grader returns the displayed grader for a question ID, or nil.
func (s *Session) Grader(questionID string) *grader.Grader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[questionID]
}

// Displayed returns the current graders in display order.
func (s *Session) Displayed() []*grader.Grader {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*grader.Grader, len(s.displayed))
	copy(out, s.displayed)
	return out
}

// Totals returns the running totals.
func (s *Session) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

// PossibleTotal sums the scores of the displayed set.
func (s *Session) PossibleTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, g := range s.displayed {
		total += g.Question().Points()
	}
	return total
}

// PoolSize returns the number of questions in the pool.
func (s *Session) PoolSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pool)
}

// Display reports the display state and, for DisplayError, the load error.
func (s *Session) Display() (Display, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.loaded:
		return DisplayLoading, nil
	case s.loadErr != nil:
		return DisplayError, s.loadErr
	case len(s.displayed) == 0:
		return DisplayEmpty, nil
	default:
		return DisplayReady, nil
	}
}
