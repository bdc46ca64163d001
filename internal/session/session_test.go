package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pavelanni/examquiz/internal/grader"
	"github.com/pavelanni/examquiz/internal/model"
)

type poolFunc func(examNo int) ([]model.Question, error)

func (f poolFunc) ListQuestions(examNo int) ([]model.Question, error) { return f(examNo) }

type remoteFunc func(ctx context.Context, questionID string, answer model.Symbol) (grader.RemoteResult, error)

func (f remoteFunc) Grade(ctx context.Context, questionID string, answer model.Symbol) (grader.RemoteResult, error) {
	return f(ctx, questionID, answer)
}

// testPool builds questions numbered 1..n where question i is worth i points
// and answered by ①.
func testPool(n int) []model.Question {
	qs := make([]model.Question, 0, n)
	for i := 1; i <= n; i++ {
		score := i
		answer := model.Choice1
		qs = append(qs, model.Question{
			ID:            fmt.Sprintf("77-%02d", i),
			ExamNo:        77,
			QuestionNo:    i,
			Score:         &score,
			CorrectAnswer: &answer,
		})
	}
	return qs
}

func loadedSession(t *testing.T, pool []model.Question, remote grader.Remote, opts ...Option) *Session {
	t.Helper()
	s := New(remote, opts...)
	err := s.Load(poolFunc(func(int) ([]model.Question, error) { return pool, nil }), 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func submit(t *testing.T, s *Session, id string, sym model.Symbol) grader.Verdict {
	t.Helper()
	v, found, ok := s.Submit(context.Background(), id, sym)
	if !found || !ok {
		t.Fatalf("Submit(%s) found=%v ok=%v", id, found, ok)
	}
	return v
}

// checkInvariants verifies the totals against the displayed grader states.
func checkInvariants(t *testing.T, s *Session) {
	t.Helper()
	var answered, correct, score int
	for _, g := range s.Displayed() {
		switch g.State().Status {
		case grader.StatusCorrect:
			answered++
			correct++
			score += g.Question().Points()
		case grader.StatusIncorrect:
			answered++
		}
	}
	got := s.Totals()
	want := Totals{Score: score, Answered: answered, Correct: correct}
	if got != want {
		t.Errorf("totals = %+v, derived from graders = %+v", got, want)
	}
}

func TestLoadDisplaysFullPool(t *testing.T) {
	s := New(nil)
	if d, _ := s.Display(); d != DisplayLoading {
		t.Errorf("expected loading before Load, got %q", d)
	}

	s = loadedSession(t, testPool(4), nil)
	if d, _ := s.Display(); d != DisplayReady {
		t.Errorf("expected ready, got %q", d)
	}
	if len(s.Displayed()) != 4 {
		t.Errorf("expected 4 displayed, got %d", len(s.Displayed()))
	}
	if s.PossibleTotal() != 1+2+3+4 {
		t.Errorf("PossibleTotal = %d, want 10", s.PossibleTotal())
	}
}

func TestLoadFailureLeavesErrorState(t *testing.T) {
	s := New(nil)
	feedErr := errors.New("feed unavailable")
	err := s.Load(poolFunc(func(int) ([]model.Question, error) { return testPool(2), feedErr }), 0)
	if !errors.Is(err, feedErr) {
		t.Fatalf("expected feed error, got %v", err)
	}
	d, derr := s.Display()
	if d != DisplayError || !errors.Is(derr, feedErr) {
		t.Errorf("expected error display, got %q (%v)", d, derr)
	}
	if s.PoolSize() != 0 || len(s.Displayed()) != 0 {
		t.Error("expected no partial pool")
	}
}

func TestRecordOutcome(t *testing.T) {
	s := loadedSession(t, testPool(3), nil)

	s.RecordOutcome(true, 4)
	s.RecordOutcome(false, 9)
	s.RecordOutcome(true, 1)

	want := Totals{Score: 5, Answered: 3, Correct: 2}
	if got := s.Totals(); got != want {
		t.Errorf("totals = %+v, want %+v", got, want)
	}
}

func TestSubmissionsAggregate(t *testing.T) {
	s := loadedSession(t, testPool(5), nil)

	submit(t, s, "77-01", model.Choice1)
	submit(t, s, "77-02", model.Choice2)
	submit(t, s, "77-04", model.Choice1)

	if _, _, ok := s.Submit(context.Background(), "77-01", model.Choice3); ok {
		t.Error("expected second answer to be a no-op")
	}

	want := Totals{Score: 1 + 4, Answered: 3, Correct: 2}
	if got := s.Totals(); got != want {
		t.Errorf("totals = %+v, want %+v", got, want)
	}
	checkInvariants(t, s)

	if _, found, _ := s.Submit(context.Background(), "99-01", model.Choice1); found {
		t.Error("expected unknown question to be not found")
	}
}

func TestLoadFilteredResets(t *testing.T) {
	s := loadedSession(t, testPool(5), nil)
	submit(t, s, "77-03", model.Choice1)
	if s.Totals().Score == 0 {
		t.Fatal("expected non-zero score before reload")
	}

	s.LoadFiltered(3)
	displayed := s.Displayed()
	if len(displayed) != 1 || displayed[0].Question().QuestionNo != 3 {
		t.Fatalf("expected only question 3, got %d questions", len(displayed))
	}
	if displayed[0].State().Status != grader.StatusUnanswered {
		t.Error("expected reloaded question to be unanswered")
	}
	if s.Totals() != (Totals{}) {
		t.Errorf("expected zero totals, got %+v", s.Totals())
	}

	submit(t, s, "77-03", model.Choice1)
	s.LoadFiltered(0)
	if len(s.Displayed()) != 5 {
		t.Errorf("expected full pool, got %d", len(s.Displayed()))
	}
	if s.Totals() != (Totals{}) {
		t.Errorf("expected zero totals after LoadFiltered(0), got %+v", s.Totals())
	}
}

func TestLoadFilteredNoMatch(t *testing.T) {
	s := loadedSession(t, testPool(5), nil)
	s.LoadFiltered(42)

	if len(s.Displayed()) != 0 {
		t.Errorf("expected empty display, got %d", len(s.Displayed()))
	}
	if d, err := s.Display(); d != DisplayEmpty || err != nil {
		t.Errorf("expected empty display state, got %q (%v)", d, err)
	}
	if s.Totals() != (Totals{}) || s.PossibleTotal() != 0 {
		t.Errorf("expected zero totals, got %+v / %d", s.Totals(), s.PossibleTotal())
	}
}

func TestSampleRandom(t *testing.T) {
	tests := []struct {
		name  string
		pool  int
		count int
		want  int
	}{
		{"smaller pool", 3, 5, 3},
		{"truncated", 10, 5, 5},
		{"default count", 10, 0, DefaultSampleSize},
		{"empty pool", 0, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadedSession(t, testPool(tt.pool), nil)
			s.RecordOutcome(true, 1)

			s.SampleRandom(tt.count)
			displayed := s.Displayed()
			if len(displayed) != tt.want {
				t.Fatalf("expected %d questions, got %d", tt.want, len(displayed))
			}
			seen := map[string]bool{}
			for _, g := range displayed {
				id := g.Question().ID
				if seen[id] {
					t.Errorf("question %s sampled twice", id)
				}
				seen[id] = true
			}
			if s.Totals() != (Totals{}) {
				t.Errorf("expected totals reset, got %+v", s.Totals())
			}
			if s.PoolSize() != tt.pool {
				t.Errorf("sampling changed pool size to %d", s.PoolSize())
			}
		})
	}
}

func TestSampleRandomUsesShuffle(t *testing.T) {
	reverse := func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}
	s := loadedSession(t, testPool(6), nil, WithShuffle(reverse))
	s.SampleRandom(2)

	displayed := s.Displayed()
	if displayed[0].Question().ID != "77-06" || displayed[1].Question().ID != "77-05" {
		t.Errorf("unexpected sample order %s, %s", displayed[0].Question().ID, displayed[1].Question().ID)
	}

	s.ResetToFullPool()
	if first := s.Displayed()[0].Question().ID; first != "77-01" {
		t.Errorf("sampling reordered the pool, first is %s", first)
	}
}

func TestStaleVerdictIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	remote := remoteFunc(func(_ context.Context, id string, _ model.Symbol) (grader.RemoteResult, error) {
		if id == "77-02" {
			close(started)
			<-release
		}
		yes := true
		return grader.RemoteResult{IsCorrect: &yes}, nil
	})
	s := loadedSession(t, testPool(3), remote)

	done := make(chan struct{})
	go func() {
		s.Submit(context.Background(), "77-02", model.Choice1)
		close(done)
	}()
	<-started

	s.ResetToFullPool()
	submit(t, s, "77-03", model.Choice1)

	close(release)
	<-done

	want := Totals{Score: 3, Answered: 1, Correct: 1}
	if got := s.Totals(); got != want {
		t.Errorf("totals = %+v, want %+v", got, want)
	}
	if st := s.Grader("77-02").State(); st.Status != grader.StatusUnanswered {
		t.Errorf("displayed question mutated by stale verdict: %+v", st)
	}
	checkInvariants(t, s)
}
