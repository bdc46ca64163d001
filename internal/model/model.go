package model

import (
	"fmt"
	"strings"
)

// Symbol is one of the five ordinal choice markers.
type Symbol string

const (
	Choice1 Symbol = "①"
	Choice2 Symbol = "②"
	Choice3 Symbol = "③"
	Choice4 Symbol = "④"
	Choice5 Symbol = "⑤"
)

// Symbols lists the choice markers in display order.
var Symbols = []Symbol{Choice1, Choice2, Choice3, Choice4, Choice5}

// ParseSymbol accepts a marker ("③") or its ordinal ("3").
func ParseSymbol(s string) (Symbol, error) {
	s = strings.TrimSpace(s)
	for i, sym := range Symbols {
		if s == string(sym) || s == fmt.Sprint(i+1) {
			return sym, nil
		}
	}
	return "", fmt.Errorf("unknown choice symbol %q", s)
}

// Question is an exam question as delivered by the data feed.
type Question struct {
	ID             string            `json:"id"`
	ExamNo         int               `json:"exam_no"`
	QuestionNo     int               `json:"question_no"`
	Score          *int              `json:"score"`
	QuestionText   string            `json:"question_text"`
	SourceMaterial string            `json:"source_material"`
	HasImage       bool              `json:"has_image"`
	ImageNote      *string           `json:"image_note"`
	ImagePath      *string           `json:"image_path"`
	Choices        map[Symbol]string `json:"choices"`
	CorrectAnswer  *Symbol           `json:"correct_answer"`
	Keywords       []string          `json:"keywords"`
}

// Points returns the question score, treating a missing score as zero.
func (q Question) Points() int {
	if q.Score == nil {
		return 0
	}
	return *q.Score
}

// IsCorrect compares a selection against the answer key.
// A question without an answer key never matches.
func (q Question) IsCorrect(sym Symbol) bool {
	return q.CorrectAnswer != nil && *q.CorrectAnswer == sym
}

// Answer returns the answer key or an empty symbol.
func (q Question) Answer() Symbol {
	if q.CorrectAnswer == nil {
		return ""
	}
	return *q.CorrectAnswer
}

// ExamMeta describes one exam sitting.
type ExamMeta struct {
	ExamNo         int    `json:"exam_no"`
	Level          string `json:"level"`
	Year           int    `json:"year"`
	TotalQuestions int    `json:"total_questions"`
	Source         string `json:"source"`
}

// ExamDocument is the on-disk question feed for one exam.
type ExamDocument struct {
	Meta      ExamMeta   `json:"meta"`
	Questions []Question `json:"questions"`
}

// ExamSummary is a listing row for an exam in the bank.
type ExamSummary struct {
	ExamNo         int    `json:"exam_no"`
	Year           int    `json:"year"`
	Level          string `json:"level"`
	TotalQuestions int    `json:"total_questions"`
	TotalScore     int    `json:"total_score"`
}

// SumPoints totals the scores of a question set.
func SumPoints(qs []Question) int {
	total := 0
	for _, q := range qs {
		total += q.Points()
	}
	return total
}

// QuizConfig holds runtime parameters set via CLI flags.
type QuizConfig struct {
	ExamNo     int // 0 means every exam in the bank
	QuestionNo int // 0 shows the whole pool
	Random     int // draw this many questions at random; 0 disables sampling
	ImageBase  string
	Grader     string // local, http or llm
}
