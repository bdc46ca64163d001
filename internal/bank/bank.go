// Package bank answers read-only queries over the imported question bank
// and grades answers against its answer keys.
package bank

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/examquiz/internal/model"
)

const (
	DefaultSearchLimit = 5
	DefaultRandomCount = 5
	MaxRandomCount     = 20
)

var (
	ErrBadQuestionID    = errors.New("question id must look like 77-05")
	ErrExamNotFound     = errors.New("exam not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrEmptyBank        = errors.New("no questions in the bank")
)

var questionIDRegex = regexp.MustCompile(`^(\d+)-(\d+)`)

// Store is the subset of the SQLite store the bank reads from.
type Store interface {
	ListExams() ([]model.ExamSummary, error)
	ExamExists(examNo int) (bool, error)
	ListQuestions(examNo int) ([]model.Question, error)
	FindQuestion(examNo, questionNo int) (model.Question, error)
	SearchQuestions(keyword string, examNo, limit int) ([]model.Question, error)
}

// PublicQuestion is a question with its answer key withheld.
type PublicQuestion struct {
	ID             string                  `json:"id"`
	ExamNo         int                     `json:"exam_no"`
	QuestionNo     int                     `json:"question_no"`
	Score          *int                    `json:"score"`
	QuestionText   string                  `json:"question_text"`
	SourceMaterial string                  `json:"source_material,omitempty"`
	HasImage       bool                    `json:"has_image"`
	Image          string                  `json:"image,omitempty"`
	Choices        map[model.Symbol]string `json:"choices,omitempty"`
}

// GradeResult is the answer-key verdict for one answer.
type GradeResult struct {
	QuestionID    string       `json:"question_id"`
	UserAnswer    string       `json:"user_answer"`
	CorrectAnswer model.Symbol `json:"correct_answer"`
	IsCorrect     bool         `json:"is_correct"`
	Score         int          `json:"score"`
	MaxScore      int          `json:"max_score"`
}

// RandomSet is a sampled quiz.
type RandomSet struct {
	Count      int              `json:"count"`
	TotalScore int              `json:"total_score"`
	Questions  []PublicQuestion `json:"questions"`
}

// Bank serves question lookups against a store.
type Bank struct {
	store     Store
	imageBase string
	shuffle   func(n int, swap func(i, j int))
}

// New creates a bank. imageBase prefixes question image paths; empty leaves
// images out of public questions.
func New(s Store, imageBase string) *Bank {
	return &Bank{
		store:     s,
		imageBase: strings.TrimRight(imageBase, "/"),
		shuffle:   rand.Shuffle,
	}
}

// ListExams summarizes the imported exams.
func (b *Bank) ListExams() ([]model.ExamSummary, error) {
	return b.store.ListExams()
}

// Question returns one question without its answer key.
func (b *Bank) Question(examNo, questionNo int) (PublicQuestion, error) {
	if err := b.requireExam(examNo); err != nil {
		return PublicQuestion{}, err
	}
	q, err := b.store.FindQuestion(examNo, questionNo)
	if errors.Is(err, sql.ErrNoRows) {
		return PublicQuestion{}, fmt.Errorf("exam %d question %d: %w", examNo, questionNo, ErrQuestionNotFound)
	}
	if err != nil {
		return PublicQuestion{}, err
	}
	return b.public(q, true), nil
}

// Search finds questions containing keyword. examNo 0 or an unknown exam
// searches every exam.
func (b *Bank) Search(keyword string, examNo, limit int) ([]PublicQuestion, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if examNo != 0 {
		ok, err := b.store.ExamExists(examNo)
		if err != nil {
			return nil, err
		}
		if !ok {
			examNo = 0
		}
	}
	qs, err := b.store.SearchQuestions(keyword, examNo, limit)
	if err != nil {
		return nil, err
	}
	out := make([]PublicQuestion, 0, len(qs))
	for _, q := range qs {
		out = append(out, b.public(q, false))
	}
	return out, nil
}

// Random samples up to count questions, capped at MaxRandomCount.
func (b *Bank) Random(count, examNo int) (RandomSet, error) {
	if count <= 0 {
		count = DefaultRandomCount
	}
	count = min(count, MaxRandomCount)
	if examNo != 0 {
		ok, err := b.store.ExamExists(examNo)
		if err != nil {
			return RandomSet{}, err
		}
		if !ok {
			examNo = 0
		}
	}

	qs, err := b.store.ListQuestions(examNo)
	if err != nil {
		return RandomSet{}, err
	}
	if len(qs) == 0 {
		return RandomSet{}, ErrEmptyBank
	}
	b.shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	qs = qs[:min(count, len(qs))]

	set := RandomSet{Count: len(qs), TotalScore: model.SumPoints(qs)}
	for _, q := range qs {
		set.Questions = append(set.Questions, b.public(q, true))
	}
	return set, nil
}

// Grade checks answer against the answer key of questionID.
func (b *Bank) Grade(questionID, answer string) (GradeResult, error) {
	m := questionIDRegex.FindStringSubmatch(questionID)
	if m == nil {
		return GradeResult{}, ErrBadQuestionID
	}
	examNo, _ := strconv.Atoi(m[1])
	questionNo, _ := strconv.Atoi(m[2])

	if err := b.requireExam(examNo); err != nil {
		return GradeResult{}, err
	}
	q, err := b.store.FindQuestion(examNo, questionNo)
	if errors.Is(err, sql.ErrNoRows) {
		return GradeResult{}, fmt.Errorf("exam %d question %d: %w", examNo, questionNo, ErrQuestionNotFound)
	}
	if err != nil {
		return GradeResult{}, err
	}

	sym := model.Symbol(strings.TrimSpace(answer))
	res := GradeResult{
		QuestionID:    questionID,
		UserAnswer:    answer,
		CorrectAnswer: q.Answer(),
		IsCorrect:     q.IsCorrect(sym),
		MaxScore:      q.Points(),
	}
	if res.IsCorrect {
		res.Score = res.MaxScore
	}
	return res, nil
}

// ImageURL resolves a stored image path against the image base.
func (b *Bank) ImageURL(path *string) string {
	if path == nil || *path == "" || b.imageBase == "" {
		return ""
	}
	return b.imageBase + "/" + strings.TrimLeft(*path, "/")
}

// Public converts a question for display, withholding its answer key.
func (b *Bank) Public(q model.Question) PublicQuestion {
	return b.public(q, true)
}

func (b *Bank) requireExam(examNo int) error {
	ok, err := b.store.ExamExists(examNo)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("exam %d: %w", examNo, ErrExamNotFound)
	}
	return nil
}

func (b *Bank) public(q model.Question, full bool) PublicQuestion {
	pq := PublicQuestion{
		ID:           q.ID,
		ExamNo:       q.ExamNo,
		QuestionNo:   q.QuestionNo,
		Score:        q.Score,
		QuestionText: q.QuestionText,
		HasImage:     q.HasImage,
	}
	if !full {
		return pq
	}
	pq.SourceMaterial = q.SourceMaterial
	pq.Choices = q.Choices
	if url := b.ImageURL(q.ImagePath); url != "" {
		pq.Image = fmt.Sprintf("![%d-%d](%s)", q.ExamNo, q.QuestionNo, url)
	}
	return pq
}
