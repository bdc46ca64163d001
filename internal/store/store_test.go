package store

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/pavelanni/examquiz/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func intPtr(v int) *int { return &v }

func symPtr(s model.Symbol) *model.Symbol { return &s }

func testDoc(examNo int) model.ExamDocument {
	return model.ExamDocument{
		Meta: model.ExamMeta{ExamNo: examNo, Level: "심화", Year: 2026, Source: "historyexam.go.kr"},
		Questions: []model.Question{
			{
				QuestionNo:    1,
				Score:         intPtr(2),
				QuestionText:  "Which kingdom built the Seokguram grotto?",
				Choices:       map[model.Symbol]string{model.Choice1: "Goguryeo", model.Choice2: "Silla"},
				CorrectAnswer: symPtr(model.Choice2),
				Keywords:      []string{"silla"},
			},
			{
				QuestionNo:    2,
				Score:         intPtr(3),
				QuestionText:  "Who founded Joseon?",
				Choices:       map[model.Symbol]string{model.Choice1: "Yi Seong-gye", model.Choice3: "Wang Geon"},
				CorrectAnswer: symPtr(model.Choice1),
			},
			{
				QuestionNo:   3,
				QuestionText: "Unscored question without answer key",
			},
		},
	}
}

func TestImportAndListQuestions(t *testing.T) {
	s := newTestStore(t)

	count, err := s.QuestionCount()
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 questions, got %d", count)
	}

	if err := s.ImportExam(testDoc(77)); err != nil {
		t.Fatalf("ImportExam: %v", err)
	}

	qs, err := s.ListQuestions(77)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(qs))
	}
	if qs[0].ID != "77-01" {
		t.Errorf("expected generated id 77-01, got %q", qs[0].ID)
	}
	if qs[0].ExamNo != 77 {
		t.Errorf("expected exam_no 77, got %d", qs[0].ExamNo)
	}
	if qs[0].Points() != 2 {
		t.Errorf("expected 2 points, got %d", qs[0].Points())
	}
	if qs[0].Choices[model.Choice2] != "Silla" {
		t.Errorf("expected choice ② Silla, got %q", qs[0].Choices[model.Choice2])
	}
	if !qs[0].IsCorrect(model.Choice2) {
		t.Errorf("expected ② to be correct")
	}

	unscored := qs[2]
	if unscored.Score != nil {
		t.Errorf("expected nil score, got %d", *unscored.Score)
	}
	if unscored.CorrectAnswer != nil {
		t.Errorf("expected nil correct answer, got %q", *unscored.CorrectAnswer)
	}

	all, err := s.ListQuestions(0)
	if err != nil {
		t.Fatalf("ListQuestions(0): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 questions across exams, got %d", len(all))
	}
}

func TestImportReplacesExam(t *testing.T) {
	s := newTestStore(t)
	if err := s.ImportExam(testDoc(77)); err != nil {
		t.Fatalf("ImportExam: %v", err)
	}

	doc := testDoc(77)
	doc.Questions = doc.Questions[:1]
	if err := s.ImportExam(doc); err != nil {
		t.Fatalf("re-import: %v", err)
	}

	count, err := s.QuestionCount()
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 1 {
		t.Errorf("expected re-import to leave 1 question, got %d", count)
	}
}

func TestImportIsAtomic(t *testing.T) {
	s := newTestStore(t)

	doc := testDoc(78)
	doc.Questions[1].ID = "dup"
	doc.Questions[2].ID = "dup"
	if err := s.ImportExam(doc); err == nil {
		t.Fatal("expected duplicate id to fail the import")
	}

	count, err := s.QuestionCount()
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no partial import, got %d questions", count)
	}
	exists, err := s.ExamExists(78)
	if err != nil {
		t.Fatalf("ExamExists: %v", err)
	}
	if exists {
		t.Error("expected exam row to be rolled back")
	}
}

func TestFindAndGetQuestion(t *testing.T) {
	s := newTestStore(t)
	if err := s.ImportExam(testDoc(77)); err != nil {
		t.Fatalf("ImportExam: %v", err)
	}

	q, err := s.FindQuestion(77, 2)
	if err != nil {
		t.Fatalf("FindQuestion: %v", err)
	}
	if q.QuestionText != "Who founded Joseon?" {
		t.Errorf("unexpected question text %q", q.QuestionText)
	}

	got, err := s.GetQuestion(q.ID)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if got.QuestionNo != 2 {
		t.Errorf("expected question_no 2, got %d", got.QuestionNo)
	}

	if _, err := s.FindQuestion(77, 50); err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows, got %v", err)
	}
}

func TestSearchQuestions(t *testing.T) {
	s := newTestStore(t)
	if err := s.ImportExam(testDoc(77)); err != nil {
		t.Fatalf("ImportExam: %v", err)
	}
	if err := s.ImportExam(testDoc(78)); err != nil {
		t.Fatalf("ImportExam: %v", err)
	}

	tests := []struct {
		name    string
		keyword string
		examNo  int
		limit   int
		want    int
	}{
		{"question text", "joseon", 0, 10, 2},
		{"choice text", "wang geon", 0, 10, 2},
		{"limited", "question", 0, 1, 1},
		{"single exam", "joseon", 78, 10, 1},
		{"no match", "baekje", 0, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs, err := s.SearchQuestions(tt.keyword, tt.examNo, tt.limit)
			if err != nil {
				t.Fatalf("SearchQuestions: %v", err)
			}
			if len(qs) != tt.want {
				t.Errorf("expected %d results, got %d", tt.want, len(qs))
			}
		})
	}
}

func TestSearchMatchesChoiceTextOnly(t *testing.T) {
	s := newTestStore(t)
	doc := model.ExamDocument{
		Meta: model.ExamMeta{ExamNo: 70},
		Questions: []model.Question{
			{QuestionNo: 1, QuestionText: "고려", Choices: map[model.Symbol]string{model.Choice1: "가"}},
			{QuestionNo: 2, QuestionText: "rate of 50%", Choices: map[model.Symbol]string{model.Choice2: "snake_case"}},
		},
	}
	if err := s.ImportExam(doc); err != nil {
		t.Fatalf("ImportExam: %v", err)
	}

	tests := []struct {
		keyword string
		want    int
	}{
		{"①", 0},
		{`":"`, 0},
		{"%", 1},
		{"_", 1},
		{`\`, 0},
		{"가", 1},
		{"e_c", 1},
		{"e%c", 0},
	}
	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			qs, err := s.SearchQuestions(tt.keyword, 0, 10)
			if err != nil {
				t.Fatalf("SearchQuestions: %v", err)
			}
			if len(qs) != tt.want {
				t.Errorf("SearchQuestions(%q) returned %d results, want %d", tt.keyword, len(qs), tt.want)
			}
		})
	}
}

func TestImportRejectsForeignExamNumber(t *testing.T) {
	s := newTestStore(t)
	doc := testDoc(77)
	doc.Questions[1].ExamNo = 78
	if err := s.ImportExam(doc); !errors.Is(err, ErrExamMismatch) {
		t.Fatalf("expected ErrExamMismatch, got %v", err)
	}
	if count, _ := s.QuestionCount(); count != 0 {
		t.Errorf("expected nothing imported, got %d questions", count)
	}

	doc = testDoc(77)
	doc.Questions[0].ExamNo = 77
	if err := s.ImportExam(doc); err != nil {
		t.Fatalf("matching exam number should import: %v", err)
	}
	if err := s.ImportExam(testDoc(77)); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if count, _ := s.QuestionCount(); count != 3 {
		t.Errorf("expected re-import to leave 3 questions, got %d", count)
	}
}

func TestListExams(t *testing.T) {
	s := newTestStore(t)
	if err := s.ImportExam(testDoc(77)); err != nil {
		t.Fatalf("ImportExam: %v", err)
	}

	exams, err := s.ListExams()
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(exams) != 1 {
		t.Fatalf("expected 1 exam, got %d", len(exams))
	}
	e := exams[0]
	if e.TotalQuestions != 3 || e.TotalScore != 5 || e.Year != 2026 || e.Level != "심화" {
		t.Errorf("unexpected summary %+v", e)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	hash, err := s.GetImportedFileHash("data/questions_77.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash("data/questions_77.json", "abc"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if err := s.SetImportedFileHash("data/questions_77.json", "def"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, err = s.GetImportedFileHash("data/questions_77.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "def" {
		t.Errorf("expected hash def, got %q", hash)
	}
}
