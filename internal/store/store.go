package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/examquiz/internal/model"

	_ "modernc.org/sqlite"
)

// ErrExamMismatch rejects a question filed under a different exam than its document.
var ErrExamMismatch = errors.New("question exam number does not match document")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exams (
		exam_no INTEGER PRIMARY KEY,
		level TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		exam_no INTEGER NOT NULL,
		question_no INTEGER NOT NULL,
		score INTEGER,
		question_text TEXT NOT NULL DEFAULT '',
		source_material TEXT NOT NULL DEFAULT '',
		has_image INTEGER NOT NULL DEFAULT 0,
		image_note TEXT,
		image_path TEXT,
		choices TEXT NOT NULL DEFAULT '{}',
		correct_answer TEXT,
		keywords TEXT NOT NULL DEFAULT '[]',
		FOREIGN KEY (exam_no) REFERENCES exams(exam_no)
	);

	CREATE INDEX IF NOT EXISTS idx_questions_exam ON questions(exam_no, question_no);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		sha256 TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ImportExam replaces an exam and all of its questions in one transaction.
func (s *Store) ImportExam(doc model.ExamDocument) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO exams (exam_no, level, year, source) VALUES (?, ?, ?, ?)
		 ON CONFLICT(exam_no) DO UPDATE SET level = ?, year = ?, source = ?`,
		doc.Meta.ExamNo, doc.Meta.Level, doc.Meta.Year, doc.Meta.Source,
		doc.Meta.Level, doc.Meta.Year, doc.Meta.Source,
	)
	if err != nil {
		return fmt.Errorf("upsert exam %d: %w", doc.Meta.ExamNo, err)
	}
	if _, err := tx.Exec(`DELETE FROM questions WHERE exam_no = ?`, doc.Meta.ExamNo); err != nil {
		return fmt.Errorf("clear exam %d: %w", doc.Meta.ExamNo, err)
	}

	for _, q := range doc.Questions {
		choices, err := json.Marshal(q.Choices)
		if err != nil {
			return err
		}
		keywords, err := json.Marshal(q.Keywords)
		if err != nil {
			return err
		}
		if q.ExamNo != 0 && q.ExamNo != doc.Meta.ExamNo {
			return fmt.Errorf("question %d belongs to exam %d, not %d: %w",
				q.QuestionNo, q.ExamNo, doc.Meta.ExamNo, ErrExamMismatch)
		}
		examNo := doc.Meta.ExamNo
		id := q.ID
		if id == "" {
			id = fmt.Sprintf("%d-%02d", examNo, q.QuestionNo)
		}
		_, err = tx.Exec(
			`INSERT INTO questions (id, exam_no, question_no, score, question_text, source_material,
			 has_image, image_note, image_path, choices, correct_answer, keywords)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, examNo, q.QuestionNo, nullInt(q.Score), q.QuestionText, q.SourceMaterial,
			q.HasImage, nullString(q.ImageNote), nullString(q.ImagePath), string(choices),
			nullString((*string)(q.CorrectAnswer)), string(keywords),
		)
		if err != nil {
			return fmt.Errorf("insert question %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

const questionColumns = `id, exam_no, question_no, score, question_text, source_material,
	has_image, image_note, image_path, choices, correct_answer, keywords`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (model.Question, error) {
	var (
		q        model.Question
		score    sql.NullInt64
		note     sql.NullString
		path     sql.NullString
		answer   sql.NullString
		choices  string
		keywords string
	)
	err := row.Scan(&q.ID, &q.ExamNo, &q.QuestionNo, &score, &q.QuestionText, &q.SourceMaterial,
		&q.HasImage, &note, &path, &choices, &answer, &keywords)
	if err != nil {
		return q, err
	}
	if score.Valid {
		v := int(score.Int64)
		q.Score = &v
	}
	if note.Valid {
		q.ImageNote = &note.String
	}
	if path.Valid {
		q.ImagePath = &path.String
	}
	if answer.Valid && answer.String != "" {
		sym := model.Symbol(answer.String)
		q.CorrectAnswer = &sym
	}
	if err := json.Unmarshal([]byte(choices), &q.Choices); err != nil {
		return q, fmt.Errorf("decode choices for %s: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(keywords), &q.Keywords); err != nil {
		return q, fmt.Errorf("decode keywords for %s: %w", q.ID, err)
	}
	return q, nil
}

func (s *Store) queryQuestions(query string, args ...any) ([]model.Question, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListQuestions returns the questions of one exam, or of every exam when examNo is 0,
// ordered by exam and question number.
func (s *Store) ListQuestions(examNo int) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions`
	var args []any
	if examNo != 0 {
		query += ` WHERE exam_no = ?`
		args = append(args, examNo)
	}
	query += ` ORDER BY exam_no, question_no`
	return s.queryQuestions(query, args...)
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id string) (model.Question, error) {
	return scanQuestion(s.db.QueryRow(`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
}

// FindQuestion returns a question by exam and question number.
func (s *Store) FindQuestion(examNo, questionNo int) (model.Question, error) {
	return scanQuestion(s.db.QueryRow(
		`SELECT `+questionColumns+` FROM questions WHERE exam_no = ? AND question_no = ?`,
		examNo, questionNo,
	))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring pattern for LIKE ... ESCAPE '\'.
func likePattern(keyword string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(keyword))) + "%"
}

// SearchQuestions returns up to limit questions whose text, source material or
// choice text contains keyword, case-insensitively. examNo 0 searches every exam.
// Choice markers are not searched.
func (s *Store) SearchQuestions(keyword string, examNo, limit int) ([]model.Question, error) {
	pattern := likePattern(keyword)
	query := `SELECT ` + questionColumns + ` FROM questions
		WHERE (lower(question_text) LIKE ? ESCAPE '\'
			OR lower(source_material) LIKE ? ESCAPE '\'
			OR EXISTS (SELECT 1 FROM json_each(questions.choices) c
				WHERE lower(c.value) LIKE ? ESCAPE '\'))`
	args := []any{pattern, pattern, pattern}
	if examNo != 0 {
		query += ` AND exam_no = ?`
		args = append(args, examNo)
	}
	query += ` ORDER BY exam_no, question_no LIMIT ?`
	args = append(args, limit)
	return s.queryQuestions(query, args...)
}

// ExamExists reports whether an exam has been imported.
func (s *Store) ExamExists(examNo int) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exams WHERE exam_no = ?`, examNo).Scan(&n)
	return n > 0, err
}

// ListExams summarizes every imported exam.
func (s *Store) ListExams() ([]model.ExamSummary, error) {
	rows, err := s.db.Query(
		`SELECT e.exam_no, e.year, e.level, COUNT(q.id), COALESCE(SUM(q.score), 0)
		 FROM exams e LEFT JOIN questions q ON q.exam_no = e.exam_no
		 GROUP BY e.exam_no ORDER BY e.exam_no`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.ExamSummary
	for rows.Next() {
		var e model.ExamSummary
		if err := rows.Scan(&e.ExamNo, &e.Year, &e.Level, &e.TotalQuestions, &e.TotalScore); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// GetImportedFileHash returns the recorded hash for a feed file.
// Returns empty string and nil error if the file was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT sha256 FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the hash of an imported feed file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, sha256) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET sha256 = ?`,
		path, hash, hash,
	)
	return err
}
