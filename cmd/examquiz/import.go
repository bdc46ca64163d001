package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/pavelanni/examquiz/internal/grader"
	"github.com/pavelanni/examquiz/internal/model"
	"github.com/pavelanni/examquiz/internal/session"
	"github.com/pavelanni/examquiz/internal/store"
)

var examFileRegex = regexp.MustCompile(`questions_(\d+)\.json$`)

// expandPaths resolves glob patterns; plain paths are kept even when
// they do not exist so the read fails loudly.
func expandPaths(patterns []string) ([]string, error) {
	var paths []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if matches == nil && !hasMeta(p) {
			matches = []string{p}
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

func hasMeta(p string) bool {
	for _, c := range p {
		switch c {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

// loadQuestions imports each question file whose content changed since
// the last import. Any unreadable or malformed file aborts the load.
func loadQuestions(db *store.Store, patterns []string) error {
	paths, err := expandPaths(patterns)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		slog.Warn("no question files matched", "patterns", patterns)
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("questions file unchanged, skipping", "path", path)
			continue
		}

		doc, err := parseExamDocument(path, data)
		if err != nil {
			return err
		}
		if err := db.ImportExam(doc); err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported questions",
			"path", path,
			"exam", doc.Meta.ExamNo,
			"count", len(doc.Questions),
			"reimport", storedHash != "",
		)
	}

	total, err := db.QuestionCount()
	if err != nil {
		return fmt.Errorf("count questions: %w", err)
	}
	slog.Info("question bank ready", "files", len(paths), "questions", total)
	return nil
}

// feedFailure is a pool source for a question feed that failed to import.
type feedFailure struct{ err error }

func (f feedFailure) ListQuestions(int) ([]model.Question, error) { return nil, f.err }

// newSession loads the question pool of examNo from src. A failed import
// leaves the session in its error state with an empty pool.
func newSession(remote grader.Remote, src session.PoolSource, examNo int, importErr error) *session.Session {
	if importErr != nil {
		slog.Error("question import failed", "error", importErr)
		src = feedFailure{err: fmt.Errorf("load questions: %w", importErr)}
	}
	sess := session.New(remote)
	if err := sess.Load(src, examNo); err != nil {
		slog.Error("failed to load question pool", "exam", examNo, "error", err)
	}
	return sess
}

// parseExamDocument decodes a question file. A missing exam number is taken
// from a questions_<n>.json file name.
func parseExamDocument(path string, data []byte) (model.ExamDocument, error) {
	var doc model.ExamDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Meta.ExamNo == 0 {
		m := examFileRegex.FindStringSubmatch(filepath.Base(path))
		if m == nil {
			return doc, fmt.Errorf("parse %s: no exam number in meta or file name", path)
		}
		doc.Meta.ExamNo, _ = strconv.Atoi(m[1])
	}
	return doc, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
