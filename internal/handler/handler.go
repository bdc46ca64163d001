package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examquiz/internal/bank"
	appI18n "github.com/pavelanni/examquiz/internal/i18n"
	"github.com/pavelanni/examquiz/internal/model"
	"github.com/pavelanni/examquiz/internal/session"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	bank    *bank.Bank
	session *session.Session
}

// New creates a new Handler.
func New(b *bank.Bank, s *session.Session) *Handler {
	return &Handler{bank: b, session: s}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/grade", h.handleGrade)

	r.Route("/api", func(r chi.Router) {
		r.Get("/exams", h.handleListExams)
		r.Get("/exams/{examNo}/questions/{questionNo}", h.handleGetQuestion)
		r.Get("/questions/search", h.handleSearch)
		r.Get("/questions/random", h.handleRandom)

		r.Get("/session", h.handleSessionView)
		r.Post("/session/load", h.handleSessionLoad)
		r.Post("/session/random", h.handleSessionRandom)
		r.Post("/session/reset", h.handleSessionReset)
		r.Post("/session/questions/{questionID}/answer", h.handleAnswer)
	})
}

type gradeRequest struct {
	QuestionID string `json:"question_id"`
	UserAnswer string `json:"user_answer"`
}

type gradeResponse struct {
	bank.GradeResult
	Message string `json:"message"`
}

func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	res, err := h.bank.Grade(req.QuestionID, req.UserAnswer)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, gradeResponse{
		GradeResult: res,
		Message:     gradeMessage(r, res.IsCorrect, res.CorrectAnswer, res.MaxScore),
	})
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.bank.ListExams()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, examsResponse{Exams: exams, Count: len(exams)})
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	examNo, err := strconv.Atoi(chi.URLParam(r, "examNo"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid exam number"})
		return
	}
	questionNo, err := strconv.Atoi(chi.URLParam(r, "questionNo"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid question number"})
		return
	}

	q, err := h.bank.Question(examNo, questionNo)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "keyword is required"})
		return
	}
	examNo, err := parseIntParam(r, "exam_no", 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	limit, err := parseIntParam(r, "limit", bank.DefaultSearchLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	results, err := h.bank.Search(keyword, examNo, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Keyword: keyword, Count: len(results), Results: results})
}

func (h *Handler) handleRandom(w http.ResponseWriter, r *http.Request) {
	count, err := parseIntParam(r, "count", bank.DefaultRandomCount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	examNo, err := parseIntParam(r, "exam_no", 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	set, err := h.bank.Random(count, examNo)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *Handler) handleSessionView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessionView(r))
}

type loadRequest struct {
	QuestionNo int `json:"question_no"`
}

func (h *Handler) handleSessionLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := decodeOptional(r, &req); err != nil || req.QuestionNo < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question_no must be a non-negative integer"})
		return
	}
	h.session.LoadFiltered(req.QuestionNo)
	writeJSON(w, http.StatusOK, h.sessionView(r))
}

type randomRequest struct {
	Count int `json:"count"`
}

func (h *Handler) handleSessionRandom(w http.ResponseWriter, r *http.Request) {
	var req randomRequest
	if err := decodeOptional(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	h.session.SampleRandom(req.Count)
	writeJSON(w, http.StatusOK, h.sessionView(r))
}

func (h *Handler) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	h.session.ResetToFullPool()
	writeJSON(w, http.StatusOK, h.sessionView(r))
}

type answerRequest struct {
	Answer string `json:"answer"`
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "questionID")

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	sym, err := model.ParseSymbol(req.Answer)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	g := h.session.Grader(questionID)
	if g == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "question is not displayed"})
		return
	}

	v, ok := g.Submit(r.Context(), sym)
	st := g.State()
	if !ok {
		writeJSON(w, http.StatusConflict, answerResponse{
			State:   st,
			Totals:  h.session.Totals(),
			Message: appI18n.T(r.Context(), "AlreadyAnswered"),
		})
		return
	}

	slog.Info("answer graded",
		"question_id", questionID,
		"selected", sym,
		"correct", v.IsCorrect,
		"points", v.Points,
		"source", v.Source,
	)
	q := g.Question()
	writeJSON(w, http.StatusOK, answerResponse{
		Verdict: &v,
		State:   st,
		Totals:  h.session.Totals(),
		Message: gradeMessage(r, v.IsCorrect, q.Answer(), v.Points),
	})
}

func (h *Handler) sessionView(r *http.Request) sessionResponse {
	display, loadErr := h.session.Display()
	resp := sessionResponse{
		Display:       display,
		Totals:        h.session.Totals(),
		PossibleTotal: h.session.PossibleTotal(),
		PoolSize:      h.session.PoolSize(),
		Questions:     []sessionQuestion{},
	}
	switch display {
	case session.DisplayError:
		resp.Message = appI18n.T(r.Context(), "LoadFailed")
		if loadErr != nil {
			resp.Error = loadErr.Error()
		}
	case session.DisplayEmpty:
		resp.Message = appI18n.T(r.Context(), "NoQuestions")
	}
	for _, g := range h.session.Displayed() {
		resp.Questions = append(resp.Questions, sessionQuestion{
			PublicQuestion: h.bank.Public(g.Question()),
			State:          g.State(),
		})
	}
	return resp
}

func gradeMessage(r *http.Request, correct bool, answer model.Symbol, points int) string {
	if correct {
		return appI18n.Td(r.Context(), "GradeCorrect", map[string]any{"Answer": answer, "Points": points})
	}
	return appI18n.Td(r.Context(), "GradeIncorrect", map[string]any{"Answer": answer})
}

// decodeOptional decodes a JSON body into dst, accepting an empty body.
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
