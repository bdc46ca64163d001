package handler

import (
	"github.com/pavelanni/examquiz/internal/bank"
	"github.com/pavelanni/examquiz/internal/grader"
	"github.com/pavelanni/examquiz/internal/model"
	"github.com/pavelanni/examquiz/internal/session"
)

type errorResponse struct {
	Error string `json:"error"`
}

type examsResponse struct {
	Exams []model.ExamSummary `json:"exams"`
	Count int                 `json:"count"`
}

type searchResponse struct {
	Keyword string                `json:"keyword"`
	Count   int                   `json:"count"`
	Results []bank.PublicQuestion `json:"results"`
}

type sessionQuestion struct {
	bank.PublicQuestion
	State grader.State `json:"state"`
}

type sessionResponse struct {
	Display       session.Display   `json:"display"`
	Message       string            `json:"message,omitempty"`
	Error         string            `json:"error,omitempty"`
	Totals        session.Totals    `json:"totals"`
	PossibleTotal int               `json:"possible_total"`
	PoolSize      int               `json:"pool_size"`
	Questions     []sessionQuestion `json:"questions"`
}

type answerResponse struct {
	Verdict *grader.Verdict `json:"verdict,omitempty"`
	State   grader.State    `json:"state"`
	Totals  session.Totals  `json:"totals"`
	Message string          `json:"message"`
}
