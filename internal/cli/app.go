package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pavelanni/examquiz/internal/grader"
	appI18n "github.com/pavelanni/examquiz/internal/i18n"
	"github.com/pavelanni/examquiz/internal/model"
	"github.com/pavelanni/examquiz/internal/session"
)

const maxAttempts = 3

// Run plays every displayed question of sess on in/out and prints the
// scoreboard.
func Run(ctx context.Context, sess *session.Session, in io.Reader, out io.Writer) error {
	display, loadErr := sess.Display()
	switch display {
	case session.DisplayError:
		fmt.Fprintln(out, appI18n.T(ctx, "LoadFailed"))
		return loadErr
	case session.DisplayEmpty:
		fmt.Fprintln(out, appI18n.T(ctx, "NoQuestions"))
		return nil
	case session.DisplayLoading:
		return errors.New("session has no question pool")
	}

	graders := sess.Displayed()
	fmt.Fprintln(out, appI18n.Tp(ctx, "QuestionsAvailable", len(graders)))
	reader := bufio.NewReader(in)

	for _, g := range graders {
		q := g.Question()
		printQuestion(ctx, out, q)

		sym, ok := getAnswer(ctx, reader, out)
		fmt.Fprintln(out)
		if !ok {
			continue
		}

		v, ok := g.Submit(ctx, sym)
		if !ok {
			fmt.Fprintln(out, appI18n.T(ctx, "AlreadyAnswered"))
			continue
		}
		fmt.Fprintln(out, verdictMessage(ctx, v, q.Answer()))
	}

	printScoreboard(ctx, out, sess, len(graders))
	return nil
}

func printQuestion(ctx context.Context, out io.Writer, q model.Question) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, appI18n.Td(ctx, "QuestionHeader", map[string]any{
		"ExamNo":     q.ExamNo,
		"QuestionNo": q.QuestionNo,
		"Points":     q.Points(),
	}))
	if q.QuestionText != "" {
		fmt.Fprintln(out, q.QuestionText)
	}
	if q.SourceMaterial != "" {
		fmt.Fprintf(out, "\n  %s\n", q.SourceMaterial)
	}
	fmt.Fprintln(out)
	for _, sym := range model.Symbols {
		if text, ok := q.Choices[sym]; ok {
			fmt.Fprintf(out, "%s %s\n", sym, text)
		}
	}
	fmt.Fprintln(out)
}

func getAnswer(ctx context.Context, reader *bufio.Reader, out io.Writer) (model.Symbol, bool) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Fprint(out, appI18n.T(ctx, "AnswerPrompt")+" ")
		line, err := reader.ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			return "", false
		}

		sym, perr := model.ParseSymbol(line)
		if perr == nil {
			return sym, true
		}
		if attempt < maxAttempts {
			fmt.Fprintln(out, appI18n.T(ctx, "InvalidChoice"))
		}
		if err != nil {
			return "", false
		}
	}
	return "", false
}

func verdictMessage(ctx context.Context, v grader.Verdict, answer model.Symbol) string {
	if v.IsCorrect {
		return appI18n.Td(ctx, "GradeCorrect", map[string]any{"Answer": answer, "Points": v.Points})
	}
	return appI18n.Td(ctx, "GradeIncorrect", map[string]any{"Answer": answer})
}

func printScoreboard(ctx context.Context, out io.Writer, sess *session.Session, displayed int) {
	t := sess.Totals()
	fmt.Fprintln(out)
	fmt.Fprintln(out, appI18n.Td(ctx, "Scoreboard", map[string]any{
		"Score":     t.Score,
		"Total":     sess.PossibleTotal(),
		"Correct":   t.Correct,
		"Wrong":     t.Answered - t.Correct,
		"Answered":  t.Answered,
		"Displayed": displayed,
	}))
}
