package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/examquiz/internal/bank"
	"github.com/pavelanni/examquiz/internal/cli"
	"github.com/pavelanni/examquiz/internal/gradeclient"
	"github.com/pavelanni/examquiz/internal/grader"
	"github.com/pavelanni/examquiz/internal/handler"
	appI18n "github.com/pavelanni/examquiz/internal/i18n"
	"github.com/pavelanni/examquiz/internal/llm"
	"github.com/pavelanni/examquiz/internal/model"
	"github.com/pavelanni/examquiz/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examquiz",
		Short: "Korean history exam quiz with remote grading",
	}

	serve := serveCmd()
	root.AddCommand(serve, quizCmd(), examsCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// addCommonFlags registers the flags every command shares.
func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "examquiz.db", "SQLite database path")
	f.StringSliceP("questions", "q", []string{"data/questions_*.json"}, "Question files or glob patterns (repeatable)")
	f.StringP("lang", "l", "ko", "Message language (ko, en)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

// addGraderFlags registers the flags that select the remote grader.
func addGraderFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntP("exam", "e", 0, "Exam number to load (0 = every exam)")
	f.String("grader", "local", "Remote grader (local, http, llm)")
	f.String("grade-url", "", "Base URL of the grading endpoint (default: this server)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP quiz server",
		RunE:  runServe,
	}
	addCommonFlags(cmd)
	addGraderFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("image-base", "", "URL prefix for question images")
	f.StringSlice("cors-origins", []string{"http://localhost:3000"}, "Allowed CORS origins")
	return cmd
}

func quizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Take the quiz in the terminal",
		RunE:  runQuiz,
	}
	addCommonFlags(cmd)
	addGraderFlags(cmd)
	f := cmd.Flags()
	f.IntP("question-no", "n", 0, "Show only this question number")
	f.IntP("random", "r", 0, "Draw this many random questions (0 = all)")
	return cmd
}

func examsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exams",
		Short: "List the imported exams",
		RunE:  runExams,
	}
	addCommonFlags(cmd)
	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMQUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examquiz")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examquiz")
	v.AddConfigPath("/etc/examquiz")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openStore opens the database and initializes i18n.
func openStore(v *viper.Viper) (*store.Store, error) {
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := appI18n.Init(v.GetString("lang")); err != nil {
		db.Close()
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	return db, nil
}

func quizConfig(v *viper.Viper) model.QuizConfig {
	return model.QuizConfig{
		ExamNo:     v.GetInt("exam"),
		QuestionNo: v.GetInt("question-no"),
		Random:     v.GetInt("random"),
		ImageBase:  v.GetString("image-base"),
		Grader:     strings.ToLower(strings.TrimSpace(v.GetString("grader"))),
	}
}

// newRemote builds the remote grader selected by --grader. A nil remote
// grades every answer locally. selfAddr is the listen address of this
// process, empty when it serves no HTTP.
func newRemote(ctx context.Context, v *viper.Viper, kind string, db *store.Store, selfAddr string) (grader.Remote, error) {
	switch kind {
	case "", "local":
		return nil, nil
	case "http":
		url := v.GetString("grade-url")
		if url == "" {
			if selfAddr == "" {
				return nil, errors.New("--grade-url is required with --grader http")
			}
			url = selfURL(selfAddr)
		}
		slog.Info("grading through HTTP endpoint", "url", url)
		return gradeclient.New(url, nil), nil
	case "llm":
		client := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), db)
		if err := client.Ping(ctx); err != nil {
			slog.Warn("LLM health check failed, answers will fall back to the answer key", "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown grader %q (want local, http or llm)", kind)
	}
}

func selfURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func newRouter(h *handler.Handler, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(appI18n.Middleware())
	h.Routes(r)
	return r
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	cfg := quizConfig(v)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	importErr := loadQuestions(db, v.GetStringSlice("questions"))

	addr := v.GetString("addr")
	remote, err := newRemote(cmd.Context(), v, cfg.Grader, db, addr)
	if err != nil {
		return err
	}

	sess := newSession(remote, db, cfg.ExamNo, importErr)
	h := handler.New(bank.New(db, cfg.ImageBase), sess)

	slog.Info("starting server",
		"addr", addr,
		"lang", v.GetString("lang"),
		"exam", cfg.ExamNo,
		"grader", cfg.Grader,
		"pool_size", sess.PoolSize(),
	)
	return http.ListenAndServe(addr, newRouter(h, v.GetStringSlice("cors-origins")))
}

func runQuiz(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	cfg := quizConfig(v)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	importErr := loadQuestions(db, v.GetStringSlice("questions"))

	ctx := cmd.Context()
	remote, err := newRemote(ctx, v, cfg.Grader, db, "")
	if err != nil {
		return err
	}

	sess := newSession(remote, db, cfg.ExamNo, importErr)
	switch {
	case cfg.QuestionNo > 0:
		sess.LoadFiltered(cfg.QuestionNo)
	case cfg.Random > 0:
		sess.SampleRandom(cfg.Random)
	}

	ctx = appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(v.GetString("lang")))
	return cli.Run(ctx, sess, cmd.InOrStdin(), cmd.OutOrStdout())
}

func runExams(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := loadQuestions(db, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	exams, err := db.ListExams()
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}
	total, err := db.QuestionCount()
	if err != nil {
		return fmt.Errorf("count questions: %w", err)
	}
	out := cmd.OutOrStdout()
	for _, e := range exams {
		fmt.Fprintf(out, "%3d  %4d  %-6s  %2d questions  %3d points\n",
			e.ExamNo, e.Year, e.Level, e.TotalQuestions, e.TotalScore)
	}
	fmt.Fprintf(out, "%d exams, %d questions\n", len(exams), total)
	return nil
}
