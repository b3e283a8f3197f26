package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/screener/internal/catalog"
	"github.com/pavelanni/screener/internal/conversation"
	appI18n "github.com/pavelanni/screener/internal/i18n"
	"github.com/pavelanni/screener/internal/model"
	"github.com/pavelanni/screener/internal/ops"
	"github.com/pavelanni/screener/internal/session"
	"github.com/pavelanni/screener/internal/store"
	"github.com/pavelanni/screener/internal/telegram"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "screener",
		Short: "Telegram screening-quiz bot",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `screener --token ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bot",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.String("db", "screener.db", "SQLite database path")
	f.String("token", "", "Telegram bot token (or set SCREENER_TOKEN)")
	f.StringP("lang", "l", "en", "Phrase language (en, ru)")
	f.String("ops-addr", "", "Ops HTTP listen address (empty disables)")
	f.String("ops-password", "", "Ops API password (or set SCREENER_OPS_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load questions and config into the database",
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "screener.db", "SQLite database path")
	f.StringSliceP("questions", "q", nil, "Paths to questions JSON files (repeatable)")
	f.String("config", "", "Path to config JSON file")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export judged participants as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "screener.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

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

	v.SetEnvPrefix("SCREENER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("screener")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/screener")
	v.AddConfigPath("/etc/screener")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	cfg, err := db.GetConfig()
	if err != nil {
		return fmt.Errorf("load config record: %w", err)
	}
	if cfg == nil {
		return fmt.Errorf("no config record in database: run `screener import --config ...` first")
	}

	// The bulk scans must return data, or the bot refuses to start: an empty
	// participants or questions table at this point means the store was never
	// populated, or is the wrong one.
	judged, err := db.ListJudgedIdentities()
	if err != nil {
		return fmt.Errorf("load judged identities: %w", err)
	}
	if len(judged) == 0 {
		return fmt.Errorf("participants scan returned no records")
	}

	cat, err := catalog.Load(db)
	if err != nil {
		return fmt.Errorf("load question catalog: %w", err)
	}
	slog.Info("loaded catalog", "questions", cat.Count(), "judged", len(judged))

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	phrases := appI18n.NewPhrases(lang, cfg.BotStrings)

	cache := session.New(judged)
	ctrl := conversation.New(cat, cache, db, phrases, cfg.RestrictReruns)

	if addr := v.GetString("ops-addr"); addr != "" {
		srv, err := ops.New(db, cat, cache, v.GetString("ops-password"))
		if err != nil {
			return fmt.Errorf("create ops server: %w", err)
		}
		go func() {
			slog.Info("starting ops server", "addr", addr)
			if err := http.ListenAndServe(addr, srv.Router()); err != nil {
				slog.Error("ops server stopped", "error", err)
			}
		}()
	}

	token := v.GetString("token")
	if token == "" {
		return fmt.Errorf("bot token is required: set --token flag or SCREENER_TOKEN env var")
	}

	bot, err := telegram.New(token, ctrl, *cfg)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	slog.Info("starting bot",
		"db", v.GetString("db"),
		"lang", lang,
		"restrict_reruns", cfg.RestrictReruns,
		"admins", len(cfg.Admins),
	)
	return bot.Run()
}

func runImport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if path := v.GetString("config"); path != "" {
		if err := importConfig(db, path); err != nil {
			return fmt.Errorf("import config: %w", err)
		}
	}

	if err := importQuestions(db, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("import questions: %w", err)
	}

	return nil
}

func importConfig(db *store.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var ci model.ConfigImport
	if err := json.Unmarshal(data, &ci); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if err := db.SetConfig(model.BotConfig(ci)); err != nil {
		return err
	}
	slog.Info("imported config", "path", path, "admins", len(ci.Admins))
	return nil
}

func importQuestions(db *store.Store, paths []string) error {
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
		if storedHash != "" {
			slog.Warn("questions file changed since last import, skipping to avoid breaking a live assessment",
				"path", path)
			continue
		}

		var imports []model.QuestionImport
		if err := json.Unmarshal(data, &imports); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for _, qi := range imports {
			q, err := questionFromImport(qi)
			if err != nil {
				return fmt.Errorf("question %q in %s: %w", qi.ID, path, err)
			}
			if err := db.InsertQuestion(q); err != nil {
				return fmt.Errorf("insert question from %s: %w", path, err)
			}
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported questions", "path", path, "count", len(imports))
	}

	return nil
}

// questionFromImport converts the string-keyed import shape to the catalog
// shape with integer choice ids.
func questionFromImport(qi model.QuestionImport) (model.Question, error) {
	id, err := strconv.Atoi(qi.ID)
	if err != nil {
		return model.Question{}, fmt.Errorf("parse id: %w", err)
	}
	q := model.Question{
		ID:       id,
		Text:     qi.Text,
		Variants: make(map[int]string, len(qi.Variants)),
	}
	for k, label := range qi.Variants {
		choiceID, err := strconv.Atoi(k)
		if err != nil {
			return model.Question{}, fmt.Errorf("parse variant id %q: %w", k, err)
		}
		q.Variants[choiceID] = label
	}
	for _, k := range qi.CorrectAnswers {
		choiceID, err := strconv.Atoi(k)
		if err != nil {
			return model.Question{}, fmt.Errorf("parse correct answer id %q: %w", k, err)
		}
		q.CorrectAnswers = append(q.CorrectAnswers, choiceID)
	}
	return q, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportResults()
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}
	questionCount, err := db.QuestionCount()
	if err != nil {
		return fmt.Errorf("count questions: %w", err)
	}

	export := model.ResultsExport{
		QuestionCount: questionCount,
		Results:       results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
