package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/screener/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
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
	CREATE TABLE IF NOT EXISTS participants (
		identity TEXT PRIMARY KEY,
		answers TEXT NOT NULL DEFAULT '[]',
		nickname TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		full_name TEXT NOT NULL DEFAULT '',
		judged_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		admins TEXT NOT NULL DEFAULT '[]',
		bot_strings TEXT NOT NULL DEFAULT '{}',
		restrict_reruns INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY,
		text TEXT NOT NULL,
		variants TEXT NOT NULL,
		correct_answers TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS import_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertQuestion stores a question. Variant maps and correct-answer sets are
// kept as JSON text, mirroring the shape of the original data source.
func (s *Store) InsertQuestion(q model.Question) error {
	variants, err := json.Marshal(q.Variants)
	if err != nil {
		return fmt.Errorf("marshal variants: %w", err)
	}
	correct, err := json.Marshal(q.CorrectAnswers)
	if err != nil {
		return fmt.Errorf("marshal correct answers: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO questions (id, text, variants, correct_answers) VALUES (?, ?, ?, ?)`,
		q.ID, q.Text, string(variants), string(correct),
	)
	return err
}

// ListQuestions returns all questions ordered by id.
func (s *Store) ListQuestions() ([]model.Question, error) {
	rows, err := s.db.Query(`SELECT id, text, variants, correct_answers FROM questions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var variants, correct string
		if err := rows.Scan(&q.ID, &q.Text, &variants, &correct); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(variants), &q.Variants); err != nil {
			return nil, fmt.Errorf("question %d: unmarshal variants: %w", q.ID, err)
		}
		if err := json.Unmarshal([]byte(correct), &q.CorrectAnswers); err != nil {
			return nil, fmt.Errorf("question %d: unmarshal correct answers: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// SetConfig upserts the single config record.
func (s *Store) SetConfig(cfg model.BotConfig) error {
	admins, err := json.Marshal(cfg.Admins)
	if err != nil {
		return fmt.Errorf("marshal admins: %w", err)
	}
	botStrings, err := json.Marshal(cfg.BotStrings)
	if err != nil {
		return fmt.Errorf("marshal bot strings: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO config (id, admins, bot_strings, restrict_reruns) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET admins = ?, bot_strings = ?, restrict_reruns = ?`,
		string(admins), string(botStrings), cfg.RestrictReruns,
		string(admins), string(botStrings), cfg.RestrictReruns,
	)
	return err
}

// GetConfig returns the config record, or nil if none has been imported yet.
func (s *Store) GetConfig() (*model.BotConfig, error) {
	var admins, botStrings string
	var cfg model.BotConfig
	err := s.db.QueryRow(
		`SELECT admins, bot_strings, restrict_reruns FROM config WHERE id = 1`,
	).Scan(&admins, &botStrings, &cfg.RestrictReruns)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(admins), &cfg.Admins); err != nil {
		return nil, fmt.Errorf("unmarshal admins: %w", err)
	}
	if err := json.Unmarshal([]byte(botStrings), &cfg.BotStrings); err != nil {
		return nil, fmt.Errorf("unmarshal bot strings: %w", err)
	}
	return &cfg, nil
}
