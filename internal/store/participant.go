package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/screener/internal/model"
)

// CommitResult durably records a completed run. It is an upsert keyed by
// identity: a retried commit after an ambiguous failure overwrites the same
// row rather than duplicating it.
func (s *Store) CommitResult(identity string, answers []int, meta model.ParticipantMeta) error {
	if answers == nil {
		answers = []int{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO participants (identity, answers, nickname, link, full_name, judged_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(identity) DO UPDATE SET
		   answers = ?, nickname = ?, link = ?, full_name = ?, judged_at = ?`,
		identity, string(data), meta.Nickname, meta.Link, meta.FullName, now,
		string(data), meta.Nickname, meta.Link, meta.FullName, now,
	)
	if err != nil {
		slog.Error("failed to commit result", "identity", identity, "error", err)
		return err
	}
	slog.Info("committed result", "identity", identity, "answers", len(answers))
	return nil
}

// ListJudgedIdentities returns the identity of every persisted participant.
func (s *Store) ListJudgedIdentities() ([]string, error) {
	rows, err := s.db.Query(`SELECT identity FROM participants ORDER BY identity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var identities []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		identities = append(identities, id)
	}
	return identities, rows.Err()
}

// GetParticipant returns one judged participant, or nil if not found.
func (s *Store) GetParticipant(identity string) (*model.ParticipantResult, error) {
	var r model.ParticipantResult
	var answers string
	var judgedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT identity, answers, nickname, link, full_name, judged_at
		 FROM participants WHERE identity = ?`, identity,
	).Scan(&r.Identity, &answers, &r.Nickname, &r.Link, &r.FullName, &judgedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return nil, fmt.Errorf("participant %s: unmarshal answers: %w", identity, err)
	}
	if judgedAt.Valid {
		r.JudgedAt = &judgedAt.Time
	}
	return &r, nil
}

// ExportResults builds export-ready records for all judged participants.
func (s *Store) ExportResults() ([]model.ParticipantResult, error) {
	rows, err := s.db.Query(
		`SELECT identity, answers, nickname, link, full_name, judged_at
		 FROM participants ORDER BY identity`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.ParticipantResult
	for rows.Next() {
		var r model.ParticipantResult
		var answers string
		var judgedAt sql.NullTime
		if err := rows.Scan(&r.Identity, &answers, &r.Nickname, &r.Link, &r.FullName, &judgedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
			return nil, fmt.Errorf("participant %s: unmarshal answers: %w", r.Identity, err)
		}
		if judgedAt.Valid {
			r.JudgedAt = &judgedAt.Time
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ParticipantCount returns the number of judged participants.
func (s *Store) ParticipantCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM participants`).Scan(&count)
	return count, err
}
