package store

import (
	"testing"

	"github.com/pavelanni/screener/internal/model"
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

func insertTestQuestion(t *testing.T, s *Store, id int, text string) {
	t.Helper()
	err := s.InsertQuestion(model.Question{
		ID:             id,
		Text:           text,
		Variants:       map[int]string{1: "Yes", 2: "No"},
		CorrectAnswers: []int{1},
	})
	if err != nil {
		t.Fatalf("insertTestQuestion: %v", err)
	}
}

func TestQuestions(t *testing.T) {
	s := newTestStore(t)

	// Empty DB should return zero count and empty list.
	count, err := s.QuestionCount()
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 questions, got %d", count)
	}

	insertTestQuestion(t, s, 0, "Do you like dogs?")
	insertTestQuestion(t, s, 1, "Do you like cats?")

	questions, err := s.ListQuestions()
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	// Ordered by id, JSON columns round-tripped.
	q := questions[0]
	if q.ID != 0 {
		t.Errorf("expected first question id 0, got %d", q.ID)
	}
	if q.Text != "Do you like dogs?" {
		t.Errorf("unexpected text %q", q.Text)
	}
	if q.Variants[1] != "Yes" || q.Variants[2] != "No" {
		t.Errorf("unexpected variants %v", q.Variants)
	}
	if len(q.CorrectAnswers) != 1 || q.CorrectAnswers[0] != 1 {
		t.Errorf("unexpected correct answers %v", q.CorrectAnswers)
	}

	count, err = s.QuestionCount()
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
}

func TestConfig(t *testing.T) {
	s := newTestStore(t)

	// Missing config returns nil without error.
	cfg, err := s.GetConfig()
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg != nil {
		t.Fatal("expected nil config on empty DB")
	}

	want := model.BotConfig{
		Admins:         []string{"100", "200"},
		BotStrings:     map[string]string{"start": "Hello"},
		RestrictReruns: true,
	}
	if err := s.SetConfig(want); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}

	cfg, err = s.GetConfig()
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected config")
	}
	if len(cfg.Admins) != 2 || cfg.Admins[0] != "100" {
		t.Errorf("unexpected admins %v", cfg.Admins)
	}
	if cfg.BotStrings["start"] != "Hello" {
		t.Errorf("unexpected bot strings %v", cfg.BotStrings)
	}
	if !cfg.RestrictReruns {
		t.Error("expected restrict_reruns true")
	}

	// SetConfig is an upsert on the single record.
	want.RestrictReruns = false
	if err := s.SetConfig(want); err != nil {
		t.Fatalf("SetConfig update: %v", err)
	}
	cfg, _ = s.GetConfig()
	if cfg.RestrictReruns {
		t.Error("expected restrict_reruns false after update")
	}
}

func TestCommitResultUpsert(t *testing.T) {
	s := newTestStore(t)

	meta := model.ParticipantMeta{Nickname: "@alice", Link: "https://t.me/alice", FullName: "Alice A"}
	if err := s.CommitResult("100", []int{1, 2}, meta); err != nil {
		t.Fatalf("CommitResult: %v", err)
	}

	p, err := s.GetParticipant("100")
	if err != nil {
		t.Fatalf("GetParticipant: %v", err)
	}
	if p == nil {
		t.Fatal("expected participant")
	}
	if len(p.Answers) != 2 || p.Answers[0] != 1 || p.Answers[1] != 2 {
		t.Errorf("unexpected answers %v", p.Answers)
	}
	if p.Nickname != "@alice" {
		t.Errorf("unexpected nickname %q", p.Nickname)
	}
	if p.JudgedAt == nil {
		t.Fatal("expected judged_at to be set")
	}
	firstJudged := *p.JudgedAt

	// A retried commit overwrites the same row, judged_at included.
	if err := s.CommitResult("100", []int{1, 1}, meta); err != nil {
		t.Fatalf("CommitResult retry: %v", err)
	}
	count, err := s.ParticipantCount()
	if err != nil {
		t.Fatalf("ParticipantCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 participant after retry, got %d", count)
	}
	p, _ = s.GetParticipant("100")
	if len(p.Answers) != 2 || p.Answers[1] != 1 {
		t.Errorf("expected retried answers [1 1], got %v", p.Answers)
	}
	if p.JudgedAt == nil || p.JudgedAt.Before(firstJudged) {
		t.Errorf("expected judged_at to advance on retry, got %v then %v", firstJudged, p.JudgedAt)
	}
}

func TestListJudgedIdentities(t *testing.T) {
	s := newTestStore(t)

	ids, err := s.ListJudgedIdentities()
	if err != nil {
		t.Fatalf("ListJudgedIdentities: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no identities, got %v", ids)
	}

	for _, id := range []string{"300", "100", "200"} {
		if err := s.CommitResult(id, []int{1}, model.ParticipantMeta{}); err != nil {
			t.Fatalf("CommitResult(%s): %v", id, err)
		}
	}

	ids, err = s.ListJudgedIdentities()
	if err != nil {
		t.Fatalf("ListJudgedIdentities: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 identities, got %d", len(ids))
	}
	if ids[0] != "100" || ids[1] != "200" || ids[2] != "300" {
		t.Errorf("expected ordered identities, got %v", ids)
	}
}

func TestExportResults(t *testing.T) {
	s := newTestStore(t)

	results, err := s.ExportResults()
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}

	if err := s.CommitResult("100", []int{1, 2, 1}, model.ParticipantMeta{FullName: "Alice A"}); err != nil {
		t.Fatalf("CommitResult: %v", err)
	}
	if err := s.CommitResult("200", []int{2}, model.ParticipantMeta{FullName: "Bob B"}); err != nil {
		t.Fatalf("CommitResult: %v", err)
	}

	results, err = s.ExportResults()
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Identity != "100" || results[0].FullName != "Alice A" {
		t.Errorf("unexpected first result %+v", results[0])
	}
	if len(results[0].Answers) != 3 {
		t.Errorf("expected 3 answers, got %v", results[0].Answers)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	// Missing file returns empty string.
	hash, err := s.GetImportedFileHash("/some/questions.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash("/some/questions.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, err = s.GetImportedFileHash("/some/questions.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	// Update existing.
	if err := s.SetImportedFileHash("/some/questions.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/some/questions.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}
