// Package catalog holds the immutable question set for an assessment run.
package catalog

import (
	"fmt"
	"log/slog"

	"github.com/pavelanni/screener/internal/model"
)

// Source is anything that can produce the full question set, ordered by id.
type Source interface {
	ListQuestions() ([]model.Question, error)
}

// Catalog is a read-only snapshot of all questions, indexed by position.
// Safe for unsynchronized concurrent reads after Load.
type Catalog struct {
	questions []model.Question
}

// Load fetches all questions once and validates them. An empty source, a gap
// in the id sequence, or a question without a usable correct-answer subset is
// a fatal condition: the process must not start serving on such data.
func Load(src Source) (*Catalog, error) {
	questions, err := src.ListQuestions()
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("question source is empty")
	}

	for i, q := range questions {
		if q.ID != i {
			return nil, fmt.Errorf("question ids are not dense: expected %d, got %d", i, q.ID)
		}
		if len(q.Variants) == 0 {
			return nil, fmt.Errorf("question %d has no variants", q.ID)
		}
		if len(q.CorrectAnswers) == 0 {
			return nil, fmt.Errorf("question %d has no correct answers", q.ID)
		}
		for _, id := range q.CorrectAnswers {
			if _, ok := q.Variants[id]; !ok {
				return nil, fmt.Errorf("question %d: correct answer %d is not a variant", q.ID, id)
			}
		}
		warnDuplicateLabels(q)
	}

	return &Catalog{questions: questions}, nil
}

// warnDuplicateLabels surfaces a catalog-validation gap: when two variants of
// one question share a label, answer matching resolves the collision
// correctness-first, which may not be what the catalog author intended.
func warnDuplicateLabels(q model.Question) {
	seen := make(map[string]int, len(q.Variants))
	for id, label := range q.Variants {
		if other, ok := seen[label]; ok {
			slog.Warn("question has colliding variant labels",
				"question", q.ID, "label", label, "variants", []int{other, id})
			continue
		}
		seen[label] = id
	}
}

// Get returns the question at the given index, if it exists.
func (c *Catalog) Get(index int) (model.Question, bool) {
	if index < 0 || index >= len(c.questions) {
		return model.Question{}, false
	}
	return c.questions[index], true
}

// Count returns the number of questions.
func (c *Catalog) Count() int {
	return len(c.questions)
}
