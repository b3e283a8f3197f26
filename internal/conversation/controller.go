// Package conversation implements the per-participant state machine that
// decides, for every inbound message, what happens next.
package conversation

import (
	"log/slog"
	"slices"

	"golang.org/x/exp/maps"

	"github.com/pavelanni/screener/internal/catalog"
	"github.com/pavelanni/screener/internal/i18n"
	"github.com/pavelanni/screener/internal/model"
	"github.com/pavelanni/screener/internal/session"
)

const (
	// StartCommand greets the participant and shows the begin keyboard.
	StartCommand = "/start"
	// RerunCommand discards in-flight progress and returns to the start.
	RerunCommand = "/rerun"
	// RestartCommand asks the supervisor for a process restart. Admin-gated
	// at the transport boundary; the core only sees the resulting boolean.
	RestartCommand = "/restart_bot"
)

// Gateway durably records a completed run. Commit must be an upsert keyed by
// identity so a retry after an ambiguous failure cannot corrupt the record.
type Gateway interface {
	CommitResult(identity string, answers []int, meta model.ParticipantMeta) error
}

// Controller consumes inbound messages and drives participants through the
// question sequence.
type Controller struct {
	catalog        *catalog.Catalog
	cache          *session.Cache
	gateway        Gateway
	phrases        *i18n.Phrases
	restrictReruns bool
}

// New creates a controller.
func New(cat *catalog.Catalog, cache *session.Cache, gw Gateway, phrases *i18n.Phrases, restrictReruns bool) *Controller {
	return &Controller{
		catalog:        cat,
		cache:          cache,
		gateway:        gw,
		phrases:        phrases,
		restrictReruns: restrictReruns,
	}
}

// Handle processes one inbound message and returns what the transport should
// render. All effects for one identity are applied under that identity's
// lock: a duplicate or out-of-order delivery cannot double-count an answer,
// and commit + judged-set update + eviction happen as one unit.
func (c *Controller) Handle(msg model.Inbound) model.Reply {
	release := c.cache.Acquire(msg.Identity)
	defer release()

	// Replay prevention comes first and never creates a cache entry.
	if c.restrictReruns && c.cache.HasCompletedBefore(msg.Identity) {
		return model.Reply{Text: c.phrases.Get("already_passed"), RemoveKeyboard: true, End: true}
	}

	switch msg.Text {
	case RestartCommand:
		if !msg.IsAdmin {
			slog.Warn("unauthorized restart attempt", "identity", msg.Identity)
			return model.Reply{End: true}
		}
		c.cache.Evict(msg.Identity)
		slog.Info("restart requested", "identity", msg.Identity)
		return model.Reply{RestartRequested: true, End: true}

	case StartCommand:
		return model.Reply{
			Text:    c.phrases.Get("start"),
			Choices: []string{c.phrases.Get("begin_button")},
		}

	case RerunCommand:
		c.cache.Reset(msg.Identity)
		return model.Reply{
			Text:    c.phrases.Get("rerun"),
			Choices: []string{c.phrases.Get("begin_button")},
		}

	case c.phrases.Get("begin_button"):
		return c.begin(msg)
	}

	return c.answer(msg)
}

// begin starts (or restarts) a run: the entry is rebuilt from scratch and
// question 0 is emitted without advancing the index.
func (c *Controller) begin(msg model.Inbound) model.Reply {
	c.cache.Reset(msg.Identity)
	p := c.cache.GetOrInit(msg.Identity)

	q, ok := c.catalog.Get(p.CurrentQuestion)
	if !ok {
		slog.Error("no question for index", "identity", msg.Identity, "index", p.CurrentQuestion)
		return model.Reply{Text: c.phrases.Get("internal_error"), RemoveKeyboard: true, End: true}
	}
	c.cache.SetState(msg.Identity, model.StateInProgress)
	return model.Reply{Text: q.Text, Choices: variantLabels(q)}
}

// answer classifies free text against the current question.
func (c *Controller) answer(msg model.Inbound) model.Reply {
	p := c.cache.GetOrInit(msg.Identity)

	if p.State != model.StateInProgress {
		// Nothing is in flight for this identity and the text is not a
		// recognized trigger: a normal terminal transition, not an error.
		c.cache.Evict(msg.Identity)
		return model.Reply{Text: c.phrases.Get("not_recognized"), RemoveKeyboard: true, End: true}
	}

	q, ok := c.catalog.Get(p.CurrentQuestion)
	if !ok {
		slog.Error("no question for index", "identity", msg.Identity, "index", p.CurrentQuestion)
		return model.Reply{Text: c.phrases.Get("internal_error"), RemoveKeyboard: true, End: true}
	}

	correct := make(map[string]int, len(q.CorrectAnswers))
	for _, id := range q.CorrectAnswers {
		correct[q.Variants[id]] = id
	}
	if len(correct) == 0 {
		slog.Error("question has no correct answers", "identity", msg.Identity, "question", q.ID)
		return model.Reply{Text: c.phrases.Get("internal_error"), RemoveKeyboard: true, End: true}
	}
	all := make(map[string]int, len(q.Variants))
	for id, label := range q.Variants {
		all[label] = id
	}

	// Correctness-first matching: a label that appears both as a correct and
	// an incorrect variant scores as correct.
	var choiceID int
	var isCorrect bool
	if id, ok := correct[msg.Text]; ok {
		choiceID, isCorrect = id, true
	} else if id, ok := all[msg.Text]; ok {
		choiceID, isCorrect = id, false
	} else {
		c.cache.Evict(msg.Identity)
		return model.Reply{Text: c.phrases.Get("not_recognized"), RemoveKeyboard: true, End: true}
	}

	p = c.cache.RecordAnswer(msg.Identity, choiceID, isCorrect)

	if p.CurrentQuestion >= c.catalog.Count() {
		return c.complete(msg, p)
	}

	next, ok := c.catalog.Get(p.CurrentQuestion)
	if !ok {
		slog.Error("no question for index", "identity", msg.Identity, "index", p.CurrentQuestion)
		return model.Reply{Text: c.phrases.Get("internal_error"), RemoveKeyboard: true, End: true}
	}
	return model.Reply{Text: next.Text, Choices: variantLabels(next)}
}

// complete computes the verdict and persists the run exactly once. On a
// failed commit the entry is kept and the judged set untouched, so an
// external retry can re-attempt the idempotent upsert without losing data.
func (c *Controller) complete(msg model.Inbound, p model.Progress) model.Reply {
	verdict, phraseKey := model.VerdictPass, "passed"
	if p.NoCount > 0 {
		verdict, phraseKey = model.VerdictFail, "failed"
	}

	if err := c.gateway.CommitResult(msg.Identity, p.Answers, msg.Meta); err != nil {
		slog.Error("failed to persist completed run", "identity", msg.Identity, "error", err)
		return model.Reply{Text: c.phrases.Get("internal_error"), RemoveKeyboard: true, End: true}
	}

	c.cache.MarkJudged(msg.Identity)
	c.cache.Evict(msg.Identity)

	text := c.phrases.Get("conversation_over") + " " + c.phrases.Get(phraseKey)
	slog.Info("run completed", "identity", msg.Identity,
		"verdict", verdict, "yes", p.YesCount, "no", p.NoCount)
	return model.Reply{Text: text, RemoveKeyboard: true, End: true}
}

// variantLabels returns the question's choice labels ordered by choice id.
func variantLabels(q model.Question) []string {
	ids := maps.Keys(q.Variants)
	slices.Sort(ids)
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		labels = append(labels, q.Variants[id])
	}
	return labels
}
