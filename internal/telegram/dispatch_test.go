package telegram

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/screener/internal/catalog"
	"github.com/pavelanni/screener/internal/conversation"
	"github.com/pavelanni/screener/internal/i18n"
	"github.com/pavelanni/screener/internal/model"
	"github.com/pavelanni/screener/internal/session"
)

func TestDispatchPreservesPerKeyOrder(t *testing.T) {
	d := newDispatcher()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		d.Dispatch("a", func() { got = append(got, i) })
	}
	d.Close()

	if len(got) != 100 {
		t.Fatalf("expected 100 tasks to run, got %d", len(got))
	}
	for pos, v := range got {
		if v != pos {
			t.Fatalf("task %d ran at position %d", v, pos)
		}
	}
}

func TestDispatchKeysRunIndependently(t *testing.T) {
	d := newDispatcher()

	release := make(chan struct{})
	d.Dispatch("slow", func() { <-release })

	done := make(chan struct{})
	d.Dispatch("fast", func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fast key blocked behind slow key")
	}

	close(release)
	d.Close()
}

func TestDispatchAfterCloseIsDropped(t *testing.T) {
	d := newDispatcher()
	d.Dispatch("a", func() {})
	d.Close()

	ran := false
	d.Dispatch("a", func() { ran = true })
	d.Close()

	if ran {
		t.Fatal("task dispatched after Close ran")
	}
}

type orderedSource struct {
	questions []model.Question
}

func (s orderedSource) ListQuestions() ([]model.Question, error) {
	return s.questions, nil
}

type recordingGateway struct {
	mu      sync.Mutex
	answers map[string][]int
}

func (g *recordingGateway) CommitResult(identity string, answers []int, _ model.ParticipantMeta) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.answers == nil {
		g.answers = make(map[string][]int)
	}
	g.answers[identity] = append([]int(nil), answers...)
	return nil
}

// A participant's rapid replies must be classified against the questions in
// the order the replies arrived. Answering "Yes" then "No" to a two-question
// run must always persist [1 2]; an inverted sequence means the second reply
// was applied to the first question.
func TestAnswersAppliedInDeliveryOrder(t *testing.T) {
	cat, err := catalog.Load(orderedSource{[]model.Question{
		{ID: 0, Text: "Q0", Variants: map[int]string{1: "Yes", 2: "No"}, CorrectAnswers: []int{1}},
		{ID: 1, Text: "Q1", Variants: map[int]string{1: "Yes", 2: "No"}, CorrectAnswers: []int{1}},
	}})
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	gw := &recordingGateway{}
	ctrl := conversation.New(cat, session.New(nil), gw, i18n.NewPhrases("en", nil), false)

	d := newDispatcher()
	send := func(identity, text string) {
		d.Dispatch(identity, func() {
			ctrl.Handle(model.Inbound{Identity: identity, Text: text})
		})
	}

	const participants = 50
	for i := 0; i < participants; i++ {
		identity := strconv.Itoa(1000 + i)
		send(identity, "Begin")
		send(identity, "Yes")
		send(identity, "No")
	}
	d.Close()

	if len(gw.answers) != participants {
		t.Fatalf("expected %d completed runs, got %d", participants, len(gw.answers))
	}
	for identity, answers := range gw.answers {
		if len(answers) != 2 || answers[0] != 1 || answers[1] != 2 {
			t.Fatalf("identity %s: answers applied out of delivery order: %v", identity, answers)
		}
	}
}
