package model

import "time"

// State represents where a participant's conversation currently is.
type State string

const (
	// StateAwaitingStart means the participant has been greeted but has not
	// pressed the begin button yet.
	StateAwaitingStart State = "awaiting_start"
	// StateInProgress means the participant is answering questions.
	StateInProgress State = "in_progress"
	// StateTerminal is absorbing: the conversation is over.
	StateTerminal State = "terminal"
)

// Verdict is the outcome of a completed run.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// Question is one entry of the immutable catalog. IDs are dense from 0 to
// count-1; variant keys are choice ids and need not be contiguous.
type Question struct {
	ID             int            `json:"id"`
	Text           string         `json:"text"`
	Variants       map[int]string `json:"variants"`
	CorrectAnswers []int          `json:"correct_answers"`
}

// Progress is the in-memory record of one participant's run.
// Invariant while a run is active: YesCount+NoCount == CurrentQuestion == len(Answers).
type Progress struct {
	Identity        string
	State           State
	CurrentQuestion int
	YesCount        int
	NoCount         int
	Answers         []int
}

// ParticipantMeta carries free-form identity metadata persisted next to the
// final answer sequence.
type ParticipantMeta struct {
	Nickname string `json:"nickname"`
	Link     string `json:"link"`
	FullName string `json:"full_name"`
}

// BotConfig is the single durable configuration record.
type BotConfig struct {
	Admins         []string          `json:"admins"`
	BotStrings     map[string]string `json:"bot_strings"`
	RestrictReruns bool              `json:"restrict_reruns"`
}

// IsAdmin reports whether the identity is in the admin list.
func (c BotConfig) IsAdmin(identity string) bool {
	for _, a := range c.Admins {
		if a == identity {
			return true
		}
	}
	return false
}

// Inbound is one message delivered by the transport.
type Inbound struct {
	Identity string
	Text     string
	Meta     ParticipantMeta
	IsAdmin  bool
}

// Reply tells the transport what to render. Choices, when non-nil, are
// keyboard button labels in display order; layout is the transport's concern.
type Reply struct {
	Text             string
	Choices          []string
	RemoveKeyboard   bool
	End              bool
	RestartRequested bool
}

// QuestionImport is used for loading questions from JSON files. Choice ids
// arrive as strings, the way the original data source kept them.
type QuestionImport struct {
	ID             string            `json:"id"`
	Text           string            `json:"text"`
	Variants       map[string]string `json:"variants"`
	CorrectAnswers []string          `json:"correct_answers"`
}

// ConfigImport is used for loading the config record from a JSON file.
type ConfigImport struct {
	Admins         []string          `json:"admins"`
	BotStrings     map[string]string `json:"bot_strings"`
	RestrictReruns bool              `json:"restrict_reruns"`
}

// ParticipantResult holds one judged participant's data for export.
type ParticipantResult struct {
	Identity string     `json:"identity"`
	Answers  []int      `json:"answers"`
	Nickname string     `json:"nickname"`
	Link     string     `json:"link"`
	FullName string     `json:"full_name"`
	JudgedAt *time.Time `json:"judged_at,omitempty"`
}

// ResultsExport is the top-level JSON structure for results export.
type ResultsExport struct {
	QuestionCount int                 `json:"question_count"`
	Results       []ParticipantResult `json:"results"`
}
