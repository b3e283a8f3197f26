package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

var bundle *i18n.Bundle

// Init loads the translation bundle for the given language tag.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	bundle = i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	// Load all locale files from embedded FS.
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		bundle.MustParseMessageFileBytes(data, e.Name())
		slog.Info("loaded locale file", "file", e.Name())
	}

	return nil
}

// Phrases resolves bot phrases with config-table overrides on top of the
// locale bundle: override first, then the bundle message, then the key itself.
type Phrases struct {
	loc       *i18n.Localizer
	overrides map[string]string
}

// NewPhrases creates a resolver for the given language. Overrides come from
// the durable config record's bot_strings and may be nil.
func NewPhrases(lang string, overrides map[string]string) *Phrases {
	return &Phrases{
		loc:       i18n.NewLocalizer(bundle, lang),
		overrides: overrides,
	}
}

// Get returns the phrase for a key.
func (p *Phrases) Get(key string) string {
	if s, ok := p.overrides[key]; ok && s != "" {
		return s
	}
	s, err := p.loc.Localize(&i18n.LocalizeConfig{MessageID: key})
	if err != nil {
		slog.Warn("missing phrase", "key", key, "error", err)
		return key
	}
	return s
}
