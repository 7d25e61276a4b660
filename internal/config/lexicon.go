package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Lexicon defaults applied when a field is left unset.
const (
	DefaultFuzzyThreshold         = 85
	DefaultSemanticThreshold      = 0.80
	DefaultEmbeddingModel         = "local:hashing-256"
	DefaultDuplicateWindow        = 3 * time.Minute
	DefaultMaxKeywordsPerCategory = 64
)

// CategorySpec declares one dispute category and everything the engine needs to assign it.
type CategorySpec struct {
	Name                  string   `mapstructure:"name" yaml:"name"`
	Action                string   `mapstructure:"action" yaml:"action"`
	Justification         string   `mapstructure:"justification" yaml:"justification"`
	Keywords              []string `mapstructure:"keywords" yaml:"keywords,omitempty"`
	Exemplars             []string `mapstructure:"exemplars" yaml:"exemplars,omitempty"`
	CorroboratingStatuses []string `mapstructure:"corroborating_statuses" yaml:"corroborating_statuses,omitempty"`
}

// Lexicon is the immutable classification configuration handed to the engine.
// Categories are listed in precedence order: on equal scores the earlier entry wins.
type Lexicon struct {
	DuplicateCategory      string         `mapstructure:"duplicate_category" yaml:"duplicate_category"`
	DefaultCategory        string         `mapstructure:"default_category" yaml:"default_category"`
	EmbeddingModel         string         `mapstructure:"embedding_model" yaml:"embedding_model"`
	Categories             []CategorySpec `mapstructure:"categories" yaml:"categories"`
	SemanticThreshold      float64        `mapstructure:"semantic_threshold" yaml:"semantic_threshold"`
	DefaultConfidence      float64        `mapstructure:"default_confidence" yaml:"default_confidence"`
	DuplicateWindow        time.Duration  `mapstructure:"duplicate_window" yaml:"duplicate_window"`
	FuzzyThreshold         int            `mapstructure:"fuzzy_threshold" yaml:"fuzzy_threshold"`
	MaxKeywordsPerCategory int            `mapstructure:"max_keywords_per_category" yaml:"max_keywords_per_category"`
	// Semantic is nil when the key is absent, which leaves the stage on.
	Semantic               *bool          `mapstructure:"semantic_enabled" yaml:"semantic_enabled,omitempty"`
}

// DefaultLexicon returns the built-in dispute categories.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		DuplicateCategory:      string(model.CategoryDuplicateCharge),
		DefaultCategory:        string(model.CategoryOther),
		EmbeddingModel:         DefaultEmbeddingModel,
		FuzzyThreshold:         DefaultFuzzyThreshold,
		SemanticThreshold:      DefaultSemanticThreshold,
		DuplicateWindow:        DefaultDuplicateWindow,
		MaxKeywordsPerCategory: DefaultMaxKeywordsPerCategory,
		Categories: []CategorySpec{
			{
				Name:          string(model.CategoryFraud),
				Action:        string(model.ActionEscalate),
				Justification: "Transaction shows strong indicators of potential fraud.",
				Keywords: []string{
					"fraud", "unauthorized", "suspicious", "chargeback",
					"i didn't make this payment",
					"not my transaction",
					"do not recognize this charge",
					"someone else used my card",
					"hacked",
				},
				Exemplars: []string{
					"someone used my card without permission",
					"i never authorized this payment",
					"my account was hacked and money was taken",
				},
			},
			{
				Name:          string(model.CategoryDuplicateCharge),
				Action:        string(model.ActionAutoRefund),
				Justification: "High confidence duplicate transaction pattern detected.",
				Keywords: []string{
					"duplicate", "charged twice", "double charged", "double payment",
					"paid twice", "same payment twice", "debited twice",
				},
				Exemplars: []string{
					"i was charged two times for the same purchase",
					"the same amount was taken from my account twice",
				},
			},
			{
				Name:                  string(model.CategoryFailedTransaction),
				Action:                string(model.ActionManualReview),
				Justification:         "Customer claims debit despite failed status. Verify and process manual refund.",
				CorroboratingStatuses: []string{"FAILED", "CANCELLED"},
				Keywords: []string{
					"failed", "money debited but not processed", "payment failed",
					"transaction declined", "gateway failed",
				},
				Exemplars: []string{
					"the payment did not go through but money left my account",
					"my transaction was declined yet i was debited",
				},
			},
			{
				Name:          string(model.CategoryRefundPending),
				Action:        string(model.ActionEscalate),
				Justification: "Customer is waiting for a refund. Trace status with payment gateway or bank.",
				Keywords: []string{
					"refund", "waiting for money back", "reversed", "pending refund",
					"refund not received", "amount not reversed",
				},
				Exemplars: []string{
					"i am still waiting to get my money back",
					"the merchant promised a refund that never arrived",
				},
			},
			{
				Name:          string(model.CategoryServiceNotReceived),
				Action:        string(model.ActionManualReview),
				Justification: "Customer reports paying for goods or services that were not delivered.",
				Keywords: []string{
					"not delivered", "never received", "item not received",
					"service not provided", "order never arrived",
				},
				Exemplars: []string{
					"i paid but the order never showed up",
					"the service i paid for was never provided",
				},
			},
			{
				Name:          string(model.CategoryBillingError),
				Action:        string(model.ActionManualReview),
				Justification: "Charged amount does not match what the customer agreed to pay.",
				Keywords: []string{
					"wrong amount", "overcharged", "incorrect amount",
					"billing error", "charged more than",
				},
				Exemplars: []string{
					"i was billed more than the listed price",
					"the amount on my statement is different from my receipt",
				},
			},
			{
				Name:          string(model.CategoryOther),
				Action:        string(model.ActionManualReview),
				Justification: "The nature of the dispute is unclear and requires more details from the customer.",
			},
		},
	}
}

// LoadLexicon resolves the lexicon for a run. An explicit file wins, then the
// "lexicon" key of the loaded configuration, then the built-in default.
// The result has defaults applied but is not validated.
func LoadLexicon(path string) (*Lexicon, error) {
	var lex *Lexicon

	switch {
	case path != "":
		loaded, err := LoadLexiconFile(path)
		if err != nil {
			return nil, err
		}
		lex = loaded
	case viper.IsSet("lexicon"):
		lex = &Lexicon{}
		if err := viper.UnmarshalKey("lexicon", lex); err != nil {
			return nil, fmt.Errorf("failed to decode lexicon from config: %w", err)
		}
	default:
		lex = DefaultLexicon()
	}

	lex.ApplyDefaults()
	return lex, nil
}

// LoadLexiconFile reads a lexicon from a YAML file.
func LoadLexiconFile(path string) (*Lexicon, error) {
	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}

	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon file %s: %w", path, err)
	}
	return &lex, nil
}

// ApplyDefaults fills optional fields. Thresholds are required and never defaulted.
func (l *Lexicon) ApplyDefaults() {
	if l.DuplicateCategory == "" {
		l.DuplicateCategory = string(model.CategoryDuplicateCharge)
	}
	if l.DefaultCategory == "" {
		l.DefaultCategory = string(model.CategoryOther)
	}
	if l.EmbeddingModel == "" {
		l.EmbeddingModel = DefaultEmbeddingModel
	}
	if l.DuplicateWindow == 0 {
		l.DuplicateWindow = DefaultDuplicateWindow
	}
	if l.MaxKeywordsPerCategory == 0 {
		l.MaxKeywordsPerCategory = DefaultMaxKeywordsPerCategory
	}
}

// SemanticEnabled reports whether the semantic stage runs.
func (l *Lexicon) SemanticEnabled() bool {
	return l.Semantic == nil || *l.Semantic
}

// SetSemanticEnabled turns the semantic stage on or off.
func (l *Lexicon) SetSemanticEnabled(enabled bool) {
	l.Semantic = &enabled
}

// Validate checks the lexicon and returns a *common.ConfigError for the first problem found.
func (l *Lexicon) Validate() error {
	if len(l.Categories) == 0 {
		return common.NewConfigError("categories", "at least one category is required")
	}

	seen := make(map[string]bool, len(l.Categories))
	exemplars := 0
	for i, c := range l.Categories {
		field := fmt.Sprintf("categories[%d]", i)
		name := c.Name
		if strings.TrimSpace(name) == "" {
			return common.NewConfigError(field+".name", "category name is required")
		}
		if strings.TrimSpace(name) != name {
			return common.NewConfigError(field+".name", fmt.Sprintf("category %q has surrounding whitespace", name))
		}
		if seen[name] {
			return common.NewConfigError(field+".name", fmt.Sprintf("category %q is declared twice", name))
		}
		seen[name] = true

		if c.Action == "" {
			return common.NewConfigError(field+".action", fmt.Sprintf("category %q has no action", name))
		}
		if _, err := model.ParseAction(c.Action); err != nil {
			return common.NewConfigError(field+".action", err.Error())
		}

		for _, kw := range c.Keywords {
			if strings.TrimSpace(kw) == "" {
				return common.NewConfigError(field+".keywords", fmt.Sprintf("category %q has an empty keyword", name))
			}
		}
		exemplars += len(c.Exemplars)
	}

	if !seen[l.DuplicateCategory] {
		return common.NewConfigError("duplicate_category", fmt.Sprintf("%q is not a declared category", l.DuplicateCategory))
	}
	if !seen[l.DefaultCategory] {
		return common.NewConfigError("default_category", fmt.Sprintf("%q is not a declared category", l.DefaultCategory))
	}

	if l.FuzzyThreshold == 0 {
		return common.NewConfigError("fuzzy_threshold", "threshold is required")
	}
	if l.FuzzyThreshold < 1 || l.FuzzyThreshold > 100 {
		return common.NewConfigError("fuzzy_threshold", fmt.Sprintf("must be between 1 and 100, got %d", l.FuzzyThreshold))
	}

	if l.DefaultConfidence < 0 || l.DefaultConfidence > 1 {
		return common.NewConfigError("default_confidence", fmt.Sprintf("must be between 0 and 1, got %g", l.DefaultConfidence))
	}
	if l.DuplicateWindow < 0 {
		return common.NewConfigError("duplicate_window", "must not be negative")
	}
	if l.MaxKeywordsPerCategory < 0 {
		return common.NewConfigError("max_keywords_per_category", "must not be negative")
	}

	if l.SemanticEnabled() {
		if l.SemanticThreshold == 0 {
			return common.NewConfigError("semantic_threshold", "threshold is required")
		}
		if l.SemanticThreshold < 0 || l.SemanticThreshold > 1 {
			return common.NewConfigError("semantic_threshold", fmt.Sprintf("must be in (0, 1], got %g", l.SemanticThreshold))
		}
		if strings.TrimSpace(l.EmbeddingModel) == "" {
			return common.NewConfigError("embedding_model", "an embedding model is required when semantic matching is enabled")
		}
		if exemplars == 0 {
			return common.NewConfigError("categories", "semantic matching needs at least one exemplar")
		}
	}

	return nil
}

// Category looks up a declared category by name.
func (l *Lexicon) Category(name string) (CategorySpec, bool) {
	for _, c := range l.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return CategorySpec{}, false
}

// ActionFor returns the configured action for a category.
func (l *Lexicon) ActionFor(category model.Category) (model.Action, bool) {
	c, ok := l.Category(string(category))
	if !ok {
		return "", false
	}
	action, err := model.ParseAction(c.Action)
	if err != nil {
		return "", false
	}
	return action, true
}

// Names returns the declared categories in precedence order.
func (l *Lexicon) Names() []model.Category {
	names := make([]model.Category, 0, len(l.Categories))
	for _, c := range l.Categories {
		names = append(names, model.Category(c.Name))
	}
	return names
}

// YAML renders the lexicon in the same format LoadLexiconFile reads.
func (l *Lexicon) YAML() ([]byte, error) {
	return yaml.Marshal(l)
}
