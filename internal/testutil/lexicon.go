package testutil

import (
	"github.com/Veraticus/dispute-triage/internal/config"
	"github.com/Veraticus/dispute-triage/internal/model"
)

// LexiconBuilder provides a fluent interface for constructing test lexicons.
//
//	lex := testutil.NewLexicon().
//		Category("Fraud", model.ActionEscalate, "fraud", "unauthorized").
//		Exemplars("Fraud", "someone used my card").
//		Build()
type LexiconBuilder struct {
	lex *config.Lexicon
}

// NewLexicon starts an empty lexicon with the default thresholds and the
// local hashing embedder.
func NewLexicon() *LexiconBuilder {
	return &LexiconBuilder{lex: &config.Lexicon{
		DuplicateCategory:      string(model.CategoryDuplicateCharge),
		DefaultCategory:        string(model.CategoryOther),
		EmbeddingModel:         "local:hashing-256",
		FuzzyThreshold:         config.DefaultFuzzyThreshold,
		SemanticThreshold:      config.DefaultSemanticThreshold,
		DuplicateWindow:        config.DefaultDuplicateWindow,
		MaxKeywordsPerCategory: config.DefaultMaxKeywordsPerCategory,
	}}
}

// Category declares a category after those already added.
func (b *LexiconBuilder) Category(name string, action model.Action, keywords ...string) *LexiconBuilder {
	b.lex.Categories = append(b.lex.Categories, config.CategorySpec{
		Name:          name,
		Action:        string(action),
		Justification: name + " template.",
		Keywords:      keywords,
	})
	return b
}

// Exemplars adds semantic exemplars to a declared category.
func (b *LexiconBuilder) Exemplars(name string, exemplars ...string) *LexiconBuilder {
	if c := b.find(name); c != nil {
		c.Exemplars = append(c.Exemplars, exemplars...)
	}
	return b
}

// Corroborate sets the transaction statuses that corroborate a category.
func (b *LexiconBuilder) Corroborate(name string, statuses ...string) *LexiconBuilder {
	if c := b.find(name); c != nil {
		c.CorroboratingStatuses = statuses
	}
	return b
}

// FuzzyThreshold sets the fuzzy threshold.
func (b *LexiconBuilder) FuzzyThreshold(n int) *LexiconBuilder {
	b.lex.FuzzyThreshold = n
	return b
}

// SemanticThreshold sets the semantic threshold.
func (b *LexiconBuilder) SemanticThreshold(f float64) *LexiconBuilder {
	b.lex.SemanticThreshold = f
	return b
}

// DefaultConfidence sets the confidence floor for unmatched disputes.
func (b *LexiconBuilder) DefaultConfidence(f float64) *LexiconBuilder {
	b.lex.DefaultConfidence = f
	return b
}

// MaxKeywords sets the per-category keyword cap.
func (b *LexiconBuilder) MaxKeywords(n int) *LexiconBuilder {
	b.lex.MaxKeywordsPerCategory = n
	return b
}

// WithoutSemantic disables the semantic stage.
func (b *LexiconBuilder) WithoutSemantic() *LexiconBuilder {
	b.lex.SetSemanticEnabled(false)
	return b
}

// Build returns the lexicon, declaring the duplicate and default categories
// at the end when the test did not.
func (b *LexiconBuilder) Build() *config.Lexicon {
	if b.find(b.lex.DuplicateCategory) == nil {
		b.Category(b.lex.DuplicateCategory, model.ActionAutoRefund)
	}
	if b.find(b.lex.DefaultCategory) == nil {
		b.Category(b.lex.DefaultCategory, model.ActionManualReview)
	}
	return b.lex
}

func (b *LexiconBuilder) find(name string) *config.CategorySpec {
	for i := range b.lex.Categories {
		if b.lex.Categories[i].Name == name {
			return &b.lex.Categories[i]
		}
	}
	return nil
}
