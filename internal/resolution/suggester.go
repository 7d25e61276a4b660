// Package resolution turns classified disputes into recommended actions.
package resolution

import (
	"fmt"
	"strings"

	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/config"
	"github.com/Veraticus/dispute-triage/internal/model"
)

type rule struct {
	action   model.Action
	template string
}

// Suggester maps categories to actions and writes a justification for each.
// It is read-only after construction and safe for concurrent use.
type Suggester struct {
	rules    map[model.Category]rule
	fallback model.Category
}

// NewSuggester builds the category to action table. Every declared category
// must carry a valid action.
func NewSuggester(lex *config.Lexicon) (*Suggester, error) {
	rules := make(map[model.Category]rule, len(lex.Categories))
	for i, c := range lex.Categories {
		action, err := model.ParseAction(c.Action)
		if err != nil {
			return nil, common.NewConfigError(fmt.Sprintf("categories[%d].action", i),
				fmt.Sprintf("category %q is not mapped to an action: %v", c.Name, err))
		}
		rules[model.Category(c.Name)] = rule{
			action:   action,
			template: strings.TrimSpace(c.Justification),
		}
	}

	fallback := model.Category(lex.DefaultCategory)
	if _, ok := rules[fallback]; !ok {
		return nil, common.NewConfigError("default_category", fmt.Sprintf("%q is not a declared category", fallback))
	}

	return &Suggester{rules: rules, fallback: fallback}, nil
}

// Suggest derives the resolution for one classification.
// A category outside the lexicon takes the default category's action.
func (s *Suggester) Suggest(result model.ClassificationResult) model.ResolutionResult {
	r, ok := s.rules[result.Category]
	if !ok {
		r = s.rules[s.fallback]
	}

	justification := "Reason: " + Reason(result)
	if r.template != "" {
		justification = r.template + " " + justification
	}

	return model.ResolutionResult{
		DisputeID:     result.DisputeID,
		Action:        r.action,
		Justification: justification,
	}
}

// Reason renders the evidence behind a classification as one or two sentences.
func Reason(result model.ClassificationResult) string {
	ev := result.Evidence

	var reason string
	switch result.Method {
	case model.MethodDataRule:
		if ev.DuplicateOf != "" {
			reason = fmt.Sprintf("Transaction %s is a duplicate of transaction %s.", ev.TransactionID, ev.DuplicateOf)
		} else {
			reason = fmt.Sprintf("Transaction %s is flagged as a duplicate charge.", ev.TransactionID)
		}
	case model.MethodFuzzyMatch:
		reason = fmt.Sprintf("Description matched keyword %q with a score of %d/100.", ev.MatchedKeyword, ev.FuzzyScore)
	case model.MethodSemanticMatch:
		reason = fmt.Sprintf("Description is similar to %q (similarity %.2f).", ev.Exemplar, ev.Similarity)
	default:
		reason = defaultReason(ev)
	}

	if ev.Corroborated {
		reason += fmt.Sprintf(" Transaction status %s supports this category.", ev.TransactionStatus)
	}
	return reason
}

func defaultReason(ev model.Evidence) string {
	var parts []string
	if ev.HasMissing(model.MissingReference) {
		if ev.TransactionID == "" {
			parts = append(parts, "the dispute does not reference a transaction")
		} else {
			parts = append(parts, fmt.Sprintf("transaction %s was not found", ev.TransactionID))
		}
	}
	if ev.HasMissing(model.MissingText) {
		parts = append(parts, "the dispute has no description")
	}
	if len(parts) == 0 {
		return "No rule matched the dispute."
	}

	sentence := strings.Join(parts, " and ")
	return strings.ToUpper(sentence[:1]) + sentence[1:] + "."
}
