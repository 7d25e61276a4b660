package classification

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/config"
	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/agnivade/levenshtein"
)

type keyword struct {
	text   string
	tokens []string
}

type keywordSet struct {
	category model.Category
	keywords []keyword
}

// FuzzyMatcher scores dispute text against each category's keywords.
type FuzzyMatcher struct {
	sets      []keywordSet
	threshold int
}

// NewFuzzyMatcher prepares the lexicon's keywords in declared category order.
func NewFuzzyMatcher(lex *config.Lexicon) *FuzzyMatcher {
	sets := make([]keywordSet, 0, len(lex.Categories))
	for _, c := range lex.Categories {
		words := c.Keywords
		if lex.MaxKeywordsPerCategory > 0 && len(words) > lex.MaxKeywordsPerCategory {
			slog.Warn("Ignoring keywords past the per-category limit",
				"category", c.Name,
				"keywords", len(words),
				"limit", lex.MaxKeywordsPerCategory)
			words = words[:lex.MaxKeywordsPerCategory]
		}

		set := keywordSet{category: model.Category(c.Name)}
		for _, w := range words {
			tokens := common.Tokenize(w)
			if len(tokens) == 0 {
				continue
			}
			set.keywords = append(set.keywords, keyword{text: w, tokens: tokens})
		}
		sets = append(sets, set)
	}

	return &FuzzyMatcher{sets: sets, threshold: lex.FuzzyThreshold}
}

// Best returns the highest scoring category and keyword for text.
// Equal scores keep the earlier category and the earlier keyword.
func (f *FuzzyMatcher) Best(text string) (model.Category, string, int) {
	tokens := common.Tokenize(text)
	if len(tokens) == 0 {
		return "", "", 0
	}

	var bestCategory model.Category
	var bestKeyword string
	bestScore := -1
	for _, set := range f.sets {
		for _, kw := range set.keywords {
			score := tokenSetRatio(tokens, kw.tokens)
			if score > bestScore {
				bestCategory, bestKeyword, bestScore = set.category, kw.text, score
			}
		}
	}

	if bestScore < 0 {
		return "", "", 0
	}
	return bestCategory, bestKeyword, bestScore
}

// Match assigns the best category when its score reaches the threshold.
func (f *FuzzyMatcher) Match(text string) *Match {
	category, kw, score := f.Best(text)
	if category == "" || score < f.threshold {
		return nil
	}

	return &Match{
		Category:    category,
		Method:      model.MethodFuzzyMatch,
		Confidence:  float64(score) / 100,
		Explanation: fmt.Sprintf("Description matched %s keyword %q with a score of %d.", category, kw, score),
		Evidence: model.Evidence{
			MatchedKeyword: kw,
			FuzzyScore:     score,
		},
	}
}

// TokenSetRatio scores two strings from 0 to 100 by comparing their word sets:
// the shared words alone, and the shared words followed by each side's
// remaining words. Word order and repetition do not matter.
func TokenSetRatio(a, b string) int {
	return tokenSetRatio(common.Tokenize(a), common.Tokenize(b))
}

func tokenSetRatio(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := toSet(a)
	setB := toSet(b)

	var shared, onlyA, onlyB []string
	for tok := range setA {
		if setB[tok] {
			shared = append(shared, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if !setA[tok] {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(shared)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sect := strings.Join(shared, " ")
	withA := strings.TrimSpace(sect + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(sect + " " + strings.Join(onlyB, " "))

	best := ratio(withA, withB)
	if sect != "" {
		best = max(best, ratio(sect, withA), ratio(sect, withB))
	}
	return best
}

// ratio is the Levenshtein similarity of a and b scaled to 0..100, rounded half up.
func ratio(a, b string) int {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 100
	}
	same := longest - levenshtein.ComputeDistance(a, b)
	return (200*same + longest) / (2 * longest)
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
