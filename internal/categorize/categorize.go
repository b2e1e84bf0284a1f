// Package categorize implements merchant categorization (§4.5.1): a DB
// cache, an ordered regex rule table, and an LLM fallback for whatever
// neither resolves.
package categorize

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/database/repositories"
)

// Vocabulary is the closed set of categories every decision must land in.
var Vocabulary = []string{
	"shopping", "subscriptions", "dining", "gas", "income", "utilities",
	"healthcare", "transfer", "atm/cash", "groceries", "entertainment",
	"travel", "insurance", "rent", "mortgage", "education", "fitness",
	"fees", "charity", "other",
}

var vocabularySet = func() map[string]bool {
	m := make(map[string]bool, len(Vocabulary))
	for _, c := range Vocabulary {
		m[c] = true
	}
	return m
}()

type rule struct {
	pattern  *regexp.Regexp
	category string
}

// rules is the ordered table from §4.5.1; first match wins.
var rules = []rule{
	{regexp.MustCompile(`(?i)amazon|walmart|target|costco|kroger`), "shopping"},
	{regexp.MustCompile(`(?i)netflix|spotify|hulu|disney|apple.*sub`), "subscriptions"},
	{regexp.MustCompile(`(?i)uber.*eat|doordash|grubhub|chipotle|mcdonald`), "dining"},
	{regexp.MustCompile(`(?i)shell|chevron|exxon|bp|mobil|gas.*station`), "gas"},
	{regexp.MustCompile(`(?i)payroll|salary|direct.*dep`), "income"},
	{regexp.MustCompile(`(?i)electric|gas.*utility|water.*util|xcel|pg&e`), "utilities"},
	{regexp.MustCompile(`(?i)cvs|walgreens|pharmacy|medical|dental|doctor`), "healthcare"},
	{regexp.MustCompile(`(?i)transfer|zelle|venmo|paypal.*transfer`), "transfer"},
	{regexp.MustCompile(`(?i)atm|cash.*advance`), "atm/cash"},
}

// Input is one transaction to categorize.
type Input struct {
	ID          string
	Description string
}

// Categorizer resolves a batch of transactions to categories, in the order
// of §4.5.1: DB cache, then rule table, then an optional LLM pass over
// whatever remains unmatched.
type Categorizer struct {
	merchants *repositories.MerchantRepository
	llm       *LLMClassifier
	log       zerolog.Logger
}

// New creates a new Categorizer. llm may be nil, meaning no LLM fallback is
// configured; unmatched transactions then all resolve to "other".
func New(merchants *repositories.MerchantRepository, llm *LLMClassifier, log zerolog.Logger) *Categorizer {
	return &Categorizer{merchants: merchants, llm: llm, log: log.With().Str("component", "categorizer").Logger()}
}

// Categorize resolves every input to a category, writing each decision back
// to the merchant cache (first decision wins, §4.5.1).
func (c *Categorizer) Categorize(ctx context.Context, txns []Input) map[string]string {
	result := make(map[string]string, len(txns))
	var unmatchedIdx []int
	var unmatchedDesc []string

	for i, txn := range txns {
		merchant := normalizeMerchant(txn.Description)

		if cached, ok, err := c.merchants.CategoryFor(ctx, merchant); err != nil {
			c.log.Warn().Err(err).Str("merchant", merchant).Msg("merchant category lookup failed")
		} else if ok {
			result[txn.ID] = cached
			continue
		}

		if category, matched := matchRule(txn.Description); matched {
			result[txn.ID] = category
			c.record(ctx, merchant, category, "rule")
			continue
		}

		unmatchedIdx = append(unmatchedIdx, i)
		unmatchedDesc = append(unmatchedDesc, txn.Description)
	}

	if len(unmatchedIdx) == 0 {
		return result
	}

	categories, err := c.classifyWithLLM(ctx, unmatchedDesc)
	for n, idx := range unmatchedIdx {
		txn := txns[idx]
		merchant := normalizeMerchant(txn.Description)
		category := "other"
		if err == nil {
			category = categories[n]
		}
		result[txn.ID] = category
		c.record(ctx, merchant, category, "ai")
	}
	return result
}

func (c *Categorizer) classifyWithLLM(ctx context.Context, descriptions []string) ([]string, error) {
	if c.llm == nil {
		return nil, errNoLLM
	}
	categories, err := c.llm.Classify(ctx, descriptions)
	if err != nil {
		c.log.Warn().Err(err).Int("count", len(descriptions)).Msg("llm classification failed, falling back to other")
		return nil, err
	}
	return categories, nil
}

func (c *Categorizer) record(ctx context.Context, merchant, category, source string) {
	if err := c.merchants.RecordCategory(ctx, merchant, category, source); err != nil {
		c.log.Warn().Err(err).Str("merchant", merchant).Msg("failed to record merchant category")
	}
}

func matchRule(description string) (string, bool) {
	for _, r := range rules {
		if r.pattern.MatchString(description) {
			return r.category, true
		}
	}
	return "", false
}

func coerceCategory(category string) string {
	if vocabularySet[category] {
		return category
	}
	return "other"
}

func normalizeMerchant(description string) string {
	return strings.ToLower(strings.TrimSpace(description))
}

var errNoLLM = noLLMError{}

type noLLMError struct{}

func (noLLMError) Error() string { return "no llm classifier configured" }
