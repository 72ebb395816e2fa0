// Package validator reviews draft replies before they reach the
// customer.
//
// Tier one is a cheap deterministic rule scan over the customer
// message and the draft. Tier two is a model repair call carrying the
// found issues; it only runs when the scan flags something or the
// draft is long. Repair is best effort: if the repair backend fails,
// the original draft ships.
package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/chatclerk/chatclerk/internal/config"
	"github.com/chatclerk/chatclerk/pkg/contracts"
	"github.com/chatclerk/chatclerk/pkg/models"
)

// Rule keyword sets. Matching is case-insensitive substring, same
// coarse granularity the sales team tuned against real transcripts.
var (
	// affirmatives are short "yes, go on" customer turns that invite a
	// fuller answer, so the scan stands down for them.
	affirmatives = []string{
		"yes", "sure", "ok", "okay", "yeah", "yep",
		"tell me", "go on", "interested", "sounds good", "i want to hear",
	}

	buyIntents = []string{
		"buy", "order", "purchase", "i'll take", "ill take",
		"how do i pay", "checkout", "i want it",
	}
	paymentQuestions = []string{
		"how would you like to pay", "how do you want to pay",
		"payment method", "credit or cash", "cash or credit",
	}

	priceQuestions = []string{
		"price", "how much", "cost",
	}
	priceMarkers = []string{
		"₪", "nis", "ils", "$", "usd", "eur",
	}

	explainerPhrases = []string{
		"works by", "is designed to", "is based on", "contains",
		"is made of", "the way it works",
	}
	explainerQuestions = []string{
		"what is", "what's", "how does", "why", "tell me about", "explain",
	}

	deliveryTimes = []string{
		"24 hours", "within a day", "next day", "1-2 days", "2-3 days",
		"two days", "three days", "48 hours", "within a week", "business days",
	}

	promoMarkers = []string{
		"1+1", "2+2", "special offer", "discount", "promotion",
		"% off", "free gift", "giveaway", "on sale",
	}
)

// maxAffirmativeLen bounds the stand-down: only genuinely short turns
// like "yes" or "sure, tell me" count, not sentences that happen to
// contain "ok".
const maxAffirmativeLen = 20

// Validator is the two-tier draft reviewer.
type Validator struct {
	repair contracts.Backend
	cfg    config.ValidatorConfig
}

func New(repair contracts.Backend, cfg config.ValidatorConfig) *Validator {
	return &Validator{repair: repair, cfg: cfg}
}

// Scan runs the tier-one rule battery and returns the issues found,
// empty when the draft is clean or the customer invited detail.
func (v *Validator) Scan(customerMessage, draft string) []string {
	msg := strings.ToLower(customerMessage)
	resp := strings.ToLower(draft)

	if len(msg) < maxAffirmativeLen && containsAny(msg, affirmatives) {
		return nil
	}

	var issues []string

	wantsToBuy := containsAny(msg, buyIntents)
	if containsAny(resp, paymentQuestions) && !wantsToBuy {
		issues = append(issues, "asks about payment although the customer did not ask to buy")
	}

	if containsAny(resp, priceMarkers) && !containsAny(msg, priceQuestions) && !wantsToBuy {
		issues = append(issues, "quotes a price the customer did not ask for")
	}

	if containsAny(resp, explainerPhrases) && !containsAny(msg, explainerQuestions) {
		issues = append(issues, "explains the product although the customer did not ask how it works")
	}

	if containsAny(resp, deliveryTimes) {
		issues = append(issues, "invents delivery times")
	}

	if containsAny(resp, promoMarkers) {
		issues = append(issues, "invents a promotion or discount")
	}

	if n := wordCount(draft); n > v.cfg.MaxWords {
		issues = append(issues, fmt.Sprintf("reply too long (%d words)", n))
	}

	return issues
}

// Review validates one draft and returns the text to send. Short,
// clean drafts release immediately without a model call.
func (v *Validator) Review(ctx context.Context, customerMessage, draft string) string {
	issues := v.Scan(customerMessage, draft)

	if wordCount(draft) < v.cfg.SkipWords && lineCount(draft) <= v.cfg.SkipLines && len(issues) == 0 {
		return draft
	}

	if len(issues) > 0 {
		log.Info().Strs("issues", issues).Msg("Draft flagged for repair")
	}

	fixed, err := v.repairDraft(ctx, customerMessage, draft, issues)
	if err != nil {
		log.Warn().Err(err).Msg("Draft repair failed, releasing original")
		return draft
	}
	return fixed
}

func (v *Validator) repairDraft(ctx context.Context, customerMessage, draft string, issues []string) (string, error) {
	var hint strings.Builder
	if len(issues) > 0 {
		hint.WriteString("\nDetected issues, fix all of them:\n")
		for _, issue := range issues {
			hint.WriteString("- ")
			hint.WriteString(issue)
			hint.WriteString("\n")
		}
	}

	prompt := fmt.Sprintf(`Customer message:
%q

Draft reply:
%q
%s
Review the draft and fix it if needed:
1. Shorten to 2-3 sentences at most.
2. Remove payment questions unless the customer asked to buy.
3. Remove prices the customer did not ask for.
4. Remove explanations the customer did not ask for.
5. Remove any invented delivery times, promotions, or discounts.
6. Plain text, no markdown.

Return only the fixed reply, with no commentary.`, customerMessage, draft, hint.String())

	resp, err := v.repair.Generate(ctx, &models.GenerateRequest{
		System:  repairSystemPrompt,
		Message: prompt,
	})
	if err != nil {
		return "", err
	}

	fixed := strings.NewReplacer("**", "", "###", "", "##", "", "#", "").Replace(resp.Text)
	fixed = strings.TrimSpace(fixed)
	if fixed == "" {
		return "", fmt.Errorf("repair produced an empty reply")
	}
	return fixed, nil
}

const repairSystemPrompt = `You are a quality reviewer for a shop's chat sales assistant. You receive a customer message and the assistant's draft reply. Your job is to return a version of the draft that follows the shop's reply rules: short, answers only what was asked, no invented prices, delivery times, or promotions, plain text. Return only the reply text.`

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func lineCount(s string) int {
	n := 0
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
