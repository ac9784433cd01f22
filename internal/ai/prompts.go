package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/offerwire/promofeed/internal/models"
)

const relevancePrompt = `You are a classifier for an Indian credit-card and banking deals site.

Decide whether the tweet below is about credit-card or banking promotions:
card offers, cashback or reward promotions, lifetime-free cards, joining
bonuses, points transfer bonuses, reward devaluations, or card/banking
product news. Personal rants, customer-service complaints, politics, and
unrelated finance chatter are NOT relevant.

Respond with a single JSON object, nothing else:
{"is_relevant": true|false, "confidence": 0-100, "reason": "one sentence"}

Be strict with confidence: 90+ only when the promo intent is unmistakable.`

const categoryPrompt = `You are a classifier for an Indian credit-card and banking deals site.
The tweet below has already been judged relevant. Assign exactly one category:

- SPEND_OFFER: merchant or spend-linked cashback/discount offer on a card
- LIFETIME_FREE: a card being offered lifetime free / fee waived forever
- STACKING_HACK: combining multiple cards/wallets/gift cards for outsized value
- JOINING_BONUS: signup or joining bonus for taking a card
- TRANSFER_BONUS: bonus on transferring points between reward programs
- DEVALUATION: a program or card getting worse (rates cut, fees added)
- NEWS: launches, partnerships, rule changes without a direct offer
- OTHER: relevant but none of the above

Respond with a single JSON object, nothing else:
{"category": "SPEND_OFFER", "confidence": 0-100}`

// extractionContracts describes, per actionable category, the exact flat
// field set the model must fill. Keys here must match the json tags of the
// corresponding models.FieldSet variant.
var extractionContracts = map[models.Category]string{
	models.CategorySpendOffer: `
- offer_title: short punchy offer title
- short_description: 1-2 sentence description
- value_back_amount: numeric value of the benefit (e.g. "10", "500")
- value_back_unit: "%" | "flat" | "points"
- value_back_color: "green" for strong value, "amber" for moderate, "red" for weak
- seo_title: search-friendly title, max 60 chars
- excerpt: max 160 char summary
- detail_content: full markdown writeup of the offer
- bank_name: issuing bank as written in the tweet, empty if absent
- expiry_date: YYYY-MM-DD if stated, else empty
- external_link: offer URL if present, else empty`,
	models.CategoryLifetimeFree: `
- card_name: the card being offered lifetime free
- short_description: 1-2 sentence description
- fee_waiver_terms: conditions on the waiver, empty if unconditional
- seo_title: search-friendly title, max 60 chars
- excerpt: max 160 char summary
- detail_content: full markdown writeup
- bank_name: issuing bank as written in the tweet, empty if absent
- expiry_date: YYYY-MM-DD if stated, else empty
- external_link: application URL if present, else empty`,
	models.CategoryStackingHack: `
- stack_title: short name for the stack
- short_description: 1-2 sentence description
- steps_text: numbered steps of the stack, one per line
- total_value: estimated total value of the stack
- seo_title: search-friendly title, max 60 chars
- excerpt: max 160 char summary
- detail_content: full markdown writeup
- bank_name: primary bank involved, empty if none
- expiry_date: YYYY-MM-DD if stated, else empty
- external_link: URL if present, else empty`,
	models.CategoryJoiningBonus: `
- card_name: the card carrying the bonus
- bonus_value: numeric bonus value (e.g. "5000")
- bonus_unit: "points" | "miles" | "cashback"
- spend_requirement: spend condition to unlock, empty if none
- seo_title: search-friendly title, max 60 chars
- excerpt: max 160 char summary
- detail_content: full markdown writeup
- bank_name: issuing bank as written in the tweet, empty if absent
- expiry_date: YYYY-MM-DD if stated, else empty
- external_link: application URL if present, else empty`,
	models.CategoryTransferBonus: `
- source_program: reward program the points leave
- destination_program: program the points land in
- bonus_percent: bonus percentage (e.g. "25")
- seo_title: search-friendly title, max 60 chars
- excerpt: max 160 char summary
- detail_content: full markdown writeup
- bank_name: bank running the promotion, empty if absent
- expiry_date: YYYY-MM-DD if stated, else empty
- external_link: URL if present, else empty`,
}

const extractionPromptHeader = `You are a data extractor for an Indian credit-card deals site.
Extract the fields below from the tweet. Fields must be FLAT string values;
never nest objects and never wrap a value with its confidence.

Fields:%s

Respond with a single JSON object, nothing else:
{
  "fields": { <field_key>: <string value>, ... },
  "field_confidence": { <field_key>: 0-100, ... },
  "confidence": 0-100
}

Rules:
- Every field key must appear in "fields", empty string when absent.
- "field_confidence" scores how certain each value is; 0 for empty fields.
- "confidence" is your overall extraction confidence. Be strict: tweets are
  short and ambiguous, reserve 90+ for fully explicit offers.`

func buildExtractionPrompt(cat models.Category) string {
	return fmt.Sprintf(extractionPromptHeader, extractionContracts[cat])
}

// postContent renders the tweet as the user part of a prompt.
func postContent(post models.SourcePost) string {
	var b strings.Builder
	b.WriteString("Tweet:\n")
	b.WriteString(post.Text)
	b.WriteString("\n\nAuthor: @")
	b.WriteString(post.AuthorHandle)
	if post.AuthorName != "" {
		b.WriteString(" (" + post.AuthorName + ")")
	}
	if !post.PostedAt.IsZero() {
		b.WriteString("\nPosted: " + post.PostedAt.Format(time.RFC3339))
	}
	return b.String()
}
