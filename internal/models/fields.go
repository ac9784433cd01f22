package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldSet is the typed, category-shaped extraction result. Each actionable
// category has its own flat variant; confidence lives in the parallel
// FieldConfidence map on the PendingRecord, never nested inside the fields.
type FieldSet interface {
	Category() Category
	// Title is the explicit title field, empty when the contract has none.
	Title() string
	// Headline is the category-specific fallback title (card name, stack
	// title, "X to Y Transfer", ...).
	Headline() string
	Detail() string
	Excerpt() string
	Bank() string
	Expiry() string
}

// SpendOfferFields is the contract for merchant/spend-linked card offers.
type SpendOfferFields struct {
	OfferTitle       string `json:"offer_title"`
	ShortDescription string `json:"short_description"`
	ValueBackAmount  string `json:"value_back_amount"`
	ValueBackUnit    string `json:"value_back_unit"`
	ValueBackColor   string `json:"value_back_color"`
	SEOTitle         string `json:"seo_title"`
	ExcerptText      string `json:"excerpt"`
	DetailContent    string `json:"detail_content"`
	BankName         string `json:"bank_name"`
	ExpiryDate       string `json:"expiry_date"`
	ExternalLink     string `json:"external_link"`
}

func (f *SpendOfferFields) Category() Category { return CategorySpendOffer }
func (f *SpendOfferFields) Title() string      { return f.OfferTitle }
func (f *SpendOfferFields) Headline() string   { return f.OfferTitle }
func (f *SpendOfferFields) Detail() string     { return f.DetailContent }
func (f *SpendOfferFields) Excerpt() string    { return f.ExcerptText }
func (f *SpendOfferFields) Bank() string       { return f.BankName }
func (f *SpendOfferFields) Expiry() string     { return f.ExpiryDate }

// LifetimeFreeFields covers no-annual-fee card announcements.
type LifetimeFreeFields struct {
	CardName         string `json:"card_name"`
	ShortDescription string `json:"short_description"`
	FeeWaiverTerms   string `json:"fee_waiver_terms"`
	SEOTitle         string `json:"seo_title"`
	ExcerptText      string `json:"excerpt"`
	DetailContent    string `json:"detail_content"`
	BankName         string `json:"bank_name"`
	ExpiryDate       string `json:"expiry_date"`
	ExternalLink     string `json:"external_link"`
}

func (f *LifetimeFreeFields) Category() Category { return CategoryLifetimeFree }
func (f *LifetimeFreeFields) Title() string      { return "" }
func (f *LifetimeFreeFields) Headline() string   { return f.CardName }
func (f *LifetimeFreeFields) Detail() string     { return f.DetailContent }
func (f *LifetimeFreeFields) Excerpt() string    { return f.ExcerptText }
func (f *LifetimeFreeFields) Bank() string       { return f.BankName }
func (f *LifetimeFreeFields) Expiry() string     { return f.ExpiryDate }

// StackingHackFields covers multi-instrument reward stacking writeups.
type StackingHackFields struct {
	StackTitle       string `json:"stack_title"`
	ShortDescription string `json:"short_description"`
	StepsText        string `json:"steps_text"`
	TotalValue       string `json:"total_value"`
	SEOTitle         string `json:"seo_title"`
	ExcerptText      string `json:"excerpt"`
	DetailContent    string `json:"detail_content"`
	BankName         string `json:"bank_name"`
	ExpiryDate       string `json:"expiry_date"`
	ExternalLink     string `json:"external_link"`
}

func (f *StackingHackFields) Category() Category { return CategoryStackingHack }
func (f *StackingHackFields) Title() string      { return "" }
func (f *StackingHackFields) Headline() string   { return f.StackTitle }
func (f *StackingHackFields) Detail() string     { return f.DetailContent }
func (f *StackingHackFields) Excerpt() string    { return f.ExcerptText }
func (f *StackingHackFields) Bank() string       { return f.BankName }
func (f *StackingHackFields) Expiry() string     { return f.ExpiryDate }

// JoiningBonusFields covers signup/joining bonus offers.
type JoiningBonusFields struct {
	CardName         string `json:"card_name"`
	BonusValue       string `json:"bonus_value"`
	BonusUnit        string `json:"bonus_unit"`
	SpendRequirement string `json:"spend_requirement"`
	SEOTitle         string `json:"seo_title"`
	ExcerptText      string `json:"excerpt"`
	DetailContent    string `json:"detail_content"`
	BankName         string `json:"bank_name"`
	ExpiryDate       string `json:"expiry_date"`
	ExternalLink     string `json:"external_link"`
}

func (f *JoiningBonusFields) Category() Category { return CategoryJoiningBonus }
func (f *JoiningBonusFields) Title() string      { return "" }
func (f *JoiningBonusFields) Headline() string   { return f.CardName }
func (f *JoiningBonusFields) Detail() string     { return f.DetailContent }
func (f *JoiningBonusFields) Excerpt() string    { return f.ExcerptText }
func (f *JoiningBonusFields) Bank() string       { return f.BankName }
func (f *JoiningBonusFields) Expiry() string     { return f.ExpiryDate }

// TransferBonusFields covers points-transfer bonus promotions.
type TransferBonusFields struct {
	SourceProgram      string `json:"source_program"`
	DestinationProgram string `json:"destination_program"`
	BonusPercent       string `json:"bonus_percent"`
	SEOTitle           string `json:"seo_title"`
	ExcerptText        string `json:"excerpt"`
	DetailContent      string `json:"detail_content"`
	BankName           string `json:"bank_name"`
	ExpiryDate         string `json:"expiry_date"`
	ExternalLink       string `json:"external_link"`
}

func (f *TransferBonusFields) Category() Category { return CategoryTransferBonus }
func (f *TransferBonusFields) Title() string      { return "" }

func (f *TransferBonusFields) Headline() string {
	if f.SourceProgram == "" || f.DestinationProgram == "" {
		return ""
	}
	return fmt.Sprintf("%s to %s Transfer", f.SourceProgram, f.DestinationProgram)
}

func (f *TransferBonusFields) Detail() string  { return f.DetailContent }
func (f *TransferBonusFields) Excerpt() string { return f.ExcerptText }
func (f *TransferBonusFields) Bank() string    { return f.BankName }
func (f *TransferBonusFields) Expiry() string  { return f.ExpiryDate }

// OtherFields is the minimal shape used for non-actionable categories and
// for the manual-entry fallback: the raw tweet text survives as the detail
// body.
type OtherFields struct {
	DetailContent string `json:"detail_content"`
	BankName      string `json:"bank_name"`
	ExternalLink  string `json:"external_link"`
}

func (f *OtherFields) Category() Category { return CategoryOther }
func (f *OtherFields) Title() string      { return "" }
func (f *OtherFields) Headline() string   { return "" }
func (f *OtherFields) Detail() string     { return f.DetailContent }
func (f *OtherFields) Excerpt() string    { return "" }
func (f *OtherFields) Bank() string       { return f.BankName }
func (f *OtherFields) Expiry() string     { return "" }

// NewFieldSet returns the empty variant for a category. Non-actionable
// categories share the OtherFields shape.
func NewFieldSet(cat Category) FieldSet {
	switch cat {
	case CategorySpendOffer:
		return &SpendOfferFields{}
	case CategoryLifetimeFree:
		return &LifetimeFreeFields{}
	case CategoryStackingHack:
		return &StackingHackFields{}
	case CategoryJoiningBonus:
		return &JoiningBonusFields{}
	case CategoryTransferBonus:
		return &TransferBonusFields{}
	default:
		return &OtherFields{}
	}
}

// DecodeFields parses a flat JSON field bag into the typed variant for cat.
func DecodeFields(cat Category, raw json.RawMessage) (FieldSet, error) {
	fs := NewFieldSet(cat)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty field bag for category %s", cat)
	}
	if err := json.Unmarshal(raw, fs); err != nil {
		return nil, fmt.Errorf("decode %s fields: %w", cat, err)
	}
	return fs, nil
}

// EncodeFields serializes a field set back to its flat JSON form.
func EncodeFields(fs FieldSet) (json.RawMessage, error) {
	raw, err := json.Marshal(fs)
	if err != nil {
		return nil, fmt.Errorf("encode %s fields: %w", fs.Category(), err)
	}
	return raw, nil
}

// Truncate shortens s to max runes, appending an ellipsis when it cuts.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}
