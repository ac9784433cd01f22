package models

// Category classifies what kind of promo content a tweet describes.
type Category string

const (
	CategorySpendOffer    Category = "SPEND_OFFER"
	CategoryLifetimeFree  Category = "LIFETIME_FREE"
	CategoryStackingHack  Category = "STACKING_HACK"
	CategoryJoiningBonus  Category = "JOINING_BONUS"
	CategoryTransferBonus Category = "TRANSFER_BONUS"
	CategoryDevaluation   Category = "DEVALUATION"
	CategoryNews          Category = "NEWS"
	CategoryOther         Category = "OTHER"
)

// ActionableCategories are the categories with a field-extraction contract.
var ActionableCategories = []Category{
	CategorySpendOffer,
	CategoryLifetimeFree,
	CategoryStackingHack,
	CategoryJoiningBonus,
	CategoryTransferBonus,
}

// ParseCategory normalizes a raw category string, mapping anything
// unrecognized to OTHER so a sloppy model answer never breaks the pipeline.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategorySpendOffer, CategoryLifetimeFree, CategoryStackingHack,
		CategoryJoiningBonus, CategoryTransferBonus, CategoryDevaluation,
		CategoryNews, CategoryOther:
		return Category(s)
	default:
		return CategoryOther
	}
}

// Actionable reports whether the category has an extraction contract.
func (c Category) Actionable() bool {
	for _, a := range ActionableCategories {
		if c == a {
			return true
		}
	}
	return false
}
