package model

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CategoryType tags a category as an expense or income bucket.
type CategoryType string

const (
	CategoryTypeExpense CategoryType = "expense"
	CategoryTypeIncome  CategoryType = "income"
)

// Well-known category names used by reconciliation.
const (
	UncategorizedName  = "Uncategorized"
	UncategorizedColor = "#9E9E9E"
	MiscName           = "Misc"
)

// Category is a user-owned bucket that transactions reference by id.
// Names are expected to be unique per owner ignoring case, but legacy data
// may contain duplicates.
type Category struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"ownerId"`
	Name      string       `json:"name"`
	Type      CategoryType `json:"type"`
	Color     string       `json:"color,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// NameKey returns the comparison key for a category name: trimmed and
// lower-cased, so "Food", " food " and "FOOD" share one key. It does not
// fold, so "Straße" and "STRASSE" stay distinct.
func NameKey(name string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(name))
}

// Key is the NameKey of the category's name.
func (c *Category) Key() string {
	return NameKey(c.Name)
}
