package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNameKey(t *testing.T) {
	tests := []struct {
		a, b  string
		equal bool
	}{
		{"Food", "food", true},
		{"FOOD", " food ", true},
		{"Uncategorized", "UNCATEGORIZED", true},
		{"Food", "Fuel", false},
		{"Straße", "STRASSE", false},
		{"STRASSE", "strasse", true},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.equal, NameKey(tt.a) == NameKey(tt.b))
		})
	}
}

func TestParseCategoryRef(t *testing.T) {
	assert.Equal(t, RefNone, ParseCategoryRef("").Kind)
	assert.True(t, ParseCategoryRef("misc").IsLegacy())
	assert.True(t, ParseCategoryRef("Misc").IsID())
	ref := ParseCategoryRef("cat-1")
	assert.True(t, ref.IsID())
	assert.Equal(t, "cat-1", ref.Value)
}

func TestTransactionPatchApply(t *testing.T) {
	tx := &Transaction{ID: "t1", Vendor: "Shop", Amount: decimal.NewFromInt(5), CategoryID: "a"}
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, TransactionPatch{}.IsEmpty())

	patch := SetCategory("b")
	assert.False(t, patch.IsEmpty())
	patch.Apply(tx, now)

	assert.Equal(t, "b", tx.CategoryID)
	assert.Equal(t, "Shop", tx.Vendor)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, now, tx.UpdatedAt)
}
