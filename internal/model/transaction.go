package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LegacyMiscRef is the literal stored in place of a category id by older
// clients. It is not a real id.
const LegacyMiscRef = "misc"

// Transaction is a single spending record. Amount is always positive.
type Transaction struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	Vendor      string          `json:"vendor"`
	Description string          `json:"description,omitempty"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	CategoryID  string          `json:"categoryId,omitempty"`
	PaymentType string          `json:"paymentType,omitempty"`
	ReceiptID   string          `json:"receiptId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// CategoryRef classifies the transaction's stored category reference.
func (t *Transaction) CategoryRef() CategoryRef {
	return ParseCategoryRef(t.CategoryID)
}

// TransactionPatch is a partial update. Nil fields are left unchanged.
type TransactionPatch struct {
	CategoryID  *string
	Amount      *decimal.Decimal
	Vendor      *string
	PaymentType *string
}

// IsEmpty reports whether the patch changes nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.CategoryID == nil && p.Amount == nil && p.Vendor == nil && p.PaymentType == nil
}

// Apply writes the non-nil fields of p onto t and bumps UpdatedAt.
func (p TransactionPatch) Apply(t *Transaction, now time.Time) {
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Vendor != nil {
		t.Vendor = *p.Vendor
	}
	if p.PaymentType != nil {
		t.PaymentType = *p.PaymentType
	}
	t.UpdatedAt = now
}

// SetCategory returns a patch that only moves a transaction to categoryID.
func SetCategory(categoryID string) TransactionPatch {
	return TransactionPatch{CategoryID: &categoryID}
}

// RefKind distinguishes the shapes a stored category reference can take.
type RefKind int

const (
	// RefNone means the transaction has no category.
	RefNone RefKind = iota
	// RefID is an opaque category id; it may or may not resolve.
	RefID
	// RefLegacy is the "misc" sentinel written by old clients.
	RefLegacy
)

func (k RefKind) String() string {
	switch k {
	case RefID:
		return "id"
	case RefLegacy:
		return "legacy"
	default:
		return "none"
	}
}

// CategoryRef is a parsed category reference.
type CategoryRef struct {
	Kind  RefKind
	Value string
}

// ParseCategoryRef classifies a raw stored category reference.
func ParseCategoryRef(raw string) CategoryRef {
	switch raw {
	case "":
		return CategoryRef{Kind: RefNone}
	case LegacyMiscRef:
		return CategoryRef{Kind: RefLegacy, Value: raw}
	default:
		return CategoryRef{Kind: RefID, Value: raw}
	}
}

// IsID reports whether the reference is a real (possibly dangling) id.
func (r CategoryRef) IsID() bool { return r.Kind == RefID }

// IsLegacy reports whether the reference is the legacy sentinel.
func (r CategoryRef) IsLegacy() bool { return r.Kind == RefLegacy }
