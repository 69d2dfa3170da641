package domain

import (
	"cmp"
	"strings"
)

// SortKey selects the listing order.
type SortKey string

const (
	SortRating SortKey = "rating"
	SortName   SortKey = "name"
)

// Valid reports whether k is a known sort key. The empty key means SortRating.
func (k SortKey) Valid() bool {
	switch k {
	case "", SortRating, SortName:
		return true
	}
	return false
}

// Compare orders a before b under key: rating descending or name ascending,
// ties broken by provider id ascending.
func (k SortKey) Compare(a, b Provider) int {
	var c int
	switch k {
	case SortName:
		c = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	default:
		c = cmp.Compare(b.Rating, a.Rating)
	}
	if c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// FilterSet is the user supplied search input.
type FilterSet struct {
	Query     string  `json:"query,omitempty"`
	City      string  `json:"city,omitempty"`
	Trade     string  `json:"trade,omitempty"`
	MinRating float64 `json:"min_rating,omitempty"`
	// VerifiedOnly nil means verified providers only.
	VerifiedOnly *bool   `json:"verified_only,omitempty"`
	OnlineOnly   bool    `json:"online_only,omitempty"`
	Sort         SortKey `json:"sort,omitempty"`
	Page         int     `json:"page,omitempty"`
}

// Normalize trims and lowercases the text terms, collapses whitespace and
// clamps the numeric fields.
func (f FilterSet) Normalize() FilterSet {
	f.Query = normalizeTerm(f.Query)
	f.City = normalizeTerm(f.City)
	f.Trade = normalizeTerm(f.Trade)
	f.Sort = SortKey(normalizeTerm(string(f.Sort)))
	if f.Sort == "" {
		f.Sort = SortRating
	}
	f.MinRating = min(max(f.MinRating, 0), 5)
	f.Page = max(f.Page, 0)
	return f
}

// Validate rejects filter sets the engine cannot run.
func (f FilterSet) Validate() error {
	if !SortKey(normalizeTerm(string(f.Sort))).Valid() {
		return InvalidFilter("unknown sort key "+string(f.Sort), nil)
	}
	return nil
}

// RequireVerified reports whether unverified providers are excluded.
func (f FilterSet) RequireVerified() bool {
	return f.VerifiedOnly == nil || *f.VerifiedOnly
}

func normalizeTerm(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ProviderQuery is the base predicate query run against the provider store.
type ProviderQuery struct {
	RequireVerified bool
	MinRating       float64
	OnlineOnly      bool
	City            string
	// Terms must each appear in the name, bio or address.
	Terms []string
	// IncludeIDs restricts the result when non-nil.
	IncludeIDs []string
	ExcludeIDs []string
	Sort       SortKey
	Offset     int
	Limit      int
}

// NewProviderQuery builds the base query for normalized filters and free
// text terms.
func NewProviderQuery(f FilterSet, terms []string) ProviderQuery {
	return ProviderQuery{
		RequireVerified: f.RequireVerified(),
		MinRating:       f.MinRating,
		OnlineOnly:      f.OnlineOnly,
		City:            f.City,
		Terms:           terms,
		Sort:            f.Sort,
	}
}
