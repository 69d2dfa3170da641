// Package domain holds the listing records passed between resolution stages,
// the store ports and the errors the engine reports.
package domain

import (
	"fmt"
	"strings"
)

// Provider is a provider profile as read from the profiles store.
type Provider struct {
	ID         string  `db:"id" json:"id"`
	Name       string  `db:"full_name" json:"name"`
	AvatarURL  string  `db:"avatar_url" json:"avatar_url,omitempty"`
	Address    string  `db:"address" json:"address,omitempty"`
	Bio        string  `db:"bio" json:"bio,omitempty"`
	Rating     float64 `db:"rating" json:"rating"`
	Verified   bool    `db:"is_verified" json:"verified"`
	Online     bool    `db:"is_online" json:"online"`
	ContactRef string  `db:"phone" json:"contact_ref,omitempty"`
}

// Trade is an entry of the trade taxonomy.
type Trade struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Category string `db:"category" json:"category,omitempty"`
}

// TradeAssociation lists the trades a provider works in.
type TradeAssociation struct {
	ProviderID string
	TradeIDs   []int64
}

// Subscription is a provider's plan. Only active subscriptions grant a tier.
type Subscription struct {
	ProviderID string
	Tier       Tier
	Active     bool
}

// Tier is the subscription level used for ranking. Higher values rank first.
type Tier int

const (
	TierNone Tier = iota
	TierPro
	TierEnterprise
)

// TopTier is the tier promoted to the front of the first page.
const TopTier = TierEnterprise

// ParseTier maps a plan name onto a Tier. Unknown plans have no tier.
func ParseTier(plan string) Tier {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case "pro":
		return TierPro
	case "enterprise":
		return TierEnterprise
	default:
		return TierNone
	}
}

func (t Tier) String() string {
	switch t {
	case TierPro:
		return "pro"
	case TierEnterprise:
		return "enterprise"
	default:
		return "none"
	}
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(text []byte) error {
	switch s := string(text); s {
	case "none", "":
		*t = TierNone
	case "pro", "enterprise":
		*t = ParseTier(s)
	default:
		return fmt.Errorf("unknown tier %q", s)
	}
	return nil
}

// Listing is a provider enriched with resolved trade names and tier.
type Listing struct {
	Provider
	Trades []string `json:"trades"`
	Tier   Tier     `json:"tier"`
}

// NewListing maps a provider onto a listing. A nil trade list becomes empty.
func NewListing(p Provider, trades []string, tier Tier) Listing {
	if trades == nil {
		trades = []string{}
	}
	return Listing{Provider: p, Trades: trades, Tier: tier}
}

// Strategy names the pagination approach a query was resolved with.
type Strategy string

const (
	// StorePaginated lets the store apply offset and limit.
	StorePaginated Strategy = "store_paginated"
	// CandidateSetPaginated fetches a bounded id set and paginates in memory.
	CandidateSetPaginated Strategy = "candidate_set_paginated"
)

// Page is one page of resolved listings.
type Page struct {
	Listings []Listing `json:"listings"`
	HasMore  bool      `json:"has_more"`
	Page     int       `json:"page"`
	Strategy Strategy  `json:"strategy"`
	Degraded bool      `json:"degraded,omitempty"`
}

// IDs returns the provider ids of listings in order.
func IDs(listings []Listing) []string {
	ids := make([]string, len(listings))
	for i, l := range listings {
		ids[i] = l.ID
	}
	return ids
}
