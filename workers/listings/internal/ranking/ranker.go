// Package ranking orders listings and applies the first-page tier block.
package ranking

import (
	"math"
	"slices"

	"findtrades/workers/listings/internal/domain"
)

// Ranker orders listings. Listings at or above TopTier are promoted on the
// first page.
type Ranker struct {
	TopTier domain.Tier
}

// New creates a Ranker promoting domain.TopTier.
func New() *Ranker {
	return &Ranker{TopTier: domain.TopTier}
}

// Sort orders listings in place by key with ties broken by provider id.
func (r *Ranker) Sort(listings []domain.Listing, key domain.SortKey) {
	slices.SortStableFunc(listings, func(a, b domain.Listing) int {
		return key.Compare(a.Provider, b.Provider)
	})
}

// Rank returns listings in display order for page. Page 0 applies
// FirstPageTierBlock; later pages are in plain sort order.
func (r *Ranker) Rank(listings []domain.Listing, page int, key domain.SortKey) []domain.Listing {
	out := slices.Clone(listings)
	r.Sort(out, key)
	if page == 0 {
		return FirstPageTierBlock(out, r.TopTier)
	}
	return out
}

// FirstPageTierBlock moves listings at or above top to the front as one
// block. Both the block and the remainder keep their relative order.
func FirstPageTierBlock(sorted []domain.Listing, top domain.Tier) []domain.Listing {
	out := make([]domain.Listing, 0, len(sorted))
	for _, l := range sorted {
		if l.Tier >= top {
			out = append(out, l)
		}
	}
	for _, l := range sorted {
		if l.Tier < top {
			out = append(out, l)
		}
	}
	return out
}

// SelectPage paginates a complete candidate set in memory. The block is
// the first pageSize top-tier candidates in sort order. Page 0 is the block
// followed by the head of the remaining candidates; page n continues the
// remainder at offset (pageSize-len(block)) + (n-1)*pageSize.
func (r *Ranker) SelectPage(candidates []domain.Listing, page, pageSize int, key domain.SortKey) ([]domain.Listing, bool) {
	if pageSize <= 0 || page < 0 {
		return []domain.Listing{}, false
	}

	sorted := slices.Clone(candidates)
	r.Sort(sorted, key)

	block := make([]domain.Listing, 0, pageSize)
	rest := make([]domain.Listing, 0, len(sorted))
	for _, l := range sorted {
		if l.Tier >= r.TopTier && len(block) < pageSize {
			block = append(block, l)
		} else {
			rest = append(rest, l)
		}
	}

	fill := pageSize - len(block)
	if page == 0 {
		n := min(fill, len(rest))
		return append(block, rest[:n]...), len(rest) > fill
	}

	offset, ok := Offset(page, fill, pageSize)
	if !ok || offset >= len(rest) {
		return []domain.Listing{}, false
	}
	end := min(offset+pageSize, len(rest))
	return slices.Clone(rest[offset:end]), len(rest) > end
}

// Offset returns where page n, n >= 1, starts in the rows that follow the
// fill rows of page 0. ok is false when the offset does not fit in an int.
func Offset(page, fill, pageSize int) (int, bool) {
	if page < 1 || pageSize <= 0 || fill < 0 {
		return 0, false
	}
	if page-1 > (math.MaxInt-fill)/pageSize {
		return 0, false
	}
	return fill + (page-1)*pageSize, true
}
