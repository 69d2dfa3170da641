// Package planner decides how a filter set is resolved: paginated by the
// provider store, or through an in-memory candidate set when a trade term
// narrows the providers.
package planner

import (
	"context"
	"slices"
	"strings"

	"findtrades/shared/observability"
	"findtrades/workers/listings/internal/domain"
	"findtrades/workers/listings/internal/trade"
)

// TradeResolver maps a trade term to provider ids.
type TradeResolver interface {
	Resolve(ctx context.Context, term string) (map[string]struct{}, error)
}

// Plan is the resolution strategy for one query.
type Plan struct {
	Strategy domain.Strategy
	// Terms are the free-text terms left for the base query.
	Terms []string
	// TradeTerm is the explicit or sniffed trade term, if any.
	TradeTerm string
	Sniffed   bool
	// CandidateIDs are the providers matching TradeTerm, sorted.
	CandidateIDs []string
	// NoSuchTrade is set when an explicit trade term matched no trade.
	NoSuchTrade bool
}

// Planner builds Plans.
type Planner struct {
	resolver TradeResolver
	sniffer  trade.Sniffer
	logger   observability.Logger
}

// New creates a Planner. A nil sniffer disables trade sniffing.
func New(resolver TradeResolver, sniffer trade.Sniffer, provider observability.Provider) *Planner {
	return &Planner{
		resolver: resolver,
		sniffer:  sniffer,
		logger:   provider.Logger("planner"),
	}
}

// Plan chooses the strategy for normalized filters.
func (p *Planner) Plan(ctx context.Context, filters domain.FilterSet) (Plan, error) {
	plan := Plan{
		Strategy:  domain.StorePaginated,
		Terms:     strings.Fields(filters.Query),
		TradeTerm: filters.Trade,
	}

	if plan.TradeTerm == "" && p.sniffer != nil {
		if s, ok := p.sniffer.Sniff(filters.Query); ok {
			plan.TradeTerm = s.Trade
			plan.Terms = strings.Fields(s.Remaining)
			plan.Sniffed = true
		}
	}

	if plan.TradeTerm == "" {
		return plan, nil
	}

	providers, err := p.resolver.Resolve(ctx, plan.TradeTerm)
	if err != nil {
		return Plan{}, err
	}

	if len(providers) == 0 {
		if plan.Sniffed {
			// the sniffed word is ordinary text after all
			p.logger.Debug(ctx, "Sniffed trade matched nothing", observability.Fields{
				"trade_term": plan.TradeTerm,
			})
			return Plan{Strategy: domain.StorePaginated, Terms: strings.Fields(filters.Query)}, nil
		}
		plan.Strategy = domain.CandidateSetPaginated
		plan.NoSuchTrade = true
		return plan, nil
	}

	plan.Strategy = domain.CandidateSetPaginated
	plan.CandidateIDs = make([]string, 0, len(providers))
	for id := range providers {
		plan.CandidateIDs = append(plan.CandidateIDs, id)
	}
	slices.Sort(plan.CandidateIDs)

	p.logger.Debug(ctx, "Planned candidate set query", observability.Fields{
		"trade_term": plan.TradeTerm,
		"sniffed":    plan.Sniffed,
		"candidates": len(plan.CandidateIDs),
	})
	return plan, nil
}
