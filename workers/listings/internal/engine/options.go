package engine

import (
	"time"

	"findtrades/shared/config"
	"findtrades/shared/observability"
	"findtrades/workers/listings/internal/cache"
	"findtrades/workers/listings/internal/domain"
	"findtrades/workers/listings/internal/trade"
)

// Deps are the collaborators an Engine needs. Sniffer is optional.
type Deps struct {
	Providers     domain.ProviderStore
	Trades        domain.TradeStore
	Associations  domain.AssociationStore
	Subscriptions domain.SubscriptionStore
	Cache         *cache.Cache
	Observability observability.Provider
	Sniffer       trade.Sniffer
}

func (d Deps) validate() error {
	switch {
	case d.Providers == nil:
		return domain.ConfigurationMissing("provider store")
	case d.Trades == nil:
		return domain.ConfigurationMissing("trade store")
	case d.Associations == nil:
		return domain.ConfigurationMissing("association store")
	case d.Subscriptions == nil:
		return domain.ConfigurationMissing("subscription store")
	case d.Cache == nil:
		return domain.ConfigurationMissing("reference cache")
	case d.Observability == nil:
		return domain.ConfigurationMissing("observability provider")
	}
	return nil
}

// Options are the engine tunables.
type Options struct {
	PageSize          int
	MaxIDsPerQuery    int
	MaxInFlight       int
	CandidateCap      int
	TradeMatchCap     int
	TaxonomyTTL       time.Duration
	EnrichmentTimeout time.Duration
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultListingsConfig())
}

// OptionsFromConfig maps the listings configuration section.
func OptionsFromConfig(cfg config.ListingsConfig) Options {
	return Options{
		PageSize:          cfg.PageSize,
		MaxIDsPerQuery:    cfg.MaxIDsPerQuery,
		MaxInFlight:       cfg.MaxInFlight,
		CandidateCap:      cfg.CandidateCap,
		TradeMatchCap:     cfg.TradeMatchCap,
		TaxonomyTTL:       cfg.TaxonomyTTL,
		EnrichmentTimeout: cfg.EnrichmentTimeout,
	}
}

// withDefaults fills unset tunables.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PageSize <= 0 {
		o.PageSize = d.PageSize
	}
	if o.MaxIDsPerQuery <= 0 {
		o.MaxIDsPerQuery = d.MaxIDsPerQuery
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = d.MaxInFlight
	}
	if o.CandidateCap <= 0 {
		o.CandidateCap = d.CandidateCap
	}
	if o.TradeMatchCap <= 0 {
		o.TradeMatchCap = d.TradeMatchCap
	}
	if o.TaxonomyTTL <= 0 {
		o.TaxonomyTTL = d.TaxonomyTTL
	}
	if o.EnrichmentTimeout <= 0 {
		o.EnrichmentTimeout = d.EnrichmentTimeout
	}
	return o
}
