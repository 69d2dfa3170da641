package domain

import "context"

// ProviderStore runs base predicate queries over provider profiles.
type ProviderStore interface {
	Search(ctx context.Context, q ProviderQuery) ([]Provider, error)
}

// TradeStore reads the trade taxonomy.
type TradeStore interface {
	ListAll(ctx context.Context) ([]Trade, error)
	FindByIDs(ctx context.Context, ids []int64) ([]Trade, error)
	SearchByName(ctx context.Context, term string, limit int) ([]Trade, error)
}

// AssociationStore reads provider to trade associations.
type AssociationStore interface {
	FindByProviderIDs(ctx context.Context, providerIDs []string) ([]TradeAssociation, error)
	ProvidersWithAnyTrade(ctx context.Context, tradeIDs []int64) ([]string, error)
}

// SubscriptionStore reads active subscriptions.
type SubscriptionStore interface {
	FindActiveByProviderIDs(ctx context.Context, providerIDs []string) ([]Subscription, error)
	ListActive(ctx context.Context) ([]Subscription, error)
}
