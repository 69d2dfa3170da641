/*
Command listings resolves filtered, tier-ranked pages of trade provider
listings from the directory's Postgres store.

The engine answers one question per request: given a filter set and a
0-based page index, which providers belong on that page, in what order,
and with which trade names and subscription tier attached.

# Architecture

	├── cmd/                  # cobra commands: serve, lambda, query
	└── internal/
	    ├── domain/           # listings, filters, tiers, store ports
	    ├── planner/          # picks the pagination strategy
	    ├── engine/           # runs the plan and enriches the page
	    ├── ranking/          # sort keys and the top-tier block
	    ├── trade/            # taxonomy catalog, resolver, sniffer
	    ├── batch/            # chunked id lookups under a fan-out limit
	    ├── cache/            # TTL cache for reference data
	    ├── store/            # Postgres stores built with squirrel
	    │   └── storetest/    # in-memory stores for tests
	    └── worker/           # handler.Worker adapters

# Strategies

Without a trade filter the store paginates directly. Page 0 opens with up
to one page of providers holding the top subscription tier, and the rest
of the page is filled from the sorted query with those ids excluded.

With a trade filter, or a trade word found in the free text, the matching
trade ids are expanded to a bounded candidate set of provider ids. The set
is fetched, sorted and paged in memory with the same top-tier block rule.

# Usage

	POST /
	X-Request-Type: listings
	Content-Type: application/json

	{
	    "filters": {
	        "trade": "electrician",
	        "city": "london",
	        "min_rating": 4,
	        "page": 0
	    }
	}

The response data is the page:

	{
	    "listings": [
	        {"id": "...", "name": "...", "rating": 4.8, "trades": ["Electrician"], "tier": "enterprise"}
	    ],
	    "has_more": true,
	    "page": 0,
	    "strategy": "candidate_set_paginated"
	}

A page with "degraded": true was served although trade names or tiers for
some providers could not be fetched.

# Cache invalidation

When RABBITMQ_URL and RABBITMQ_QUEUE are set, serve also consumes messages
of the form {"keys": [...]} or {"prefix": "taxonomy:"} and drops the
matching cache entries.

# Configuration

Settings come from .env files and the environment through shared/config:
the Postgres DSN and pool, HTTP listen address and timeouts, handler
timeout and retry policy, and the LISTINGS_* engine tunables (page size,
ids per query, in-flight chunks, candidate cap, taxonomy TTL).

# Observability

Logs are line-delimited JSON. Prometheus metrics are served on /metrics,
and /health answers with a database ping.
*/
package main
