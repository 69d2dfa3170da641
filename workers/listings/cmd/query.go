package main

import (
	"encoding/json"
	"os"

	"findtrades/shared/handler"
	"findtrades/workers/listings/internal/domain"

	"github.com/spf13/cobra"
)

var queryFlags struct {
	filters           domain.FilterSet
	sort              string
	includeUnverified bool
}

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Run one listing query and print the page as JSON",
	Example: `  listings query --trade electrician --city london --min-rating 4
  listings query "emergency plumber" --page 1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func init() {
	f := queryCmd.Flags()
	f.StringVar(&queryFlags.filters.City, "city", "", "city to match against the provider address")
	f.StringVar(&queryFlags.filters.Trade, "trade", "", "trade name or part of it")
	f.Float64Var(&queryFlags.filters.MinRating, "min-rating", 0, "minimum rating, 0 to 5")
	f.BoolVar(&queryFlags.filters.OnlineOnly, "online", false, "only providers currently online")
	f.BoolVar(&queryFlags.includeUnverified, "include-unverified", false, "include unverified providers")
	f.StringVar(&queryFlags.sort, "sort", string(domain.SortRating), "sort key: rating or name")
	f.IntVar(&queryFlags.filters.Page, "page", 0, "0-based page index")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}

	filters := queryFilters(args)

	// logs go to stderr so stdout stays valid JSON
	app, err := newApplication(cmd.Context(), cfg, os.Stderr)
	if err != nil {
		return err
	}

	page, queryErr := app.engine.Query(cmd.Context(), filters)
	handler.GracefulShutdown(cmd.Context(), app.logger, app.metrics, app.startTime, app)
	if queryErr != nil {
		return queryErr
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(page)
}

// queryFilters builds the filter set from the parsed flags and the optional
// free-text argument.
func queryFilters(args []string) domain.FilterSet {
	filters := queryFlags.filters
	filters.Sort = domain.SortKey(queryFlags.sort)
	if len(args) == 1 {
		filters.Query = args[0]
	}
	if queryFlags.includeUnverified {
		verified := false
		filters.VerifiedOnly = &verified
	}
	return filters
}
