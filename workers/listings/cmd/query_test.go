package main

import (
	"testing"

	"findtrades/workers/listings/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryFilters(t *testing.T) {
	flags := queryCmd.Flags()
	t.Cleanup(func() {
		queryFlags.filters = domain.FilterSet{}
		queryFlags.sort = string(domain.SortRating)
		queryFlags.includeUnverified = false
	})

	require.NoError(t, flags.Parse([]string{
		"--trade", "electrician",
		"--city", "london",
		"--min-rating", "4",
		"--sort", "name",
		"--page", "2",
		"--online",
		"--include-unverified",
	}))

	f := queryFilters([]string{"emergency rewire"})

	assert.Equal(t, "electrician", f.Trade)
	assert.Equal(t, "london", f.City)
	assert.Equal(t, 4.0, f.MinRating)
	assert.Equal(t, domain.SortName, f.Sort)
	assert.Equal(t, 2, f.Page)
	assert.True(t, f.OnlineOnly)
	assert.Equal(t, "emergency rewire", f.Query)
	require.NotNil(t, f.VerifiedOnly)
	assert.False(t, *f.VerifiedOnly)
	assert.False(t, f.RequireVerified())
}

func TestQueryFilters_Defaults(t *testing.T) {
	f := queryFilters(nil)

	assert.Equal(t, domain.SortRating, f.Sort)
	assert.Nil(t, f.VerifiedOnly)
	assert.True(t, f.RequireVerified())
	assert.NoError(t, f.Validate())
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["lambda"])
	assert.True(t, names["query"])
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config-dir"))
}
