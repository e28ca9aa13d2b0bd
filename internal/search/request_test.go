package search

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromQueryParams(t *testing.T) {
	values, err := url.ParseQuery("q=marathon&sort=episodePublishedUnixTimestamp&order=asc&episodeIds=1,%202,,3&limit=5&offset=10&healthCheckOnly=true")
	require.NoError(t, err)

	req, err := FromQueryParams(values)
	require.NoError(t, err)
	assert.Equal(t, "marathon", req.Query)
	assert.Equal(t, SortByPublished, req.SortBy)
	assert.Equal(t, "asc", req.Order)
	// Blank CSV segments are dropped, surrounding space trimmed.
	assert.Equal(t, []string{"1", "2", "3"}, req.EpisodeIDs)
	assert.Equal(t, 5, req.Limit)
	assert.Equal(t, 10, req.Offset)
	assert.True(t, req.HealthCheckOnly)
}

func TestFromQueryParamsDefaults(t *testing.T) {
	req, err := FromQueryParams(url.Values{})
	require.NoError(t, err)
	assert.Empty(t, req.Query)
	assert.Zero(t, req.Limit)
	assert.False(t, req.HealthCheckOnly)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  SearchRequest
		ok   bool
	}{
		{"empty", SearchRequest{}, true},
		{"relevance", SearchRequest{SortBy: SortByRelevance}, true},
		{"published", SearchRequest{SortBy: SortByPublished, Order: "DESC"}, true},
		{"bad sort", SearchRequest{SortBy: "title"}, false},
		{"bad order", SearchRequest{Order: "sideways"}, false},
		{"negative limit", SearchRequest{Limit: -1}, false},
		{"negative offset", SearchRequest{Offset: -3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFromJSON(t *testing.T) {
	req, err := FromJSON([]byte(`{"q":"hills","episodeIds":["4","5"],"limit":20}`))
	require.NoError(t, err)
	assert.Equal(t, "hills", req.Query)
	assert.Equal(t, []string{"4", "5"}, req.EpisodeIDs)
	assert.Equal(t, 20, req.Limit)

	_, err = FromJSON([]byte(`{not json`))
	assert.Error(t, err)
}
