package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gateway/internal/domain"
	"gateway/internal/interface/repository/sentiment"
)

func TestResolve_AnalysisLabelsInArrivalOrder(t *testing.T) {
	f := newFixture(t, LockSingleFlight, scoreByBody{
		"looks good": 0.6,
		"not sure":   -0.2,
		"noted":      0.0,
	})
	f.comments.comments = []domain.Comment{
		{Body: "looks good", AuthorLogin: "alice"},
		{Body: "not sure", AuthorLogin: "bob"},
		{Body: "noted", AuthorLogin: "carol"},
	}
	route := analysisRoute("dotnet", "runtime", 5)

	entry, err := f.uc.Resolve(context.Background(), route)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, entry.StatusCode)
	assert.Equal(t, "text/plain", entry.ContentType)
	assert.Equal(t,
		"alice|Positive|0.60\n"+
			"bob|Negative|-0.20\n"+
			"carol|Neutral|0.00\n",
		string(entry.Body))

	cached, ok := f.cache.Get(route.Key)
	require.True(t, ok)
	assert.Equal(t, entry.Body, cached.Body)
}

func TestResolve_AnalysisUpstreamFailureIsNotCached(t *testing.T) {
	f := newFixture(t, LockSingleFlight, nil)
	f.comments.err = &domain.UpstreamError{Target: "github", StatusCode: http.StatusNotFound}
	route := analysisRoute("a", "b", 5)

	_, err := f.uc.Resolve(context.Background(), route)

	var upErr *domain.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusNotFound, upErr.StatusCode)
	assert.Equal(t, 0, f.cache.Len())
}

func TestResolve_AnalysisScorerPanicBecomesError(t *testing.T) {
	f := newFixture(t, LockSingleFlight, sentiment.Func(func(string) float64 {
		panic("lexicon missing")
	}))
	f.comments.comments = []domain.Comment{{Body: "x", AuthorLogin: "a"}, {Body: "y", AuthorLogin: "b"}}

	_, err := f.uc.Resolve(context.Background(), analysisRoute("a", "b", 1))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "scorer panicked")
	assert.Equal(t, 0, f.cache.Len())
}

func TestScore_ClampsOutOfRange(t *testing.T) {
	f := newFixture(t, LockSingleFlight, scoreByBody{"hi": 3, "lo": -7})

	got, err := f.uc.score("hi")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = f.uc.score("lo")
	require.NoError(t, err)
	assert.Equal(t, -1.0, got)
}
