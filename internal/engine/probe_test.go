package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parafetch/parafetch/internal/engine/types"
	"github.com/parafetch/parafetch/internal/testutil"
)

func TestProbe_Happy(t *testing.T) {
	server := testutil.NewMockServer(
		testutil.WithData([]byte("HELLO WORLD")),
		testutil.WithRangeSupport(true),
	)
	defer server.Close()

	pr, err := probe(context.Background(), server.URL(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(11), pr.TotalSize)
	assert.True(t, pr.SupportsRange)
	assert.Equal(t, "file.bin", pr.Filename)
	assert.Equal(t, server.URL(), pr.EffectiveURL)
}

func TestProbe_RangeUnsupported(t *testing.T) {
	server := testutil.NewMockServer(
		testutil.WithData([]byte("data")),
		testutil.WithRangeSupport(false),
	)
	defer server.Close()

	pr, err := probe(context.Background(), server.URL(), nil)
	require.NoError(t, err)
	assert.False(t, pr.SupportsRange)
}

func TestProbe_FollowsRedirects(t *testing.T) {
	origin := testutil.NewMockServer(testutil.WithData([]byte("redirected content")))
	defer origin.Close()

	hops := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, origin.URL(), http.StatusFound)
	}))
	defer hops.Close()

	pr, err := probe(context.Background(), hops.URL+"/moved", nil)
	require.NoError(t, err)

	assert.Equal(t, origin.URL(), pr.EffectiveURL, "range requests must target the post-redirect URL")
	assert.Equal(t, int64(len("redirected content")), pr.TotalSize)
}

func TestProbe_ContentDispositionFilename(t *testing.T) {
	server := testutil.NewMockServer(
		testutil.WithData([]byte("x")),
		testutil.WithContentDisposition(`attachment; filename="report%20final.pdf"`),
	)
	defer server.Close()

	pr, err := probe(context.Background(), server.URL(), nil)
	require.NoError(t, err)
	assert.Equal(t, "report final.pdf", pr.Filename)
}

func TestProbe_ZeroLengthRejected(t *testing.T) {
	server := testutil.NewMockServer(testutil.WithData(nil))
	defer server.Close()

	_, err := probe(context.Background(), server.URL(), nil)
	assert.ErrorIs(t, err, errProbeFailed)
}

func TestProbe_MissingContentLengthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No Content-Length; chunked response.
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := probe(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, errProbeFailed)
}

func TestProbe_BadStatusRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := probe(context.Background(), srv.URL+"/gone", nil)
	assert.ErrorIs(t, err, errProbeFailed)
}

func TestProbe_UnreachableHost(t *testing.T) {
	cfg := &types.Config{ProbeTimeout: 500 * time.Millisecond}
	_, err := probe(context.Background(), "http://127.0.0.1:1/file", cfg)
	assert.ErrorIs(t, err, errProbeFailed)
}

func TestProbe_UnsupportedScheme(t *testing.T) {
	_, err := probe(context.Background(), "gopher://example.com/file", nil)
	assert.ErrorIs(t, err, errProbeFailed)
}
