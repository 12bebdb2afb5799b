package quote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_RelaysBodyVerbatim(t *testing.T) {
	const payload = `{"symbol":"IBM","price":"182.35"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k3y", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, APIKey: "k3y"}, nil)
	q, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payload, string(q.Body))
	assert.Equal(t, "application/json; charset=utf-8", q.ContentType)
}

func TestFetch_RemoteErrorStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(Config{URL: srv.URL}, nil).Fetch(context.Background())
	require.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, 1, calls)
}

func TestFetch_OversizedBody(t *testing.T) {
	payload := `{"data":"` + strings.Repeat("x", 2<<20) + `"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	q, err := NewClient(Config{URL: srv.URL}, nil).Fetch(context.Background())
	require.ErrorIs(t, err, ErrUpstream)
	assert.Nil(t, q)
}

func TestFetch_BodyAtLimit(t *testing.T) {
	payload := strings.Repeat("x", maxBodyBytes)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	q, err := NewClient(Config{URL: srv.URL}, nil).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, q.Body, maxBodyBytes)
}

func TestFetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{URL: url}, nil).Fetch(context.Background())
	require.ErrorIs(t, err, ErrUpstream)
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewClient(Config{URL: srv.URL, Timeout: 50 * time.Millisecond}, nil).Fetch(context.Background())
	require.ErrorIs(t, err, ErrUpstream)
}

func TestFetch_Unconfigured(t *testing.T) {
	_, err := NewClient(Config{}, nil).Fetch(context.Background())
	require.ErrorIs(t, err, ErrUpstream)
}
