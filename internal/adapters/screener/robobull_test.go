package screener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCandidateSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/screener/candidates", r.URL.Path)
		w.Write([]byte(`{"symbols":["AAPL","MSFT","NVDA"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	symbols, err := c.GetCandidateSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, symbols)
}

func TestGetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quote/AAPL", r.URL.Path)
		w.Write([]byte(`{"symbol":"AAPL","price":182.5,"changePercent":1.3}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	quote, err := c.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, 182.5, quote.Price)
	assert.Equal(t, 1.3, quote.ChangePercent)
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"symbols":["AAPL"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	symbols, err := c.GetCandidateSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, symbols)
	assert.Equal(t, 2, calls)
}

func TestGet_ClientErrorIsFatal(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.GetQuote(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, 1, calls)
}

func TestNewClient_DefaultBase(t *testing.T) {
	c := NewClient("")
	assert.Equal(t, defaultBase, c.base)
}
