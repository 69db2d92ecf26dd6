package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPResolver_Country(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/8.8.8.8":
			w.Write([]byte(`{"status":"success","countryCode":"US"}`))
		case "/203.0.113.5":
			w.Write([]byte(`{"status":"fail","message":"private range"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL)

	t.Run("success", func(t *testing.T) {
		country, err := resolver.Country(context.Background(), "8.8.8.8")
		require.NoError(t, err)
		assert.Equal(t, "US", country)
	})

	t.Run("api failure status", func(t *testing.T) {
		_, err := resolver.Country(context.Background(), "203.0.113.5")
		assert.ErrorIs(t, err, ErrLookupFailed)
	})

	t.Run("http error", func(t *testing.T) {
		_, err := resolver.Country(context.Background(), "1.2.3.4")
		assert.ErrorIs(t, err, ErrLookupFailed)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := resolver.Country(ctx, "8.8.8.8")
		assert.Error(t, err)
	})
}
