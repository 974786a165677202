package pricing_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ln-ticketing/internal/pricing"
)

type countingSource struct {
	rate  float64
	err   error
	calls int
}

func (c *countingSource) BTCRate(ctx context.Context, currency string) (float64, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	return c.rate, nil
}

func TestCachedRateSource(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	upstream := &countingSource{rate: 100_000}
	cached := pricing.NewCachedRateSource(upstream, 60*time.Second, clock)

	rate, err := cached.BTCRate(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, 100_000.0, rate)
	assert.Equal(t, 1, upstream.calls)

	// Within the TTL the upstream is not consulted again.
	upstream.rate = 200_000
	rate, err = cached.BTCRate(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, 100_000.0, rate)
	assert.Equal(t, 1, upstream.calls)

	// A second currency misses the cache.
	_, err = cached.BTCRate(context.Background(), "ARS")
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)

	// Past the TTL the entry is stale and refetched.
	now = now.Add(61 * time.Second)
	rate, err = cached.BTCRate(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, 200_000.0, rate)
	assert.Equal(t, 3, upstream.calls)
}

func TestCachedRateSourceUpstreamError(t *testing.T) {
	upstream := &countingSource{err: errors.New("yadio down")}
	cached := pricing.NewCachedRateSource(upstream, time.Minute, nil)

	_, err := cached.BTCRate(context.Background(), "USD")
	assert.Error(t, err)
}

func TestYadioClient(t *testing.T) {
	t.Run("valid response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/USD", r.URL.Path)
			w.Write([]byte(`{"BTC": 97000.5}`))
		}))
		defer server.Close()

		client := pricing.NewYadioClient(server.Client())
		client.BaseURL = server.URL + "/"

		rate, err := client.BTCRate(context.Background(), "USD")
		require.NoError(t, err)
		assert.Equal(t, 97000.5, rate)
	})

	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := pricing.NewYadioClient(server.Client())
		client.BaseURL = server.URL + "/"

		_, err := client.BTCRate(context.Background(), "USD")
		assert.Error(t, err)
	})

	t.Run("zero rate is rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"BTC": 0}`))
		}))
		defer server.Close()

		client := pricing.NewYadioClient(server.Client())
		client.BaseURL = server.URL + "/"

		_, err := client.BTCRate(context.Background(), "USD")
		assert.Error(t, err)
	})
}

func TestConversions(t *testing.T) {
	source := fixedRate(100_000)

	sats, err := pricing.ConvertCurrencyToSats(context.Background(), source, 30, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(30_000), sats)

	fiat, err := pricing.ConvertSatsToCurrency(context.Background(), source, 30_000, "USD")
	require.NoError(t, err)
	assert.Equal(t, 30.0, fiat)

	// Fractional results round to cents.
	fiat, err = pricing.ConvertSatsToCurrency(context.Background(), source, 1234, "USD")
	require.NoError(t, err)
	assert.Equal(t, 1.23, fiat)
}
