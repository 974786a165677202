package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateSource yields the BTC price in the given fiat currency (units of
// currency per whole BTC).
type RateSource interface {
	BTCRate(ctx context.Context, currency string) (float64, error)
}

const satsPerBTC = 100_000_000

// YadioClient fetches exchange rates from the Yadio public API.
type YadioClient struct {
	BaseURL string
	Client  *http.Client
}

func NewYadioClient(client *http.Client) *YadioClient {
	return &YadioClient{
		BaseURL: "https://api.yadio.io/exrates/",
		Client:  client,
	}
}

func (y *YadioClient) BTCRate(ctx context.Context, currency string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.BaseURL+currency, nil)
	if err != nil {
		return 0, err
	}

	resp, err := y.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rate lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate lookup failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("rate lookup failed: %w", err)
	}

	var payload struct {
		BTC float64 `json:"BTC"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("invalid rate response for %s: %w", currency, err)
	}
	if payload.BTC <= 0 {
		return 0, fmt.Errorf("invalid rate response for %s", currency)
	}
	return payload.BTC, nil
}

type rateEntry struct {
	rate      float64
	fetchedAt time.Time
}

// CachedRateSource wraps a RateSource with an in-process TTL cache. The clock
// is injected so tests control expiry without sleeping.
type CachedRateSource struct {
	source RateSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]rateEntry
}

func NewCachedRateSource(source RateSource, ttl time.Duration, now func() time.Time) *CachedRateSource {
	if now == nil {
		now = time.Now
	}
	return &CachedRateSource{
		source:  source,
		ttl:     ttl,
		now:     now,
		entries: make(map[string]rateEntry),
	}
}

func (c *CachedRateSource) BTCRate(ctx context.Context, currency string) (float64, error) {
	c.mu.Lock()
	entry, ok := c.entries[currency]
	c.mu.Unlock()

	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.rate, nil
	}

	rate, err := c.source.BTCRate(ctx, currency)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.entries[currency] = rateEntry{rate: rate, fetchedAt: c.now()}
	c.mu.Unlock()

	return rate, nil
}

// RedisRateSource caches rates in Redis with key expiry, sharing the cache
// across processes. Falls through to the upstream source on miss.
type RedisRateSource struct {
	Client *redis.Client
	Source RateSource
	TTL    time.Duration
}

func NewRedisRateSource(client *redis.Client, source RateSource, ttl time.Duration) *RedisRateSource {
	return &RedisRateSource{Client: client, Source: source, TTL: ttl}
}

func (r *RedisRateSource) BTCRate(ctx context.Context, currency string) (float64, error) {
	key := "btc_rate:" + currency

	val, err := r.Client.Get(ctx, key).Result()
	if err == nil {
		if rate, perr := strconv.ParseFloat(val, 64); perr == nil && rate > 0 {
			return rate, nil
		}
	} else if err != redis.Nil {
		// Redis being down should not block sales; fall through to upstream.
	}

	rate, err := r.Source.BTCRate(ctx, currency)
	if err != nil {
		return 0, err
	}

	_ = r.Client.Set(ctx, key, strconv.FormatFloat(rate, 'f', -1, 64), r.TTL).Err()
	return rate, nil
}

// ConvertCurrencyToSats converts a fiat amount into whole satoshis, rounded.
func ConvertCurrencyToSats(ctx context.Context, source RateSource, amount float64, currency string) (int64, error) {
	rate, err := source.BTCRate(ctx, currency)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(amount / rate * satsPerBTC)), nil
}

// ConvertSatsToCurrency converts satoshis into fiat, rounded to cents.
func ConvertSatsToCurrency(ctx context.Context, source RateSource, sats int64, currency string) (float64, error) {
	rate, err := source.BTCRate(ctx, currency)
	if err != nil {
		return 0, err
	}
	value := float64(sats) * rate / satsPerBTC
	return math.Round(value*100) / 100, nil
}
