// File: internal/infra/adapters/price/okx_oracle.go
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/infra/metrics"
)

var _ adapter.PriceOracle = (*OKXOracle)(nil)

// OKXOracle reads the PI-USD ticker and caches the last price for ttl. A
// stale price is served when a refresh fails.
type OKXOracle struct {
	url    string
	ttl    time.Duration
	client *http.Client
	log    *zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	price     float64
	fetchedAt time.Time
}

func NewOKXOracle(url string, ttl, timeout time.Duration, logger *zerolog.Logger) *OKXOracle {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "OKXOracle").Logger()
	return &OKXOracle{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: timeout},
		log:    &l,
		now:    time.Now,
	}
}

func (o *OKXOracle) PiPriceUSD(ctx context.Context) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.price > 0 && o.now().Sub(o.fetchedAt) < o.ttl {
		metrics.IncCacheRequest("pi_price", "hit")
		return o.price, nil
	}
	metrics.IncCacheRequest("pi_price", "miss")

	p, err := o.fetch(ctx)
	if err != nil {
		if o.price > 0 {
			o.log.Warn().Err(err).Float64("stale_price", o.price).Msg("price refresh failed; serving stale price")
			return o.price, nil
		}
		return 0, fmt.Errorf("%w: %v", domain.ErrPriceUnavailable, err)
	}
	o.price = p
	o.fetchedAt = o.now()
	return p, nil
}

func (o *OKXOracle) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ticker http %d", resp.StatusCode)
	}
	var out struct {
		Code string `json:"code"`
		Data []struct {
			Last string `json:"last"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	if out.Code != "0" || len(out.Data) == 0 {
		return 0, fmt.Errorf("ticker code %q", out.Code)
	}
	p, err := strconv.ParseFloat(out.Data[0].Last, 64)
	if err != nil || p <= 0 {
		return 0, fmt.Errorf("ticker price %q", out.Data[0].Last)
	}
	return p, nil
}

// Fixed is a constant oracle for sandbox deployments and tests.
type Fixed float64

func (f Fixed) PiPriceUSD(context.Context) (float64, error) {
	if f <= 0 {
		return 0, domain.ErrPriceUnavailable
	}
	return float64(f), nil
}
