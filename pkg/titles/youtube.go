package titles

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/pypydance/roomlog/internal/logging"
	"github.com/pypydance/roomlog/pkg/config"
	"github.com/pypydance/roomlog/pkg/metrics"
)

var (
	// ErrNoCredential is returned when no API key is configured.
	ErrNoCredential = errors.New("youtube: no api key configured")

	// ErrVideoNotFound is returned when the API knows no video with the id.
	ErrVideoNotFound = errors.New("youtube: video not found")
)

// Lookup fetches a title from an external service.
type Lookup interface {
	LookupTitle(ctx context.Context, id string) (string, error)
}

// YouTubeLookup fetches video titles from the YouTube Data API.
//
// Every call is bounded by the configured timeout, paced by a rate limiter
// and guarded by a circuit breaker that stops calling the API after
// repeated failures.
type YouTubeLookup struct {
	svc     *youtube.Service
	timeout time.Duration
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[string]
	metrics *metrics.Metrics
}

// NewYouTubeLookup creates a lookup for cfg.APIKey. Extra client options
// are appended after the key, which lets tests point the client elsewhere.
func NewYouTubeLookup(ctx context.Context, cfg config.YouTubeConfig, m *metrics.Metrics, opts ...option.ClientOption) (*YouTubeLookup, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoCredential
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	svc, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating youtube client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultLookupTimeout
	}
	ratePerSecond := cfg.RatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = config.DefaultLookupRate
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = config.DefaultLookupBurst
	}

	m.SetBreakerState(0)

	return &YouTubeLookup{
		svc:     svc,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		cb:      newBreaker("youtube-api", m),
		metrics: m,
	}, nil
}

// newBreaker opens after 5 consecutive failures and probes again after a minute.
func newBreaker(name string, m *metrics.Metrics) *gobreaker.CircuitBreaker[string] {
	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// A missing video is an answer, not an outage.
			return err == nil || errors.Is(err, ErrVideoNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Title lookup circuit breaker state changed")
			m.SetBreakerState(stateToFloat(to))
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// LookupTitle returns the title of video id.
func (y *YouTubeLookup) LookupTitle(ctx context.Context, id string) (string, error) {
	title, err := y.cb.Execute(func() (string, error) {
		if err := y.limiter.Wait(ctx); err != nil {
			return "", err
		}

		callCtx, cancel := context.WithTimeout(ctx, y.timeout)
		defer cancel()

		resp, err := y.svc.Videos.List([]string{"snippet"}).Id(id).Context(callCtx).Do()
		if err != nil {
			return "", fmt.Errorf("youtube videos.list %s: %w", id, err)
		}
		if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
			return "", ErrVideoNotFound
		}
		return resp.Items[0].Snippet.Title, nil
	})

	switch {
	case err == nil:
		y.metrics.TitleLookup("success")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		y.metrics.TitleLookup("rejected")
	default:
		y.metrics.TitleLookup("failure")
	}

	return title, err
}
