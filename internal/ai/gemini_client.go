package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"pdf-rag-platform/internal/logger"
	"pdf-rag-platform/internal/telemetry"
)

// ErrCircuitOpen is returned while the breaker rejects calls to Gemini.
var ErrCircuitOpen = errors.New("gemini circuit breaker is open")

var tracer = otel.Tracer("gemini-client")

// Options configures a GeminiClient.
type Options struct {
	APIKey          string
	Tier            string
	EmbeddingModel  string
	GenerationModel string
	Dimensions      int
	Metrics         *telemetry.Metrics
}

// GeminiClient is the single process-wide handle on the Gemini API. It is
// safe for concurrent use.
type GeminiClient struct {
	client          *genai.Client
	breaker         *gobreaker.CircuitBreaker
	rateLimiter     *rate.Limiter
	embeddingModel  string
	generationModel string
	dimensions      int
	tier            string
}

type RateLimits struct {
	RPM int // Requests per minute
	RPD int // Requests per day
}

func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	limits := getRateLimits(opts.Tier)
	metrics := opts.Metrics

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.RecordCircuitBreakerState(name, to.String())
		},
	})

	burst := limits.RPM / 10
	if burst < 1 {
		burst = 1
	}

	return &GeminiClient{
		client:          client,
		breaker:         breaker,
		rateLimiter:     rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), burst),
		embeddingModel:  opts.EmbeddingModel,
		generationModel: opts.GenerationModel,
		dimensions:      opts.Dimensions,
		tier:            opts.Tier,
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "tier1":
		return RateLimits{RPM: 1000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, RPD: 50000}
	case "tier3":
		return RateLimits{RPM: 4000, RPD: 100000}
	default:
		return RateLimits{RPM: 100, RPD: 1000}
	}
}

// call runs fn behind the rate limiter and the circuit breaker.
func (gc *GeminiClient) call(ctx context.Context, span trace.Span, fn func() (interface{}, error)) (interface{}, error) {
	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, err
	}

	result, err := gc.breaker.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return nil, ErrCircuitOpen
		}
		span.SetAttributes(
			attribute.Bool("gemini.error", true),
			attribute.String("gemini.error_message", err.Error()),
		)
		return nil, err
	}
	return result, nil
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
