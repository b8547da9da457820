// Package supabase provides a ProfileStore backed by Supabase PostgREST, the
// managed entity store of the CRM.
package supabase

import (
	"errors"
	"net/http"

	"github.com/lendgrid/export-profiles/internal/domain"
	"github.com/lendgrid/export-profiles/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// DefaultTable is the PostgREST table holding mapping profiles.
const DefaultTable = "mismo_mapping_profiles"

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	table          string
	cb             *gobreaker.CircuitBreaker
	bulkhead       *resilience.Bulkhead
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client. Reads are retried with backoff; writes
// are attempted once and their outcome reported verbatim.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey, table string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	if table == "" {
		table = DefaultTable
	}
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		table:          table,
		cb:             cb,
		bulkhead:       resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:            cfg,
		logger:         logger,
	}
}

// IsBreakerSuccess tells the circuit breaker which outcomes are not outages.
func IsBreakerSuccess(err error) bool {
	var notFound *domain.ErrNotFound
	return err == nil || errors.As(err, &notFound)
}

// storeError maps a raw adapter error onto the domain taxonomy.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var notFound *domain.ErrNotFound
	if errors.As(err, &notFound) {
		return notFound
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: "supabase"}
	}
	return &domain.ErrStorage{Op: "supabase/" + op, Err: err}
}
