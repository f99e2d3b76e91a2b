// Package service orchestrates the analytics pipeline: dataset
// lifecycle, overlay merging, filter-scoped scoring with result caching,
// and the narrative-insight collaborator.
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/slelog/crm-dashboard-go/internal/analytics"
	"github.com/slelog/crm-dashboard-go/internal/domain"
	"github.com/slelog/crm-dashboard-go/internal/infra/observability"
	"github.com/slelog/crm-dashboard-go/internal/ingest"
	"github.com/slelog/crm-dashboard-go/internal/port"
)

var tracer = otel.Tracer("service/dashboard")

// View is one fully derived dashboard state: the scored client set, the
// chart series, the KPI block and the active alerts for a filter.
type View struct {
	domain.ProcessResult
	Stats  domain.PortfolioStats `json:"stats"`
	Alerts []domain.Alert        `json:"alerts"`
}

// Dashboard owns the in-memory dataset and derives views from it.
// Aggregates are immutable after ingestion; reloading swaps the whole
// snapshot and invalidates every cached view.
type Dashboard struct {
	mu      sync.RWMutex
	clients []domain.Client

	fetcher  port.LedgerFetcher
	overlays port.OverlayStore
	results  port.Cache[*View]
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewDashboard creates the dashboard service with all dependencies injected.
func NewDashboard(
	fetcher port.LedgerFetcher,
	overlays port.OverlayStore,
	results port.Cache[*View],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Dashboard {
	return &Dashboard{
		fetcher:  fetcher,
		overlays: overlays,
		results:  results,
		metrics:  metrics,
		logger:   logger,
	}
}

// LoadLedger fetches the configured ledger source and replaces the
// dataset. A failed fetch degrades to an empty dataset, which is a
// legitimate zero-result state, never an error surfaced to callers.
func (s *Dashboard) LoadLedger(ctx context.Context) int {
	ctx, span := tracer.Start(ctx, "Dashboard.LoadLedger")
	defer span.End()

	text, err := s.fetcher.FetchLedger(ctx)
	if err != nil {
		s.logger.Warn("ledger fetch failed, starting with empty dataset", zap.Error(err))
		s.metrics.IncrExternalError("ledger")
		s.setDataset(nil)
		return 0
	}

	return s.ReplaceLedger(text)
}

// ReplaceLedger parses a raw delimited payload and swaps the dataset.
// Returns the number of customer aggregates built.
func (s *Dashboard) ReplaceLedger(text string) int {
	res := ingest.ParseLedger(text)
	s.metrics.RecordIngestRows(res.RowsAccepted, res.RowsRejected)

	s.logger.Info("ledger ingested",
		zap.Int("clients", len(res.Clients)),
		zap.Int("rows_accepted", res.RowsAccepted),
		zap.Int("rows_rejected", res.RowsRejected),
	)

	s.setDataset(res.Clients)
	return len(res.Clients)
}

func (s *Dashboard) setDataset(clients []domain.Client) {
	s.mu.Lock()
	s.clients = clients
	s.mu.Unlock()
	s.results.Flush()
}

func (s *Dashboard) snapshot() []domain.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients
}

// ClientCount reports the current dataset size.
func (s *Dashboard) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// View computes (or returns the cached) dashboard state for one filter.
// Scoring is a pure function of dataset + overlays + filter, so views
// are cached per filter fingerprint until either input changes.
func (s *Dashboard) View(ctx context.Context, filter domain.FilterState) *View {
	_, span := tracer.Start(ctx, "Dashboard.View")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("dashboard_view", time.Since(start))
	}()

	key := filterFingerprint(filter)
	span.SetAttributes(attribute.String("filter.fingerprint", key))

	if cached, ok := s.results.Get(key); ok {
		s.metrics.IncrCacheHit("dashboard")
		return cached
	}
	s.metrics.IncrCacheMiss("dashboard")

	merged := s.mergedClients()
	result := analytics.Process(merged, filter)
	alerts := analytics.DetectAlerts(result.Clients)
	if alerts == nil {
		alerts = []domain.Alert{}
	}

	kindCounts := make(map[string]int)
	for _, a := range alerts {
		kindCounts[string(a.Kind)]++
	}
	for kind, n := range kindCounts {
		s.metrics.RecordAlerts(kind, n)
	}

	view := &View{
		ProcessResult: result,
		Stats:         analytics.ComputeStats(result.Clients),
		Alerts:        alerts,
	}
	s.results.Set(key, view)
	return view
}

// Client returns one merged, scored client from the unfiltered view.
func (s *Dashboard) Client(ctx context.Context, clientID string) (*domain.Client, error) {
	view := s.View(ctx, domain.FilterState{})
	for i := range view.Clients {
		if view.Clients[i].ID == clientID {
			return &view.Clients[i], nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "client", ID: clientID}
}

// Alerts returns the alerts for the unfiltered scored set.
func (s *Dashboard) Alerts(ctx context.Context) []domain.Alert {
	return s.View(ctx, domain.FilterState{}).Alerts
}

// Justify attaches an inactivity justification overlay to a client.
func (s *Dashboard) Justify(ctx context.Context, clientID string, j domain.Justification) error {
	_, span := tracer.Start(ctx, "Dashboard.Justify")
	defer span.End()

	if strings.TrimSpace(j.Reason) == "" {
		return &domain.ErrValidation{Field: "reason", Message: "required"}
	}
	if _, err := s.Client(ctx, clientID); err != nil {
		return err
	}

	if j.CreatedAt == "" {
		j.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if err := s.overlays.SaveJustification(clientID, j); err != nil {
		return err
	}
	s.results.Flush()
	return nil
}

// LogAction appends a contact-log entry to a client's overlay and
// returns the stored entry with its assigned id.
func (s *Dashboard) LogAction(ctx context.Context, clientID string, a domain.Action) (*domain.Action, error) {
	_, span := tracer.Start(ctx, "Dashboard.LogAction")
	defer span.End()

	if strings.TrimSpace(a.Note) == "" {
		return nil, &domain.ErrValidation{Field: "note", Message: "required"}
	}
	if _, err := s.Client(ctx, clientID); err != nil {
		return nil, err
	}

	a.ID = uuid.NewString()
	if a.Date == "" {
		a.Date = time.Now().UTC().Format(time.RFC3339)
	}
	if err := s.overlays.AppendAction(clientID, a); err != nil {
		return nil, err
	}
	s.results.Flush()
	return &a, nil
}

// mergedClients applies the overlay store onto the immutable dataset
// snapshot. Scoring is overlay-agnostic except for this pass-through.
func (s *Dashboard) mergedClients() []domain.Client {
	clients := s.snapshot()
	overlays := s.overlays.All()
	if len(overlays) == 0 {
		return clients
	}

	merged := make([]domain.Client, len(clients))
	for i := range clients {
		merged[i] = withOverlay(clients[i], overlays[clients[i].ID])
	}
	return merged
}

// withOverlay returns a copy of the aggregate with the user overlay
// attached. The aggregate itself is never mutated.
func withOverlay(c domain.Client, o domain.Overlay) domain.Client {
	c.Justification = o.Justification
	c.Actions = o.Actions
	return c
}

// filterFingerprint builds a stable cache key for a filter. Slices are
// sorted on copies so logically equal filters collapse onto one key.
func filterFingerprint(f domain.FilterState) string {
	years := append([]int(nil), f.Years...)
	months := append([]int(nil), f.Months...)
	sort.Ints(years)
	sort.Ints(months)

	clients := sortedCopy(f.Clients)
	origins := sortedCopy(f.Origins)
	dests := sortedCopy(f.Destinations)

	segments := make([]string, 0, len(f.Segments))
	for _, s := range f.Segments {
		segments = append(segments, string(s))
	}
	sort.Strings(segments)

	return fmt.Sprintf("y=%v|m=%v|c=%v|o=%v|d=%v|s=%v",
		years, months, clients, origins, dests, segments)
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
