package service

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/slelog/crm-dashboard-go/internal/domain"
	"github.com/slelog/crm-dashboard-go/internal/infra/observability"
	"github.com/slelog/crm-dashboard-go/internal/infra/resilience"
	"github.com/slelog/crm-dashboard-go/internal/port"
)

const (
	// portfolioSampleSize caps how many clients travel in the condensed
	// portfolio snapshot sent to the collaborator.
	portfolioSampleSize = 50

	// highlightClients is how many top clients get individual insight
	// fan-out alongside the portfolio report.
	highlightClients = 5

	// insightsActiveWithinDays matches the KPI definition of "active".
	insightsActiveWithinDays = 90
)

// reportUnavailable is the fixed fallback when the collaborator is
// disabled or failing. The dashboard shows it verbatim.
const reportUnavailable = "Análise indisponível no momento. Tente novamente mais tarde."

// PortfolioAnalysis bundles the executive report with per-client
// highlight insights for the top revenue clients.
type PortfolioAnalysis struct {
	Report     string                      `json:"report"`
	Highlights map[string][]domain.Insight `json:"highlights"`
}

// Insights orchestrates calls to the narrative-AI collaborator. Every
// method degrades: a failing or absent collaborator yields empty
// insights and the fixed unavailable report, never an error.
type Insights struct {
	generator port.InsightGenerator // nil when the collaborator is disabled
	cache     port.Cache[[]domain.Insight]
	bulkhead  *resilience.Bulkhead
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewInsights creates the insight orchestration service. A nil generator
// disables the collaborator entirely.
func NewInsights(
	generator port.InsightGenerator,
	cache port.Cache[[]domain.Insight],
	bulkhead *resilience.Bulkhead,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Insights {
	return &Insights{
		generator: generator,
		cache:     cache,
		bulkhead:  bulkhead,
		metrics:   metrics,
		logger:    logger,
	}
}

// Enabled reports whether the collaborator is configured.
func (s *Insights) Enabled() bool {
	return s.generator != nil
}

// ForClient returns the narrative suggestions for one scored client.
// Results are cached per client id; failures degrade to an empty list.
func (s *Insights) ForClient(ctx context.Context, client *domain.Client) []domain.Insight {
	ctx, span := tracer.Start(ctx, "Insights.ForClient")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", client.ID))

	if s.generator == nil {
		return []domain.Insight{}
	}

	if cached, ok := s.cache.Get(client.ID); ok {
		s.metrics.IncrCacheHit("insights")
		return cached
	}
	s.metrics.IncrCacheMiss("insights")

	insights, err := s.generator.ClientInsights(ctx, client)
	if err != nil {
		s.logger.Warn("client insights unavailable",
			zap.String("client_id", client.ID),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("insights")
		return []domain.Insight{}
	}
	if insights == nil {
		insights = []domain.Insight{}
	}

	s.cache.Set(client.ID, insights)
	return insights
}

// Portfolio produces the executive report plus highlight insights for the
// top clients. The report and each highlight are fetched concurrently;
// the bulkhead caps in-flight collaborator calls and each branch degrades
// independently.
func (s *Insights) Portfolio(ctx context.Context, clients []domain.Client) *PortfolioAnalysis {
	ctx, span := tracer.Start(ctx, "Insights.Portfolio")
	defer span.End()

	analysis := &PortfolioAnalysis{
		Report:     reportUnavailable,
		Highlights: make(map[string][]domain.Insight),
	}
	if s.generator == nil {
		return analysis
	}

	top := topByRevenue(clients, highlightClients)
	portfolio := buildPortfolioContext(clients)

	var g errgroup.Group

	g.Go(func() error {
		if err := s.bulkhead.Acquire(ctx); err != nil {
			return nil
		}
		defer s.bulkhead.Release()

		report, err := s.generator.PortfolioReport(ctx, portfolio)
		if err != nil {
			s.logger.Warn("portfolio report unavailable", zap.Error(err))
			s.metrics.IncrExternalError("insights")
			return nil
		}
		analysis.Report = report
		return nil
	})

	highlights := make([][]domain.Insight, len(top))
	for i := range top {
		i := i
		g.Go(func() error {
			if err := s.bulkhead.Acquire(ctx); err != nil {
				return nil
			}
			defer s.bulkhead.Release()

			highlights[i] = s.forClientUncachedLookup(ctx, &top[i])
			return nil
		})
	}

	// Branches swallow their own failures, so Wait never errors.
	_ = g.Wait()

	for i := range top {
		if len(highlights[i]) > 0 {
			analysis.Highlights[top[i].ID] = highlights[i]
		}
	}
	return analysis
}

// forClientUncachedLookup mirrors ForClient but skips tracing so the
// fan-out spans stay flat under Insights.Portfolio.
func (s *Insights) forClientUncachedLookup(ctx context.Context, client *domain.Client) []domain.Insight {
	if cached, ok := s.cache.Get(client.ID); ok {
		s.metrics.IncrCacheHit("insights")
		return cached
	}
	s.metrics.IncrCacheMiss("insights")

	insights, err := s.generator.ClientInsights(ctx, client)
	if err != nil {
		s.logger.Warn("highlight insights unavailable",
			zap.String("client_id", client.ID),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("insights")
		return nil
	}
	if len(insights) > 0 {
		s.cache.Set(client.ID, insights)
	}
	return insights
}

func topByRevenue(clients []domain.Client, n int) []domain.Client {
	sorted := append([]domain.Client(nil), clients...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TotalRevenue > sorted[j].TotalRevenue
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func buildPortfolioContext(clients []domain.Client) *domain.PortfolioContext {
	pc := &domain.PortfolioContext{TotalClients: len(clients)}

	for i := range clients {
		pc.TotalRevenue += clients[i].TotalRevenue
		if clients[i].Recency <= insightsActiveWithinDays {
			pc.ActiveClients++
		}
	}

	for _, c := range topByRevenue(clients, portfolioSampleSize) {
		pc.TopClients = append(pc.TopClients, domain.TopClientSample{
			Name:      c.Name,
			Revenue:   c.TotalRevenue,
			Shipments: c.TotalShipments,
			Recency:   c.Recency,
			Health:    c.HealthValue,
		})
	}
	return pc
}
