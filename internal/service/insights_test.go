package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slelog/crm-dashboard-go/internal/domain"
	"github.com/slelog/crm-dashboard-go/internal/infra/cache"
	"github.com/slelog/crm-dashboard-go/internal/infra/observability"
	"github.com/slelog/crm-dashboard-go/internal/infra/resilience"
	"github.com/slelog/crm-dashboard-go/internal/port"
	"github.com/slelog/crm-dashboard-go/internal/service"

	"go.uber.org/zap"
)

type mockGenerator struct {
	insights    []domain.Insight
	report      string
	clientErr   error
	reportErr   error
	clientCalls int
	reportCalls int
}

func (m *mockGenerator) ClientInsights(_ context.Context, _ *domain.Client) ([]domain.Insight, error) {
	m.clientCalls++
	return m.insights, m.clientErr
}

func (m *mockGenerator) PortfolioReport(_ context.Context, _ *domain.PortfolioContext) (string, error) {
	m.reportCalls++
	return m.report, m.reportErr
}

func newInsights(gen port.InsightGenerator) *service.Insights {
	return service.NewInsights(
		gen,
		cache.New[[]domain.Insight](5*time.Minute),
		resilience.NewBulkhead(4),
		observability.NewMetrics(),
		zap.NewNop(),
	)
}

func TestInsights_ForClient(t *testing.T) {
	gen := &mockGenerator{insights: []domain.Insight{
		{Category: "opportunity", Title: "Oferecer frete expresso", Description: "Ticket alto e rota fixa."},
	}}
	svc := newInsights(gen)

	client := &domain.Client{ID: "c1", Name: "Acme"}
	result := svc.ForClient(context.Background(), client)

	if len(result) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(result))
	}
	if result[0].Category != "opportunity" {
		t.Errorf("expected category 'opportunity', got %q", result[0].Category)
	}
}

func TestInsights_ForClientCached(t *testing.T) {
	gen := &mockGenerator{insights: []domain.Insight{{Category: "risk", Title: "t", Description: "d"}}}
	svc := newInsights(gen)

	client := &domain.Client{ID: "c1"}
	svc.ForClient(context.Background(), client)
	svc.ForClient(context.Background(), client)

	if gen.clientCalls != 1 {
		t.Errorf("expected 1 generator call (second served from cache), got %d", gen.clientCalls)
	}
}

func TestInsights_ForClientDegradesOnError(t *testing.T) {
	gen := &mockGenerator{clientErr: errors.New("upstream down")}
	svc := newInsights(gen)

	result := svc.ForClient(context.Background(), &domain.Client{ID: "c1"})
	if result == nil {
		t.Fatal("expected empty slice, not nil")
	}
	if len(result) != 0 {
		t.Errorf("expected no insights on failure, got %d", len(result))
	}
}

func TestInsights_DisabledCollaborator(t *testing.T) {
	svc := newInsights(nil)

	if svc.Enabled() {
		t.Error("expected collaborator to be disabled")
	}
	result := svc.ForClient(context.Background(), &domain.Client{ID: "c1"})
	if len(result) != 0 {
		t.Errorf("expected no insights when disabled, got %d", len(result))
	}
}

func TestInsights_Portfolio(t *testing.T) {
	gen := &mockGenerator{
		report:   "## Relatório Executivo\nCarteira saudável.",
		insights: []domain.Insight{{Category: "retention", Title: "t", Description: "d"}},
	}
	svc := newInsights(gen)

	clients := []domain.Client{
		{ID: "a", Name: "A", TotalRevenue: 5_000, Recency: 10},
		{ID: "b", Name: "B", TotalRevenue: 3_000, Recency: 200},
		{ID: "c", Name: "C", TotalRevenue: 1_000, Recency: 30},
	}

	analysis := svc.Portfolio(context.Background(), clients)

	if analysis.Report != gen.report {
		t.Errorf("expected generated report, got %q", analysis.Report)
	}
	if gen.reportCalls != 1 {
		t.Errorf("expected 1 report call, got %d", gen.reportCalls)
	}
	// Each of the 3 top clients gets an individual highlight fan-out.
	if len(analysis.Highlights) != 3 {
		t.Errorf("expected 3 highlight entries, got %d", len(analysis.Highlights))
	}
}

func TestInsights_PortfolioDegradesToFixedMessage(t *testing.T) {
	gen := &mockGenerator{
		reportErr: errors.New("timeout"),
		clientErr: errors.New("timeout"),
	}
	svc := newInsights(gen)

	analysis := svc.Portfolio(context.Background(), []domain.Client{{ID: "a", TotalRevenue: 100}})

	if analysis.Report != "Análise indisponível no momento. Tente novamente mais tarde." {
		t.Errorf("expected fixed unavailable message, got %q", analysis.Report)
	}
	if len(analysis.Highlights) != 0 {
		t.Errorf("expected no highlights on failure, got %d", len(analysis.Highlights))
	}
}

func TestInsights_PortfolioDisabled(t *testing.T) {
	svc := newInsights(nil)

	analysis := svc.Portfolio(context.Background(), []domain.Client{{ID: "a"}})
	if analysis.Report == "" {
		t.Error("expected fallback report text")
	}
	if len(analysis.Highlights) != 0 {
		t.Errorf("expected no highlights when disabled, got %d", len(analysis.Highlights))
	}
}
