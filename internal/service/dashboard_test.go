package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slelog/crm-dashboard-go/internal/domain"
	"github.com/slelog/crm-dashboard-go/internal/infra/cache"
	"github.com/slelog/crm-dashboard-go/internal/infra/observability"
	"github.com/slelog/crm-dashboard-go/internal/infra/overlay"
	"github.com/slelog/crm-dashboard-go/internal/service"

	"go.uber.org/zap"
)

// --- Mocks ---

type mockFetcher struct {
	payload string
	err     error
	calls   int
}

func (m *mockFetcher) FetchLedger(_ context.Context) (string, error) {
	m.calls++
	return m.payload, m.err
}

const ledgerPayload = "Data;Origem;Destino;Valor;CNPJ;Cliente\n" +
	"01/01/2024;Sao Paulo;Rio de Janeiro;R$ 1.500,00;11.111.111/0001-11;Acme Ltda\n" +
	"15/06/2024;Campinas;Salvador;R$ 500,00;11111111000111;Acme Ltda\n" +
	"10/06/2024;Santos;Recife;R$ 2.000,00;22.222.222/0001-22;Beta SA\n"

func newDashboard(fetcher *mockFetcher) *service.Dashboard {
	return service.NewDashboard(
		fetcher,
		overlay.NewStore(""),
		cache.New[*service.View](5*time.Minute),
		observability.NewMetrics(),
		zap.NewNop(),
	)
}

// --- Tests ---

func TestDashboard_LoadAndView(t *testing.T) {
	dash := newDashboard(&mockFetcher{payload: ledgerPayload})

	count := dash.LoadLedger(context.Background())
	if count != 2 {
		t.Fatalf("expected 2 aggregates, got %d", count)
	}

	view := dash.View(context.Background(), domain.FilterState{})
	if len(view.Clients) != 2 {
		t.Fatalf("expected 2 clients in view, got %d", len(view.Clients))
	}
	if view.ReferenceDate != "2024-06-15" {
		t.Errorf("expected reference date '2024-06-15', got %q", view.ReferenceDate)
	}
	if view.Stats.Revenue != 4_000 {
		t.Errorf("expected total revenue 4000, got %v", view.Stats.Revenue)
	}
	if len(view.ChartData) == 0 {
		t.Error("expected chart data")
	}
}

func TestDashboard_FetchFailureDegradesToEmpty(t *testing.T) {
	dash := newDashboard(&mockFetcher{err: errors.New("connection refused")})

	count := dash.LoadLedger(context.Background())
	if count != 0 {
		t.Fatalf("expected empty dataset, got %d aggregates", count)
	}

	view := dash.View(context.Background(), domain.FilterState{})
	if len(view.Clients) != 0 {
		t.Errorf("expected zero clients, got %d", len(view.Clients))
	}
	if view.Alerts == nil {
		t.Error("expected empty alert slice, not nil")
	}
}

func TestDashboard_ViewIsCachedPerFilter(t *testing.T) {
	dash := newDashboard(&mockFetcher{payload: ledgerPayload})
	dash.LoadLedger(context.Background())

	a := dash.View(context.Background(), domain.FilterState{Years: []int{2024}})
	b := dash.View(context.Background(), domain.FilterState{Years: []int{2024}})
	if a != b {
		t.Error("expected the same cached view for an identical filter")
	}

	// Logically equal filters with different slice order share one entry.
	c := dash.View(context.Background(), domain.FilterState{Years: []int{2024, 2023}})
	d := dash.View(context.Background(), domain.FilterState{Years: []int{2023, 2024}})
	if c != d {
		t.Error("expected order-insensitive filter fingerprint")
	}
}

func TestDashboard_ReplaceLedgerInvalidatesCache(t *testing.T) {
	dash := newDashboard(&mockFetcher{payload: ledgerPayload})
	dash.LoadLedger(context.Background())

	before := dash.View(context.Background(), domain.FilterState{})
	if len(before.Clients) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(before.Clients))
	}

	replacement := "Data;Origem;Destino;Valor;CNPJ\n" +
		"01/03/2024;SP;RJ;100;33333333000133\n"
	if count := dash.ReplaceLedger(replacement); count != 1 {
		t.Fatalf("expected 1 aggregate after replace, got %d", count)
	}

	after := dash.View(context.Background(), domain.FilterState{})
	if len(after.Clients) != 1 {
		t.Errorf("expected view rebuilt from new dataset, got %d clients", len(after.Clients))
	}
}

func TestDashboard_ClientLookup(t *testing.T) {
	dash := newDashboard(&mockFetcher{payload: ledgerPayload})
	dash.LoadLedger(context.Background())

	client, err := dash.Client(context.Background(), "11111111000111")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client.Name != "Acme Ltda" {
		t.Errorf("expected name 'Acme Ltda', got %q", client.Name)
	}

	_, err = dash.Client(context.Background(), "99999999000199")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDashboard_Justify(t *testing.T) {
	dash := newDashboard(&mockFetcher{payload: ledgerPayload})
	dash.LoadLedger(context.Background())

	err := dash.Justify(context.Background(), "11111111000111", domain.Justification{
		Reason: "Cliente migrou operação para a filial",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	client, err := dash.Client(context.Background(), "11111111000111")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client.Justification == nil {
		t.Fatal("expected justification merged onto client")
	}
	if client.Justification.CreatedAt == "" {
		t.Error("expected createdAt to be stamped")
	}
}

func TestDashboard_JustifyValidation(t *testing.T) {
	dash := newDashboard(&mockFetcher{payload: ledgerPayload})
	dash.LoadLedger(context.Background())

	err := dash.Justify(context.Background(), "11111111000111", domain.Justification{Reason: "   "})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Errorf("expected ErrValidation for blank reason, got %v", err)
	}

	err = dash.Justify(context.Background(), "99999999000199", domain.Justification{Reason: "ok"})
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound for unknown client, got %v", err)
	}
}

func TestDashboard_LogAction(t *testing.T) {
	dash := newDashboard(&mockFetcher{payload: ledgerPayload})
	dash.LoadLedger(context.Background())

	first, err := dash.LogAction(context.Background(), "11111111000111", domain.Action{Note: "Ligação feita"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first.ID == "" {
		t.Error("expected assigned action id")
	}
	if first.Date == "" {
		t.Error("expected stamped action date")
	}

	second, err := dash.LogAction(context.Background(), "11111111000111", domain.Action{Note: "Proposta enviada"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	client, _ := dash.Client(context.Background(), "11111111000111")
	if len(client.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(client.Actions))
	}
	// Newest first.
	if client.Actions[0].ID != second.ID {
		t.Error("expected most recent action first")
	}

	_, err = dash.LogAction(context.Background(), "11111111000111", domain.Action{Note: ""})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Errorf("expected ErrValidation for empty note, got %v", err)
	}
}

func TestDashboard_FilterScopesRevenueNotSegments(t *testing.T) {
	dash := newDashboard(&mockFetcher{payload: ledgerPayload})
	dash.LoadLedger(context.Background())

	view := dash.View(context.Background(), domain.FilterState{Months: []int{1}})

	// Only Acme shipped in january; its filtered revenue is the january
	// subset while recency still reads the june shipment.
	if len(view.Clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(view.Clients))
	}
	c := view.Clients[0]
	if c.TotalRevenue != 1_500 {
		t.Errorf("expected filtered revenue 1500, got %v", c.TotalRevenue)
	}
	if c.Recency != 0 {
		t.Errorf("expected global recency 0, got %d", c.Recency)
	}
}
