package analytics_test

import (
	"reflect"
	"strconv"
	"testing"

	"github.com/slelog/crm-dashboard-go/internal/analytics"
	"github.com/slelog/crm-dashboard-go/internal/domain"
)

// tx builds a transaction from an ISO date, filling the cached year/month.
func tx(date string, value float64) domain.Transaction {
	year, _ := strconv.Atoi(date[:4])
	month, _ := strconv.Atoi(date[5:7])
	return domain.Transaction{
		Date:        date,
		Value:       value,
		Origin:      "Sao Paulo",
		Destination: "Rio de Janeiro",
		Year:        year,
		Month:       month,
	}
}

// makeClient builds an aggregate the way ingestion would: chronological
// history with first/last bounds derived from it.
func makeClient(id string, txs ...domain.Transaction) domain.Client {
	c := domain.Client{
		ID:          id,
		Name:        "Cliente " + id,
		CNPJ:        id,
		History:     txs,
		Origin:      []string{"Sao Paulo"},
		Destination: []string{"Rio de Janeiro"},
	}
	for _, t := range txs {
		if c.FirstShipmentDate == "" || t.Date < c.FirstShipmentDate {
			c.FirstShipmentDate = t.Date
		}
		if t.Date > c.LastShipmentDate {
			c.LastShipmentDate = t.Date
		}
	}
	return c
}

func findClient(t *testing.T, clients []domain.Client, id string) domain.Client {
	t.Helper()
	for _, c := range clients {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("client %s not in result", id)
	return domain.Client{}
}

func TestDaysBetween(t *testing.T) {
	if got := analytics.DaysBetween("2024-01-01", "2024-06-15"); got != 166 {
		t.Errorf("expected 166 days, got %d", got)
	}
	if got := analytics.DaysBetween("2024-06-15", "2024-06-15"); got != 0 {
		t.Errorf("expected 0 days, got %d", got)
	}
	if got := analytics.DaysBetween("garbage", "2024-06-15"); got != 0 {
		t.Errorf("expected 0 for unparseable input, got %d", got)
	}
}

func TestReferenceDate(t *testing.T) {
	clients := []domain.Client{
		makeClient("a", tx("2024-01-05", 100)),
		makeClient("b", tx("2024-06-15", 100)),
		makeClient("c", tx("2023-11-30", 100)),
	}
	if got := analytics.ReferenceDate(clients); got != "2024-06-15" {
		t.Errorf("expected '2024-06-15', got %q", got)
	}
	if got := analytics.ReferenceDate(nil); got != "" {
		t.Errorf("expected empty reference for empty dataset, got %q", got)
	}
}

func TestProcess_EmptyDataset(t *testing.T) {
	result := analytics.Process(nil, domain.FilterState{})

	if result.ReferenceDate != "" {
		t.Errorf("expected empty reference date, got %q", result.ReferenceDate)
	}
	if len(result.Clients) != 0 || len(result.ChartData) != 0 {
		t.Error("expected empty clients and chart")
	}
	if result.Clients == nil || result.ChartData == nil {
		t.Error("expected empty slices, not nil")
	}
}

// The reference client (last shipment 2024-06-15) anchors recency for
// the whole dataset in the tests below.
func segmentationFixture() []domain.Client {
	return []domain.Client{
		// champion: revenue > 100k, long tenure, shipped on the reference date
		makeClient("champion", tx("2023-01-10", 60_000), tx("2024-06-15", 50_000)),
		// loyal: established, recent, modest revenue
		makeClient("loyal", tx("2023-06-01", 1_000), tx("2024-06-10", 1_000)),
		// at risk: 170 days of silence
		makeClient("atrisk", tx("2023-01-01", 1_000), tx("2023-12-28", 1_000)),
		// lost: 258 days of silence
		makeClient("lost", tx("2023-10-01", 1_000)),
		// new: first shipment 45 days before the reference date
		makeClient("new", tx("2024-05-01", 1_000), tx("2024-06-10", 500)),
	}
}

func TestProcess_Segmentation(t *testing.T) {
	result := analytics.Process(segmentationFixture(), domain.FilterState{})

	if result.ReferenceDate != "2024-06-15" {
		t.Fatalf("expected reference date '2024-06-15', got %q", result.ReferenceDate)
	}

	tests := []struct {
		id      string
		segment domain.Segment
	}{
		{"champion", domain.SegmentChampions},
		{"loyal", domain.SegmentLoyal},
		{"atrisk", domain.SegmentAtRisk},
		{"lost", domain.SegmentLost},
		{"new", domain.SegmentNew},
	}
	for _, tt := range tests {
		c := findClient(t, result.Clients, tt.id)
		if c.Segment != tt.segment {
			t.Errorf("client %s: expected segment %q, got %q", tt.id, tt.segment, c.Segment)
		}
	}
}

func TestProcess_InactivityDominatesRevenue(t *testing.T) {
	// High revenue never rescues an inactive client from AT_RISK/LOST.
	clients := []domain.Client{
		makeClient("anchor", tx("2024-06-15", 100)),
		makeClient("bigspender", tx("2022-06-01", 200_000), tx("2023-12-28", 50_000)),
	}

	result := analytics.Process(clients, domain.FilterState{})
	c := findClient(t, result.Clients, "bigspender")
	if c.Segment != domain.SegmentAtRisk {
		t.Errorf("expected AT_RISK despite high revenue, got %q", c.Segment)
	}
}

func TestProcess_HealthScores(t *testing.T) {
	result := analytics.Process(segmentationFixture(), domain.FilterState{})

	tests := []struct {
		id    string
		value int
		tier  domain.HealthTier
	}{
		{"champion", 95, domain.HealthExcellent}, // 70 +15 recency<15 +10 champion
		{"loyal", 85, domain.HealthExcellent},    // 70 +15 recency<15
		{"new", 90, domain.HealthExcellent},      // 70 +15 recency<15 +5 new
		{"atrisk", 30, domain.HealthCritical},
		{"lost", 10, domain.HealthCritical},
	}
	for _, tt := range tests {
		c := findClient(t, result.Clients, tt.id)
		if c.HealthValue != tt.value {
			t.Errorf("client %s: expected health %d, got %d", tt.id, tt.value, c.HealthValue)
		}
		if c.HealthScore != tt.tier {
			t.Errorf("client %s: expected tier %q, got %q", tt.id, tt.tier, c.HealthScore)
		}
	}
}

func TestProcess_ABCCurve(t *testing.T) {
	clients := []domain.Client{
		makeClient("big", tx("2024-06-15", 800)),
		makeClient("mid", tx("2024-06-10", 150)),
		makeClient("small", tx("2024-06-05", 50)),
	}

	result := analytics.Process(clients, domain.FilterState{})

	// 800/1000 = 80% cumulative -> A; 950/1000 = 95% -> B; beyond -> C.
	tests := []struct {
		id   string
		want domain.ABCCategory
	}{
		{"big", domain.ABCCategoryA},
		{"mid", domain.ABCCategoryB},
		{"small", domain.ABCCategoryC},
	}
	for _, tt := range tests {
		c := findClient(t, result.Clients, tt.id)
		if c.ABCCategory != tt.want {
			t.Errorf("client %s: expected %q, got %q", tt.id, tt.want, c.ABCCategory)
		}
	}

	// Result is ordered by filtered revenue, descending.
	if result.Clients[0].ID != "big" || result.Clients[2].ID != "small" {
		t.Errorf("expected revenue-descending order, got %s..%s",
			result.Clients[0].ID, result.Clients[2].ID)
	}
}

func TestProcess_OpportunityTags(t *testing.T) {
	clients := []domain.Client{
		makeClient("anchor", tx("2024-06-15", 100)),
		// at risk, global average ticket above 5k
		makeClient("premium", tx("2023-01-01", 6_000), tx("2023-12-28", 6_000)),
		// at risk, revenue above 50k but ticket below 5k
		makeClient("volume",
			tx("2023-01-01", 4_000), tx("2023-02-01", 4_000), tx("2023-03-01", 4_000),
			tx("2023-04-01", 4_000), tx("2023-05-01", 4_000), tx("2023-06-01", 4_000),
			tx("2023-07-01", 4_000), tx("2023-08-01", 4_000), tx("2023-09-01", 4_000),
			tx("2023-10-01", 4_000), tx("2023-11-01", 4_000), tx("2023-12-01", 4_000),
			tx("2023-12-28", 4_000)),
		// at risk, many cheap shipments
		makeClient("recoverable",
			tx("2023-01-01", 100), tx("2023-02-01", 100), tx("2023-03-01", 100),
			tx("2023-04-01", 100), tx("2023-05-01", 100), tx("2023-06-01", 100),
			tx("2023-07-01", 100), tx("2023-08-01", 100), tx("2023-09-01", 100),
			tx("2023-10-01", 100), tx("2023-12-28", 100)),
	}

	result := analytics.Process(clients, domain.FilterState{})

	tests := []struct {
		id  string
		tag string
	}{
		{"premium", domain.OpportunityPremium},
		{"volume", domain.OpportunityHighVolume},
		{"recoverable", domain.OpportunityRecoverable},
		{"anchor", ""}, // active clients carry no tag
	}
	for _, tt := range tests {
		c := findClient(t, result.Clients, tt.id)
		if c.OpportunityTag != tt.tag {
			t.Errorf("client %s: expected tag %q, got %q", tt.id, tt.tag, c.OpportunityTag)
		}
	}
}

func TestProcess_RecencyIgnoresFilters(t *testing.T) {
	clients := []domain.Client{
		makeClient("anchor", tx("2023-03-01", 100), tx("2024-06-15", 100)),
		makeClient("steady", tx("2023-06-01", 1_000), tx("2024-06-10", 2_000)),
	}

	result := analytics.Process(clients, domain.FilterState{Years: []int{2023}})
	c := findClient(t, result.Clients, "steady")

	// Revenue reflects the 2023 subset, recency the global history.
	if c.TotalRevenue != 1_000 || c.TotalShipments != 1 {
		t.Errorf("expected filtered revenue 1000/1 shipment, got %v/%d", c.TotalRevenue, c.TotalShipments)
	}
	if c.Recency != 5 {
		t.Errorf("expected global recency 5, got %d", c.Recency)
	}
	if c.Segment != domain.SegmentLoyal {
		t.Errorf("expected segment from global history, got %q", c.Segment)
	}
}

func TestProcess_ZeroMatchFilterKeepsUniverse(t *testing.T) {
	result := analytics.Process(segmentationFixture(), domain.FilterState{Years: []int{2030}})

	if len(result.Clients) != 0 {
		t.Errorf("expected no clients, got %d", len(result.Clients))
	}
	if len(result.ChartData) != 0 {
		t.Errorf("expected empty chart, got %d points", len(result.ChartData))
	}
	// Filter option universes come from the full dataset, so the UI can
	// always back out of a dead-end filter.
	if len(result.AvailableOrigins) == 0 || len(result.AvailableDestinations) == 0 {
		t.Error("expected full origin/destination universe to survive")
	}
}

func TestProcess_ClientIDFilterWithoutSubsetFilter(t *testing.T) {
	result := analytics.Process(segmentationFixture(), domain.FilterState{
		Clients: []string{"loyal"},
	})

	if len(result.Clients) != 1 || result.Clients[0].ID != "loyal" {
		t.Fatalf("expected only 'loyal', got %d clients", len(result.Clients))
	}
	// Reference date still anchors on the global dataset.
	if result.ReferenceDate != "2024-06-15" {
		t.Errorf("expected global reference date, got %q", result.ReferenceDate)
	}
}

func TestProcess_SegmentFilter(t *testing.T) {
	result := analytics.Process(segmentationFixture(), domain.FilterState{
		Segments: []domain.Segment{domain.SegmentAtRisk, domain.SegmentLost},
	})

	if len(result.Clients) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(result.Clients))
	}
	for _, c := range result.Clients {
		if c.Segment != domain.SegmentAtRisk && c.Segment != domain.SegmentLost {
			t.Errorf("unexpected segment %q in filtered result", c.Segment)
		}
	}
}

func TestProcess_Deterministic(t *testing.T) {
	filter := domain.FilterState{Years: []int{2023, 2024}}
	a := analytics.Process(segmentationFixture(), filter)
	b := analytics.Process(segmentationFixture(), filter)

	if !reflect.DeepEqual(a.Clients, b.Clients) {
		t.Error("expected identical client results across runs")
	}
	if len(a.ChartData) != len(b.ChartData) {
		t.Error("expected identical chart length across runs")
	}
}

func TestComputeStats(t *testing.T) {
	result := analytics.Process(segmentationFixture(), domain.FilterState{})
	stats := analytics.ComputeStats(result.Clients)

	if stats.ClientsCount != 5 {
		t.Errorf("expected 5 clients, got %d", stats.ClientsCount)
	}
	if stats.Revenue != 116_500 {
		t.Errorf("expected revenue 116500, got %v", stats.Revenue)
	}
	if stats.Shipments != 9 {
		t.Errorf("expected 9 shipments, got %d", stats.Shipments)
	}
	// champion, loyal, new are within 90 days; atrisk and lost are not.
	if stats.ActivePercent != 60 {
		t.Errorf("expected 60%% active, got %v", stats.ActivePercent)
	}
}

func TestComputeStats_Empty(t *testing.T) {
	stats := analytics.ComputeStats(nil)
	if stats.AverageTicket != 0 || stats.ActivePercent != 0 {
		t.Errorf("expected zeroed stats, got %+v", stats)
	}
}
