// Package domain defines the core business entities for the CRM dashboard.
// These models are independent of transport and storage and represent the
// canonical data structures used throughout the analytics pipeline.
package domain

// ============================================================
// Segmentation enums
// ============================================================

// Segment is the lifecycle segment of a client. Labels are the
// Portuguese display values used across the product.
type Segment string

const (
	SegmentChampions Segment = "Cliente Fiel"
	SegmentLoyal     Segment = "Recorrente"
	SegmentAtRisk    Segment = "Risco de Perda"
	SegmentLost      Segment = "Inativo/Perdido"
	SegmentNew       Segment = "Novo Cliente"
)

// HealthTier buckets the 0-100 health score.
type HealthTier string

const (
	HealthExcellent HealthTier = "Excelente"
	HealthGood      HealthTier = "Bom"
	HealthWarning   HealthTier = "Atenção"
	HealthCritical  HealthTier = "Crítico"
)

// ABCCategory is the revenue-curve tier, recomputed per filtered view.
type ABCCategory string

const (
	ABCCategoryA ABCCategory = "Curva A"
	ABCCategoryB ABCCategory = "Curva B"
	ABCCategoryC ABCCategory = "Curva C"
)

// Opportunity tags attached to inactive clients with recovery potential.
const (
	OpportunityPremium     = "Frete Premium"
	OpportunityHighVolume  = "Alto Volume"
	OpportunityRecoverable = "Recuperável"
)

// ============================================================
// Ledger entities
// ============================================================

// Transaction is one shipment/invoice line. Dates are ISO YYYY-MM-DD
// strings so chronological order matches lexicographic order; year and
// month are cached for O(1) filter membership tests.
type Transaction struct {
	Date        string  `json:"date"`
	Value       float64 `json:"value"`
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	Year        int     `json:"year"`
	Month       int     `json:"month"`
}

// Justification records why a client is inactive, optionally pointing at
// the tax id that replaced it. Supplied by the operator, never derived.
type Justification struct {
	Reason           string `json:"reason"`
	ReplacementTaxID string `json:"replacementTaxId,omitempty"`
	CreatedAt        string `json:"createdAt"`
	Author           string `json:"author,omitempty"`
}

// Action is one free-text contact-log entry for a client.
type Action struct {
	ID     string `json:"id"`
	Date   string `json:"date"`
	Note   string `json:"note"`
	Author string `json:"author,omitempty"`
}

// Overlay is the user-maintained state attached to a client before
// scoring. The pipeline passes it through untouched.
type Overlay struct {
	Justification *Justification `json:"justification,omitempty"`
	Actions       []Action       `json:"actions,omitempty"`
}

// Client is one customer aggregate: identity, full transaction history
// and the per-view derived fields filled in by the scoring engine.
type Client struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	CNPJ string `json:"cnpj"` // original formatting kept for display

	// History is chronological and immutable after ingestion.
	History []Transaction `json:"history"`

	FirstShipmentDate string   `json:"firstShipmentDate"`
	LastShipmentDate  string   `json:"lastShipmentDate"`
	Origin            []string `json:"origin"`
	Destination       []string `json:"destination"`

	// Derived per filter application (filtered subset of History).
	TotalRevenue   float64 `json:"totalRevenue"`
	TotalShipments int     `json:"totalShipments"`
	Frequency      int     `json:"frequency"`
	Monetary       float64 `json:"monetary"`
	AverageTicket  float64 `json:"averageTicket"`

	// Recency always uses the global LastShipmentDate, never the
	// filtered subset, so segmentation reflects true client status.
	Recency int `json:"recency"`

	Segment        Segment     `json:"segment"`
	ABCCategory    ABCCategory `json:"abcCategory"`
	HealthScore    HealthTier  `json:"healthScore"`
	HealthValue    int         `json:"healthValue"`
	OpportunityTag string      `json:"opportunityTag,omitempty"`

	// User-supplied overlays, merged in before scoring.
	Justification *Justification `json:"justification,omitempty"`
	Actions       []Action       `json:"actions,omitempty"`
}

// GlobalRevenue sums the full unfiltered history.
func (c *Client) GlobalRevenue() float64 {
	var total float64
	for _, t := range c.History {
		total += t.Value
	}
	return total
}

// GlobalAverageTicket is the average value over the full history.
func (c *Client) GlobalAverageTicket() float64 {
	if len(c.History) == 0 {
		return 0
	}
	return c.GlobalRevenue() / float64(len(c.History))
}

// ============================================================
// Filtering & results
// ============================================================

// FilterState selects the current view. An empty slice on any dimension
// means "no restriction"; dimensions combine with AND, values within a
// dimension with OR.
type FilterState struct {
	Years        []int     `json:"years"`
	Months       []int     `json:"months"`
	Clients      []string  `json:"clients"`
	Origins      []string  `json:"origins"`
	Destinations []string  `json:"destinations"`
	Segments     []Segment `json:"segments"`
}

// ChartDataPoint is one month on the revenue evolution chart. Exactly one
// of Revenue/ProjectedRevenue is set, except the boundary month (last
// historical period) which carries both so the line joins continuously.
type ChartDataPoint struct {
	Name             string   `json:"name"` // e.g. "nov/24"
	Date             string   `json:"date"` // YYYY-MM
	Revenue          *float64 `json:"revenue"`
	ProjectedRevenue *float64 `json:"projectedRevenue"`
	IsProjection     bool     `json:"isProjection"`
}

// PortfolioStats is the KPI block over the current filtered view.
type PortfolioStats struct {
	Revenue       float64 `json:"revenue"`
	Shipments     int     `json:"shipments"`
	ClientsCount  int     `json:"clientsCount"`
	AverageTicket float64 `json:"averageTicket"`
	ActivePercent float64 `json:"activePercent"`
}

// ProcessResult is the output of one scoring pass.
type ProcessResult struct {
	ReferenceDate         string           `json:"referenceDate"` // YYYY-MM-DD, "" when no data
	Clients               []Client         `json:"clients"`
	ChartData             []ChartDataPoint `json:"chartData"`
	AvailableOrigins      []string         `json:"availableOrigins"`
	AvailableDestinations []string         `json:"availableDestinations"`
}

// ============================================================
// Alerts
// ============================================================

// AlertKind classifies a behavioral-break alert.
type AlertKind string

const (
	AlertTicketDrop    AlertKind = "ticket_drop"
	AlertFrequencyDrop AlertKind = "frequency_drop"
	AlertAnomaly       AlertKind = "anomaly"
)

// Alert flags a behavioral break for one client. Ephemeral: recomputed
// whenever the scored set changes, never persisted. IDs are derived from
// client id + kind so callers can track dismissals across recomputes.
type Alert struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"clientId"`
	ClientName string    `json:"clientName"`
	Kind       AlertKind `json:"type"`
	Severity   string    `json:"severity"` // high | medium
	Metric     string    `json:"metric"`   // e.g. "-34%", "27d"
	Message    string    `json:"message"`
	Client     *Client   `json:"client,omitempty"`
}

// ============================================================
// Narrative insights (external AI collaborator)
// ============================================================

// Insight is one narrative suggestion for a client, produced by the
// external generative-AI service. Fully optional: the pipeline never
// depends on these being available.
type Insight struct {
	Category    string `json:"category"` // opportunity | risk | attention | retention
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PortfolioContext is the condensed portfolio snapshot sent to the AI
// collaborator for the executive markdown report.
type PortfolioContext struct {
	TotalRevenue  float64           `json:"total_revenue"`
	TotalClients  int               `json:"total_clients"`
	ActiveClients int               `json:"active_clients"`
	TopClients    []TopClientSample `json:"top_clients_sample"`
}

// TopClientSample is one row of the portfolio context.
type TopClientSample struct {
	Name      string  `json:"name"`
	Revenue   float64 `json:"revenue"`
	Shipments int     `json:"shipments"`
	Recency   int     `json:"recency"`
	Health    int     `json:"health"`
}
