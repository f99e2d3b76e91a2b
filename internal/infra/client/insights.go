package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/slelog/crm-dashboard-go/internal/domain"
	"github.com/slelog/crm-dashboard-go/internal/infra/resilience"
)

// recentHistoryWindow caps how many transactions travel with a
// per-client insight request.
const recentHistoryWindow = 10

// InsightsClient calls the narrative-AI service that turns scored
// clients into tactical suggestions and portfolio markdown reports.
type InsightsClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewInsightsClient creates a new InsightsClient.
func NewInsightsClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *InsightsClient {
	return &InsightsClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

type clientInsightRequest struct {
	Name          string               `json:"name"`
	Segment       domain.Segment       `json:"segment"`
	HealthValue   int                  `json:"health_value"`
	TotalRevenue  float64              `json:"total_revenue"`
	Recency       int                  `json:"recency"`
	AverageTicket float64              `json:"average_ticket"`
	RecentHistory []domain.Transaction `json:"recent_history"`
}

type portfolioReportResponse struct {
	Report string `json:"report"`
}

// ClientInsights requests the small ordered list of narrative
// suggestions for one scored client.
func (c *InsightsClient) ClientInsights(ctx context.Context, client *domain.Client) ([]domain.Insight, error) {
	ctx, span := tracer.Start(ctx, "InsightsClient.ClientInsights")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", client.ID))

	recent := client.History
	if len(recent) > recentHistoryWindow {
		recent = recent[len(recent)-recentHistoryWindow:]
	}

	req := clientInsightRequest{
		Name:          client.Name,
		Segment:       client.Segment,
		HealthValue:   client.HealthValue,
		TotalRevenue:  client.TotalRevenue,
		Recency:       client.Recency,
		AverageTicket: client.AverageTicket,
		RecentHistory: recent,
	}

	var insights []domain.Insight
	if err := c.post(ctx, "/v1/insights/client", req, &insights); err != nil {
		return nil, err
	}
	return insights, nil
}

// PortfolioReport requests the executive markdown report for the
// condensed portfolio snapshot.
func (c *InsightsClient) PortfolioReport(ctx context.Context, portfolio *domain.PortfolioContext) (string, error) {
	ctx, span := tracer.Start(ctx, "InsightsClient.PortfolioReport")
	defer span.End()
	span.SetAttributes(attribute.Int("portfolio.clients", portfolio.TotalClients))

	var resp portfolioReportResponse
	if err := c.post(ctx, "/v1/insights/portfolio", portfolio, &resp); err != nil {
		return "", err
	}
	return resp.Report, nil
}

func (c *InsightsClient) post(ctx context.Context, path string, payload, out any) error {
	_, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(payload)
			if err != nil {
				return err
			}

			url := c.baseURL + path
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("insights API returned status %d", resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(out)
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return nil, nil
	})

	if err != nil {
		return &domain.ErrExternalService{Service: "insights", Err: err}
	}
	return nil
}
