// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/slelog/crm-dashboard-go/internal/domain"
)

// LedgerFetcher retrieves the raw delimited ledger payload. A failed
// fetch yields an error that callers degrade to an empty dataset; the
// pipeline treats empty input as a valid zero-result state.
type LedgerFetcher interface {
	FetchLedger(ctx context.Context) (string, error)
}

// InsightGenerator is the external generative-AI collaborator. Fully
// optional: absence of a response must never block scoring or alerting.
type InsightGenerator interface {
	ClientInsights(ctx context.Context, client *domain.Client) ([]domain.Insight, error)
	PortfolioReport(ctx context.Context, portfolio *domain.PortfolioContext) (string, error)
}

// OverlayStore keeps the user-maintained per-client overlay
// (justification + contact log). The pipeline only reads merged values
// and reproduces them unchanged on every client it returns.
type OverlayStore interface {
	Get(clientID string) (domain.Overlay, bool)
	All() map[string]domain.Overlay
	SaveJustification(clientID string, j domain.Justification) error
	AppendAction(clientID string, a domain.Action) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Flush()
}
