// Package client implements the HTTP adapters for the service's
// external collaborators: the remote sheet that exports the ledger as
// CSV and the narrative-insight AI service.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/slelog/crm-dashboard-go/internal/domain"
	"github.com/slelog/crm-dashboard-go/internal/infra/resilience"
)

// SheetClient fetches the ledger CSV export from a remote spreadsheet URL.
type SheetClient struct {
	httpClient *http.Client
	url        string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewSheetClient creates a new SheetClient.
func NewSheetClient(httpClient *http.Client, url string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *SheetClient {
	return &SheetClient{
		httpClient: httpClient,
		url:        url,
		cb:         cb,
		cfg:        cfg,
	}
}

// FetchLedger downloads the full CSV payload as one string.
func (c *SheetClient) FetchLedger(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "SheetClient.FetchLedger")
	defer span.End()
	span.SetAttributes(attribute.String("sheet.url", c.url))

	var payload string

	result, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
			if err != nil {
				return err
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("sheet export returned status %d", resp.StatusCode)
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			payload = string(body)
			return nil
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return payload, nil
	})

	if err != nil {
		return "", &domain.ErrExternalService{Service: "sheet", Err: err}
	}

	return result.(string), nil
}

// FileClient reads the ledger payload from a local file. Used as the
// data source when no remote sheet is configured.
type FileClient struct {
	path string
}

// NewFileClient creates a new FileClient.
func NewFileClient(path string) *FileClient {
	return &FileClient{path: path}
}

// FetchLedger reads the whole file as one string.
func (c *FileClient) FetchLedger(ctx context.Context) (string, error) {
	_, span := tracer.Start(ctx, "FileClient.FetchLedger")
	defer span.End()
	span.SetAttributes(attribute.String("ledger.path", c.path))

	data, err := os.ReadFile(c.path)
	if err != nil {
		return "", &domain.ErrExternalService{Service: "ledger-file", Err: err}
	}
	return string(data), nil
}
