package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/slelog/crm-dashboard-go/internal/domain"
	"github.com/slelog/crm-dashboard-go/internal/infra/observability"
	"github.com/slelog/crm-dashboard-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// maxLedgerBytes caps uploaded ledger payloads (50 MB covers years of
// daily shipment rows with room to spare).
const maxLedgerBytes = 50 << 20

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(dash *service.Dashboard, insights *service.Insights, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(dash, insights))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. 📊 Dashboard (filtered view: clients, chart, KPIs, alerts)
		// POST /v1/dashboard
		// =============================================
		r.Post("/dashboard", dashboardHandler(dash, metrics, logger))

		// =============================================
		// 2. 👤 Clientes
		// GET /v1/clients
		// GET /v1/clients/{clientId}
		// =============================================
		r.Get("/clients", listClientsHandler(dash, logger))
		r.Get("/clients/{clientId}", getClientHandler(dash, metrics, logger))

		// =============================================
		// 3. 🚨 Alertas comportamentais
		// GET /v1/alerts
		// =============================================
		r.Get("/alerts", listAlertsHandler(dash, logger))

		// =============================================
		// 4. 📝 Overlays (justificativa + registro de contato)
		// PUT  /v1/clients/{clientId}/justification
		// POST /v1/clients/{clientId}/actions
		// =============================================
		r.Put("/clients/{clientId}/justification", justificationHandler(dash, metrics, logger))
		r.Post("/clients/{clientId}/actions", logActionHandler(dash, metrics, logger))

		// =============================================
		// 5. 🤖 Insights IA
		// GET  /v1/clients/{clientId}/insights
		// POST /v1/portfolio/analysis
		// =============================================
		r.Get("/clients/{clientId}/insights", clientInsightsHandler(dash, insights, logger))
		r.Post("/portfolio/analysis", portfolioAnalysisHandler(dash, insights, logger))

		// =============================================
		// 6. 📄 Ledger (ingestão)
		// POST /v1/ledger          — upload raw CSV payload
		// POST /v1/ledger/refresh  — re-fetch from configured source
		// =============================================
		r.Post("/ledger", uploadLedgerHandler(dash, metrics, logger))
		r.Post("/ledger/refresh", refreshLedgerHandler(dash, metrics, logger))

		// =============================================
		// 7. 📤 Exportação
		// GET /v1/export/reactivation
		// =============================================
		r.Get("/export/reactivation", exportReactivationHandler(dash, logger))

		// =============================================
		// 8. 📈 Métricas
		// GET /v1/metrics/pipeline
		// =============================================
		r.Get("/metrics/pipeline", pipelineMetricsHandler(metrics))
	})

	return r
}

// ============================================================
// 1. Dashboard — POST /v1/dashboard
// ============================================================

func dashboardHandler(dash *service.Dashboard, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dashboard")
		defer span.End()

		var filter domain.FilterState
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
				metrics.IncrRequest("error")
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		view := dash.View(ctx, filter)
		span.SetAttributes(attribute.Int("clients.count", len(view.Clients)))

		metrics.IncrRequest("success")
		writeJSON(w, http.StatusOK, view)
	}
}

// ============================================================
// 2. Clientes
// ============================================================

func listClientsHandler(dash *service.Dashboard, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/clients")
		defer span.End()

		view := dash.View(ctx, domain.FilterState{})
		page, pageSize := parsePagination(r)

		total := len(view.Clients)
		startIdx := (page - 1) * pageSize
		if startIdx > total {
			startIdx = total
		}
		endIdx := startIdx + pageSize
		if endIdx > total {
			endIdx = total
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Client]{
			Data:     view.Clients[startIdx:endIdx],
			Total:    total,
			Page:     page,
			PageSize: pageSize,
			HasMore:  endIdx < total,
		})
	}
}

func getClientHandler(dash *service.Dashboard, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/clients/{clientId}")
		defer span.End()

		clientID := chi.URLParam(r, "clientId")
		span.SetAttributes(attribute.String("client.id", clientID))

		client, err := dash.Client(ctx, clientID)
		if err != nil {
			metrics.IncrRequest("error")
			handleServiceError(w, err, logger)
			return
		}

		metrics.IncrRequest("success")
		writeJSON(w, http.StatusOK, client)
	}
}

// ============================================================
// 3. Alertas — GET /v1/alerts
// ============================================================

func listAlertsHandler(dash *service.Dashboard, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/alerts")
		defer span.End()

		alerts := dash.Alerts(ctx)
		span.SetAttributes(attribute.Int("alerts.count", len(alerts)))

		writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
	}
}

// ============================================================
// 4. Overlays
// ============================================================

func justificationHandler(dash *service.Dashboard, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/clients/{clientId}/justification")
		defer span.End()

		clientID := chi.URLParam(r, "clientId")
		span.SetAttributes(attribute.String("client.id", clientID))

		var j domain.Justification
		if err := json.NewDecoder(r.Body).Decode(&j); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := dash.Justify(ctx, clientID, j); err != nil {
			metrics.IncrRequest("error")
			handleServiceError(w, err, logger)
			return
		}

		metrics.IncrRequest("success")
		writeJSON(w, http.StatusOK, domain.SuccessResponse{
			Message: "justification saved",
			ID:      clientID,
		})
	}
}

func logActionHandler(dash *service.Dashboard, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/clients/{clientId}/actions")
		defer span.End()

		clientID := chi.URLParam(r, "clientId")
		span.SetAttributes(attribute.String("client.id", clientID))

		var a domain.Action
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		stored, err := dash.LogAction(ctx, clientID, a)
		if err != nil {
			metrics.IncrRequest("error")
			handleServiceError(w, err, logger)
			return
		}

		metrics.IncrRequest("success")
		writeJSON(w, http.StatusCreated, stored)
	}
}

// ============================================================
// 5. Insights IA
// ============================================================

func clientInsightsHandler(dash *service.Dashboard, insights *service.Insights, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/clients/{clientId}/insights")
		defer span.End()

		clientID := chi.URLParam(r, "clientId")
		span.SetAttributes(attribute.String("client.id", clientID))

		client, err := dash.Client(ctx, clientID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		result := insights.ForClient(ctx, client)
		writeJSON(w, http.StatusOK, map[string]any{
			"insights": result,
			"enabled":  insights.Enabled(),
		})
	}
}

func portfolioAnalysisHandler(dash *service.Dashboard, insights *service.Insights, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/portfolio/analysis")
		defer span.End()

		var filter domain.FilterState
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		view := dash.View(ctx, filter)
		analysis := insights.Portfolio(ctx, view.Clients)
		writeJSON(w, http.StatusOK, analysis)
	}
}

// ============================================================
// 6. Ledger
// ============================================================

func uploadLedgerHandler(dash *service.Dashboard, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/ledger")
		defer span.End()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxLedgerBytes))
		if err != nil {
			metrics.IncrRequest("error")
			writeError(w, http.StatusBadRequest, "could not read request body")
			return
		}
		if len(body) == 0 {
			metrics.IncrRequest("error")
			writeError(w, http.StatusBadRequest, "ledger payload is empty")
			return
		}

		count := dash.ReplaceLedger(string(body))
		span.SetAttributes(attribute.Int("clients.count", count))

		metrics.IncrRequest("success")
		writeJSON(w, http.StatusOK, map[string]any{"clients": count})
	}
}

func refreshLedgerHandler(dash *service.Dashboard, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/ledger/refresh")
		defer span.End()

		count := dash.LoadLedger(ctx)
		span.SetAttributes(attribute.Int("clients.count", count))

		metrics.IncrRequest("success")
		writeJSON(w, http.StatusOK, map[string]any{"clients": count})
	}
}

// ============================================================
// 7. Exportação — GET /v1/export/reactivation
// ============================================================

func exportReactivationHandler(dash *service.Dashboard, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/export/reactivation")
		defer span.End()

		view := dash.View(ctx, domain.FilterState{})
		csv := service.BuildReactivationCSV(view.Clients)

		filename := "reativacao_" + time.Now().Format("2006-01-02") + ".csv"
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, csv)
	}
}

// ============================================================
// 8. Métricas & Health
// ============================================================

func pipelineMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetPipelineSnapshot())
	}
}

func healthzHandler(dash *service.Dashboard, insights *service.Insights) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "crm-dashboard", Status: "healthy", LastChecked: now},
		}

		// An empty dataset is degraded, not unhealthy: the pipeline works,
		// the source just has nothing (or failed to) load.
		datasetStatus := "healthy"
		if dash.ClientCount() == 0 {
			datasetStatus = "degraded"
		}
		services = append(services, domain.ServiceHealth{
			Name: "ledger-dataset", Status: datasetStatus, LastChecked: now,
		})

		insightsStatus := "healthy"
		if !insights.Enabled() {
			insightsStatus = "disabled"
		}
		services = append(services, domain.ServiceHealth{
			Name: "insights-api", Status: insightsStatus, LastChecked: now,
		})

		overall := "healthy"
		for _, s := range services {
			if s.Status == "degraded" {
				overall = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overall,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
