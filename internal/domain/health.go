package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual collaborator.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LastChecked string `json:"lastChecked"`
}

// PipelineMetrics is returned by GET /v1/metrics/pipeline.
type PipelineMetrics struct {
	TotalRequests int64   `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	CacheHitRate  float64 `json:"cacheHitRate"`
	RowsAccepted  int64   `json:"rowsAccepted"`
	RowsRejected  int64   `json:"rowsRejected"`
	AlertsEmitted int64   `json:"alertsEmitted"`
	Period        string  `json:"period"`
}

// ListResponse wraps paginated list results.
type ListResponse[T any] struct {
	Data     []T  `json:"data"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
