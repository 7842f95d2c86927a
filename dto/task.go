package dto

import "docparser/models"

// AsyncParseResponse is returned by POST /parse_async.
type AsyncParseResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// TaskStatusResponse is returned by GET /tasks/{task_id}.
type TaskStatusResponse struct {
	TaskID    string              `json:"task_id"`
	Status    string              `json:"status"`
	Progress  float64             `json:"progress"`
	Result    *models.ParseResult `json:"result"`
	Error     *string             `json:"error"`
	CreatedAt string              `json:"created_at"`
	UpdatedAt string              `json:"updated_at"`
}

// ParseURLRequest is the JSON body of POST /parse_url.
type ParseURLRequest struct {
	URL           string `json:"url"`
	Filename      string `json:"filename,omitempty"`
	Backend       string `json:"backend,omitempty"`
	MaxPages      *int   `json:"max_pages,omitempty"`
	TableEnable   *bool  `json:"table_enable,omitempty"`
	FormulaEnable *bool  `json:"formula_enable,omitempty"`
	Lang          string `json:"lang,omitempty"`
	ParseMethod   string `json:"parse_method,omitempty"`
}

type HealthResponse struct {
	Status        string  `json:"status"`
	GPUAvailable  bool    `json:"gpu_available"`
	ModelsLoaded  bool    `json:"models_loaded"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type VersionResponse struct {
	Version           string         `json:"version"`
	APIVersion        string         `json:"api_version"`
	GoVersion         string         `json:"go_version"`
	BackendsAvailable []string       `json:"backends_available"`
	Config            map[string]any `json:"config"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
