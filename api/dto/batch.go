package dto

import "errors"

var (
	ErrJobNotFound    = errors.New("batch job not found")
	ErrJobRunning     = errors.New("batch job is running")
	ErrAlreadyRunning = errors.New("batch job is already running")
	ErrJobFinished    = errors.New("batch job already finished")
	ErrNoItems        = errors.New("batch has no items")
	ErrInvalidItem    = errors.New("invalid batch item")
)

type SubmitItem struct {
	Kind       string `json:"kind,omitempty"`
	Path       string `json:"path"`
	Collection string `json:"collection,omitempty"`
	Chapter    string `json:"chapter,omitempty"`
}

// BatchSettings overrides the pipeline defaults. Zero fields keep the
// default; PaletteHints is a pointer so omitting it differs from false.
type BatchSettings struct {
	InkThreshold  int    `json:"ink_threshold,omitempty"`
	MaxSide       int    `json:"max_side,omitempty"`
	OutputFormat  string `json:"output_format,omitempty"`
	MaskStrategy  string `json:"mask_strategy,omitempty"`
	PaletteHints  *bool  `json:"palette_hints,omitempty"`
	PaletteMethod string `json:"palette_method,omitempty"`
}

type SubmitBatchRequest struct {
	Items    []SubmitItem   `json:"items"`
	Settings *BatchSettings `json:"settings,omitempty"`
}

type JobResponse struct {
	ID          string   `json:"id"`
	TraceID     string   `json:"trace_id,omitempty"`
	Status      string   `json:"status"`
	Current     int      `json:"current"`
	Total       int      `json:"total"`
	Progress    float64  `json:"progress"`
	Message     string   `json:"message,omitempty"`
	ETASeconds  float64  `json:"eta_seconds,omitempty"`
	OutputDir   string   `json:"output_dir,omitempty"`
	ArchivePath string   `json:"archive_path,omitempty"`
	Errors      []string `json:"errors,omitempty"`
	CreatedAt   string   `json:"created_at"`
	StartedAt   *string  `json:"started_at,omitempty"`
	CompletedAt *string  `json:"completed_at,omitempty"`
}

type JobListResponse struct {
	Batches []*JobResponse `json:"batches"`
	Total   int            `json:"total"`
}

type PageResultResponse struct {
	Success bool   `json:"success"`
	Input   string `json:"input"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ResultsResponse struct {
	ID         string               `json:"id"`
	Status     string               `json:"status"`
	Results    []PageResultResponse `json:"results"`
	Successful int                  `json:"successful"`
	Failed     int                  `json:"failed"`
	Errors     []string             `json:"errors,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
