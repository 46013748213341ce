package batch

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

type ItemKind string

const (
	ItemFile    ItemKind = "file"
	ItemFolder  ItemKind = "folder"
	ItemArchive ItemKind = "archive"
)

type Item struct {
	Kind       ItemKind `json:"kind"`
	Path       string   `json:"path"`
	Collection string   `json:"collection,omitempty"`
	Chapter    string   `json:"chapter,omitempty"`
}

// InLibrary reports whether results for this item belong in the managed
// library tree rather than the ad-hoc batch output directory.
func (it Item) InLibrary() bool {
	return it.Collection != "" && it.Chapter != ""
}

type OutputFormat string

const (
	FormatFolder  OutputFormat = "folder"
	FormatArchive OutputFormat = "archive"
	FormatAuto    OutputFormat = "auto"
)

type Settings struct {
	InkThreshold  int          `json:"ink_threshold"`
	MaxSide       int          `json:"max_side"`
	OutputFormat  OutputFormat `json:"output_format"`
	MaskStrategy  string       `json:"mask_strategy,omitempty"`
	PaletteHints  bool         `json:"palette_hints"`
	PaletteMethod string       `json:"palette_method,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		InkThreshold: 80,
		MaxSide:      1024,
		OutputFormat: FormatAuto,
		PaletteHints: true,
	}
}

type PageResult struct {
	Success bool   `json:"success"`
	Input   string `json:"input"`
	Output  string `json:"output,omitempty"`
	Err     string `json:"error,omitempty"`
}

func SuccessResult(input, output string) PageResult {
	return PageResult{Success: true, Input: input, Output: output}
}

func FailureResult(input string, err error) PageResult {
	r := PageResult{Success: false, Input: input}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

type Job struct {
	ID              string       `json:"id"`
	TraceID         string       `json:"trace_id,omitempty"`
	Status          Status       `json:"status"`
	Items           []Item       `json:"items"`
	Settings        Settings     `json:"settings"`
	Current         int          `json:"current"`
	Total           int          `json:"total"`
	Message         string       `json:"message,omitempty"`
	Errors          []string     `json:"errors,omitempty"`
	Results         []PageResult `json:"results,omitempty"`
	OutputDir       string       `json:"output_dir,omitempty"`
	ArchivePath     string       `json:"archive_path,omitempty"`
	ETASeconds      float64      `json:"eta_seconds,omitempty"`
	CancelRequested bool         `json:"cancel_requested,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

func NewJob(items []Item, settings Settings) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Status:    StatusCreated,
		Items:     items,
		Settings:  settings,
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy so readers never share slices with a running job.
func (j *Job) Clone() *Job {
	c := *j
	c.Items = append([]Item(nil), j.Items...)
	c.Errors = append([]string(nil), j.Errors...)
	c.Results = append([]PageResult(nil), j.Results...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (j *Job) Progress() float64 {
	if j.Total == 0 {
		return 0
	}
	return float64(j.Current) / float64(j.Total) * 100
}

func (j *Job) Succeeded() int {
	n := 0
	for _, r := range j.Results {
		if r.Success {
			n++
		}
	}
	return n
}

func (j *Job) Failed() int {
	n := 0
	for _, r := range j.Results {
		if !r.Success {
			n++
		}
	}
	return n
}
