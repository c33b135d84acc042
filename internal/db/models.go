package db

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrPrinterNotFound = errors.New("printer not found")
	ErrJobNotFound     = errors.New("job not found")
	ErrJobNotPending   = errors.New("job is not pending")
)

// Printer statuses. The dispatch core only ever moves printers between
// online and busy implicitly via current_job_id; the rest are set by
// admin action or health diagnostics.
const (
	PrinterStatusOnline      = "online"
	PrinterStatusOffline     = "offline"
	PrinterStatusError       = "error"
	PrinterStatusMaintenance = "maintenance"
	PrinterStatusBusy        = "busy"
)

// Capabilities is stored as a JSON blob in the printers table.
type Capabilities struct {
	SupportedPageSizes []string `json:"supported_page_sizes"`
	SupportsColor      bool     `json:"supports_color"`
	SupportsDuplex     bool     `json:"supports_duplex"`
	MaxCopies          int      `json:"max_copies"`
	SupportedFileTypes []string `json:"supported_file_types"`
}

func (c Capabilities) SupportsPageSize(size string) bool {
	for _, s := range c.SupportedPageSizes {
		if s == size {
			return true
		}
	}
	return false
}

func (c Capabilities) SupportsFileType(fileType string) bool {
	for _, t := range c.SupportedFileTypes {
		if t == fileType {
			return true
		}
	}
	return false
}

type Printer struct {
	ID                int64        `json:"id"`
	Name              string       `json:"name"`
	PrinterID         string       `json:"printer_id,omitempty"`
	Status            string       `json:"status"`
	Capabilities      Capabilities `json:"capabilities"`
	CurrentJobID      *int64       `json:"current_job_id,omitempty"`
	QueueLength       int          `json:"queue_length"`
	IsActive          bool         `json:"is_active"`
	AutoPrintEnabled  bool         `json:"auto_print_enabled"`
	LastUsed          *time.Time   `json:"last_used,omitempty"`
	TotalPagesPrinted int64        `json:"total_pages_printed"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Job statuses; the state machine is pending → printing → completed or
// failed, failed → pending while retries remain, and pending/printing →
// cancelled by external action.
const (
	JobStatusPending   = "pending"
	JobStatusPrinting  = "printing"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// PageColors splits a mixed-color job into per-mode page lists.
type PageColors struct {
	ColorPages []int `json:"colorPages"`
	BWPages    []int `json:"bwPages"`
}

type PrintJob struct {
	ID            int64       `json:"id"`
	OrderID       string      `json:"order_id"`
	FileURLs      []string    `json:"file_urls"`
	FileNames     []string    `json:"file_names"`
	FileTypes     []string    `json:"file_types"`
	PageSize      string      `json:"page_size"`
	ColorMode     string      `json:"color_mode"`
	Sided         string      `json:"sided"`
	Copies        int         `json:"copies"`
	PageCount     int         `json:"page_count"`
	PageColors    *PageColors `json:"page_colors,omitempty"`
	PrinterIndex  int         `json:"printer_index"`
	PrinterID     *int64      `json:"printer_id,omitempty"`
	PrinterName   string      `json:"printer_name,omitempty"`
	Status        string      `json:"status"`
	Priority      int         `json:"priority"`
	RetryCount    int         `json:"retry_count"`
	MaxRetries    int         `json:"max_retries"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	CustomerName  string      `json:"customer_name,omitempty"`
	CustomerEmail string      `json:"customer_email,omitempty"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	DurationMs    *int64      `json:"actual_duration_ms,omitempty"`
}

// TotalPages is what gets added to the printer's page counter when the
// job completes.
func (j *PrintJob) TotalPages() int64 {
	return int64(j.PageCount) * int64(j.Copies)
}

func marshalStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
