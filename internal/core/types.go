package core

import (
	"errors"
	"fmt"

	"github.com/printforge/dispatch/internal/db"
)

var (
	ErrNoEndpoints = errors.New("no printer endpoints configured")
	ErrNoFiles     = errors.New("print request has no files")
)

// Page size, color and sided values accepted on printing options.
const (
	PageSizeA4 = "A4"
	PageSizeA3 = "A3"

	ColorModeColor = "color"
	ColorModeBW    = "bw"
	ColorModeMixed = "mixed"

	SidedSingle = "single"
	SidedDouble = "double"
)

// PrintingOptions mirrors the printingOptions object on the backend wire
// contract.
type PrintingOptions struct {
	PageSize   string         `json:"pageSize"`
	Color      string         `json:"color"`
	Sided      string         `json:"sided"`
	Copies     int            `json:"copies"`
	PageCount  int            `json:"pageCount"`
	PageColors *db.PageColors `json:"pageColors,omitempty"`
}

type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// PrintJobRequest is the transient payload for one dispatch attempt.
// Either the array fields or the legacy single-file fields are populated,
// never both.
type PrintJobRequest struct {
	FileURLs  []string `json:"fileURLs,omitempty"`
	FileNames []string `json:"originalFileNames,omitempty"`
	FileTypes []string `json:"fileTypes,omitempty"`

	// Legacy single-file form.
	FileURL  string `json:"fileUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileType string `json:"fileType,omitempty"`

	PrintingOptions PrintingOptions `json:"printingOptions"`
	PrinterIndex    int             `json:"printerIndex"`
	OrderID         string          `json:"orderId,omitempty"`
	CustomerInfo    *CustomerInfo   `json:"customerInfo,omitempty"`

	// JobID is the persisted print_jobs row this request was built from,
	// zero for requests that arrived through the intake API directly.
	JobID int64 `json:"-"`
}

// HasArrayFiles reports whether the request uses the multi-file form.
func (r *PrintJobRequest) HasArrayFiles() bool {
	return len(r.FileURLs) > 0
}

// HasLegacyFile reports whether the request uses the single-file form.
func (r *PrintJobRequest) HasLegacyFile() bool {
	return r.FileURL != ""
}

// fileTypes returns every file type the request carries, for capability
// matching. Absent types on the array form fall back to the legacy field.
func (r *PrintJobRequest) fileTypes() []string {
	if r.HasArrayFiles() {
		if len(r.FileTypes) > 0 {
			return r.FileTypes
		}
		return nil
	}
	if r.FileType != "" {
		return []string{r.FileType}
	}
	return nil
}

// DispatchResult is the structured outcome of a dispatch attempt.
// Expected failures come back here, never as a raised error.
type DispatchResult struct {
	Success        bool   `json:"success"`
	JobID          string `json:"jobId,omitempty"`
	DeliveryNumber string `json:"deliveryNumber,omitempty"`
	Error          string `json:"error,omitempty"`
}

// RequestFromJob builds the dispatch payload for a persisted job. Jobs
// are stored in the array form only; legacy single-file intake is
// normalized before it reaches the table.
func RequestFromJob(j *db.PrintJob) (*PrintJobRequest, error) {
	if len(j.FileURLs) == 0 {
		return nil, fmt.Errorf("job %d: %w", j.ID, ErrNoFiles)
	}

	var customer *CustomerInfo
	if j.CustomerName != "" || j.CustomerEmail != "" || j.CustomerPhone != "" {
		customer = &CustomerInfo{
			Name:  j.CustomerName,
			Email: j.CustomerEmail,
			Phone: j.CustomerPhone,
		}
	}

	return &PrintJobRequest{
		FileURLs:  j.FileURLs,
		FileNames: j.FileNames,
		FileTypes: j.FileTypes,
		PrintingOptions: PrintingOptions{
			PageSize:   j.PageSize,
			Color:      j.ColorMode,
			Sided:      j.Sided,
			Copies:     j.Copies,
			PageCount:  j.PageCount,
			PageColors: j.PageColors,
		},
		PrinterIndex: j.PrinterIndex,
		OrderID:      j.OrderID,
		CustomerInfo: customer,
		JobID:        j.ID,
	}, nil
}
