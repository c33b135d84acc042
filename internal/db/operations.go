package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type PrinterOperations struct {
	db *sql.DB
}

func (o *PrinterOperations) Create(ctx context.Context, p *Printer) error {
	if p.Status == "" {
		p.Status = PrinterStatusOffline
	}
	caps, err := json.Marshal(p.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to encode capabilities: %w", err)
	}

	var printerID interface{}
	if p.PrinterID != "" {
		printerID = p.PrinterID
	}

	result, err := o.db.ExecContext(ctx, insertPrinter,
		p.Name, printerID, p.Status, string(caps), p.IsActive, p.AutoPrintEnabled)
	if err != nil {
		return fmt.Errorf("failed to create printer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get printer id: %w", err)
	}
	p.ID = id
	return nil
}

func (o *PrinterOperations) GetByID(ctx context.Context, id int64) (*Printer, error) {
	return o.scanOne(o.db.QueryRowContext(ctx, getPrinterByID, id))
}

func (o *PrinterOperations) GetByName(ctx context.Context, name string) (*Printer, error) {
	return o.scanOne(o.db.QueryRowContext(ctx, getPrinterByName, name))
}

func (o *PrinterOperations) List(ctx context.Context) ([]*Printer, error) {
	return o.queryMany(ctx, listPrinters)
}

// ListIdle returns the printers the scheduler may assign work to.
func (o *PrinterOperations) ListIdle(ctx context.Context) ([]*Printer, error) {
	return o.queryMany(ctx, listIdlePrinters)
}

func (o *PrinterOperations) Update(ctx context.Context, p *Printer) error {
	caps, err := json.Marshal(p.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to encode capabilities: %w", err)
	}

	var printerID interface{}
	if p.PrinterID != "" {
		printerID = p.PrinterID
	}

	result, err := o.db.ExecContext(ctx, updatePrinter,
		p.Name, printerID, string(caps), p.IsActive, p.AutoPrintEnabled, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update printer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrPrinterNotFound
	}
	return nil
}

func (o *PrinterOperations) UpdateStatus(ctx context.Context, id int64, status string) error {
	result, err := o.db.ExecContext(ctx, updatePrinterStatus, status, id)
	if err != nil {
		return fmt.Errorf("failed to update printer status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrPrinterNotFound
	}
	return nil
}

func (o *PrinterOperations) Delete(ctx context.Context, id int64) error {
	result, err := o.db.ExecContext(ctx, deletePrinter, id)
	if err != nil {
		return fmt.Errorf("failed to delete printer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrPrinterNotFound
	}
	return nil
}

// CountByAvailability reports how many printers are idle-and-eligible vs
// everything else, for the status aggregate.
func (o *PrinterOperations) CountByAvailability(ctx context.Context) (available, busy, offline int, err error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT
			CASE
				WHEN is_active = 1 AND auto_print_enabled = 1 AND status = 'online' AND current_job_id IS NULL THEN 'available'
				WHEN current_job_id IS NOT NULL THEN 'busy'
				ELSE 'offline'
			END AS bucket,
			COUNT(*)
		FROM printers GROUP BY bucket
	`)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count printers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bucket string
		var count int
		if err := rows.Scan(&bucket, &count); err != nil {
			return 0, 0, 0, fmt.Errorf("failed to scan printer count: %w", err)
		}
		switch bucket {
		case "available":
			available = count
		case "busy":
			busy = count
		default:
			offline += count
		}
	}
	return available, busy, offline, rows.Err()
}

func (o *PrinterOperations) scanOne(row *sql.Row) (*Printer, error) {
	p := &Printer{}
	var printerID sql.NullString
	var capsJSON string
	var currentJob sql.NullInt64
	var lastUsed sql.NullTime

	err := row.Scan(
		&p.ID, &p.Name, &printerID, &p.Status, &capsJSON, &currentJob, &p.QueueLength,
		&p.IsActive, &p.AutoPrintEnabled, &lastUsed, &p.TotalPagesPrinted,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrPrinterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan printer: %w", err)
	}

	if printerID.Valid {
		p.PrinterID = printerID.String
	}
	if currentJob.Valid {
		p.CurrentJobID = &currentJob.Int64
	}
	if lastUsed.Valid {
		p.LastUsed = &lastUsed.Time
	}
	if err := json.Unmarshal([]byte(capsJSON), &p.Capabilities); err != nil {
		return nil, fmt.Errorf("failed to decode capabilities for printer %d: %w", p.ID, err)
	}
	return p, nil
}

func (o *PrinterOperations) queryMany(ctx context.Context, query string, args ...interface{}) ([]*Printer, error) {
	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query printers: %w", err)
	}
	defer rows.Close()

	var printers []*Printer
	for rows.Next() {
		p := &Printer{}
		var printerID sql.NullString
		var capsJSON string
		var currentJob sql.NullInt64
		var lastUsed sql.NullTime

		err := rows.Scan(
			&p.ID, &p.Name, &printerID, &p.Status, &capsJSON, &currentJob, &p.QueueLength,
			&p.IsActive, &p.AutoPrintEnabled, &lastUsed, &p.TotalPagesPrinted,
			&p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan printer: %w", err)
		}
		if printerID.Valid {
			p.PrinterID = printerID.String
		}
		if currentJob.Valid {
			p.CurrentJobID = &currentJob.Int64
		}
		if lastUsed.Valid {
			p.LastUsed = &lastUsed.Time
		}
		if err := json.Unmarshal([]byte(capsJSON), &p.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to decode capabilities for printer %d: %w", p.ID, err)
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}

type JobOperations struct {
	db *sql.DB
}

func (o *JobOperations) Create(ctx context.Context, j *PrintJob) error {
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	if j.Copies <= 0 {
		j.Copies = 1
	}
	if j.PageCount <= 0 {
		j.PageCount = 1
	}
	if j.PrinterIndex <= 0 {
		j.PrinterIndex = 1
	}
	if j.MaxRetries <= 0 {
		j.MaxRetries = 3
	}

	var pageColors interface{}
	if j.PageColors != nil {
		b, err := json.Marshal(j.PageColors)
		if err != nil {
			return fmt.Errorf("failed to encode page colors: %w", err)
		}
		pageColors = string(b)
	}

	result, err := o.db.ExecContext(ctx, insertJob,
		j.OrderID,
		marshalStrings(j.FileURLs), marshalStrings(j.FileNames), marshalStrings(j.FileTypes),
		j.PageSize, j.ColorMode, j.Sided, j.Copies, j.PageCount, pageColors,
		j.PrinterIndex, j.Status, j.Priority, j.MaxRetries,
		j.CustomerName, j.CustomerEmail, j.CustomerPhone,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get job id: %w", err)
	}
	j.ID = id
	return nil
}

func (o *JobOperations) GetByID(ctx context.Context, id int64) (*PrintJob, error) {
	j, err := scanJob(o.db.QueryRowContext(ctx, getJobByID, id))
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	return j, err
}

// PendingBatch returns up to limit pending jobs, highest priority first,
// FIFO within a band.
func (o *JobOperations) PendingBatch(ctx context.Context, limit int) ([]*PrintJob, error) {
	return o.queryMany(ctx, pendingJobBatch, limit)
}

func (o *JobOperations) List(ctx context.Context, status string, limit, offset int) ([]*PrintJob, error) {
	if status != "" {
		return o.queryMany(ctx, listJobsByStatus, status, limit, offset)
	}
	return o.queryMany(ctx, listJobs, limit, offset)
}

// ResetForRetry puts a failed job back to pending with its assignment
// cleared. Returns ErrJobNotFound if the job is no longer failed.
func (o *JobOperations) ResetForRetry(ctx context.Context, id int64) error {
	result, err := o.db.ExecContext(ctx, resetJobForRetry, id)
	if err != nil {
		return fmt.Errorf("failed to reset job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (o *JobOperations) Cancel(ctx context.Context, id int64) error {
	result, err := o.db.ExecContext(ctx, cancelJob, id)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job cannot be cancelled (not pending or printing)")
	}
	return nil
}

// ManualRetry resets a failed job at operator request, clearing the retry
// counter so it gets a fresh budget.
func (o *JobOperations) ManualRetry(ctx context.Context, id int64) error {
	result, err := o.db.ExecContext(ctx, manualRetryJob, id)
	if err != nil {
		return fmt.Errorf("failed to retry job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("only failed jobs can be retried")
	}
	return nil
}

// MarkFailedNoRetry fails a job without consuming a retry slot.
func (o *JobOperations) MarkFailedNoRetry(ctx context.Context, id int64, errMsg string) error {
	_, err := o.db.ExecContext(ctx, markJobFailedNoRetry, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

func (o *JobOperations) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := o.db.QueryContext(ctx, countJobsByStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// PurgeFinished deletes completed and cancelled jobs older than the cutoff.
func (o *JobOperations) PurgeFinished(ctx context.Context, before time.Time) (int64, error) {
	result, err := o.db.ExecContext(ctx, purgeFinishedJobs, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*PrintJob, error) {
	j := &PrintJob{}
	var fileURLs, fileNames, fileTypes string
	var pageColors sql.NullString
	var printerID sql.NullInt64
	var startedAt, completedAt sql.NullTime
	var durationMs sql.NullInt64

	err := row.Scan(
		&j.ID, &j.OrderID, &fileURLs, &fileNames, &fileTypes,
		&j.PageSize, &j.ColorMode, &j.Sided, &j.Copies, &j.PageCount, &pageColors,
		&j.PrinterIndex, &printerID, &j.PrinterName,
		&j.Status, &j.Priority, &j.RetryCount, &j.MaxRetries, &j.ErrorMessage,
		&j.CustomerName, &j.CustomerEmail, &j.CustomerPhone,
		&j.CreatedAt, &startedAt, &completedAt, &durationMs,
	)
	if err != nil {
		return nil, err
	}

	j.FileURLs = unmarshalStrings(fileURLs)
	j.FileNames = unmarshalStrings(fileNames)
	j.FileTypes = unmarshalStrings(fileTypes)
	if pageColors.Valid && pageColors.String != "" {
		pc := &PageColors{}
		if err := json.Unmarshal([]byte(pageColors.String), pc); err == nil {
			j.PageColors = pc
		}
	}
	if printerID.Valid {
		j.PrinterID = &printerID.Int64
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	if durationMs.Valid {
		j.DurationMs = &durationMs.Int64
	}
	return j, nil
}

func (o *JobOperations) queryMany(ctx context.Context, query string, args ...interface{}) ([]*PrintJob, error) {
	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
