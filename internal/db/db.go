package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the sqlite handle and exposes the operation groups. It is
// constructed explicitly and injected wherever persistence is needed;
// there is no package-level handle.
type Store struct {
	db       *sql.DB
	Printers *PrinterOperations
	Jobs     *JobOperations
}

func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite tolerates exactly one writer.
	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)

	if err := migrate(database); err != nil {
		database.Close()
		return nil, err
	}

	s := &Store{db: database}
	s.Printers = &PrinterOperations{db: database}
	s.Jobs = &JobOperations{db: database}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for ad-hoc aggregate queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

func migrate(database *sql.DB) error {
	if _, err := database.Exec(schemaPrinters); err != nil {
		return fmt.Errorf("failed to create printers table: %w", err)
	}
	if _, err := database.Exec(schemaPrintJobs); err != nil {
		return fmt.Errorf("failed to create print_jobs table: %w", err)
	}
	if _, err := database.Exec(schemaIndexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// AssignJobToPrinter transitions a pending job to printing and marks the
// printer busy in a single transaction. A job that is printing always has
// its printer's current_job_id pointing back at it.
func (s *Store) AssignJobToPrinter(ctx context.Context, jobID, printerID int64, printerName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE print_jobs
		SET status = 'printing', printer_id = ?, printer_name = ?, started_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'
	`, printerID, printerName, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job printing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrJobNotPending
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE printers
		SET current_job_id = ?, last_used = CURRENT_TIMESTAMP, queue_length = queue_length + 1
		WHERE id = ?
	`, jobID, printerID)
	if err != nil {
		return fmt.Errorf("failed to mark printer busy: %w", err)
	}

	return tx.Commit()
}

// CompleteJob finalizes a successful job and frees its printer.
func (s *Store) CompleteJob(ctx context.Context, jobID, printerID int64, durationMs int64, pagesPrinted int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE print_jobs
		SET status = 'completed', completed_at = CURRENT_TIMESTAMP, actual_duration_ms = ?, error_message = ''
		WHERE id = ?
	`, durationMs, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE printers
		SET current_job_id = NULL,
		    queue_length = MAX(queue_length - 1, 0),
		    total_pages_printed = total_pages_printed + ?
		WHERE id = ?
	`, pagesPrinted, printerID)
	if err != nil {
		return fmt.Errorf("failed to release printer: %w", err)
	}

	return tx.Commit()
}

// FailJob records a failed attempt, bumps retry_count and frees the
// printer. The scheduler decides separately whether the job gets another
// pending reset.
func (s *Store) FailJob(ctx context.Context, jobID, printerID int64, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE print_jobs
		SET status = 'failed', error_message = ?, retry_count = retry_count + 1, completed_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, errMsg, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	if printerID > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE printers
			SET current_job_id = NULL, queue_length = MAX(queue_length - 1, 0)
			WHERE id = ?
		`, printerID)
		if err != nil {
			return fmt.Errorf("failed to release printer: %w", err)
		}
	}

	return tx.Commit()
}
