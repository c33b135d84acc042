package db

const schemaPrinters = `
	CREATE TABLE IF NOT EXISTS printers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		printer_id TEXT UNIQUE,
		status TEXT NOT NULL DEFAULT 'offline',
		capabilities_json TEXT NOT NULL DEFAULT '{}',
		current_job_id INTEGER,
		queue_length INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		auto_print_enabled INTEGER NOT NULL DEFAULT 1,
		last_used DATETIME,
		total_pages_printed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)
`

const schemaPrintJobs = `
	CREATE TABLE IF NOT EXISTS print_jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL DEFAULT '',
		file_urls TEXT NOT NULL DEFAULT '[]',
		file_names TEXT NOT NULL DEFAULT '[]',
		file_types TEXT NOT NULL DEFAULT '[]',
		page_size TEXT NOT NULL DEFAULT 'A4',
		color_mode TEXT NOT NULL DEFAULT 'bw',
		sided TEXT NOT NULL DEFAULT 'single',
		copies INTEGER NOT NULL DEFAULT 1,
		page_count INTEGER NOT NULL DEFAULT 1,
		page_colors_json TEXT,
		printer_index INTEGER NOT NULL DEFAULT 1,
		printer_id INTEGER,
		printer_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		priority INTEGER NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		error_message TEXT NOT NULL DEFAULT '',
		customer_name TEXT NOT NULL DEFAULT '',
		customer_email TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		started_at DATETIME,
		completed_at DATETIME,
		actual_duration_ms INTEGER
	)
`

const schemaIndexes = `
	CREATE INDEX IF NOT EXISTS idx_print_jobs_status ON print_jobs(status, priority DESC, created_at ASC);
	CREATE INDEX IF NOT EXISTS idx_printers_idle ON printers(is_active, auto_print_enabled, status)
`

const printerColumns = `
	id, name, printer_id, status, capabilities_json, current_job_id, queue_length,
	is_active, auto_print_enabled, last_used, total_pages_printed, created_at, updated_at
`

const (
	insertPrinter = `
		INSERT INTO printers (name, printer_id, status, capabilities_json, is_active, auto_print_enabled)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	getPrinterByID = `SELECT ` + printerColumns + ` FROM printers WHERE id = ?`

	getPrinterByName = `SELECT ` + printerColumns + ` FROM printers WHERE name = ?`

	listPrinters = `SELECT ` + printerColumns + ` FROM printers ORDER BY name ASC`

	// Eligible for scheduling: active, auto-print enabled, online and idle.
	listIdlePrinters = `
		SELECT ` + printerColumns + ` FROM printers
		WHERE is_active = 1 AND auto_print_enabled = 1 AND status = 'online' AND current_job_id IS NULL
		ORDER BY last_used ASC NULLS FIRST, name ASC
	`

	updatePrinter = `
		UPDATE printers SET
			name = ?, printer_id = ?, capabilities_json = ?,
			is_active = ?, auto_print_enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	updatePrinterStatus = `
		UPDATE printers SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`

	deletePrinter = `DELETE FROM printers WHERE id = ?`
)

const jobColumns = `
	id, order_id, file_urls, file_names, file_types, page_size, color_mode, sided,
	copies, page_count, page_colors_json, printer_index, printer_id, printer_name,
	status, priority, retry_count, max_retries, error_message,
	customer_name, customer_email, customer_phone,
	created_at, started_at, completed_at, actual_duration_ms
`

const (
	insertJob = `
		INSERT INTO print_jobs (
			order_id, file_urls, file_names, file_types, page_size, color_mode, sided,
			copies, page_count, page_colors_json, printer_index, status, priority, max_retries,
			customer_name, customer_email, customer_phone
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	getJobByID = `SELECT ` + jobColumns + ` FROM print_jobs WHERE id = ?`

	// FIFO within a priority band.
	pendingJobBatch = `
		SELECT ` + jobColumns + ` FROM print_jobs
		WHERE status = 'pending'
		ORDER BY priority DESC, created_at ASC
		LIMIT ?
	`

	listJobsByStatus = `
		SELECT ` + jobColumns + ` FROM print_jobs
		WHERE status = ?
		ORDER BY priority DESC, created_at DESC
		LIMIT ? OFFSET ?
	`

	listJobs = `
		SELECT ` + jobColumns + ` FROM print_jobs
		ORDER BY priority DESC, created_at DESC
		LIMIT ? OFFSET ?
	`

	// Failed-retry reset: back to pending with assignment fields cleared so
	// the next tick can pick any eligible printer.
	resetJobForRetry = `
		UPDATE print_jobs
		SET status = 'pending', printer_id = NULL, printer_name = '',
		    started_at = NULL, completed_at = NULL, error_message = ''
		WHERE id = ? AND status = 'failed'
	`

	cancelJob = `
		UPDATE print_jobs
		SET status = 'cancelled', completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'printing')
	`

	manualRetryJob = `
		UPDATE print_jobs
		SET status = 'pending', retry_count = 0, error_message = '',
		    printer_id = NULL, printer_name = '', started_at = NULL, completed_at = NULL
		WHERE id = ? AND status = 'failed'
	`

	// Terminal failure that does not touch retry_count: used when the
	// assignment update itself blew up, so the failure is not counted
	// against the job's retry budget.
	markJobFailedNoRetry = `
		UPDATE print_jobs
		SET status = 'failed', error_message = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	countJobsByStatus = `SELECT status, COUNT(*) FROM print_jobs GROUP BY status`

	purgeFinishedJobs = `
		DELETE FROM print_jobs
		WHERE status IN ('completed', 'cancelled') AND completed_at < ?
	`
)
