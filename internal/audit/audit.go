// Package audit records the request activity trail: every retrieval
// attempt, what it resolved to, and how it ended. Rows go to the database
// and a line goes to the process log for observability.
package audit

import (
	"log"
	"net"
	"net/http"
	"time"

	"gorm.io/gorm"

	"logvault/internal/database"
	"logvault/internal/logutil"
)

// Event types for activity logging.
const (
	EventRequestReceived = "request_received"
	EventArtifactServed  = "artifact_served"
	EventNoMatch         = "no_match"
	EventInvalidRequest  = "invalid_request"
	EventRequestFailed   = "request_failed"
	EventServerStarted   = "server_started"
)

// DefaultRetentionDays is the default number of days to keep activity rows.
const DefaultRetentionDays = 90

// Entry contains the fields needed to record one activity event.
type Entry struct {
	Project   string
	Module    string
	Host      string
	EventType string
	SourceIP  string
	Details   string
}

// Auditor writes and queries activity log rows.
type Auditor struct {
	db            *gorm.DB
	retentionDays int
	nowFn         func() time.Time // injectable clock for testing
}

// NewAuditor creates an Auditor over db. If retentionDays is 0 or negative,
// DefaultRetentionDays is used.
func NewAuditor(db *gorm.DB, retentionDays int) *Auditor {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Auditor{db: db, retentionDays: retentionDays, nowFn: time.Now}
}

// Log records an activity event. A database failure is logged and returned
// but never escalates past the caller's discretion: an unrecordable event
// must not fail the retrieval it describes.
func (a *Auditor) Log(entry Entry) error {
	record := database.ActivityLog{
		Project:   entry.Project,
		Module:    entry.Module,
		Host:      entry.Host,
		EventType: entry.EventType,
		SourceIP:  entry.SourceIP,
		Details:   entry.Details,
	}
	if err := a.db.Create(&record).Error; err != nil {
		log.Printf("[activity] failed to write activity log: %v", err)
		return err
	}

	log.Printf("[activity] %s project=%s module=%s host=%s ip=%s details=%s",
		entry.EventType,
		logutil.SanitizeForLog(entry.Project),
		logutil.SanitizeForLog(entry.Module),
		logutil.SanitizeForLog(entry.Host),
		entry.SourceIP,
		logutil.SanitizeForLog(entry.Details),
	)
	return nil
}

// QueryOptions specifies filters for retrieving activity rows.
type QueryOptions struct {
	Project   string
	Module    string
	EventType string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// QueryResult contains activity rows and pagination metadata.
type QueryResult struct {
	Entries []database.ActivityLog `json:"entries"`
	Total   int64                  `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
}

// Query retrieves activity rows matching the given options, newest first.
func (a *Auditor) Query(opts QueryOptions) (*QueryResult, error) {
	tx := a.db.Model(&database.ActivityLog{})

	if opts.Project != "" {
		tx = tx.Where("project = ?", opts.Project)
	}
	if opts.Module != "" {
		tx = tx.Where("module = ?", opts.Module)
	}
	if opts.EventType != "" {
		tx = tx.Where("event_type = ?", opts.EventType)
	}
	if opts.Since != nil {
		tx = tx.Where("created_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		tx = tx.Where("created_at <= ?", *opts.Until)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}

	var entries []database.ActivityLog
	if err := tx.Order("created_at DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&entries).Error; err != nil {
		return nil, err
	}

	return &QueryResult{Entries: entries, Total: total, Limit: opts.Limit, Offset: opts.Offset}, nil
}

// PurgeOlderThan removes activity rows older than days (or the configured
// retention when days <= 0). Returns the number of rows deleted.
func (a *Auditor) PurgeOlderThan(days int) (int64, error) {
	if days <= 0 {
		days = a.retentionDays
	}
	cutoff := a.nowFn().AddDate(0, 0, -days)
	result := a.db.Where("created_at < ?", cutoff).Delete(&database.ActivityLog{})
	if result.Error != nil {
		log.Printf("[activity] purge failed: %v", result.Error)
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("[activity] purged %d activity rows older than %d days", result.RowsAffected, days)
	}
	return result.RowsAffected, nil
}

// RetentionDays returns the configured retention period.
func (a *Auditor) RetentionDays() int { return a.retentionDays }

// SetNowFunc sets the clock function used for testing.
func (a *Auditor) SetNowFunc(fn func() time.Time) { a.nowFn = fn }

// ExtractSourceIP extracts the client IP from an HTTP request. The router
// installs chi's RealIP middleware, so RemoteAddr already reflects any
// trusted X-Forwarded-For / X-Real-Ip header; only the port needs stripping.
func ExtractSourceIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
