package audit

import (
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"logvault/internal/database"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test DB: %v", err)
	}
	if err := db.AutoMigrate(&database.ActivityLog{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestLogAndQuery(t *testing.T) {
	a := NewAuditor(setupTestDB(t), 0)

	entries := []Entry{
		{Project: "billing", Module: "api", Host: "h1", EventType: EventRequestReceived, SourceIP: "10.0.0.1"},
		{Project: "billing", Module: "api", Host: "h1", EventType: EventArtifactServed, SourceIP: "10.0.0.1"},
		{Project: "crm", Module: "web", Host: "h2", EventType: EventNoMatch, SourceIP: "10.0.0.2"},
	}
	for _, e := range entries {
		if err := a.Log(e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	result, err := a.Query(QueryOptions{Project: "billing"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Total != 2 {
		t.Errorf("Total = %d, want 2", result.Total)
	}

	result, err = a.Query(QueryOptions{EventType: EventNoMatch})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Total != 1 || result.Entries[0].Project != "crm" {
		t.Errorf("unexpected result: total=%d entries=%+v", result.Total, result.Entries)
	}
}

func TestQueryLimitClamping(t *testing.T) {
	a := NewAuditor(setupTestDB(t), 0)

	result, err := a.Query(QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Limit != 50 {
		t.Errorf("default limit = %d, want 50", result.Limit)
	}

	result, err = a.Query(QueryOptions{Limit: 9999})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Limit != 1000 {
		t.Errorf("clamped limit = %d, want 1000", result.Limit)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	db := setupTestDB(t)
	a := NewAuditor(db, 30)

	old := database.ActivityLog{Project: "billing", EventType: EventRequestReceived}
	db.Create(&old)
	db.Model(&old).Update("created_at", time.Now().AddDate(0, 0, -60))

	recent := database.ActivityLog{Project: "billing", EventType: EventArtifactServed}
	db.Create(&recent)

	deleted, err := a.PurgeOlderThan(0)
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	result, _ := a.Query(QueryOptions{})
	if result.Total != 1 || result.Entries[0].EventType != EventArtifactServed {
		t.Errorf("unexpected remaining rows: %+v", result.Entries)
	}
}

func TestRetentionDefault(t *testing.T) {
	a := NewAuditor(setupTestDB(t), 0)
	if a.RetentionDays() != DefaultRetentionDays {
		t.Errorf("RetentionDays() = %d, want %d", a.RetentionDays(), DefaultRetentionDays)
	}
}

func TestExtractSourceIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/download", nil)
	r.RemoteAddr = "192.0.2.10:54321"
	if got := ExtractSourceIP(r); got != "192.0.2.10" {
		t.Errorf("remote addr: got %q", got)
	}

	r.RemoteAddr = "[2001:db8::1]:443"
	if got := ExtractSourceIP(r); got != "2001:db8::1" {
		t.Errorf("ipv6 remote addr: got %q", got)
	}

	r.RemoteAddr = "192.0.2.10"
	if got := ExtractSourceIP(r); got != "192.0.2.10" {
		t.Errorf("portless remote addr: got %q", got)
	}

	// Forwarding headers are the RealIP middleware's business; the raw
	// values must not be trusted here.
	r.RemoteAddr = "192.0.2.10:54321"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := ExtractSourceIP(r); got != "192.0.2.10" {
		t.Errorf("forwarded header must be ignored: got %q", got)
	}
}
