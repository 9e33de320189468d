package database

import "time"

// ActivityLog is one row of the request activity trail: who asked for which
// project/module, against which host, and what came of it. Credentials are
// never stored here.
type ActivityLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Project   string `gorm:"index" json:"project"`
	Module    string `gorm:"index" json:"module"`
	Host      string `json:"host"`
	EventType string `gorm:"index" json:"event_type"`
	SourceIP  string `json:"source_ip"`
	Details   string `json:"details"`
}
