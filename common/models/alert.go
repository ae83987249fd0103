package models

import "time"

// Default alert attributes applied when a submitter or signature leaves them empty.
const (
	DefaultAlertType     = "alert"
	DefaultAlertSeverity = "medium"
)

// Alert is a persisted record of a detected or reported suspicious condition.
// Alerts are unique by ID; storing an alert with an existing ID replaces it.
type Alert struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Severity     string    `json:"severity"`
	Description  string    `json:"description"`
	Time         time.Time `json:"time"`
	Src          string    `json:"src"`
	Dst          string    `json:"dst"`
	Acknowledged bool      `json:"acknowledged"`
	Escalated    bool      `json:"escalated"`
	Notes        string    `json:"notes"`
}

// AlertTriage carries the analyst-editable fields of an alert.
type AlertTriage struct {
	Acknowledged bool   `json:"acknowledged"`
	Escalated    bool   `json:"escalated"`
	Notes        string `json:"notes"`
}

// AuditEntry is an append-only operator log line.
type AuditEntry struct {
	ID      int64     `json:"id"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}
