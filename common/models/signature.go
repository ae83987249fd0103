package models

import "time"

// Signature match types.
const (
	SignatureProcess = "process"
	SignatureDomain  = "domain"
	SignatureHybrid  = "hybrid"
)

// Signature is a named detection rule. Patterns are fixed once loaded; changing
// them requires a reload that produces a new rule snapshot.
type Signature struct {
	ID          int64     `json:"id" yaml:"-"`
	RuleID      string    `json:"rule_id,omitempty" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Type        string    `json:"type" yaml:"type"`
	Patterns    []string  `json:"patterns" yaml:"patterns"`
	Severity    string    `json:"severity" yaml:"severity"`
	Active      bool      `json:"active" yaml:"active"`
	Version     int       `json:"version" yaml:"-"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}
