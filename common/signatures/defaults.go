package signatures

import "github.com/netsentry/netsentry/common/models"

// ClientDefaults is the built-in rule set used by the live watcher when no
// rule file is given.
func ClientDefaults() []models.Signature {
	return []models.Signature{
		{RuleID: "sig-brave", Name: "Brave Browser Launch", Type: models.SignatureProcess, Patterns: []string{"brave"}, Severity: "low", Active: true},
		{RuleID: "sig-whatsapp", Name: "WhatsApp Launch", Type: models.SignatureProcess, Patterns: []string{"whatsapp"}, Severity: "low", Active: true},
		{RuleID: "sig-youtube", Name: "YouTube Access", Type: models.SignatureDomain, Patterns: []string{"youtube.com", "youtu.be"}, Severity: "low", Active: true},
		{RuleID: "sig-leetcode", Name: "LeetCode Access", Type: models.SignatureDomain, Patterns: []string{"leetcode.com"}, Severity: "low", Active: true},
		{RuleID: "sig-gfg", Name: "GeeksforGeeks Access", Type: models.SignatureDomain, Patterns: []string{"geeksforgeeks.org", "geeksforgeeks.com"}, Severity: "low", Active: true},
	}
}
