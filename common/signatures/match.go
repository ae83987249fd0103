// Package signatures holds the detection rule set and the matching algorithm
// shared by the gate's server-side scan and the CLI's live watcher.
package signatures

import (
	"fmt"
	"strings"
	"time"

	"github.com/netsentry/netsentry/common/models"
)

// MatchKind records which candidate satisfied a signature.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchProcess
	MatchDomain
	// MatchBrowser is a domain match observed from a known browser process.
	MatchBrowser
)

func (k MatchKind) String() string {
	switch k {
	case MatchProcess:
		return "process"
	case MatchDomain:
		return "domain"
	case MatchBrowser:
		return "browser"
	default:
		return "none"
	}
}

var browserProcesses = []string{"chrome", "brave", "msedge", "edge"}

// Candidates are the lower-cased strings patterns are tested against.
type Candidates struct {
	Process string
	Host    string
}

// CandidatesFor extracts match candidates from an event. The host candidate
// joins dst, the DNS query name, the HTTP host and the TLS SNI with spaces.
func CandidatesFor(e *models.Event) Candidates {
	host := strings.Join([]string{e.Dst, e.DNSName(), e.HTTPHost, e.SNI}, " ")
	return Candidates{
		Process: strings.ToLower(e.ProcName),
		Host:    strings.ToLower(host),
	}
}

// IsBrowser reports whether proc names a known browser.
func (c Candidates) IsBrowser() bool {
	if c.Process == "" {
		return false
	}
	for _, b := range browserProcesses {
		if strings.Contains(c.Process, b) {
			return true
		}
	}
	return false
}

// Hit is one signature that matched an event.
type Hit struct {
	Signature models.Signature
	Pattern   string
	Kind      MatchKind
}

// MatchSignature evaluates a single signature. The first matching pattern
// wins. Empty patterns never match.
func MatchSignature(sig models.Signature, c Candidates) (Hit, bool) {
	checkProc := sig.Type == models.SignatureProcess || sig.Type == models.SignatureHybrid
	checkHost := sig.Type == models.SignatureDomain || sig.Type == models.SignatureHybrid

	if checkProc && c.Process != "" {
		for _, p := range sig.Patterns {
			p = strings.ToLower(p)
			if p != "" && strings.Contains(c.Process, p) {
				return Hit{Signature: sig, Pattern: p, Kind: MatchProcess}, true
			}
		}
	}

	if checkHost && strings.TrimSpace(c.Host) != "" {
		for _, p := range sig.Patterns {
			p = strings.ToLower(p)
			if p == "" {
				continue
			}
			if strings.Contains(c.Host, p) || strings.HasSuffix(c.Host, p) {
				kind := MatchDomain
				if c.IsBrowser() {
					kind = MatchBrowser
				}
				return Hit{Signature: sig, Pattern: p, Kind: kind}, true
			}
		}
	}

	return Hit{}, false
}

// Match runs every active rule against e in order and returns all hits.
func Match(rules []models.Signature, e *models.Event) []Hit {
	c := CandidatesFor(e)
	var hits []Hit
	for _, sig := range rules {
		if !sig.Active {
			continue
		}
		if hit, ok := MatchSignature(sig, c); ok {
			hits = append(hits, hit)
		}
	}
	return hits
}

// NewAlert builds the alert raised by a hit.
func NewAlert(h Hit, e *models.Event, now time.Time) models.Alert {
	sig := h.Signature

	id := sig.RuleID
	if id == "" {
		id = fmt.Sprintf("sig-%s-%d", sig.Name, now.UnixNano())
	}

	severity := sig.Severity
	if severity == "" {
		severity = models.DefaultAlertSeverity
	}

	description := sig.Description
	if description == "" {
		subject := e.ProcName
		if subject == "" {
			subject = e.Dst
		}
		description = fmt.Sprintf("Signature %s matched for %s", sig.Name, subject)
		if h.Kind == MatchBrowser {
			description = fmt.Sprintf("Signature %s matched for %s visiting %s", sig.Name, e.ProcName, h.Pattern)
		}
	}

	alertType := sig.Name
	if alertType == "" {
		alertType = models.DefaultAlertType
	}

	return models.Alert{
		ID:          id,
		Type:        alertType,
		Severity:    severity,
		Description: description,
		Time:        now.UTC(),
		Src:         e.Src,
		Dst:         e.Dst,
	}
}
