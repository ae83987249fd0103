package validator

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/netsentry/netsentry/common/models"
)

// Alias groups, in precedence order.
var (
	srcAliases         = []string{"src_ip", "src", "srcIp"}
	dstAliases         = []string{"dst_ip", "dst", "dstIp"}
	typeAliases        = []string{"name", "type"}
	descriptionAliases = []string{"description", "desc"}
)

// ParseAlert normalizes a submitted alert, filling defaults for anything the
// submitter left out.
func ParseAlert(body []byte, now time.Time) (*models.Alert, error) {
	var raw map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, &ValidationError{Fields: []string{"body"}}
	}

	alert := &models.Alert{
		ID:          pick(raw, "id"),
		Type:        pick(raw, typeAliases...),
		Severity:    pick(raw, "severity"),
		Description: pick(raw, descriptionAliases...),
		Src:         pick(raw, srcAliases...),
		Dst:         pick(raw, dstAliases...),
		Time:        now.UTC(),
	}

	if alert.ID == "" {
		alert.ID = "alert-" + uuid.New().String()
	}
	if alert.Type == "" {
		alert.Type = models.DefaultAlertType
	}
	if alert.Severity == "" {
		alert.Severity = models.DefaultAlertSeverity
	}
	if ts := pick(raw, "time"); ts != "" {
		parsed, ok := parseAlertTime(ts)
		if !ok {
			return nil, &ValidationError{Fields: []string{"time"}}
		}
		alert.Time = parsed.UTC()
	}

	return alert, nil
}

// pick returns the first non-empty string or number among keys. Numbers keep
// their literal spelling so {"id": 42} replaces the alert stored as "42".
func pick(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

var alertTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

func parseAlertTime(ts string) (time.Time, bool) {
	for _, layout := range alertTimeLayouts {
		if parsed, err := time.Parse(layout, ts); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
