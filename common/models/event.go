package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Recognized transport protocols for agent events.
const (
	ProtoTCP  = "TCP"
	ProtoUDP  = "UDP"
	ProtoICMP = "ICMP"
)

// Event is a single network observation reported by an agent. It is immutable
// once accepted by the gate.
type Event struct {
	Time      time.Time `json:"time"`
	AgentTime string    `json:"agent_time,omitempty"`
	AgentID   string    `json:"agent_id"`
	Src       string    `json:"src"`
	SrcPort   *int      `json:"src_port,omitempty"`
	Dst       string    `json:"dst"`
	DstPort   *int      `json:"dst_port,omitempty"`
	Proto     string    `json:"proto,omitempty"`
	Size      int       `json:"size,omitempty"`
	PID       *int      `json:"pid,omitempty"`
	ProcName  string    `json:"proc_name,omitempty"`

	// Host hints used for domain matching.
	QName    string `json:"qname,omitempty"`
	DNSQName string `json:"dns_qname,omitempty"`
	HTTPHost string `json:"http_host,omitempty"`
	SNI      string `json:"sni,omitempty"`
}

// AgentEvent is the payload an agent posts. The agent clock is kept as text.
type AgentEvent struct {
	Time     string `json:"time,omitempty"`
	Src      string `json:"src"`
	SrcPort  *int   `json:"src_port,omitempty"`
	Dst      string `json:"dst"`
	DstPort  *int   `json:"dst_port,omitempty"`
	Proto    string `json:"proto,omitempty"`
	Size     int    `json:"size,omitempty"`
	PID      *int   `json:"pid,omitempty"`
	ProcName string `json:"proc_name,omitempty"`
	QName    string `json:"qname,omitempty"`
	DNSQName string `json:"dns_qname,omitempty"`
	HTTPHost string `json:"http_host,omitempty"`
	SNI      string `json:"sni,omitempty"`
}

// Event converts the posted payload into an unstamped Event.
func (a AgentEvent) Event() *Event {
	return &Event{
		AgentTime: a.Time,
		Src:       a.Src,
		SrcPort:   a.SrcPort,
		Dst:       a.Dst,
		DstPort:   a.DstPort,
		Proto:     a.Proto,
		Size:      a.Size,
		PID:       a.PID,
		ProcName:  a.ProcName,
		QName:     a.QName,
		DNSQName:  a.DNSQName,
		HTTPHost:  a.HTTPHost,
		SNI:       a.SNI,
	}
}

// Raw returns the serialized form persisted alongside the event columns.
func (e *Event) Raw() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// DNSName returns whichever DNS query name field the agent populated.
func (e *Event) DNSName() string {
	if e.QName != "" {
		return e.QName
	}
	return e.DNSQName
}

// IsValidProto reports whether p is one of the recognized protocols.
func IsValidProto(p string) bool {
	switch strings.ToUpper(p) {
	case ProtoTCP, ProtoUDP, ProtoICMP:
		return true
	default:
		return false
	}
}
