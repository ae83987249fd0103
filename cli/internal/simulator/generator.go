// Package simulator produces synthetic agent traffic for exercising a gate.
package simulator

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/netsentry/netsentry/common/models"
)

var (
	benignProcesses  = []string{"nginx", "sshd", "postgres", "curl", "systemd-resolved", "firefox", "slack", "code"}
	suspectProcesses = []string{"synflood", "brave", "whatsapp", "chrome", "msedge", "nmap"}
	suspectHosts     = []string{"www.youtube.com", "youtu.be", "leetcode.com", "geeksforgeeks.org"}
	protocols        = []string{models.ProtoTCP, models.ProtoUDP, models.ProtoICMP}
)

// Generator builds agent events. A share of them, set by suspicious, carries
// process names or hosts the default rules react to.
type Generator struct {
	faker      *gofakeit.Faker
	suspicious float64
	now        func() time.Time
}

// NewGenerator seeds a generator; equal seeds yield equal sequences.
func NewGenerator(seed int64, suspicious float64) *Generator {
	if suspicious < 0 {
		suspicious = 0
	}
	if suspicious > 1 {
		suspicious = 1
	}
	return &Generator{
		faker:      gofakeit.New(seed),
		suspicious: suspicious,
		now:        time.Now,
	}
}

// Event returns the next synthetic agent payload.
func (g *Generator) Event() models.AgentEvent {
	f := g.faker
	proto := f.RandomString(protocols)
	e := models.AgentEvent{
		Time:  g.now().Format("15:04:05"),
		Src:   f.IPv4Address(),
		Dst:   f.IPv4Address(),
		Proto: proto,
		Size:  f.Number(40, 1500),
	}

	if proto != models.ProtoICMP {
		srcPort := f.Number(1024, 65535)
		dstPort := f.RandomInt([]int{53, 80, 443, 5432, 8080})
		e.SrcPort = &srcPort
		e.DstPort = &dstPort
	}

	pid := f.Number(100, 65000)
	e.PID = &pid

	if f.Float64Range(0, 1) < g.suspicious {
		e.ProcName = f.RandomString(suspectProcesses)
		e.SNI = f.RandomString(suspectHosts)
		return e
	}

	e.ProcName = f.RandomString(benignProcesses)
	if e.DstPort != nil && *e.DstPort == 53 {
		e.QName = f.DomainName()
	} else if e.DstPort != nil && *e.DstPort == 443 {
		e.SNI = f.DomainName()
	}
	return e
}

// Batch returns n events.
func (g *Generator) Batch(n int) []models.AgentEvent {
	events := make([]models.AgentEvent, n)
	for i := range events {
		events[i] = g.Event()
	}
	return events
}
