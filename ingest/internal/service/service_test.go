package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsentry/netsentry/common/models"
	"github.com/netsentry/netsentry/common/storage"
	"github.com/netsentry/netsentry/ingest/internal/hub"
	"github.com/netsentry/netsentry/ingest/internal/scanner"
)

type fakeQueue struct {
	mu   sync.Mutex
	msgs []models.QueueMessage
}

func (q *fakeQueue) Enqueue(_ context.Context, msg models.QueueMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
}

func (q *fakeQueue) BufferLen() int { return 3 }

func (q *fakeQueue) ofType(kind string) []models.QueueMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.QueueMessage
	for _, m := range q.msgs {
		if m.Type == kind {
			out = append(out, m)
		}
	}
	return out
}

type fakeHub struct {
	mu     sync.Mutex
	frames []hub.Frame
}

func (h *fakeHub) Broadcast(f hub.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, f)
}

func (h *fakeHub) Count() int { return 2 }

func (h *fakeHub) ofType(kind string) []hub.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []hub.Frame
	for _, f := range h.frames {
		if f.Type == kind {
			out = append(out, f)
		}
	}
	return out
}

var synFlood = models.Signature{
	Name: "SYN-Flood", Description: "Multiple SYN to same target port",
	Type: models.SignatureProcess, Patterns: []string{"synflood"}, Severity: "high", Active: true,
}

func setup(t *testing.T) (*IngestService, *fakeQueue, *fakeHub, *storage.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore(100)
	sig := synFlood
	require.NoError(t, store.InsertSignature(context.Background(), &sig))

	sc := scanner.New(store, []models.Signature{synFlood}, logger)
	_, err := sc.Reload(context.Background())
	require.NoError(t, err)

	q := &fakeQueue{}
	h := &fakeHub{}
	svc := NewIngestService(q, h, sc, store, logger)
	return svc, q, h, store
}

func audits(t *testing.T, q *fakeQueue) []string {
	t.Helper()
	var out []string
	for _, m := range q.ofType(models.MessageAudit) {
		var p models.AuditPayload
		require.NoError(t, json.Unmarshal(m.Data, &p))
		out = append(out, p.Message)
	}
	return out
}

func TestAcceptEvent_StampsAndEnqueues(t *testing.T) {
	svc, q, h, _ := setup(t)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	svc.now = func() time.Time { return fixed }

	e := &models.Event{AgentID: "spoofed", Src: "10.0.0.1", Dst: "10.0.0.2", ProcName: "nginx"}
	svc.AcceptEvent(context.Background(), "agent-7", e)
	svc.Wait()

	events := q.ofType(models.MessageEvent)
	require.Len(t, events, 1)

	var queued models.Event
	require.NoError(t, json.Unmarshal(events[0].Data, &queued))
	assert.Equal(t, "agent-7", queued.AgentID)
	assert.True(t, queued.Time.Equal(fixed))
	assert.Equal(t, time.UTC, queued.Time.Location())

	assert.Len(t, h.ofType(hub.FramePacket), 1)
	assert.Empty(t, h.ofType(hub.FrameAlert))
	assert.EqualValues(t, 1, svc.GetStats().EventsAccepted)
}

func TestAcceptEvent_SignatureMatchRaisesAlert(t *testing.T) {
	svc, q, h, store := setup(t)

	svc.AcceptEvent(context.Background(), "agent-1", &models.Event{Src: "10.0.0.5", Dst: "10.0.0.9", ProcName: "synflood.exe"})
	svc.Wait()

	alerts, err := store.ListAlerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "SYN-Flood", alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)

	assert.Contains(t, audits(t, q), "Alert created: SYN-Flood from 10.0.0.5")
	assert.Len(t, h.ofType(hub.FrameAlert), 1)
	assert.Empty(t, q.ofType(models.MessageAlert))
}

func TestAcceptEvent_StorageFailureHandsAlertToWorker(t *testing.T) {
	svc, q, h, store := setup(t)
	store.SetFailure(errors.New("db down"))

	svc.AcceptEvent(context.Background(), "agent-1", &models.Event{Src: "10.0.0.5", Dst: "10.0.0.9", ProcName: "synflood"})
	svc.Wait()

	queued := q.ofType(models.MessageAlert)
	require.Len(t, queued, 1)
	var a models.Alert
	require.NoError(t, json.Unmarshal(queued[0].Data, &a))
	assert.Equal(t, "SYN-Flood", a.Type)

	assert.Len(t, h.ofType(hub.FrameAlert), 1)
	assert.Len(t, q.ofType(models.MessageEvent), 1)
}

func TestSubmitAlert(t *testing.T) {
	svc, q, h, store := setup(t)

	svc.SubmitAlert(context.Background(), &models.Alert{
		ID: "a-1", Type: "PortScan", Severity: "low", Src: "1.1.1.1", Dst: "2.2.2.2", Time: time.Now().UTC(),
	})

	alerts, err := store.ListAlerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "a-1", alerts[0].ID)
	assert.Equal(t, []string{"Alert received: PortScan 1.1.1.1 -> 2.2.2.2"}, audits(t, q))
	assert.Len(t, h.ofType(hub.FrameAlert), 1)
}

func TestLatestAlerts_OnePerType(t *testing.T) {
	svc, _, _, store := setup(t)
	ctx := context.Background()
	base := time.Now().UTC()
	require.NoError(t, store.InsertAlert(ctx, &models.Alert{ID: "1", Type: "A", Time: base}))
	require.NoError(t, store.InsertAlert(ctx, &models.Alert{ID: "2", Type: "A", Time: base.Add(time.Second)}))
	require.NoError(t, store.InsertAlert(ctx, &models.Alert{ID: "3", Type: "B", Time: base}))

	latest, err := svc.LatestAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	ids := map[string]string{}
	for _, a := range latest {
		ids[a.Type] = a.ID
	}
	assert.Equal(t, "2", ids["A"])
	assert.Equal(t, "3", ids["B"])
}

func TestTriageAlert(t *testing.T) {
	svc, q, h, store := setup(t)
	ctx := context.Background()
	require.NoError(t, store.InsertAlert(ctx, &models.Alert{ID: "x", Type: "A", Time: time.Now()}))

	a, err := svc.TriageAlert(ctx, "x", models.AlertTriage{Acknowledged: true, Notes: "seen"})
	require.NoError(t, err)
	assert.True(t, a.Acknowledged)
	assert.Equal(t, "seen", a.Notes)
	assert.Len(t, h.ofType(hub.FrameAlert), 1)
	assert.Len(t, audits(t, q), 1)

	_, err = svc.TriageAlert(ctx, "missing", models.AlertTriage{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetSignatureActive_ReloadsSnapshot(t *testing.T) {
	svc, q, _, _ := setup(t)
	ctx := context.Background()
	require.Equal(t, []string{"SYN-Flood"}, svc.AgentConfig("a").ActiveSignatures)

	sig, err := svc.SetSignatureActive(ctx, 1, false)
	require.NoError(t, err)
	assert.False(t, sig.Active)
	assert.Empty(t, svc.AgentConfig("a").ActiveSignatures)
	assert.Contains(t, audits(t, q), "Signature deactivated: SYN-Flood")

	svc.AcceptEvent(ctx, "agent-1", &models.Event{Src: "s", Dst: "d", ProcName: "synflood"})
	svc.Wait()
	alerts, err := svc.LatestAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	_, err = svc.SetSignatureActive(ctx, 99, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSignatures_FallsBackToFileRules(t *testing.T) {
	svc, _, _, store := setup(t)
	store.SetFailure(errors.New("db down"))

	sigs := svc.Signatures(context.Background())
	require.Len(t, sigs, 1)
	assert.Equal(t, "SYN-Flood", sigs[0].Name)
}

func TestAgentConfig(t *testing.T) {
	svc, _, _, _ := setup(t)
	cfg := svc.AgentConfig("agent-3")
	assert.Equal(t, "agent-3", cfg.Agent)
	assert.Equal(t, DefaultSamplingIntervalMS, cfg.SamplingIntervalMS)
	assert.Equal(t, []string{"SYN-Flood"}, cfg.ActiveSignatures)
}

func TestReadiness(t *testing.T) {
	svc, _, _, store := setup(t)
	r := svc.Readiness(context.Background())
	assert.True(t, r.Ready)
	assert.Equal(t, 3, r.BufferedEvents)
	assert.Equal(t, 2, r.Subscribers)

	store.SetFailure(errors.New("db down"))
	r = svc.Readiness(context.Background())
	assert.False(t, r.Ready)
}
