package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func testObjectHash(label string) string {
	return (label + strings.Repeat("0", 64))[:64]
}

func TestRecordLinksChain(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(NewInMemoryRepository())

	first, err := manager.Record(ctx, Entry{
		Type:       EventObjectCreated,
		Actor:      "alice",
		Action:     "register",
		ObjectHash: testObjectHash("a"),
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if first.PreviousHash != "" {
		t.Errorf("first event of a chain should have empty previous hash, got %s", first.PreviousHash)
	}
	if first.EventID == "" {
		t.Fatal("expected a computed event ID")
	}
	if first.Severity != SeverityInfo {
		t.Errorf("expected default severity info, got %s", first.Severity)
	}

	second, err := manager.Record(ctx, Entry{
		Type:    EventAccessDenied,
		Actor:   "mallory",
		Action:  "read",
		Outcome: OutcomeDenied,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if second.PreviousHash != first.EventID {
		t.Errorf("expected previous hash %s, got %s", first.EventID, second.PreviousHash)
	}
	if second.Severity != SeverityWarning {
		t.Errorf("denied outcome should default to warning severity, got %s", second.Severity)
	}
}

func TestRecordRejectsIncompleteEntry(t *testing.T) {
	manager := NewManager(NewInMemoryRepository())
	_, err := manager.Record(context.Background(), Entry{Type: EventObjectRead})
	if err != ErrInvalidEntry {
		t.Errorf("expected ErrInvalidEntry, got %v", err)
	}
}

func TestEventIDDeterminism(t *testing.T) {
	event := &Event{
		ChainID:   "2026-08-31",
		Type:      EventObjectCreated,
		Actor:     "alice",
		Action:    "register",
		Outcome:   OutcomeSuccess,
		Severity:  SeverityInfo,
		Timestamp: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
		Details:   map[string]string{"b": "2", "a": "1"},
	}

	id1, err := ComputeEventID(event)
	if err != nil {
		t.Fatalf("ComputeEventID failed: %v", err)
	}
	id2, err := ComputeEventID(event)
	if err != nil {
		t.Fatalf("ComputeEventID failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected deterministic hash, got %s and %s", id1, id2)
	}
	if len(id1) != 64 {
		t.Errorf("expected 64-char hex digest, got %d chars", len(id1))
	}
}

func TestVerifyChain(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(NewInMemoryRepository())

	for i := 0; i < 5; i++ {
		if _, err := manager.Record(ctx, Entry{
			Type:   EventObjectRead,
			Actor:  "alice",
			Action: "read",
		}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	chainID := ChainIDFor(time.Now())
	ok, offending, err := manager.VerifyChain(ctx, chainID)
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if !ok {
		t.Errorf("expected intact chain, verification flagged event %s", offending)
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	manager := NewManager(repo)

	good, err := manager.Record(ctx, Entry{
		Type:   EventObjectCreated,
		Actor:  "alice",
		Action: "register",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Forge a follow-up event whose stored ID does not match its content.
	forged := &Event{
		EventID:      "deadbeef",
		ChainID:      good.ChainID,
		PreviousHash: good.EventID,
		Type:         EventObjectRead,
		Actor:        "mallory",
		Action:       "read",
		Outcome:      OutcomeSuccess,
		Severity:     SeverityInfo,
		Timestamp:    time.Now().UTC(),
	}
	if err := repo.Append(ctx, forged); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	ok, offending, err := manager.VerifyChain(ctx, good.ChainID)
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if ok {
		t.Fatal("expected verification to fail on forged event")
	}
	if offending != "deadbeef" {
		t.Errorf("expected offending event deadbeef, got %s", offending)
	}
}

func TestVerifyChainDetectsBrokenLink(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	manager := NewManager(repo)

	if _, err := manager.Record(ctx, Entry{
		Type:   EventObjectCreated,
		Actor:  "alice",
		Action: "register",
	}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// An event claiming the wrong predecessor, with an otherwise valid hash.
	broken := &Event{
		ChainID:      ChainIDFor(time.Now()),
		PreviousHash: "not-the-real-predecessor",
		Type:         EventObjectRead,
		Actor:        "mallory",
		Action:       "read",
		Outcome:      OutcomeSuccess,
		Severity:     SeverityInfo,
		Timestamp:    time.Now().UTC(),
	}
	var err error
	broken.EventID, err = ComputeEventID(broken)
	if err != nil {
		t.Fatalf("ComputeEventID failed: %v", err)
	}
	if err := repo.Append(ctx, broken); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	ok, offending, err := manager.VerifyChain(ctx, broken.ChainID)
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if ok {
		t.Fatal("expected verification to fail on broken linkage")
	}
	if offending != broken.EventID {
		t.Errorf("expected offending event %s, got %s", broken.EventID, offending)
	}
}

func TestVerifyUnknownChain(t *testing.T) {
	manager := NewManager(NewInMemoryRepository())
	_, _, err := manager.VerifyChain(context.Background(), "1999-01-01")
	if err == nil {
		t.Error("expected error for unknown chain")
	}
}

func TestQueryIndexes(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(NewInMemoryRepository())
	hash := testObjectHash("b")

	entries := []Entry{
		{Type: EventObjectCreated, Actor: "alice", Action: "register", ObjectHash: hash},
		{Type: EventObjectRead, Actor: "bob", Action: "read", ObjectHash: hash},
		{Type: EventObjectRead, Actor: "alice", Action: "read"},
	}
	for _, entry := range entries {
		if _, err := manager.Record(ctx, entry); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	byActor, err := manager.QueryByActor(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("QueryByActor failed: %v", err)
	}
	if len(byActor) != 2 {
		t.Errorf("expected 2 events for alice, got %d", len(byActor))
	}
	// Newest first.
	if byActor[0].Action != "read" {
		t.Errorf("expected newest event first, got action %s", byActor[0].Action)
	}

	byObject, err := manager.QueryByObject(ctx, hash, 1)
	if err != nil {
		t.Fatalf("QueryByObject failed: %v", err)
	}
	if len(byObject) != 1 {
		t.Errorf("expected limit to cap results at 1, got %d", len(byObject))
	}

	byDate, err := manager.QueryByDate(ctx, time.Now())
	if err != nil {
		t.Fatalf("QueryByDate failed: %v", err)
	}
	if len(byDate) != 3 {
		t.Errorf("expected 3 events in today's chain, got %d", len(byDate))
	}
}

func TestQueryInRange(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	current := base
	manager := NewManager(NewInMemoryRepository(), WithClock(func() time.Time { return current }))

	entries := []Entry{
		{Type: EventObjectCreated, Actor: "alice", Action: "register"},
		{Type: EventObjectRead, Actor: "bob", Action: "read"},
		{Type: EventObjectRead, Actor: "carol", Action: "read"},
		{Type: EventAccessDenied, Actor: "mallory", Action: "read", Outcome: OutcomeDenied},
	}
	for i, entry := range entries {
		current = base.Add(time.Duration(i) * time.Hour)
		if _, err := manager.Record(ctx, entry); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	all, err := manager.QueryInRange(ctx, base, base.Add(4*time.Hour), "")
	if err != nil {
		t.Fatalf("QueryInRange failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 events without filter, got %d", len(all))
	}

	// The range is half-open: the event at base+3h falls outside.
	window, err := manager.QueryInRange(ctx, base.Add(time.Hour), base.Add(3*time.Hour), "")
	if err != nil {
		t.Fatalf("QueryInRange failed: %v", err)
	}
	if len(window) != 2 {
		t.Errorf("expected 2 events in window, got %d", len(window))
	}

	reads, err := manager.QueryInRange(ctx, base, base.Add(4*time.Hour), EventObjectRead)
	if err != nil {
		t.Fatalf("QueryInRange failed: %v", err)
	}
	if len(reads) != 2 {
		t.Errorf("expected 2 read events, got %d", len(reads))
	}
	for _, event := range reads {
		if event.Type != EventObjectRead {
			t.Errorf("filter returned %s event", event.Type)
		}
	}

	none, err := manager.QueryInRange(ctx, base, base.Add(4*time.Hour), EventKeyGenerated)
	if err != nil {
		t.Fatalf("QueryInRange failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no key events, got %d", len(none))
	}
}

func TestGenerateComplianceReport(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	manager := NewManager(NewInMemoryRepository(), WithClock(func() time.Time { return now }))

	entries := []Entry{
		{Type: EventObjectCreated, Actor: "alice", Action: "register"},
		{Type: EventAccessDenied, Actor: "mallory", Action: "read", Outcome: OutcomeDenied},
		{Type: EventSystemError, Actor: "system", Action: "store", Outcome: OutcomeError},
	}
	for _, entry := range entries {
		if _, err := manager.Record(ctx, entry); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	report, err := manager.GenerateComplianceReport(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("GenerateComplianceReport failed: %v", err)
	}
	if report.Total != 3 {
		t.Errorf("expected 3 events in report, got %d", report.Total)
	}
	if report.ByOutcome[OutcomeDenied] != 1 {
		t.Errorf("expected 1 denied event, got %d", report.ByOutcome[OutcomeDenied])
	}
	if report.BySeverity[SeverityError] != 1 {
		t.Errorf("expected 1 error-severity event, got %d", report.BySeverity[SeverityError])
	}
	if report.ByType[EventObjectCreated] != 1 {
		t.Errorf("expected 1 object_created event, got %d", report.ByType[EventObjectCreated])
	}

	empty, err := manager.GenerateComplianceReport(ctx, now.Add(time.Hour), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("GenerateComplianceReport failed: %v", err)
	}
	if empty.Total != 0 {
		t.Errorf("expected empty report outside range, got %d events", empty.Total)
	}
}

func TestMetricsRegister(t *testing.T) {
	metrics := NewMetrics()
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := metrics.Register(registry); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	manager := NewManager(NewInMemoryRepository(), WithMetrics(metrics))
	if _, err := manager.Record(context.Background(), Entry{
		Type:   EventObjectCreated,
		Actor:  "alice",
		Action: "register",
	}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
}
