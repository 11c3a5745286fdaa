package handoff

import (
	"context"
	"testing"
	"time"
)

func auditContract(t *testing.T, store AuditStore) {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	events := []AuditEvent{
		{PipelineID: "travel-planner", SessionID: "s1", Stage: "destination", Attempt: 1, Status: AuditFailed, Error: "network", StartedAt: start, FinishedAt: start},
		{PipelineID: "travel-planner", SessionID: "s1", Stage: "destination", Attempt: 2, Status: AuditFallback, Source: "mock", Output: map[string]any{"top": "Kyoto"}, StartedAt: start, FinishedAt: start},
		{PipelineID: "travel-planner", SessionID: "s2", Stage: "booking", Attempt: 1, Status: AuditCompleted, StartedAt: start, FinishedAt: start},
	}
	for _, ev := range events {
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := store.List(ctx, AuditFilter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Attempt != 1 || got[1].Status != AuditFallback {
		t.Fatalf("unexpected events %+v", got)
	}
	out, _ := got[1].Output.(map[string]any)
	if out["top"] != "Kyoto" {
		t.Fatalf("output not preserved: %+v", got[1].Output)
	}

	got, _ = store.List(ctx, AuditFilter{Stage: "booking"})
	if len(got) != 1 || got[0].SessionID != "s2" {
		t.Fatalf("unexpected stage filter result %+v", got)
	}
	got, _ = store.List(ctx, AuditFilter{Limit: 1})
	if len(got) != 1 {
		t.Fatalf("limit not applied: %d", len(got))
	}
}

func TestMemoryAuditStore(t *testing.T) {
	auditContract(t, NewMemoryAuditStore())
}

func TestSQLiteAuditStore(t *testing.T) {
	store, err := OpenSQLiteAuditStore(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	auditContract(t, store)
}
