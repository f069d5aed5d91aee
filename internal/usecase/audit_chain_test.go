package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
)

func seededAuditRepo(t *testing.T) *memAuditRepo {
	t.Helper()
	repo := &memAuditRepo{}
	emitter := &AuditEmitter{Repo: repo, Workbench: 2, Clock: func() time.Time {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	}}
	ctx := context.Background()
	operator := domain.Employee{ID: "emp-1", Name: "Ivan", Position: "assembler"}
	unit := &domain.Unit{InternalID: "4606203090990", SchemaID: "schema-pump"}

	emitter.LoggedIn(ctx, operator)
	emitter.UnitCreated(ctx, operator, unit)
	emitter.StageStarted(ctx, operator, unit, "s1")
	emitter.StageEnded(ctx, operator, unit, "s1", false)
	emitter.LoggedOut(ctx, operator)
	return repo
}

func TestVerifyAuditChainAcceptsIntactTrail(t *testing.T) {
	repo := seededAuditRepo(t)
	if err := VerifyAuditChain(context.Background(), repo, 2); err != nil {
		t.Fatalf("VerifyAuditChain: %v", err)
	}
	if len(repo.events) != 5 {
		t.Fatalf("event count = %d, want 5", len(repo.events))
	}
	if repo.events[0].PrevEventHash != ZeroAuditHash() {
		t.Fatal("first event not anchored to the zero hash")
	}
}

func TestVerifyAuditChainDetectsPayloadTampering(t *testing.T) {
	repo := seededAuditRepo(t)
	repo.events[1].Payload = []byte(`{"schema_id":"schema-other"}`)

	err := VerifyAuditChain(context.Background(), repo, 2)
	if err == nil || !strings.Contains(err.Error(), "payload hash mismatch") {
		t.Fatalf("err = %v, want payload hash mismatch", err)
	}
}

func TestVerifyAuditChainDetectsFieldMutation(t *testing.T) {
	repo := seededAuditRepo(t)
	repo.events[2].ActorID = "emp-666"

	err := VerifyAuditChain(context.Background(), repo, 2)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("err = %v, want hash mismatch", err)
	}
}

func TestVerifyAuditChainDetectsDeletionAndReordering(t *testing.T) {
	repo := seededAuditRepo(t)
	repo.events = append(repo.events[:2], repo.events[3:]...)
	if err := VerifyAuditChain(context.Background(), repo, 2); err == nil {
		t.Fatal("deleted event not detected")
	}

	repo = seededAuditRepo(t)
	repo.events[3], repo.events[4] = repo.events[4], repo.events[3]
	if err := VerifyAuditChain(context.Background(), repo, 2); err == nil {
		t.Fatal("reordered events not detected")
	}
}

func TestChainHashRequiresChainedFields(t *testing.T) {
	if _, err := ChainHash(domain.AuditEvent{EventType: domain.AuditEventLogIn}); err == nil {
		t.Fatal("ChainHash accepted event without payload and prev hashes")
	}
}
