package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/deskpro/signaling-server/internal/db"
	"github.com/deskpro/signaling-server/internal/model"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// generateID generates a unique ID for testing.
func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func setupTestRepo(t *testing.T) *AuditRepository {
	t.Helper()

	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })

	return NewAuditRepository(testDB)
}

func TestAuditRepository_InsertAndListBySession(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	kinds := []model.AuditKind{
		model.AuditSessionCreated,
		model.AuditClientJoined,
		model.AuditClientLeft,
		model.AuditSessionClosed,
	}
	for _, kind := range kinds {
		ev := &model.AuditEvent{SessionID: "abc", ConnID: "H", Kind: kind}
		if err := repo.Insert(ctx, ev); err != nil {
			t.Fatalf("insert %s: %v", kind, err)
		}
		if ev.ID == 0 {
			t.Errorf("expected ID to be set for %s", kind)
		}
	}

	if err := repo.Insert(ctx, &model.AuditEvent{SessionID: "other", Kind: model.AuditSessionEvicted}); err != nil {
		t.Fatalf("insert other: %v", err)
	}

	events, err := repo.ListBySession(ctx, "abc", 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != len(kinds) {
		t.Fatalf("expected %d events, got %d", len(kinds), len(events))
	}
	for i, ev := range events {
		if ev.Kind != kinds[i] {
			t.Errorf("event %d: expected kind %s, got %s", i, kinds[i], ev.Kind)
		}
		if ev.ConnID != "H" {
			t.Errorf("event %d: expected conn H, got %q", i, ev.ConnID)
		}
	}

	count, err := repo.CountBySession(ctx, "abc")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != len(kinds) {
		t.Errorf("expected count %d, got %d", len(kinds), count)
	}

	if count, err := repo.CountBySession(ctx, "missing"); err != nil || count != 0 {
		t.Errorf("expected 0 for unknown session, got %d (%v)", count, err)
	}
}

func TestAuditRepository_ListRecent(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ev := &model.AuditEvent{SessionID: generateID(), Kind: model.AuditSessionCreated}
		if err := repo.Insert(ctx, ev); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	events, err := repo.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].ID <= events[1].ID || events[1].ID <= events[2].ID {
		t.Errorf("expected newest first, got ids %d, %d, %d", events[0].ID, events[1].ID, events[2].ID)
	}
}

func TestAuditRepository_EmptyOptionalColumns(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.Insert(ctx, &model.AuditEvent{SessionID: "s1", Kind: model.AuditSessionEvicted}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	events, err := repo.ListBySession(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ConnID != "" || events[0].Detail != "" {
		t.Errorf("expected empty conn and detail, got %q %q", events[0].ConnID, events[0].Detail)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

// Every inserted event can be read back with the same session, connection,
// kind and detail.
func TestAuditJournalIntegrityProperty(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	nonEmptyString := gen.AlphaString().SuchThat(func(s string) bool {
		return len(s) > 0 && len(s) <= 100
	})
	kindGen := gen.OneConstOf(
		model.AuditSessionCreated,
		model.AuditClientJoined,
		model.AuditClientLeft,
		model.AuditSessionClosed,
		model.AuditSessionEvicted,
	)

	properties.Property("inserted events are retrievable by session", prop.ForAll(
		func(connID, detail string, kind model.AuditKind) bool {
			sessionID := generateID()
			ev := &model.AuditEvent{
				SessionID: sessionID,
				ConnID:    connID,
				Kind:      kind,
				Detail:    detail,
				CreatedAt: time.Now(),
			}
			if err := repo.Insert(ctx, ev); err != nil {
				t.Logf("failed to insert: %v", err)
				return false
			}

			events, err := repo.ListBySession(ctx, sessionID, 10)
			if err != nil || len(events) != 1 {
				return false
			}

			got := events[0]
			return got.ID == ev.ID &&
				got.SessionID == sessionID &&
				got.ConnID == connID &&
				got.Kind == kind &&
				got.Detail == detail
		},
		nonEmptyString,
		nonEmptyString,
		kindGen,
	))

	properties.TestingRun(t)
}
