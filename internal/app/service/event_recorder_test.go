package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/touchlog/touchlog/internal/app/model"
)

type mockEventRepository struct {
	insertFn       func(ctx context.Context, table string, columns map[string]interface{}) error
	countRecentFn  func(ctx context.Context, tagID string, ipHashes []string, since time.Time) (int64, error)
	hasForTagFn    func(ctx context.Context, tagID string, ipHashes []string) (bool, error)
	hasAnyFn       func(ctx context.Context, ipHashes []string) (bool, error)
	recentHashesFn func(ctx context.Context, limit int) ([]string, error)
	countByTagFn   func(ctx context.Context, table, tagID string) (int64, error)
}

func (m *mockEventRepository) Insert(ctx context.Context, table string, columns map[string]interface{}) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, table, columns)
	}
	return nil
}

func (m *mockEventRepository) CountRecentScans(ctx context.Context, tagID string, ipHashes []string, since time.Time) (int64, error) {
	if m.countRecentFn != nil {
		return m.countRecentFn(ctx, tagID, ipHashes, since)
	}
	return 0, nil
}

func (m *mockEventRepository) HasScanForTag(ctx context.Context, tagID string, ipHashes []string) (bool, error) {
	if m.hasForTagFn != nil {
		return m.hasForTagFn(ctx, tagID, ipHashes)
	}
	return false, nil
}

func (m *mockEventRepository) HasAnyScan(ctx context.Context, ipHashes []string) (bool, error) {
	if m.hasAnyFn != nil {
		return m.hasAnyFn(ctx, ipHashes)
	}
	return false, nil
}

func (m *mockEventRepository) RecentScanHashes(ctx context.Context, limit int) ([]string, error) {
	if m.recentHashesFn != nil {
		return m.recentHashesFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockEventRepository) CountByTag(ctx context.Context, table, tagID string) (int64, error) {
	if m.countByTagFn != nil {
		return m.countByTagFn(ctx, table, tagID)
	}
	return 0, nil
}

func scanEvent(tagID, hash string) *model.TelemetryEvent {
	ev := &model.TelemetryEvent{
		ID:         "ev-1",
		Kind:       model.EventKindScan,
		TagID:      tagID,
		VisitorID:  "visitor-1",
		SessionID:  "session-1",
		DeviceType: "iOS",
		OccurredAt: time.Now().UTC(),
	}
	if hash != "" {
		ev.Network.Hash = &hash
	}
	return ev
}

func TestRecordDirect_SuppressedInsideDedupWindow(t *testing.T) {
	inserts := 0
	repo := &mockEventRepository{
		insertFn: func(ctx context.Context, table string, columns map[string]interface{}) error {
			inserts++
			return nil
		},
		countRecentFn: func(ctx context.Context, tagID string, ipHashes []string, since time.Time) (int64, error) {
			return 1, nil
		},
	}

	r := NewEventRecorder(nil, repo, 30*time.Second)
	outcome, err := r.RecordDirect(context.Background(), scanEvent("tag-1", "hash-1"))
	if err != nil {
		t.Fatalf("RecordDirect returned error: %v", err)
	}
	if outcome != RecordSuppressed {
		t.Fatalf("outcome = %v, want RecordSuppressed", outcome)
	}
	if inserts != 0 {
		t.Fatalf("expected no insert for a suppressed scan, got %d", inserts)
	}
}

func TestRecordDirect_RecordsOutsideDedupWindow(t *testing.T) {
	var inserted map[string]interface{}
	repo := &mockEventRepository{
		insertFn: func(ctx context.Context, table string, columns map[string]interface{}) error {
			if table != model.ScanEventTable {
				t.Fatalf("table = %q, want %q", table, model.ScanEventTable)
			}
			inserted = columns
			return nil
		},
		countRecentFn: func(ctx context.Context, tagID string, ipHashes []string, since time.Time) (int64, error) {
			return 0, nil
		},
		hasForTagFn: func(ctx context.Context, tagID string, ipHashes []string) (bool, error) {
			return true, nil
		},
	}

	r := NewEventRecorder(nil, repo, 30*time.Second)
	outcome, err := r.RecordDirect(context.Background(), scanEvent("tag-1", "hash-1"))
	if err != nil {
		t.Fatalf("RecordDirect returned error: %v", err)
	}
	if outcome != RecordOK {
		t.Fatalf("outcome = %v, want RecordOK", outcome)
	}
	if inserted == nil {
		t.Fatal("expected an insert")
	}
	if inserted["is_returning"] != true {
		t.Fatal("expected tag-scoped returning flag to be true")
	}
}

func TestRecordDirect_LegacyHashRowsCountForDedup(t *testing.T) {
	var sawHashes []string
	repo := &mockEventRepository{
		countRecentFn: func(ctx context.Context, tagID string, ipHashes []string, since time.Time) (int64, error) {
			sawHashes = ipHashes
			// Only a pre-rollout row under the legacy digest exists.
			for _, h := range ipHashes {
				if h == "legacy-1" {
					return 1, nil
				}
			}
			return 0, nil
		},
	}

	ev := scanEvent("tag-1", "hash-1")
	legacy := "legacy-1"
	ev.Network.LegacyHash = &legacy

	r := NewEventRecorder(nil, repo, 30*time.Second)
	outcome, err := r.RecordDirect(context.Background(), ev)
	if err != nil {
		t.Fatalf("RecordDirect returned error: %v", err)
	}
	if outcome != RecordSuppressed {
		t.Fatalf("outcome = %v, want RecordSuppressed", outcome)
	}
	if len(sawHashes) != 2 {
		t.Fatalf("dedup lookup saw %d hashes, want both digests", len(sawHashes))
	}
}

func TestRecordRedirect_NeverChecksDedupWindow(t *testing.T) {
	repo := &mockEventRepository{
		countRecentFn: func(ctx context.Context, tagID string, ipHashes []string, since time.Time) (int64, error) {
			t.Fatal("redirect path must not consult the dedup window")
			return 0, nil
		},
	}

	r := NewEventRecorder(nil, repo, 30*time.Second)
	outcome, err := r.RecordRedirect(context.Background(), scanEvent("tag-1", "hash-1"))
	if err != nil {
		t.Fatalf("RecordRedirect returned error: %v", err)
	}
	if outcome != RecordOK {
		t.Fatalf("outcome = %v, want RecordOK", outcome)
	}
}

func TestRecordRedirect_GlobalReturningFlag(t *testing.T) {
	stored := map[string]bool{}
	repo := &mockEventRepository{
		insertFn: func(ctx context.Context, table string, columns map[string]interface{}) error {
			if h, ok := columns["ip_hash"].(*string); ok && h != nil {
				stored[*h] = true
			}
			return nil
		},
		hasAnyFn: func(ctx context.Context, ipHashes []string) (bool, error) {
			for _, h := range ipHashes {
				if stored[h] {
					return true, nil
				}
			}
			return false, nil
		},
	}

	r := NewEventRecorder(nil, repo, 30*time.Second)

	first := scanEvent("tag-1", "hash-1")
	if _, err := r.RecordRedirect(context.Background(), first); err != nil {
		t.Fatalf("first record failed: %v", err)
	}
	if first.IsReturning {
		t.Fatal("first occurrence must not be flagged as returning")
	}

	second := scanEvent("tag-2", "hash-1")
	if _, err := r.RecordRedirect(context.Background(), second); err != nil {
		t.Fatalf("second record failed: %v", err)
	}
	if !second.IsReturning {
		t.Fatal("same hash on any tag must be flagged as returning on the redirect path")
	}
}

func TestRecord_SchemaFallbackRetriesOnce(t *testing.T) {
	var attempts []map[string]interface{}
	repo := &mockEventRepository{
		insertFn: func(ctx context.Context, table string, columns map[string]interface{}) error {
			attempts = append(attempts, columns)
			if len(attempts) == 1 {
				return &pgconn.PgError{Code: "42703", Message: `column "utm_source" of relation "scan_events" does not exist`}
			}
			return nil
		},
	}

	r := NewEventRecorder(nil, repo, 30*time.Second)
	outcome, err := r.RecordRedirect(context.Background(), scanEvent("tag-1", "hash-1"))
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if outcome != RecordWithoutTelemetry {
		t.Fatalf("outcome = %v, want RecordWithoutTelemetry", outcome)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected exactly two insert attempts, got %d", len(attempts))
	}
	if _, ok := attempts[0]["utm_source"]; !ok {
		t.Fatal("first attempt should carry the full column set")
	}
	if _, ok := attempts[1]["utm_source"]; ok {
		t.Fatal("fallback attempt must drop telemetry columns")
	}
	if _, ok := attempts[1]["tag_id"]; !ok {
		t.Fatal("fallback attempt must keep core columns")
	}
}

func TestRecord_ConstraintViolationIsNotRetried(t *testing.T) {
	attempts := 0
	repo := &mockEventRepository{
		insertFn: func(ctx context.Context, table string, columns map[string]interface{}) error {
			attempts++
			return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
		},
	}

	r := NewEventRecorder(nil, repo, 30*time.Second)
	outcome, err := r.RecordRedirect(context.Background(), scanEvent("tag-1", "hash-1"))
	if err == nil {
		t.Fatal("expected the constraint violation to surface")
	}
	if outcome != RecordFailed {
		t.Fatalf("outcome = %v, want RecordFailed", outcome)
	}
	if attempts != 1 {
		t.Fatalf("expected a single insert attempt, got %d", attempts)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		t.Fatalf("expected the original error to be wrapped, got %v", err)
	}
}

func TestRecord_FallbackFailureSurfaces(t *testing.T) {
	repo := &mockEventRepository{
		insertFn: func(ctx context.Context, table string, columns map[string]interface{}) error {
			return &pgconn.PgError{Code: "42703", Message: `column "id" does not exist`}
		},
	}

	r := NewEventRecorder(nil, repo, 30*time.Second)
	outcome, err := r.RecordRedirect(context.Background(), scanEvent("tag-1", "hash-1"))
	if err == nil {
		t.Fatal("expected an error when both attempts fail")
	}
	if outcome != RecordFailed {
		t.Fatalf("outcome = %v, want RecordFailed", outcome)
	}
}

func TestRecord_LinkClickSkipsScanLogic(t *testing.T) {
	repo := &mockEventRepository{
		countRecentFn: func(ctx context.Context, tagID string, ipHashes []string, since time.Time) (int64, error) {
			t.Fatal("link clicks must not run the scan dedup check")
			return 0, nil
		},
		insertFn: func(ctx context.Context, table string, columns map[string]interface{}) error {
			if table != model.LinkClickEventTable {
				t.Fatalf("table = %q, want %q", table, model.LinkClickEventTable)
			}
			if _, ok := columns["is_returning"]; ok {
				t.Fatal("link click rows must not carry the returning flag")
			}
			return nil
		},
	}

	url := "https://example.com/product"
	hash := "hash-1"
	ev := &model.TelemetryEvent{
		ID:         "ev-2",
		Kind:       model.EventKindLinkClick,
		TagID:      "tag-1",
		LinkURL:    &url,
		OccurredAt: time.Now().UTC(),
	}
	ev.Network.Hash = &hash

	r := NewEventRecorder(nil, repo, 30*time.Second)
	if _, err := r.RecordDirect(context.Background(), ev); err != nil {
		t.Fatalf("RecordDirect returned error: %v", err)
	}
}

func TestSeedReturningFilter(t *testing.T) {
	repo := &mockEventRepository{
		recentHashesFn: func(ctx context.Context, limit int) ([]string, error) {
			return []string{"hash-a", "hash-b"}, nil
		},
		hasAnyFn: func(ctx context.Context, ipHashes []string) (bool, error) {
			for _, h := range ipHashes {
				if h == "hash-a" || h == "hash-b" {
					return true, nil
				}
			}
			return false, nil
		},
	}

	r := NewEventRecorder(nil, repo, 30*time.Second)
	r.SeedReturningFilter(context.Background())

	ev := scanEvent("tag-1", "hash-a")
	if _, err := r.RecordRedirect(context.Background(), ev); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if !ev.IsReturning {
		t.Fatal("seeded hash must be recognized as returning")
	}
}
