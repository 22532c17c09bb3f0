package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/touchlog/touchlog/internal/app/model"
	"github.com/touchlog/touchlog/internal/app/repository"
	infraProm "github.com/touchlog/touchlog/internal/infra/prometheus"
	"go.uber.org/zap"
)

// RecordOutcome describes what happened to one event on the write path.
type RecordOutcome int

const (
	// RecordOK means the full enriched row was persisted.
	RecordOK RecordOutcome = iota
	// RecordWithoutTelemetry means the row was persisted with the
	// reduced legacy column set after a schema mismatch.
	RecordWithoutTelemetry
	// RecordSuppressed means a direct-access scan fell inside the dedup
	// window of an existing row and was not inserted.
	RecordSuppressed
	// RecordFailed means both insert attempts failed; the error is
	// returned alongside.
	RecordFailed
)

const (
	defaultDedupWindow = 30 * time.Second
	returningSeedLimit = 100000

	// Bloom filter sizing for the global returning-visitor fast path.
	returningFilterCapacity = 1000000
	returningFilterFPRate   = 0.01
)

// EventRecorder is the single write path both entry points converge on.
// The redirect path always inserts and computes the returning flag
// globally; the direct-access path checks the dedup window first and
// computes the flag per tag. The asymmetry is deliberate: the redirect
// hop is authoritative for a visit, the direct render is the backstop.
type EventRecorder struct {
	logger      *zap.Logger
	events      repository.EventRepository
	dedupWindow time.Duration

	// seen tracks every ip hash this process has observed or seeded.
	// Bloom misses are definitive, hits are confirmed against the store.
	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// NewEventRecorder builds a recorder; a non-positive window falls back to
// the default 30 seconds.
func NewEventRecorder(logger *zap.Logger, events repository.EventRepository, dedupWindow time.Duration) *EventRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dedupWindow <= 0 {
		dedupWindow = defaultDedupWindow
	}
	return &EventRecorder{
		logger:      logger,
		events:      events,
		dedupWindow: dedupWindow,
		seen:        bloom.NewWithEstimates(returningFilterCapacity, returningFilterFPRate),
	}
}

// SeedReturningFilter warms the in-memory hash filter from recent rows so
// the global returning check survives restarts. Failure to seed is
// non-fatal: the filter simply starts cold.
func (r *EventRecorder) SeedReturningFilter(ctx context.Context) {
	hashes, err := r.events.RecentScanHashes(ctx, returningSeedLimit)
	if err != nil {
		r.logger.Warn("failed to seed returning-visitor filter", zap.Error(err))
		return
	}

	r.mu.Lock()
	for _, h := range hashes {
		r.seen.AddString(h)
	}
	r.mu.Unlock()

	r.logger.Info("returning-visitor filter seeded", zap.Int("hashes", len(hashes)))
}

// RecordRedirect persists an event arriving through the redirect entry
// point. Scans are always inserted; the returning flag asks whether this
// ip hash has ever scanned anything.
func (r *EventRecorder) RecordRedirect(ctx context.Context, ev *model.TelemetryEvent) (RecordOutcome, error) {
	if ev.Kind == model.EventKindScan {
		if hashes := hashCandidates(ev); len(hashes) > 0 {
			ev.IsReturning = r.globalReturning(ctx, hashes)
			r.rememberHashes(hashes)
		}
	}
	return r.insert(ctx, ev)
}

// RecordDirect persists an event arriving through the direct-access entry
// point. A scan matching an existing row for the same tag and ip hash
// within the dedup window is suppressed outright, since the redirect hop
// already recorded the visit. The returning flag is tag-scoped here.
func (r *EventRecorder) RecordDirect(ctx context.Context, ev *model.TelemetryEvent) (RecordOutcome, error) {
	if hashes := hashCandidates(ev); ev.Kind == model.EventKindScan && len(hashes) > 0 {
		since := time.Now().Add(-r.dedupWindow)
		count, err := r.events.CountRecentScans(ctx, ev.TagID, hashes, since)
		if err != nil {
			// Dedup is best-effort; a failed check records rather than drops.
			r.logger.Warn("dedup window check failed", zap.Error(err), zap.String("tag_id", ev.TagID))
		} else if count > 0 {
			infraProm.DuplicatesSuppressed.Inc()
			r.logger.Debug("suppressed duplicate scan",
				zap.String("tag_id", ev.TagID),
				zap.Duration("window", r.dedupWindow))
			return RecordSuppressed, nil
		}

		returning, err := r.events.HasScanForTag(ctx, ev.TagID, hashes)
		if err != nil {
			r.logger.Warn("returning-visitor check failed", zap.Error(err), zap.String("tag_id", ev.TagID))
		} else {
			ev.IsReturning = returning
		}
		r.rememberHashes(hashes)
	}
	return r.insert(ctx, ev)
}

// insert writes the full enriched row, retrying exactly once with the
// legacy column subset when the failure is a schema mismatch. Any other
// failure class is returned unchanged.
func (r *EventRecorder) insert(ctx context.Context, ev *model.TelemetryEvent) (RecordOutcome, error) {
	table := model.TableForKind(ev.Kind)

	err := r.events.Insert(ctx, table, ev.Columns())
	if err == nil {
		infraProm.EventsRecorded.WithLabelValues(string(ev.Kind)).Inc()
		return RecordOK, nil
	}

	if !IsSchemaMismatch(err) {
		infraProm.RecordFailures.Inc()
		return RecordFailed, fmt.Errorf("insert %s: %w", table, err)
	}

	infraProm.SchemaFallbacks.Inc()
	r.logger.Warn("table is missing telemetry columns, retrying with legacy column set",
		zap.String("table", table),
		zap.Error(err))

	if err := r.events.Insert(ctx, table, ev.CoreColumns()); err != nil {
		infraProm.RecordFailures.Inc()
		return RecordFailed, fmt.Errorf("fallback insert %s: %w", table, err)
	}

	infraProm.EventsRecorded.WithLabelValues(string(ev.Kind)).Inc()
	return RecordWithoutTelemetry, nil
}

// globalReturning answers "has this client ever scanned anything". A
// bloom miss on every candidate digest is a definitive no; a hit is
// confirmed against the store since the filter admits false positives.
func (r *EventRecorder) globalReturning(ctx context.Context, hashes []string) bool {
	r.mu.Lock()
	maybeSeen := false
	for _, h := range hashes {
		if r.seen.TestString(h) {
			maybeSeen = true
			break
		}
	}
	r.mu.Unlock()

	if !maybeSeen {
		return false
	}

	seen, err := r.events.HasAnyScan(ctx, hashes)
	if err != nil {
		r.logger.Warn("global returning-visitor check failed", zap.Error(err))
		return false
	}
	return seen
}

func (r *EventRecorder) rememberHashes(hashes []string) {
	r.mu.Lock()
	for _, h := range hashes {
		r.seen.AddString(h)
	}
	r.mu.Unlock()
}

// hashCandidates lists the digests that can identify this client in
// stored rows: the keyed hash plus the legacy salted hash, so rows
// written before the HMAC secret rollout still count for dedup and the
// returning flag.
func hashCandidates(ev *model.TelemetryEvent) []string {
	var hashes []string
	if ev.Network.Hash != nil {
		hashes = append(hashes, *ev.Network.Hash)
	}
	if ev.Network.LegacyHash != nil {
		hashes = append(hashes, *ev.Network.LegacyHash)
	}
	return hashes
}
