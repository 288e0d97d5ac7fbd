package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// DisputeSource provides the finalized disputes and their supporting records
// for archival. Implemented by the registry.
type DisputeSource interface {
	ArchivableDisputes(ctx context.Context, cutoff time.Time, limit int) ([]domain.Dispute, error)
	VotesForDispute(ctx context.Context, disputeID int64) ([]domain.Vote, error)
}

// BlobStore is the write surface the archiver needs: one-shot puts for
// evidence and snapshots, streaming puts for bulk exports. Satisfied by
// Writer.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PutStream(ctx context.Context, key string, data io.Reader, partSize int64) error
}

// ArchiverConfig controls the cold-storage archival sweep.
type ArchiverConfig struct {
	// RetentionDays is how long finalized disputes stay exclusively in
	// Postgres before a snapshot is written to cold storage.
	RetentionDays int

	// Interval is how often the archival sweep runs.
	Interval time.Duration

	// BatchLimit caps the number of disputes snapshotted per sweep.
	BatchLimit int
}

// Archiver writes oracle evidence documents and finalized dispute snapshots
// to cold storage. Resolution evidence is archived inline by the poller;
// dispute snapshots are swept periodically once past retention.
type Archiver struct {
	writer   BlobStore
	disputes DisputeSource
	payouts  domain.PayoutStore
	audit    domain.AuditStore
	logger   *slog.Logger
	cfg      ArchiverConfig

	now func() time.Time
}

// NewArchiver creates an Archiver. payouts and audit may be nil; snapshots
// then omit payout history and skip audit logging.
func NewArchiver(writer BlobStore, disputes DisputeSource, payouts domain.PayoutStore, audit domain.AuditStore, logger *slog.Logger, cfg ArchiverConfig) *Archiver {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	return &Archiver{
		writer:   writer,
		disputes: disputes,
		payouts:  payouts,
		audit:    audit,
		logger:   logger.With(slog.String("component", "archiver")),
		cfg:      cfg,
		now:      time.Now,
	}
}

// evidenceDoc is the archived record of one automatic market resolution.
type evidenceDoc struct {
	MarketID   uint64    `json:"market_id"`
	Question   string    `json:"question"`
	EndTime    time.Time `json:"end_time"`
	Outcome    string    `json:"outcome"`
	Confidence uint8     `json:"confidence"`
	Reason     string    `json:"reason"`
	Sources    []string  `json:"sources,omitempty"`
	Evidence   string    `json:"evidence,omitempty"`
	ArchivedAt time.Time `json:"archived_at"`
}

// ArchiveResolution stores the oracle verdict that backed an on-chain
// resolution, keyed by market and archival time so repeated resolutions of
// the same market never collide.
func (a *Archiver) ArchiveResolution(ctx context.Context, m domain.Market, res domain.OracleResolution) error {
	now := a.now().UTC()
	outcome := domain.OutcomeUndecided
	if res.Outcome != nil {
		outcome = *res.Outcome
	}
	doc := evidenceDoc{
		MarketID:   m.ID,
		Question:   m.Question,
		EndTime:    m.EndTime.UTC(),
		Outcome:    outcome.String(),
		Confidence: res.Confidence,
		Reason:     res.Reason,
		Sources:    res.Sources,
		Evidence:   res.Evidence,
		ArchivedAt: now,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("s3blob: marshal evidence for market %d: %w", m.ID, err)
	}

	key := fmt.Sprintf("evidence/markets/%d/%d.json", m.ID, now.Unix())
	if err := a.writer.Put(ctx, key, data, "application/json"); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "resolution evidence archived",
		slog.Uint64("market_id", m.ID),
		slog.String("key", key),
	)
	return nil
}

// disputeSnapshot is the archived record of one finalized dispute, with all
// votes and settlements attached. Stake amounts are decimal strings of wei.
type disputeSnapshot struct {
	ID               int64          `json:"id"`
	MarketContract   string         `json:"market_contract"`
	MarketID         uint64         `json:"market_id"`
	Disputer         string         `json:"disputer"`
	Reason           string         `json:"reason"`
	Status           string         `json:"status"`
	Outcome          string         `json:"outcome"`
	DisputeStake     string         `json:"dispute_stake"`
	TotalAcceptStake string         `json:"total_accept_stake"`
	TotalRejectStake string         `json:"total_reject_stake"`
	EscrowBalance    string         `json:"escrow_balance"`
	VotingEndTime    time.Time      `json:"voting_end_time"`
	CreatedAt        time.Time      `json:"created_at"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	Votes            []voteRecord   `json:"votes"`
	Payouts          []payoutRecord `json:"payouts,omitempty"`
	ArchivedAt       time.Time      `json:"archived_at"`
}

type voteRecord struct {
	Voter     string    `json:"voter"`
	Side      string    `json:"side"`
	Stake     string    `json:"stake"`
	Claimed   bool      `json:"claimed"`
	CreatedAt time.Time `json:"created_at"`
}

type payoutRecord struct {
	ID        string    `json:"id"`
	Voter     string    `json:"voter"`
	Amount    string    `json:"amount"`
	Forfeited bool      `json:"forfeited,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ArchiveDisputes snapshots finalized disputes older than the retention
// window to cold storage and returns the number archived. A failed snapshot
// is logged and retried on the next sweep; it does not abort the batch.
func (a *Archiver) ArchiveDisputes(ctx context.Context) (int, error) {
	cutoff := a.now().UTC().AddDate(0, 0, -a.cfg.RetentionDays)

	ds, err := a.disputes.ArchivableDisputes(ctx, cutoff, a.cfg.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list archivable disputes: %w", err)
	}

	archived := 0
	for _, d := range ds {
		if err := a.archiveDispute(ctx, d); err != nil {
			a.logger.WarnContext(ctx, "dispute snapshot failed",
				slog.Int64("dispute_id", d.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		archived++
	}

	if archived > 0 {
		a.logger.InfoContext(ctx, "dispute archival sweep complete",
			slog.Int("archived", archived),
			slog.Time("cutoff", cutoff),
		)
	}
	return archived, nil
}

func (a *Archiver) archiveDispute(ctx context.Context, d domain.Dispute) error {
	votes, err := a.disputes.VotesForDispute(ctx, d.ID)
	if err != nil {
		return err
	}

	snap := disputeSnapshot{
		ID:               d.ID,
		MarketContract:   d.MarketContract,
		MarketID:         d.MarketID,
		Disputer:         d.Disputer,
		Reason:           d.Reason,
		Status:           string(d.Status),
		Outcome:          string(d.Outcome),
		DisputeStake:     d.DisputeStake.String(),
		TotalAcceptStake: d.TotalAcceptStake.String(),
		TotalRejectStake: d.TotalRejectStake.String(),
		EscrowBalance:    d.EscrowBalance.String(),
		VotingEndTime:    d.VotingEndTime.UTC(),
		CreatedAt:        d.CreatedAt.UTC(),
		ResolvedAt:       d.ResolvedAt,
		ArchivedAt:       a.now().UTC(),
	}

	for _, v := range votes {
		snap.Votes = append(snap.Votes, voteRecord{
			Voter:     v.Voter,
			Side:      string(v.Side),
			Stake:     v.Stake.String(),
			Claimed:   v.Claimed,
			CreatedAt: v.CreatedAt.UTC(),
		})
	}

	if a.payouts != nil {
		ps, err := a.payouts.ListByDispute(ctx, d.ID)
		if err != nil {
			return err
		}
		for _, p := range ps {
			snap.Payouts = append(snap.Payouts, payoutRecord{
				ID:        p.ID,
				Voter:     p.Voter,
				Amount:    p.Amount.String(),
				Forfeited: p.Forfeited,
				CreatedAt: p.CreatedAt.UTC(),
			})
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("s3blob: marshal snapshot for dispute %d: %w", d.ID, err)
	}

	key := a.disputeKey(d)
	if err := a.writer.Put(ctx, key, data, "application/json"); err != nil {
		return err
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "dispute.archived", map[string]any{
			"dispute_id": d.ID,
			"key":        key,
		}); err != nil {
			a.logger.WarnContext(ctx, "audit log failed",
				slog.Int64("dispute_id", d.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// disputeKey partitions snapshots by resolution month so prefix listings stay
// bounded as history grows.
func (a *Archiver) disputeKey(d domain.Dispute) string {
	at := d.CreatedAt
	if d.ResolvedAt != nil {
		at = *d.ResolvedAt
	}
	return fmt.Sprintf("archive/disputes/%s/dispute-%d.json", at.UTC().Format("2006-01"), d.ID)
}

// auditExportLimit caps entries per audit export batch.
const auditExportLimit = 1000

// ExportAudit streams the most recent audit entries to cold storage as a
// JSONL document keyed by day, so each day's export supersedes the last.
func (a *Archiver) ExportAudit(ctx context.Context) error {
	if a.audit == nil {
		return nil
	}

	entries, err := a.audit.List(ctx, domain.ListOpts{Limit: auditExportLimit})
	if err != nil {
		return fmt.Errorf("s3blob: list audit entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("s3blob: encode audit entry %d: %w", e.ID, err)
		}
	}

	key := fmt.Sprintf("archive/audit/%s.jsonl", a.now().UTC().Format("2006-01-02"))
	if err := a.writer.PutStream(ctx, key, &buf, 0); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "audit log exported",
		slog.Int("entries", len(entries)),
		slog.String("key", key),
	)
	return nil
}

// Run executes the archival sweep on the configured interval until the
// context is cancelled. The first sweep runs immediately.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "archiver started",
		slog.Duration("interval", a.cfg.Interval),
		slog.Int("retention_days", a.cfg.RetentionDays),
	)

	for {
		if _, err := a.ArchiveDisputes(ctx); err != nil {
			a.logger.ErrorContext(ctx, "archival sweep failed",
				slog.String("error", err.Error()),
			)
		}
		if err := a.ExportAudit(ctx); err != nil {
			a.logger.ErrorContext(ctx, "audit export failed",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			a.logger.InfoContext(ctx, "archiver stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
