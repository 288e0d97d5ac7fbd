package s3blob

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

type fakeWriter struct {
	objects map[string][]byte
	failKey string
}

func (f *fakeWriter) Put(_ context.Context, key string, data []byte, _ string) error {
	if key == f.failKey {
		return errors.New("upload refused")
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = data
	return nil
}

func (f *fakeWriter) PutStream(ctx context.Context, key string, data io.Reader, _ int64) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	return f.Put(ctx, key, b, "application/x-ndjson")
}

type fakeSource struct {
	disputes []domain.Dispute
	votes    map[int64][]domain.Vote
}

func (f *fakeSource) ArchivableDisputes(_ context.Context, cutoff time.Time, _ int) ([]domain.Dispute, error) {
	var out []domain.Dispute
	for _, d := range f.disputes {
		if d.ResolvedAt != nil && d.ResolvedAt.Before(cutoff) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeSource) VotesForDispute(_ context.Context, id int64) ([]domain.Vote, error) {
	return f.votes[id], nil
}

type fakeAudit struct {
	events  []string
	entries []domain.AuditEntry
}

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return f.entries, nil
}

var archiveNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func finalizedDispute(id int64, resolvedAt time.Time) domain.Dispute {
	return domain.Dispute{
		ID:               id,
		MarketContract:   "0xMarket",
		MarketID:         uint64(id),
		Disputer:         "0xDisputer",
		Reason:           "oracle got it wrong",
		DisputeStake:     big.NewInt(1_000),
		Status:           domain.DisputeStatusResolved,
		Outcome:          domain.DisputeOutcomeAccept,
		TotalAcceptStake: big.NewInt(3_000),
		TotalRejectStake: big.NewInt(1_500),
		EscrowBalance:    big.NewInt(0),
		VotingEndTime:    resolvedAt.Add(-time.Hour),
		CreatedAt:        resolvedAt.Add(-48 * time.Hour),
		ResolvedAt:       &resolvedAt,
	}
}

func newTestArchiver(writer *fakeWriter, source *fakeSource, audit *fakeAudit) *Archiver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var auditStore domain.AuditStore
	if audit != nil {
		auditStore = audit
	}
	a := NewArchiver(writer, source, nil, auditStore, logger, ArchiverConfig{
		RetentionDays: 30,
		Interval:      time.Hour,
		BatchLimit:    100,
	})
	a.now = func() time.Time { return archiveNow }
	return a
}

func TestArchiveResolution(t *testing.T) {
	writer := &fakeWriter{}
	a := newTestArchiver(writer, &fakeSource{}, nil)

	outcome := domain.OutcomeYes
	m := domain.Market{ID: 7, Question: "Will BTC close above $100k?", EndTime: archiveNow.Add(-time.Hour)}
	res := domain.OracleResolution{
		Outcome:    &outcome,
		Confidence: 91,
		Reason:     "confirmed by multiple sources",
		Sources:    []string{"https://example.com/a"},
	}

	require.NoError(t, a.ArchiveResolution(context.Background(), m, res))

	key := "evidence/markets/7/1751371200.json"
	require.Contains(t, writer.objects, key)

	var doc evidenceDoc
	require.NoError(t, json.Unmarshal(writer.objects[key], &doc))
	require.Equal(t, uint64(7), doc.MarketID)
	require.Equal(t, "yes", doc.Outcome)
	require.Equal(t, uint8(91), doc.Confidence)
	require.Equal(t, []string{"https://example.com/a"}, doc.Sources)
}

func TestArchiveDisputesSnapshotsPastRetention(t *testing.T) {
	old := archiveNow.AddDate(0, 0, -45)
	recent := archiveNow.AddDate(0, 0, -3)

	source := &fakeSource{
		disputes: []domain.Dispute{
			finalizedDispute(1, old),
			finalizedDispute(2, recent),
		},
		votes: map[int64][]domain.Vote{
			1: {
				{DisputeID: 1, Voter: "0xDisputer", Side: domain.VoteAccept, Stake: big.NewInt(1_000), Claimed: true, CreatedAt: old.Add(-48 * time.Hour)},
				{DisputeID: 1, Voter: "0xBob", Side: domain.VoteReject, Stake: big.NewInt(1_500), CreatedAt: old.Add(-24 * time.Hour)},
			},
		},
	}
	writer := &fakeWriter{}
	audit := &fakeAudit{}
	a := newTestArchiver(writer, source, audit)

	n, err := a.ArchiveDisputes(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	key := "archive/disputes/" + old.Format("2006-01") + "/dispute-1.json"
	require.Contains(t, writer.objects, key)
	require.Len(t, writer.objects, 1)

	var snap disputeSnapshot
	require.NoError(t, json.Unmarshal(writer.objects[key], &snap))
	require.Equal(t, int64(1), snap.ID)
	require.Equal(t, "resolved", snap.Status)
	require.Equal(t, "accept_dispute", snap.Outcome)
	require.Equal(t, "3000", snap.TotalAcceptStake)
	require.Len(t, snap.Votes, 2)
	require.Equal(t, "0xBob", snap.Votes[1].Voter)
	require.Equal(t, "1500", snap.Votes[1].Stake)

	require.Equal(t, []string{"dispute.archived"}, audit.events)
}

func TestExportAudit(t *testing.T) {
	writer := &fakeWriter{}
	audit := &fakeAudit{entries: []domain.AuditEntry{
		{ID: 2, Event: "dispute_finalized", CreatedAt: archiveNow},
		{ID: 1, Event: "dispute_created", CreatedAt: archiveNow.Add(-time.Hour)},
	}}
	a := newTestArchiver(writer, &fakeSource{}, audit)

	require.NoError(t, a.ExportAudit(context.Background()))

	key := "archive/audit/2025-07-01.jsonl"
	require.Contains(t, writer.objects, key)
	lines := strings.Split(strings.TrimSpace(string(writer.objects[key])), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "dispute_finalized")
}

func TestExportAuditSkipsWhenEmpty(t *testing.T) {
	writer := &fakeWriter{}
	a := newTestArchiver(writer, &fakeSource{}, &fakeAudit{})

	require.NoError(t, a.ExportAudit(context.Background()))
	require.Empty(t, writer.objects)
}

func TestArchiveDisputesContinuesPastFailure(t *testing.T) {
	old := archiveNow.AddDate(0, 0, -60)
	source := &fakeSource{
		disputes: []domain.Dispute{
			finalizedDispute(1, old),
			finalizedDispute(2, old),
		},
		votes: map[int64][]domain.Vote{},
	}
	writer := &fakeWriter{failKey: "archive/disputes/" + old.Format("2006-01") + "/dispute-1.json"}
	a := newTestArchiver(writer, source, nil)

	n, err := a.ArchiveDisputes(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Contains(t, writer.objects, "archive/disputes/"+old.Format("2006-01")+"/dispute-2.json")
}
