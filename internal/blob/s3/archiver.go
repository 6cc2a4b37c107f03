package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// BlobStore is what the archiver writes through. Writer implements it.
type BlobStore interface {
	domain.BlobWriter
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// journalPageSize bounds one export query.
const journalPageSize = 10000

// reconciliationRecord is the document written for each partial execution.
type reconciliationRecord struct {
	Execution  domain.ExecutionResult `json:"execution"`
	FilledLeg  domain.LegResult       `json:"filled_leg"`
	FailedLeg  domain.LegResult       `json:"failed_leg"`
	RecordedAt time.Time              `json:"recorded_at"`
}

// Archiver writes reconciliation records for partial executions and
// periodic JSONL exports of the execution journal.
type Archiver struct {
	blobs   BlobStore
	journal domain.ExecutionStore
	audit   domain.AuditLog
	now     func() time.Time
}

// NewArchiver creates an Archiver. journal and audit may be nil, in which
// case ExportJournal is unavailable and exports are not audited.
func NewArchiver(blobs BlobStore, journal domain.ExecutionStore, audit domain.AuditLog) *Archiver {
	return &Archiver{
		blobs:   blobs,
		journal: journal,
		audit:   audit,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// HandlePartial stores a reconciliation record for a partial execution at
// reconciliation/YYYY/MM/DD/{id}.json.
func (a *Archiver) HandlePartial(ctx context.Context, res domain.ExecutionResult) error {
	filled, failed := res.LegA, res.LegB
	if !filled.Success {
		filled, failed = failed, filled
	}
	rec := reconciliationRecord{Execution: res, FilledLeg: filled, FailedLeg: failed, RecordedAt: a.now()}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal reconciliation %s: %w", res.ID, err)
	}
	path := reconciliationPath(res)
	if err := a.blobs.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: write reconciliation %s: %w", res.ID, err)
	}
	return nil
}

// ExportJournal uploads every execution since the cutoff as JSONL to
// archive/executions/{cutoff}_{now}.jsonl and returns the record count.
func (a *Archiver) ExportJournal(ctx context.Context, since time.Time) (int, error) {
	if a.journal == nil {
		return 0, fmt.Errorf("s3blob: export journal: no journal configured")
	}

	var all []domain.ExecutionResult
	for offset := 0; ; offset += journalPageSize {
		page, err := a.journal.ListRecent(ctx, domain.ListOpts{Limit: journalPageSize, Offset: offset, Since: &since})
		if err != nil {
			return 0, fmt.Errorf("s3blob: export journal query: %w", err)
		}
		all = append(all, page...)
		if len(page) < journalPageSize {
			break
		}
	}
	if len(all) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(all)
	if err != nil {
		return 0, fmt.Errorf("s3blob: export journal marshal: %w", err)
	}
	now := a.now()
	path := journalPath(since, now)
	if err := a.blobs.PutMultipart(ctx, path, bytes.NewReader(buf), "application/x-ndjson", minPartSize); err != nil {
		return 0, fmt.Errorf("s3blob: export journal upload: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.executions", map[string]any{
			"path":  path,
			"count": len(all),
			"since": since.Format(time.RFC3339),
		}); err != nil {
			return len(all), fmt.Errorf("s3blob: export journal audit log: %w", err)
		}
	}
	return len(all), nil
}

func reconciliationPath(res domain.ExecutionResult) string {
	ts := res.Timestamp.UTC()
	return fmt.Sprintf("reconciliation/%s/%s.json", ts.Format("2006/01/02"), res.ID)
}

func journalPath(since, now time.Time) string {
	const layout = "20060102T150405Z"
	return fmt.Sprintf("archive/executions/%s_%s.jsonl", since.UTC().Format(layout), now.UTC().Format(layout))
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
