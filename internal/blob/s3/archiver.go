package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

// LedgerSource reads a consistent copy of one game's ledger.
type LedgerSource interface {
	Snapshot(ctx context.Context, gameID uint64) (domain.GameLedger, error)
}

// Archiver exports game ledgers as JSON objects under
// games/<id>/ledger-<UTC timestamp>.json. Every export is a new object; older
// ones are kept.
type Archiver struct {
	source LedgerSource
	writer domain.BlobWriter
	audit  domain.AuditStore
	now    func() time.Time
}

// NewArchiver wires an archiver. audit may be nil.
func NewArchiver(source LedgerSource, writer domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return &Archiver{source: source, writer: writer, audit: audit, now: time.Now}
}

// ArchiveKey is the object key for a ledger exported at t.
func ArchiveKey(gameID uint64, t time.Time) string {
	return fmt.Sprintf("games/%d/ledger-%s.json", gameID, t.UTC().Format("20060102T150405Z"))
}

// ArchiveGame uploads the current ledger of gameID and returns the object key.
func (a *Archiver) ArchiveGame(ctx context.Context, gameID uint64) (string, error) {
	ledger, err := a.source.Snapshot(ctx, gameID)
	if err != nil {
		return "", fmt.Errorf("s3blob: snapshot game %d: %w", gameID, err)
	}
	body, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal ledger %d: %w", gameID, err)
	}

	key := ArchiveKey(gameID, a.now())
	if err := a.writer.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
		return "", err
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "ledger_archived", map[string]any{
			"game_id":  gameID,
			"key":      key,
			"holdings": len(ledger.Holdings),
		}); err != nil {
			return key, fmt.Errorf("s3blob: audit archive of game %d: %w", gameID, err)
		}
	}
	return key, nil
}
