package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/alem-hub/study-hub/internal/domain/progress"
	"github.com/alem-hub/study-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository over the progress_stats table.
// The whole document is overwritten on save.
type ProgressRepository struct {
	conn Querier
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn Querier) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// Load returns the stored stats or progress.ErrStatsNotFound.
func (r *ProgressRepository) Load(ctx context.Context, account shared.AccountID) (progress.ProgressStats, error) {
	query := `SELECT document FROM progress_stats WHERE account_id = $1`

	var raw []byte
	if err := r.conn.QueryRow(ctx, query, account.String()).Scan(&raw); err != nil {
		if IsNoRows(err) {
			return progress.ProgressStats{}, progress.ErrStatsNotFound
		}
		return progress.ProgressStats{}, shared.PersistenceError("progress", "Load", err)
	}

	return decodeDocument(raw)
}

// Save overwrites the account's document.
func (r *ProgressRepository) Save(ctx context.Context, account shared.AccountID, stats progress.ProgressStats) error {
	query := `
		INSERT INTO progress_stats (account_id, document, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			document = EXCLUDED.document,
			updated_at = NOW()
	`

	doc, err := json.Marshal(stats.ToDocument())
	if err != nil {
		return fmt.Errorf("failed to marshal progress document: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, account.String(), doc); err != nil {
		return shared.PersistenceError("progress", "Save", err)
	}

	return nil
}

func decodeDocument(raw []byte) (progress.ProgressStats, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return progress.ProgressStats{}, shared.WrapError("progress", "Load", shared.ErrInvalidFormat,
			"stored document is not valid JSON", err)
	}

	return progress.FromDocument(doc)
}
