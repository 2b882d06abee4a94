package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTooManyActiveImports is returned when an organization already has the
// maximum number of pending/processing imports.
var ErrTooManyActiveImports = errors.New("too_many_active_imports")

// ErrImportNotFound is returned when an operation targets an import ID that
// does not exist. Progress and status updates against unknown imports are
// contract violations and never silently no-op.
var ErrImportNotFound = errors.New("import_not_found")

// ErrStatusConflict is returned when a guarded status update finds the
// import in a different state than expected.
var ErrStatusConflict = errors.New("import_status_conflict")

// ImportRepository is the durable lifecycle store for import records. It is
// the single writer of status, platform and imported_events.
type ImportRepository interface {
	// CreateWithActiveLimit atomically counts the organization's
	// non-terminal imports and inserts rec with status pending, or returns
	// ErrTooManyActiveImports. The count and insert share one serializable
	// transaction so concurrent creations cannot exceed the limit.
	CreateWithActiveLimit(ctx context.Context, rec *model.ImportRecord, maxActive int) error
	GetByID(ctx context.Context, importID string) (*model.ImportRecord, error)
	ListBySite(ctx context.Context, siteID string) ([]model.ImportRecord, error)
	// UpdateStatus moves the import from one status to another. It fails
	// with ErrStatusConflict when the import is not in the expected state
	// and ErrImportNotFound when the ID is unknown.
	UpdateStatus(ctx context.Context, importID string, from, to model.ImportStatus) error
	// MarkFailed transitions a non-terminal import to failed with a
	// user-visible error message.
	MarkFailed(ctx context.Context, importID, message string) error
	// SetPlatform persists the platform exactly once; later calls against
	// an already-set platform are no-ops for the same value and conflicts
	// otherwise.
	SetPlatform(ctx context.Context, importID, name string) error
	// IncrementImportedEvents adds delta to the running total as a single
	// SQL increment, safe under concurrent batch submissions. Terminal
	// imports reject the increment with ErrStatusConflict.
	IncrementImportedEvents(ctx context.Context, importID string, delta int64) error
	Delete(ctx context.Context, importID string) error
}

type importRepo struct {
	pool *pgxpool.Pool
}

// NewImportRepo creates a new ImportRepository.
func NewImportRepo(pool *pgxpool.Pool) ImportRepository {
	return &importRepo{pool: pool}
}

const importColumns = `id, site_id, organization_id, platform, status, imported_events, error_message, file_name, created_at, updated_at`

func (r *importRepo) CreateWithActiveLimit(ctx context.Context, rec *model.ImportRecord, maxActive int) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("starting transaction for import create: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var active int
	const countQ = `
		SELECT COUNT(*)
		FROM imports
		WHERE organization_id = $1
		  AND status IN ('pending', 'processing')
	`
	if err := tx.QueryRow(ctx, countQ, rec.OrganizationID).Scan(&active); err != nil {
		return fmt.Errorf("counting active imports for organization %s: %w", rec.OrganizationID, err)
	}
	if maxActive > 0 && active >= maxActive {
		return ErrTooManyActiveImports
	}

	const insertQ = `
		INSERT INTO imports (id, site_id, organization_id, platform, status, imported_events, error_message, file_name)
		VALUES ($1, $2, $3, $4, 'pending', 0, '', $5)
	`
	if _, err := tx.Exec(ctx, insertQ, rec.ID, rec.SiteID, rec.OrganizationID, rec.Platform, rec.FileName); err != nil {
		return fmt.Errorf("inserting import for organization %s: %w", rec.OrganizationID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing import create for organization %s: %w", rec.OrganizationID, err)
	}
	rec.Status = model.ImportPending
	return nil
}

func (r *importRepo) GetByID(ctx context.Context, importID string) (*model.ImportRecord, error) {
	q := `SELECT ` + importColumns + ` FROM imports WHERE id = $1`
	var rec model.ImportRecord
	err := r.pool.QueryRow(ctx, q, importID).Scan(
		&rec.ID,
		&rec.SiteID,
		&rec.OrganizationID,
		&rec.Platform,
		&rec.Status,
		&rec.ImportedEvents,
		&rec.ErrorMessage,
		&rec.FileName,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching import %s: %w", importID, err)
	}
	return &rec, nil
}

func (r *importRepo) ListBySite(ctx context.Context, siteID string) ([]model.ImportRecord, error) {
	q := `SELECT ` + importColumns + ` FROM imports WHERE site_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, siteID)
	if err != nil {
		return nil, fmt.Errorf("listing imports for site %s: %w", siteID, err)
	}
	defer rows.Close()

	var imports []model.ImportRecord
	for rows.Next() {
		var rec model.ImportRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SiteID,
			&rec.OrganizationID,
			&rec.Platform,
			&rec.Status,
			&rec.ImportedEvents,
			&rec.ErrorMessage,
			&rec.FileName,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning import row: %w", err)
		}
		imports = append(imports, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating import rows: %w", err)
	}
	return imports, nil
}

func (r *importRepo) UpdateStatus(ctx context.Context, importID string, from, to model.ImportStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("illegal import transition %s -> %s: %w", from, to, ErrStatusConflict)
	}
	const q = `UPDATE imports SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	tag, err := r.pool.Exec(ctx, q, importID, from, to)
	if err != nil {
		return fmt.Errorf("updating status of import %s: %w", importID, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, importID)
	}
	return nil
}

func (r *importRepo) MarkFailed(ctx context.Context, importID, message string) error {
	const q = `
		UPDATE imports
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing')
	`
	tag, err := r.pool.Exec(ctx, q, importID, message)
	if err != nil {
		return fmt.Errorf("marking import %s failed: %w", importID, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, importID)
	}
	return nil
}

func (r *importRepo) SetPlatform(ctx context.Context, importID, name string) error {
	// Once set, the platform never changes for the life of the import.
	const q = `
		UPDATE imports SET platform = $2, updated_at = NOW()
		WHERE id = $1 AND (platform = '' OR platform = $2)
	`
	tag, err := r.pool.Exec(ctx, q, importID, name)
	if err != nil {
		return fmt.Errorf("setting platform of import %s: %w", importID, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, importID)
	}
	return nil
}

func (r *importRepo) IncrementImportedEvents(ctx context.Context, importID string, delta int64) error {
	// Guarded like the status updates: a batch racing a concurrent
	// completion must not grow the total of a terminal import.
	const q = `
		UPDATE imports SET imported_events = imported_events + $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing')
	`
	tag, err := r.pool.Exec(ctx, q, importID, delta)
	if err != nil {
		return fmt.Errorf("incrementing progress of import %s: %w", importID, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, importID)
	}
	return nil
}

func (r *importRepo) Delete(ctx context.Context, importID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM imports WHERE id = $1`, importID)
	if err != nil {
		return fmt.Errorf("deleting import %s: %w", importID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting import %s: %w", importID, ErrImportNotFound)
	}
	return nil
}

// missOrConflict distinguishes an unknown import ID from a guarded update
// that lost against the current status.
func (r *importRepo) missOrConflict(ctx context.Context, importID string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM imports WHERE id = $1)`, importID).Scan(&exists); err != nil {
		return fmt.Errorf("checking existence of import %s: %w", importID, err)
	}
	if !exists {
		return fmt.Errorf("import %s: %w", importID, ErrImportNotFound)
	}
	return fmt.Errorf("import %s: %w", importID, ErrStatusConflict)
}
