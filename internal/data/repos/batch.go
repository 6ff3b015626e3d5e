package repos

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

type BatchRepo interface {
	Create(dbc dbctx.Context, row *types.Batch) (*types.Batch, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Batch, error)
	LatestForUpload(dbc dbctx.Context, uploadID uuid.UUID) (*types.Batch, error)
	ListByUpload(dbc dbctx.Context, uploadID uuid.UUID) ([]*types.Batch, error)
	// NextVersion locks the upload row FOR UPDATE and returns max(version)+1.
	// It must run inside the caller's transaction so the lock holds until
	// the batch row is inserted; two committers can then never assign the
	// same version.
	NextVersion(dbc dbctx.Context, uploadID uuid.UUID) (int, error)
	// ReferencedPaths returns the subset of keys some batch row points at.
	ReferencedPaths(dbc dbctx.Context, keys []string) (map[string]struct{}, error)
}

type batchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchRepo(db *gorm.DB, baseLog *logger.Logger) BatchRepo {
	return &batchRepo{
		db:  db,
		log: baseLog.With("repo", "BatchRepo"),
	}
}

func (r *batchRepo) Create(dbc dbctx.Context, row *types.Batch) (*types.Batch, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *batchRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Batch, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Batch
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&out).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *batchRepo) LatestForUpload(dbc dbctx.Context, uploadID uuid.UUID) (*types.Batch, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if uploadID == uuid.Nil {
		return nil, nil
	}
	var out types.Batch
	err := transaction.WithContext(dbc.Ctx).
		Where("upload_id = ?", uploadID).
		Order("version DESC").
		First(&out).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *batchRepo) ListByUpload(dbc dbctx.Context, uploadID uuid.UUID) ([]*types.Batch, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Batch
	if uploadID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("upload_id = ?", uploadID).
		Order("version ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *batchRepo) NextVersion(dbc dbctx.Context, uploadID uuid.UUID) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		return 0, fmt.Errorf("batch next version requires a transaction")
	}
	if uploadID == uuid.Nil {
		return 0, fmt.Errorf("batch next version requires an upload id")
	}
	var upload types.Upload
	if err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", uploadID).
		First(&upload).Error; err != nil {
		return 0, err
	}
	var maxVersion int
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Batch{}).
		Where("upload_id = ?", uploadID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error; err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}

func (r *batchRepo) ReferencedPaths(dbc dbctx.Context, keys []string) (map[string]struct{}, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := map[string]struct{}{}
	if len(keys) == 0 {
		return out, nil
	}
	for _, col := range []string{"present_path", "absent_path", "exempt_path", "issues_path"} {
		var hits []string
		if err := transaction.WithContext(dbc.Ctx).
			Model(&types.Batch{}).
			Where(col+" IN ?", keys).
			Pluck(col, &hits).Error; err != nil {
			return nil, err
		}
		for _, h := range hits {
			out[h] = struct{}{}
		}
	}
	return out, nil
}
