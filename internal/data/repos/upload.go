package repos

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

type UploadRepo interface {
	Create(dbc dbctx.Context, row *types.Upload) (*types.Upload, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Upload, error)
	// GetByGatheringLevelHash is the dedup probe. Not found is (nil, nil).
	GetByGatheringLevelHash(dbc dbctx.Context, gatheringID, levelID uuid.UUID, contentHash string) (*types.Upload, error)
	ListByGathering(dbc dbctx.Context, gatheringID uuid.UUID) ([]*types.Upload, error)
}

type uploadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUploadRepo(db *gorm.DB, baseLog *logger.Logger) UploadRepo {
	return &uploadRepo{
		db:  db,
		log: baseLog.With("repo", "UploadRepo"),
	}
}

func (r *uploadRepo) Create(dbc dbctx.Context, row *types.Upload) (*types.Upload, error) {
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

func (r *uploadRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Upload, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Upload
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

func (r *uploadRepo) GetByGatheringLevelHash(dbc dbctx.Context, gatheringID, levelID uuid.UUID, contentHash string) (*types.Upload, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	contentHash = strings.TrimSpace(strings.ToLower(contentHash))
	if gatheringID == uuid.Nil || levelID == uuid.Nil || contentHash == "" {
		return nil, nil
	}
	var out types.Upload
	err := transaction.WithContext(dbc.Ctx).
		Where("gathering_id = ? AND level_id = ? AND content_hash = ?", gatheringID, levelID, contentHash).
		First(&out).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *uploadRepo) ListByGathering(dbc dbctx.Context, gatheringID uuid.UUID) ([]*types.Upload, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Upload
	if gatheringID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("gathering_id = ?", gatheringID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
