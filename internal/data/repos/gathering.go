package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

type GatheringRepo interface {
	Create(dbc dbctx.Context, rows []*types.Gathering) ([]*types.Gathering, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Gathering, error)
	ListByDate(dbc dbctx.Context, date time.Time) ([]*types.Gathering, error)
	MarkLocked(dbc dbctx.Context, id uuid.UUID) error
}

type gatheringRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGatheringRepo(db *gorm.DB, baseLog *logger.Logger) GatheringRepo {
	return &gatheringRepo{
		db:  db,
		log: baseLog.With("repo", "GatheringRepo"),
	}
}

func (r *gatheringRepo) Create(dbc dbctx.Context, rows []*types.Gathering) ([]*types.Gathering, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Gathering{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *gatheringRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Gathering, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Gathering
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

func (r *gatheringRepo) ListByDate(dbc dbctx.Context, date time.Time) ([]*types.Gathering, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Gathering
	if err := transaction.WithContext(dbc.Ctx).
		Where("scheduled_date = ?", date.Format("2006-01-02")).
		Order("start_time ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gatheringRepo) MarkLocked(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Gathering{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"locked_after_ingestion": true,
			"updated_at":             time.Now().UTC(),
		}).Error
}
