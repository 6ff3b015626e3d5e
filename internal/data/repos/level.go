package repos

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

type LevelRepo interface {
	Create(dbc dbctx.Context, rows []*types.Level) ([]*types.Level, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Level, error)
	GetByCode(dbc dbctx.Context, code string) (*types.Level, error)
	List(dbc dbctx.Context) ([]*types.Level, error)
}

type levelRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLevelRepo(db *gorm.DB, baseLog *logger.Logger) LevelRepo {
	return &levelRepo{
		db:  db,
		log: baseLog.With("repo", "LevelRepo"),
	}
}

func (r *levelRepo) Create(dbc dbctx.Context, rows []*types.Level) ([]*types.Level, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Level{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *levelRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Level, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Level
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

func (r *levelRepo) GetByCode(dbc dbctx.Context, code string) (*types.Level, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	var out types.Level
	err := transaction.WithContext(dbc.Ctx).
		Where("code = ?", code).
		First(&out).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *levelRepo) List(dbc dbctx.Context) ([]*types.Level, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Level
	if err := transaction.WithContext(dbc.Ctx).
		Order("code ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
