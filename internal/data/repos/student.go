package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

type StudentRepo interface {
	Create(dbc dbctx.Context, rows []*types.Student) ([]*types.Student, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Student, error)
	// GetActiveByLevelID is the roster fetch. Inactive students never
	// appear; an empty cohort is an empty slice, not an error.
	GetActiveByLevelID(dbc dbctx.Context, levelID uuid.UUID) ([]*types.Student, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type studentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudentRepo(db *gorm.DB, baseLog *logger.Logger) StudentRepo {
	return &studentRepo{
		db:  db,
		log: baseLog.With("repo", "StudentRepo"),
	}
}

func (r *studentRepo) Create(dbc dbctx.Context, rows []*types.Student) ([]*types.Student, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Student{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *studentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Student, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Student
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *studentRepo) GetActiveByLevelID(dbc dbctx.Context, levelID uuid.UUID) ([]*types.Student, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Student
	if levelID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("level_id = ? AND status = ?", levelID, types.StudentStatusActive).
		Order("matric_no ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *studentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Student{}).
		Where("id = ?", id).
		Updates(updates).Error
}
