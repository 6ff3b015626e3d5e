package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

type ExeatRepo interface {
	Create(dbc dbctx.Context, rows []*types.Exeat) ([]*types.Exeat, error)
	GetByStudentID(dbc dbctx.Context, studentID uuid.UUID) ([]*types.Exeat, error)
	// ActiveStudentIDsOn is the leave-register lookup: student IDs in the
	// level with an active exeat covering the date, bounds inclusive.
	ActiveStudentIDsOn(dbc dbctx.Context, levelID uuid.UUID, date time.Time) ([]uuid.UUID, error)
	Cancel(dbc dbctx.Context, id uuid.UUID) error
}

type exeatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExeatRepo(db *gorm.DB, baseLog *logger.Logger) ExeatRepo {
	return &exeatRepo{
		db:  db,
		log: baseLog.With("repo", "ExeatRepo"),
	}
}

func (r *exeatRepo) Create(dbc dbctx.Context, rows []*types.Exeat) ([]*types.Exeat, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Exeat{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *exeatRepo) GetByStudentID(dbc dbctx.Context, studentID uuid.UUID) ([]*types.Exeat, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Exeat
	if studentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("student_id = ?", studentID).
		Order("start_date DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *exeatRepo) ActiveStudentIDsOn(dbc dbctx.Context, levelID uuid.UUID, date time.Time) ([]uuid.UUID, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []uuid.UUID{}
	if levelID == uuid.Nil {
		return out, nil
	}
	day := date.Format("2006-01-02")
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Exeat{}).
		Joins("JOIN student s ON s.id = exeat.student_id").
		Where("s.level_id = ?", levelID).
		Where("exeat.status = ?", types.ExeatStatusActive).
		Where("exeat.start_date <= ? AND exeat.end_date >= ?", day, day).
		Distinct().
		Pluck("exeat.student_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *exeatRepo) Cancel(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Exeat{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     types.ExeatStatusCancelled,
			"updated_at": time.Now().UTC(),
		}).Error
}
