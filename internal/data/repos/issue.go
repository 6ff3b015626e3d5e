package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

type IssueRepo interface {
	Create(dbc dbctx.Context, rows []*types.Issue) ([]*types.Issue, error)
	ListByBatch(dbc dbctx.Context, batchID uuid.UUID) ([]*types.Issue, error)
	ListUnresolvedByBatch(dbc dbctx.Context, batchID uuid.UUID) ([]*types.Issue, error)
	MarkResolved(dbc dbctx.Context, id uuid.UUID, resolvedBy uuid.UUID) error
}

type issueRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIssueRepo(db *gorm.DB, baseLog *logger.Logger) IssueRepo {
	return &issueRepo{
		db:  db,
		log: baseLog.With("repo", "IssueRepo"),
	}
}

func (r *issueRepo) Create(dbc dbctx.Context, rows []*types.Issue) ([]*types.Issue, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Issue{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *issueRepo) ListByBatch(dbc dbctx.Context, batchID uuid.UUID) ([]*types.Issue, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Issue
	if batchID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *issueRepo) ListUnresolvedByBatch(dbc dbctx.Context, batchID uuid.UUID) ([]*types.Issue, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Issue
	if batchID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("batch_id = ? AND resolved = ?", batchID, false).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *issueRepo) MarkResolved(dbc dbctx.Context, id uuid.UUID, resolvedBy uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Issue{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_by": resolvedBy,
			"resolved_at": now,
			"updated_at":  now,
		}).Error
}
