package issue

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/store"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const tableName = "issues"

// Repository is the postgres IssueStore
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

var _ store.IssueStore = (*Repository)(nil)

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type issueRow struct {
	ID         string                         `db:"id"`
	IssueType  string                         `db:"issue_type"`
	Status     models.IssueStatus             `db:"status"`
	Source     string                         `db:"source"`
	Fact       database.JSONB[models.RawFact] `db:"fact"`
	CreatedAt  time.Time                      `db:"created_at"`
	ResolvedAt *time.Time                     `db:"resolved_at"`
}

func (row issueRow) toModel() models.Issue {
	return models.Issue{
		ID:         row.ID,
		IssueType:  row.IssueType,
		Status:     row.Status,
		Source:     row.Source,
		Fact:       row.Fact.Data,
		CreatedAt:  row.CreatedAt,
		ResolvedAt: row.ResolvedAt,
	}
}

func (r *Repository) CreateIssue(ctx context.Context, issue *models.Issue) (*models.Issue, error) {
	ctx, span := tracing.StartSpan(ctx, "IssueRepository.CreateIssue")
	defer span.End()

	created := *issue
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if created.Status == "" {
		created.Status = models.IssueStatusOpen
	}
	created.CreatedAt = time.Now().UTC()

	ib := database.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols("id", "issue_type", "status", "source", "fact", "created_at")
	ib.Values(created.ID, created.IssueType, string(created.Status), created.Source, database.NewJSONB(created.Fact), created.CreatedAt)
	query, args := ib.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to create issue")
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":         created.ID,
		"issue_type": created.IssueType,
		"source":     created.Source,
	}).Info("created issue")

	return &created, nil
}

// ListOpenIssues returns open issues, newest first
func (r *Repository) ListOpenIssues(ctx context.Context, limit int) ([]models.Issue, error) {
	ctx, span := tracing.StartSpan(ctx, "IssueRepository.ListOpenIssues")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "issue_type", "status", "source", "fact", "created_at", "resolved_at")
	sb.From(tableName)
	sb.Where(sb.Equal("status", string(models.IssueStatusOpen)))
	sb.OrderBy("created_at").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}
	query, args := sb.Build()

	var rows []issueRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list open issues")
		return nil, fmt.Errorf("failed to list open issues: %w", err)
	}

	issues := make([]models.Issue, 0, len(rows))
	for _, row := range rows {
		issues = append(issues, row.toModel())
	}
	return issues, nil
}

// MarkIssueResolved closes an issue. Resolving a resolved issue keeps its first resolution time.
func (r *Repository) MarkIssueResolved(ctx context.Context, issueID string) error {
	ctx, span := tracing.StartSpan(ctx, "IssueRepository.MarkIssueResolved")
	defer span.End()

	if _, err := uuid.Parse(issueID); err != nil {
		return models.ErrNotFound
	}

	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("status", string(models.IssueStatusResolved)),
		fmt.Sprintf("resolved_at = COALESCE(resolved_at, %s)", ub.Var(time.Now().UTC())),
	)
	ub.Where(ub.Equal("id", issueID))
	query, args := ub.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to resolve issue")
		return fmt.Errorf("failed to resolve issue: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return models.ErrNotFound
	}

	r.logger.WithContext(ctx).WithField("id", issueID).Info("resolved issue")
	return nil
}
