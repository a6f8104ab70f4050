// internal/repository/template_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
	"github.com/hyggeo/campaign-service/internal/model"
)

type TemplateRepository struct {
	BaseRepository
}

func NewTemplateRepository(base BaseRepository) *TemplateRepository {
	return &TemplateRepository{BaseRepository: base}
}

type templateRow struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	Subject     string         `db:"subject"`
	HTMLContent string         `db:"html_content"`
	TextContent string         `db:"text_content"`
	Category    string         `db:"category"`
	MergeFields pq.StringArray `db:"merge_fields"`
	IsActive    bool           `db:"is_active"`
	CreatedBy   *int64         `db:"created_by"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r templateRow) toModel() model.Template {
	fields := []string(r.MergeFields)
	if fields == nil {
		fields = []string{}
	}
	return model.Template{
		ID:          r.ID,
		Name:        r.Name,
		Subject:     r.Subject,
		HTMLContent: r.HTMLContent,
		TextContent: r.TextContent,
		Category:    model.TemplateCategory(r.Category),
		MergeFields: fields,
		IsActive:    r.IsActive,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

const templateColumns = `id, name, subject, html_content, text_content, category, merge_fields, is_active, created_by, created_at, updated_at`

func (r *TemplateRepository) CreateTemplate(ctx context.Context, t *model.Template) error {
	query := `
        INSERT INTO email_templates (name, subject, html_content, text_content, category, merge_fields, is_active, created_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at, updated_at
    `
	return r.DB.QueryRowxContext(ctx, query,
		t.Name, t.Subject, t.HTMLContent, t.TextContent, string(t.Category),
		pq.Array(t.MergeFields), t.IsActive, t.CreatedBy,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *TemplateRepository) UpdateTemplate(ctx context.Context, t *model.Template) error {
	query := `
        UPDATE email_templates
        SET name=$1, subject=$2, html_content=$3, text_content=$4, category=$5,
            merge_fields=$6, is_active=$7, updated_at=NOW()
        WHERE id=$8
        RETURNING updated_at
    `
	err := r.DB.QueryRowxContext(ctx, query,
		t.Name, t.Subject, t.HTMLContent, t.TextContent, string(t.Category),
		pq.Array(t.MergeFields), t.IsActive, t.ID,
	).Scan(&t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.NewTemplateNotFound(t.ID)
	}
	return err
}

func (r *TemplateRepository) GetTemplate(ctx context.Context, id int64) (*model.Template, error) {
	var row templateRow
	err := r.DB.GetContext(ctx, &row, `SELECT `+templateColumns+` FROM email_templates WHERE id=$1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewTemplateNotFound(id)
		}
		return nil, err
	}
	t := row.toModel()
	return &t, nil
}

func (r *TemplateRepository) GetTemplateByName(ctx context.Context, name string) (*model.Template, error) {
	var row templateRow
	err := r.DB.GetContext(ctx, &row, `SELECT `+templateColumns+` FROM email_templates WHERE name=$1 ORDER BY id LIMIT 1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &appErrors.NotFoundError{Resource: "template"}
		}
		return nil, err
	}
	t := row.toModel()
	return &t, nil
}

func (r *TemplateRepository) ListTemplates(ctx context.Context, category model.TemplateCategory, activeOnly bool) ([]model.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM email_templates
        WHERE ($1 = '' OR category = $1) AND ($2 = FALSE OR is_active)
        ORDER BY name, id`

	var rows []templateRow
	if err := r.DB.SelectContext(ctx, &rows, query, string(category), activeOnly); err != nil {
		return nil, err
	}

	templates := make([]model.Template, 0, len(rows))
	for _, row := range rows {
		templates = append(templates, row.toModel())
	}
	return templates, nil
}

func (r *TemplateRepository) DeleteTemplate(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM email_templates WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewTemplateNotFound(id)
	}
	return nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
