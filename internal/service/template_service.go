// internal/service/template_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
	"github.com/hyggeo/campaign-service/internal/model"
	"github.com/hyggeo/campaign-service/internal/repository"
)

const activeTemplatesTTL = 5 * time.Minute

// TemplateInput is the writable part of a template.
type TemplateInput struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Subject     string   `json:"subject" validate:"required,max=200"`
	HTMLContent string   `json:"html_content" validate:"required"`
	TextContent string   `json:"text_content" validate:"required"`
	Category    string   `json:"category" validate:"required,oneof=welcome experiences community sustainability newsletter announcement other"`
	MergeFields []string `json:"merge_fields" validate:"dive,mergefield"`
	IsActive    *bool    `json:"is_active"`
	CreatedBy   *int64   `json:"created_by"`
}

func (in *TemplateInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Category = strings.TrimSpace(in.Category)
	if in.Category == "" {
		in.Category = string(model.CategoryOther)
	}
	// Whitespace-only bodies count as empty.
	if strings.TrimSpace(in.HTMLContent) == "" {
		in.HTMLContent = ""
	}
	if strings.TrimSpace(in.TextContent) == "" {
		in.TextContent = ""
	}
}

func (in TemplateInput) apply(t *model.Template) {
	t.Name = in.Name
	t.Subject = in.Subject
	t.HTMLContent = in.HTMLContent
	t.TextContent = in.TextContent
	t.Category = model.TemplateCategory(in.Category)
	t.MergeFields = in.MergeFields
	if t.MergeFields == nil {
		// Undeclared fields default to the catalog placeholders the content uses.
		t.MergeFields = []string{}
		for _, name := range placeholders(in.Subject, in.HTMLContent, in.TextContent) {
			if isMergeField(name) {
				t.MergeFields = append(t.MergeFields, name)
			}
		}
	}
	t.IsActive = in.IsActive == nil || *in.IsActive
}

type TemplateService struct {
	Repo  repository.TemplateRepositoryInterface
	Log   zerolog.Logger
	cache *cache.Cache
}

func NewTemplateService(repo repository.TemplateRepositoryInterface, log zerolog.Logger) *TemplateService {
	return &TemplateService{
		Repo:  repo,
		Log:   log,
		cache: cache.New(activeTemplatesTTL, 2*activeTemplatesTTL),
	}
}

func (s *TemplateService) CreateTemplate(ctx context.Context, in TemplateInput) (*model.Template, error) {
	in.normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	t := &model.Template{CreatedBy: in.CreatedBy}
	in.apply(t)
	if err := s.Repo.CreateTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}
	s.cache.Flush()

	s.Log.Info().Int64("template_id", t.ID).Str("name", t.Name).Msg("template created")
	return t, nil
}

func (s *TemplateService) UpdateTemplate(ctx context.Context, id int64, in TemplateInput) (*model.Template, error) {
	in.normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	t, err := s.Repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(t)
	if err := s.Repo.UpdateTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update template %d: %w", id, err)
	}
	s.cache.Flush()
	return t, nil
}

func (s *TemplateService) GetTemplate(ctx context.Context, id int64) (*model.Template, error) {
	return s.Repo.GetTemplate(ctx, id)
}

// ListActive returns active templates, optionally filtered by category.
func (s *TemplateService) ListActive(ctx context.Context, category string) ([]model.Template, error) {
	if category != "" && !knownCategory(category) {
		return nil, appErrors.NewValidation("category", "is not a known category: "+category)
	}

	key := "active:" + category
	if cached, found := s.cache.Get(key); found {
		return copyTemplates(cached.([]model.Template)), nil
	}

	templates, err := s.Repo.ListTemplates(ctx, model.TemplateCategory(category), true)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	s.cache.Set(key, copyTemplates(templates), cache.DefaultExpiration)
	return templates, nil
}

// copyTemplates keeps callers from mutating cached entries.
func copyTemplates(in []model.Template) []model.Template {
	out := make([]model.Template, len(in))
	for i, t := range in {
		t.MergeFields = append([]string{}, t.MergeFields...)
		out[i] = t
	}
	return out
}

// DeleteTemplate removes the template along with its campaigns and their logs.
func (s *TemplateService) DeleteTemplate(ctx context.Context, id int64) error {
	if err := s.Repo.DeleteTemplate(ctx, id); err != nil {
		return err
	}
	s.cache.Flush()
	s.Log.Info().Int64("template_id", id).Msg("template deleted")
	return nil
}

// SeedSampleTemplates creates the bundled templates that do not exist yet and
// returns how many were created.
func (s *TemplateService) SeedSampleTemplates(ctx context.Context) (int, error) {
	created := 0
	for _, in := range sampleTemplates {
		_, err := s.Repo.GetTemplateByName(ctx, in.Name)
		if err == nil {
			s.Log.Debug().Str("name", in.Name).Msg("sample template exists, skipping")
			continue
		}
		if !errors.Is(err, appErrors.ErrNotFound) {
			return created, err
		}

		in.MergeFields = append([]string{}, in.MergeFields...)
		if _, err := s.CreateTemplate(ctx, in); err != nil {
			return created, fmt.Errorf("failed to seed template %q: %w", in.Name, err)
		}
		created++
	}
	return created, nil
}

func knownCategory(c string) bool {
	for _, known := range model.TemplateCategories {
		if string(known) == c {
			return true
		}
	}
	return false
}
