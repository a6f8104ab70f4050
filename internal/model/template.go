// internal/model/template.go
package model

import "time"

type TemplateCategory string

const (
	CategoryWelcome        TemplateCategory = "welcome"
	CategoryExperiences    TemplateCategory = "experiences"
	CategoryCommunity      TemplateCategory = "community"
	CategorySustainability TemplateCategory = "sustainability"
	CategoryNewsletter     TemplateCategory = "newsletter"
	CategoryAnnouncement   TemplateCategory = "announcement"
	CategoryOther          TemplateCategory = "other"
)

var TemplateCategories = []TemplateCategory{
	CategoryWelcome,
	CategoryExperiences,
	CategoryCommunity,
	CategorySustainability,
	CategoryNewsletter,
	CategoryAnnouncement,
	CategoryOther,
}

type Template struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Subject     string           `json:"subject"`
	HTMLContent string           `json:"html_content"`
	TextContent string           `json:"text_content"`
	Category    TemplateCategory `json:"category"`
	MergeFields []string         `json:"merge_fields"`
	IsActive    bool             `json:"is_active"`
	CreatedBy   *int64           `json:"created_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
