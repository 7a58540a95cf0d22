package api

import (
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/service"
)

// CreateTaskRequest defines the payload for POST /api/tasks.
type CreateTaskRequest struct {
	DisplayName      string              `json:"display_name"      validate:"required,max=200"`
	CorrelationLabel string              `json:"correlation_label" validate:"max=200"`
	Config           GenerationConfigDTO `json:"config"`
	Items            []SourceItemRequest `json:"items"             validate:"required,min=1,dive"`
}

// GenerationConfigDTO is the wire form of domain.GenerationConfig.
type GenerationConfigDTO struct {
	ContentType  string `json:"content_type"  validate:"required,oneof=article social_post product_description newsletter"`
	Theme        string `json:"theme"         validate:"max=500"`
	Persona      string `json:"persona"       validate:"max=500"`
	Purpose      string `json:"purpose"       validate:"max=500"`
	VersionCount int    `json:"version_count" validate:"required,gte=1,lte=10"`
}

// SourceItemRequest is one source of a CreateTaskRequest.
type SourceItemRequest struct {
	SourceRef  string            `json:"source_ref" validate:"required,max=200"`
	Title      string            `json:"title"`
	Body       string            `json:"body"       validate:"required"`
	URL        string            `json:"url"        validate:"omitempty,url"`
	Attributes map[string]string `json:"attributes"`
}

// toInput converts the request into the service input.
func (req CreateTaskRequest) toInput() service.CreateTaskInput {
	items := make([]service.SourceInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.SourceInput{
			SourceRef: item.SourceRef,
			Snapshot: domain.SourceSnapshot{
				Title:      item.Title,
				Body:       item.Body,
				URL:        item.URL,
				Attributes: item.Attributes,
			},
		})
	}
	return service.CreateTaskInput{
		DisplayName:      req.DisplayName,
		CorrelationLabel: req.CorrelationLabel,
		Config: domain.GenerationConfig{
			ContentType:  domain.ContentType(req.Config.ContentType),
			Theme:        req.Config.Theme,
			Persona:      req.Config.Persona,
			Purpose:      req.Config.Purpose,
			VersionCount: req.Config.VersionCount,
		},
		Items: items,
	}
}

// TaskResponse is returned by POST /api/tasks.
type TaskResponse struct {
	Task *domain.Task `json:"task"`
}

// ReprocessResponse reports how many items were accepted for reprocessing.
type ReprocessResponse struct {
	Accepted int `json:"accepted"`
}

// BalanceResponse is returned by GET /api/credits.
type BalanceResponse struct {
	Balance int `json:"balance"`
}
