package model

import "github.com/olegiv/natours-go/internal/docstore"

// Event levels
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// Event categories
const (
	EventCategoryAuth   = "auth"
	EventCategoryReview = "review"
	EventCategoryMail   = "mail"
	EventCategorySystem = "system"
	EventCategoryCache  = "cache"
)

// NewEvents returns the events resource. Events are written by the logging
// sink and are not exposed for writes over the API.
func NewEvents() *Resource {
	return &Resource{
		Definition: docstore.Definition{
			Name: Events,
			Schema: docstore.Schema{
				"level":    docstore.KindString,
				"category": docstore.KindString,
				"message":  docstore.KindString,
				"metadata": docstore.KindObject,
			},
			Indexes: []docstore.Index{
				{Fields: []docstore.SortField{{Field: docstore.FieldCreatedAt, Desc: true}}},
			},
		},
		MultiValue: []string{"level", "category"},
	}
}
