// Package sqlstore implements the item store over database/sql. Dialects
// supply the DDL, placeholder style and error classification of a driver.
package sqlstore

import "itemcore/internal/filter"

// Dialect captures the driver-specific parts of the store.
type Dialect struct {
	Name        string
	Placeholder filter.Placeholder
	// Schema is applied statement by statement when the store opens.
	Schema []string
	// IsUniqueViolation classifies primary key conflicts.
	IsUniqueViolation func(err error) bool
}

func (d Dialect) bind(n int) string {
	return d.Placeholder(n)
}

// columns maps filter fields onto indexed item columns. Fields not listed
// here are filtered in Go over the decoded payload.
var columns = map[string]string{
	"id":               "id",
	"name":             "name",
	"category":         "category",
	"priority":         "priority",
	"status":           "status",
	"assignee":         "assignee",
	"createdBy":        "created_by",
	"workflowStage":    "workflow_stage",
	"version":          "version",
	"approvalRequired": "approval_required",
	"budget":           "budget",
	"estimatedHours":   "estimated_hours",
	"dueDate":          "due_date",
	"createdAt":        "created_at",
	"updatedAt":        "updated_at",
}
