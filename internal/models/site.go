package models

import "time"

// SiteStatus is the last-run outcome recorded on a site.
type SiteStatus string

const (
	SiteStatusSuccess SiteStatus = "success"
	SiteStatusFailed  SiteStatus = "failed"
	SiteStatusPending SiteStatus = "pending"
)

// Site is a registered form target. last_* fields and the cached plan are
// written only by the pipeline executor on job completion.
type Site struct {
	ID               string     `json:"id" badgerhold:"key"`
	URL              string     `json:"url" validate:"required,url"`
	Name             string     `json:"name"`
	Enabled          bool       `json:"enabled"`
	LastRun          *time.Time `json:"last_run,omitempty"`
	LastStatus       SiteStatus `json:"last_status"`
	LastFieldsFilled int        `json:"last_fields_filled"`
	CachedPlan       *FieldPlan `json:"cached_plan,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// SiteStats aggregates list-level site metrics for the API.
type SiteStats struct {
	Total     int     `json:"total"`
	Enabled   int     `json:"enabled"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}
