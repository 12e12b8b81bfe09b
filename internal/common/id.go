package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewSiteID generates a unique site ID with the "site_" prefix
func NewSiteID() string {
	return "site_" + uuid.New().String()
}

// NewProfileID generates a unique profile ID with the "profile_" prefix
func NewProfileID() string {
	return "profile_" + uuid.New().String()
}

// NewCommandID generates a unique command ID with the "cmd_" prefix
func NewCommandID() string {
	return "cmd_" + uuid.New().String()
}
