package dto

import (
	"time"

	"job-pipeline/internal/domain/job"
)

// JobSummary is the list view of a record. The detail endpoint returns the
// full document.
type JobSummary struct {
	Signature        string    `json:"signature"`
	Title            string    `json:"title"`
	URL              string    `json:"url"`
	Company          string    `json:"company"`
	Location         string    `json:"location,omitempty"`
	WorkMode         string    `json:"work_mode,omitempty"`
	ExperienceLevel  string    `json:"experience_level,omitempty"`
	MainTechnologies []string  `json:"main_technologies,omitempty"`
	CompletedStages  []string  `json:"completed_stages"`
	Active           bool      `json:"active"`
	DiscoveredAt     time.Time `json:"discovered_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func NewJobSummary(r job.Record) JobSummary {
	stages := make([]string, 0, 4)
	for _, s := range r.CompletedStages() {
		stages = append(stages, s.Tag())
	}
	return JobSummary{
		Signature:        r.Signature,
		Title:            r.Title,
		URL:              r.URL,
		Company:          r.Company,
		Location:         r.Location,
		WorkMode:         string(r.WorkMode),
		ExperienceLevel:  string(r.ExperienceLevel),
		MainTechnologies: r.MainTechnologies,
		CompletedStages:  stages,
		Active:           r.Active,
		DiscoveredAt:     r.DiscoveredAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func NewJobSummaries(records []job.Record) []JobSummary {
	out := make([]JobSummary, 0, len(records))
	for _, r := range records {
		out = append(out, NewJobSummary(r))
	}
	return out
}
