package ws

import (
	"encoding/json"
	"strings"
	"time"
)

const EventJobsUpdated = "jobs_updated"

type JobsUpdatedEvent struct {
	Type      string `json:"type"`
	Company   string `json:"company"`
	Stage     string `json:"stage"`
	Status    string `json:"status,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NotifyJobsUpdated tells subscribers that a stage changed listings of a
// company.
func (h *Hub) NotifyJobsUpdated(company, stage, status string) {
	if h == nil {
		return
	}
	company = strings.TrimSpace(company)
	if company == "" {
		return
	}
	b, err := json.Marshal(JobsUpdatedEvent{
		Type:      EventJobsUpdated,
		Company:   company,
		Stage:     strings.TrimSpace(stage),
		Status:    strings.TrimSpace(status),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	h.Broadcast(b)
}
