package api

import "github.com/phenowatch/phenowatch/internal/render"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is "ok" | "error" | "unknown".
	State        string `json:"state"`
	Source       string `json:"source"`
	Weeks        int    `json:"weeks"`
	AlertedWeeks int    `json:"alerted_weeks"`
	Runs         uint64 `json:"runs"`
	Failures     uint64 `json:"failures"`
	LastRun      string `json:"last_run,omitempty"` // RFC3339
	Error        string `json:"error,omitempty"`
}

// AlertsResponse is the payload for GET /api/v1/alerts.
type AlertsResponse struct {
	// Columns lists the categories that carry a flag, in display order.
	Columns []string         `json:"columns"`
	Weeks   []render.WeekDoc `json:"weeks"`
	Counts  map[string]int   `json:"counts"`
	Hints   []DiagnosticHint `json:"hints"`
}

// NotificationsResponse is the payload for GET /api/v1/notifications.
type NotificationsResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
}

// NotificationResponse is one sent notification.
type NotificationResponse struct {
	ID        string  `json:"id"`
	Week      string  `json:"week"`
	Category  string  `json:"category"`
	Severity  string  `json:"severity"`
	Count     int     `json:"count"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
	CreatedAt string  `json:"created_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
