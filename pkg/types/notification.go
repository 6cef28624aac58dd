package types

import "time"

// Severity levels of a notification.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Notification records that one (week, category) alert was announced.
type Notification struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Week      time.Time `json:"week"`
	Category  Category  `json:"category"`
	Severity  string    `json:"severity"`
	Count     int       `json:"count"`
	Op        string    `json:"op"`
	Threshold float64   `json:"threshold"`
	Rule      string    `json:"rule"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Key identifies the alert a notification is about. At most one
// notification is sent per key.
func (n *Notification) Key() string {
	return n.Source + "|" + n.Week.UTC().Format("2006-01-02") + "|" + string(n.Category)
}
