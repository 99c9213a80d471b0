package models

// DailyReport is the aggregated daily summary submitted to the backend.
// It is built fresh per aggregation pass and immutable once built.
type DailyReport struct {
	Date     string         `json:"date"`
	Hostname string         `json:"hostname"`
	User     string         `json:"user"`
	Totals   Totals         `json:"totals"`
	Apps     []AppUsage     `json:"apps"`
	Web      []DomainUsage  `json:"web"`
	Meta     map[string]any `json:"meta"`
}

// Totals holds the accumulated activity counters for one day
type Totals struct {
	ActiveSec float64 `json:"active_sec"`
	AfkSec    float64 `json:"afk_sec"`
	Keys      float64 `json:"keys"`
	MouseDist float64 `json:"mouse_dist"`
}

// AppUsage is time spent in one application, with its most-used window titles
type AppUsage struct {
	App       string   `json:"app"`
	TotalSec  float64  `json:"total_sec"`
	TopTitles []string `json:"top_titles"`
}

// DomainUsage is time spent on one web domain, with its most-visited URLs
type DomainUsage struct {
	Domain   string   `json:"domain"`
	TotalSec float64  `json:"total_sec"`
	TopURLs  []string `json:"top_urls"`
}

// DeliveryResult is the outcome of a single submission attempt
type DeliveryResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ResendResult is the outcome of retrying one pending entry
type ResendResult struct {
	Entry   string `json:"entry"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}
