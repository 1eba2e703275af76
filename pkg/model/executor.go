package model

import "time"

// Executor is a remote grading backend reachable over HTTP.
type Executor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BaseURL   string    `json:"base_url"`
	MaxLoad   int       `json:"max_load"`
	Drain     bool      `json:"drain"`
	Load      int       `json:"load"` // Computed field, not stored
	CreatedAt time.Time `json:"created_at"`
}

// LoadRatio is the fraction of the executor's capacity in use.
func (e *Executor) LoadRatio() float64 {
	if e.MaxLoad <= 0 {
		return 1
	}
	return float64(e.Load) / float64(e.MaxLoad)
}
