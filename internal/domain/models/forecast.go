package models

import "time"

// Forecast is the next-day price estimate for one entity.
type Forecast struct {
	RunID      string    `json:"run_id"`
	EntityID   string    `json:"entity_id"`
	Date       time.Time `json:"date"`        // day of the last observation
	TargetDate time.Time `json:"target_date"` // day being forecast
	LastPrice  float64   `json:"last_price"`
	Value      float64   `json:"value"`
	ModelDate  string    `json:"model_date"`
	Score      float64   `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
}

// Artifact is something the notifier delivers: a caption and an optional PNG.
type Artifact struct {
	Destination string
	Caption     string
	Image       []byte
	Filename    string
}

// RunRequest asks the service to execute the pipeline.
type RunRequest struct {
	RunID    string    `json:"run_id"`
	Entities []string  `json:"entities"`
	Asked    time.Time `json:"asked"`
}

// EntityOutcome is the per-entity result of one run.
type EntityOutcome struct {
	EntityID string        `json:"entity_id"`
	Rows     int           `json:"rows"`
	Forecast *Forecast     `json:"forecast,omitempty"`
	Stage    string        `json:"stage,omitempty"`
	Err      string        `json:"error,omitempty"`
	Took     time.Duration `json:"took"`
}

// RunReport summarizes a pipeline run across entities.
type RunReport struct {
	RunID    string          `json:"run_id"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
	Outcomes []EntityOutcome `json:"outcomes"`
}

// Failed counts entities that did not produce a forecast.
func (r RunReport) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != "" {
			n++
		}
	}
	return n
}
