package models

// Requests for forecast HTTP endpoints.

type LatestForecastRequest struct {
	Entity string `query:"entity" json:"entity" validate:"required"`
}

type ForecastHistoryRequest struct {
	Entity string `query:"entity" json:"entity" validate:"required"`
	Limit  int    `query:"limit" json:"limit" default:"30" validate:"gte=1,lte=1000"`
}

type FeaturesRequest struct {
	Entity string `query:"entity" json:"entity" validate:"required"`
	Limit  int    `query:"limit" json:"limit" default:"30" validate:"gte=1,lte=5000"`
}

type ModelRequest struct {
	Entity string `query:"entity" json:"entity" validate:"required"`
	Date   string `query:"date" json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type RunTriggerRequest struct {
	Entities []string `json:"entities" validate:"omitempty,dive,required"`
}
