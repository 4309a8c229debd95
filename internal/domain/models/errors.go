package models

import (
	"errors"
	"fmt"
)

// Pipeline stages, used in errors, logs and metrics labels.
const (
	StageLoad    = "load"
	StageBuild   = "build"
	StageCommit  = "commit"
	StageTrain   = "train"
	StageSave    = "save"
	StagePredict = "predict"
	StageUpdate  = "update"
	StageNotify  = "notify"
)

var (
	// ErrUnorderedHistory is returned when an entity has two observations for the same day.
	ErrUnorderedHistory = errors.New("duplicate observation date")
	// ErrEmptyHistory is returned when a source has no observations for an entity.
	ErrEmptyHistory = errors.New("empty history")
)

// InsufficientHistoryError means the series is too short to produce usable rows.
type InsufficientHistoryError struct {
	EntityID string
	Stage    string
	Have     int
	Need     int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("%s: %s: insufficient history: have %d, need %d", e.EntityID, e.Stage, e.Have, e.Need)
}

// InsufficientDataError means a training partition has fewer rows than features.
type InsufficientDataError struct {
	EntityID string
	Stage    string
	Rows     int
	Features int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: %s: insufficient data: %d rows for %d features", e.EntityID, e.Stage, e.Rows, e.Features)
}

// ModelNotFoundError means no pipeline is stored for the entity and day.
type ModelNotFoundError struct {
	EntityID string
	Stage    string
	Date     string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s: no model trained on %s", e.EntityID, e.Stage, e.Date)
}

// SchemaMismatchError means a row does not have the columns the pipeline was fit on.
type SchemaMismatchError struct {
	EntityID string
	Stage    string
	Want     int
	Got      int
	Column   string
}

func (e *SchemaMismatchError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s: %s: schema mismatch at column %q", e.EntityID, e.Stage, e.Column)
	}
	return fmt.Sprintf("%s: %s: schema mismatch: want %d columns, got %d", e.EntityID, e.Stage, e.Want, e.Got)
}

// StageOf extracts the failing stage from a typed pipeline error.
func StageOf(err error) string {
	var (
		ih *InsufficientHistoryError
		id *InsufficientDataError
		mn *ModelNotFoundError
		sm *SchemaMismatchError
	)
	switch {
	case errors.As(err, &ih):
		return ih.Stage
	case errors.As(err, &id):
		return id.Stage
	case errors.As(err, &mn):
		return mn.Stage
	case errors.As(err, &sm):
		return sm.Stage
	}
	return ""
}
