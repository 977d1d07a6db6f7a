package models

import "errors"

// Error kinds shared by the pipeline stages. Stages wrap them with %w and
// the driver classifies failures with errors.Is.
var (
	// ErrSourceUnavailable means the remote feed could not be fetched or
	// decoded. Ingestion recovers by generating synthetic data.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrConfiguration means an expected column or table schema is missing.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidationDrop marks a row excluded from the valid set.
	ErrValidationDrop = errors.New("row failed validation")

	// ErrLoadFailure means a table load was rolled back.
	ErrLoadFailure = errors.New("load failure")

	// ErrRender means a single chart could not be produced.
	ErrRender = errors.New("render failure")
)
