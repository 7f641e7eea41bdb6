package domain

import "errors"

// Pipeline error taxonomy. Per-tile ingestion failures are not errors at
// this level — they are collected on IngestResult.
var (
	ErrInvalidQuery     = errors.New("search requires text or image")
	ErrModelUnavailable = errors.New("detection model is not available")
	ErrCaptureBusy      = errors.New("an inference pass is already in flight")
	ErrCaptureFailure   = errors.New("viewport capture failed")
	ErrInferenceFailure = errors.New("model inference failed")
	ErrStoreFailure     = errors.New("vector store operation failed")
)
