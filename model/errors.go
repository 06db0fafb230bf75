package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by Classify outside the Initialize..Teardown window.
	ErrNotInitialized = errors.New("model not initialized")
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("model already initialized")
	// ErrHandleCleared is returned by Initialize after Teardown.
	ErrHandleCleared = errors.New("model handle already torn down")
)

// InitializationError reports that the model artifact could not be loaded.
// The process should not start serving when it sees one.
type InitializationError struct {
	ModelID string
	Err     error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.ModelID, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// InferenceError reports that the classifier itself failed on an input.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return "inference failed: " + e.Err.Error()
}

func (e *InferenceError) Unwrap() error { return e.Err }
