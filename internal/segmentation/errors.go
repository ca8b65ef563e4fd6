package segmentation

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrInvalidImage   = errors.New("invalid image")
	ErrSegmentation   = errors.New("segmentation failed")
	ErrConfiguration  = errors.New("invalid configuration")
	ErrIterationLimit = errors.New("iteration limit exceeded")
)

// InvalidImageError reports malformed or empty input pixels.
type InvalidImageError struct {
	Reason string
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("invalid image: %s", e.Reason)
}

// Is matches ErrInvalidImage.
func (e *InvalidImageError) Is(target error) bool { return target == ErrInvalidImage }

// SegmentationError reports a shape mismatch between an image and a map
// derived from a different image, or an exhausted iteration guard.
type SegmentationError struct {
	Op     string
	Reason string
	Err    error
}

func (e *SegmentationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Is matches ErrSegmentation.
func (e *SegmentationError) Is(target error) bool { return target == ErrSegmentation }

// Unwrap exposes the cause, ErrIterationLimit for guard failures.
func (e *SegmentationError) Unwrap() error { return e.Err }

// ConfigurationError reports an out-of-range or contradictory option.
type ConfigurationError struct {
	Component string
	Field     string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s option %s: %s", e.Component, e.Field, e.Reason)
}

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func configErr(component, field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Component: component, Field: field, Reason: fmt.Sprintf(format, args...)}
}
