// Package errors wraps errors with the component and category they belong
// to, and forwards built errors to a telemetry reporter when one is set.
//
//	return errors.New(err).
//		Component("datastore").
//		Category(errors.CategoryDatabase).
//		Context("detections", len(batch)).
//		Build()
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"strings"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors for log filtering and telemetry fingerprints.
type ErrorCategory string

const (
	CategoryModelInit      ErrorCategory = "model-initialization"
	CategoryModelLoad      ErrorCategory = "model-loading"
	CategoryLabelLoad      ErrorCategory = "label-loading"
	CategoryValidation     ErrorCategory = "validation"
	CategoryFileIO         ErrorCategory = "file-io"
	CategoryFileParsing    ErrorCategory = "file-parsing"
	CategoryNetwork        ErrorCategory = "network"
	CategoryAudio          ErrorCategory = "audio-processing"
	CategoryAudioAnalysis  ErrorCategory = "audio-analysis"
	CategoryDatabase       ErrorCategory = "database"
	CategoryHTTP           ErrorCategory = "http-request"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategorySystem         ErrorCategory = "system-resource"
	CategoryMQTTConnection ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish    ErrorCategory = "mqtt-publish"
	CategoryIntegration    ErrorCategory = "integration"
	CategoryNotFound       ErrorCategory = "not-found"
	CategoryProcessing     ErrorCategory = "processing"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryGeneric        ErrorCategory = "generic"
)

// ComponentUnknown is used when the builder was not given a component.
const ComponentUnknown = "unknown"

// EnhancedError is an error annotated by the builder. Its fields are not
// modified after Build.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	context   map[string]any
	reported  atomic.Bool
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError of the same category; anything else is
// compared against the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetContext returns a copy of the context values.
func (ee *EnhancedError) GetContext() map[string]any {
	return maps.Clone(ee.context)
}

// MarkReported records that a reporter has sent the error.
func (ee *EnhancedError) MarkReported() { ee.reported.Store(true) }

// IsReported reports whether MarkReported was called.
func (ee *EnhancedError) IsReported() bool { return ee.reported.Load() }

// ErrorBuilder collects annotations for one error.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts a builder around err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts a builder around fmt.Errorf(format, args...).
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the category. Without one, Build infers it from the
// message and the component.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context attaches a value. Reporters scrub string values before sending.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any, 4)
	}
	eb.context[key] = value
	return eb
}

// Timing records the operation name and its duration in milliseconds.
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	return eb.Context("operation", operation).Context("duration_ms", duration.Milliseconds())
}

// Build returns the error and hands it to the telemetry reporter, if any.
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  eb.category,
		context:   eb.context,
	}
	if ee.Component == "" {
		ee.Component = ComponentUnknown
	}
	if ee.Category == "" {
		ee.Category = detectCategory(eb.err, ee.Component)
	}

	if hasActiveReporting.Load() {
		reportToTelemetry(ee)
	}
	return ee
}

// detectCategory takes the category of an already enhanced cause, then
// guesses from the message, then from the component.
func detectCategory(err error, component string) ErrorCategory {
	if err == nil {
		return CategoryGeneric
	}
	var cause *EnhancedError
	if stderrors.As(err, &cause) && cause.Category != "" {
		return cause.Category
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "model"):
		return CategoryModelLoad
	case strings.Contains(msg, "label"):
		return CategoryLabelLoad
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return CategoryTimeout
	case strings.Contains(msg, "connection"), strings.Contains(msg, "dial"):
		return CategoryNetwork
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "validation"):
		return CategoryValidation
	case strings.Contains(msg, "file"), strings.Contains(msg, "open"):
		return CategoryFileIO
	}

	switch component {
	case "datastore":
		return CategoryDatabase
	case "myaudio":
		return CategoryAudio
	case "birdnet":
		return CategoryAudioAnalysis
	case "api":
		return CategoryHTTP
	case "mqtt":
		return CategoryMQTTPublish
	case "geolocation", "remote", "notification":
		return CategoryIntegration
	default:
		return CategoryGeneric
	}
}

var hasActiveReporting atomic.Bool

// NewStd is errors.New from the standard library.
func NewStd(text string) error { return stderrors.New(text) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

// IsCategory reports whether err wraps an EnhancedError of category.
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	return As(err, &ee) && ee.Category == category
}
