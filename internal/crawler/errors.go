package crawler

import (
	"errors"
	"fmt"

	"github.com/nao1215/stackcrawl/internal/model"
)

var (
	// ErrCrawlInProgress is returned when Analyze is called on a Crawler
	// that is already crawling.
	ErrCrawlInProgress = errors.New("crawl already in progress")

	// ErrNotAbsoluteURL is returned when a seed lacks a scheme or host.
	ErrNotAbsoluteURL = errors.New("URL must be absolute")

	// ErrNoBrowser is returned when a Crawler is built without a browser factory.
	ErrNoBrowser = errors.New("browser factory is required")

	// ErrNoEngine is returned when a Crawler is built without an engine.
	ErrNoEngine = errors.New("fingerprinting engine is required")
)

// VisitError is a classified page visit failure.
type VisitError struct {
	// Type is the error classification.
	Type model.ErrorType

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *VisitError) Error() string {
	if e.Err == nil {
		return string(e.Type)
	}
	return fmt.Sprintf("%s: %v", e.Type, e.Err)
}

// Unwrap returns the underlying cause.
func (e *VisitError) Unwrap() error {
	return e.Err
}

func newVisitError(t model.ErrorType, format string, args ...any) *VisitError {
	return &VisitError{Type: t, Err: fmt.Errorf(format, args...)}
}

// classify converts any visit failure into a VisitError.
// Errors already classified keep their type; everything else is UNKNOWN_ERROR.
func classify(err error) *VisitError {
	var ve *VisitError
	if errors.As(err, &ve) {
		return ve
	}
	return &VisitError{Type: model.ErrorUnknown, Err: err}
}

// info converts the error into its serializable form.
func (e *VisitError) info() *model.VisitErrorInfo {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return &model.VisitErrorInfo{Type: e.Type, Message: msg}
}
