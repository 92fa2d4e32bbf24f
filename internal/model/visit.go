package model

// ErrorType classifies why a page visit failed.
type ErrorType string

const (
	// ErrorNoResponse means the transport produced no status code.
	ErrorNoResponse ErrorType = "NO_RESPONSE"

	// ErrorResponseNotOK means a status code was returned but it was not 200.
	ErrorResponseNotOK ErrorType = "RESPONSE_NOT_OK"

	// ErrorNoHTMLDocument is reserved for pages that render without a document.
	// The visitor does not raise it today.
	ErrorNoHTMLDocument ErrorType = "NO_HTML_DOCUMENT"

	// ErrorUnknown covers every failure outside the taxonomy above.
	ErrorUnknown ErrorType = "UNKNOWN_ERROR"
)

// String returns the wire name of the error type.
func (t ErrorType) String() string {
	return string(t)
}

// ErrorTypes lists the taxonomy in report order.
func ErrorTypes() []ErrorType {
	return []ErrorType{ErrorNoResponse, ErrorResponseNotOK, ErrorNoHTMLDocument, ErrorUnknown}
}

// VisitErrorInfo is the serializable error attached to a VisitRecord.
type VisitErrorInfo struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

// VisitRecord is the outcome of one scheduled URL.
// It is created with Status 0 when the URL is scheduled, receives the
// response status once the browser returns, and optionally an error.
type VisitRecord struct {
	// Status is the HTTP status code. 0 means not yet resolved.
	Status int `json:"status"`

	// Error is set when the visit failed.
	Error *VisitErrorInfo `json:"error,omitempty"`
}

// Failed reports whether the visit ended with an error.
func (r *VisitRecord) Failed() bool {
	return r != nil && r.Error != nil
}

// Clone returns a deep copy of the record.
func (r *VisitRecord) Clone() *VisitRecord {
	if r == nil {
		return nil
	}
	c := &VisitRecord{Status: r.Status}
	if r.Error != nil {
		e := *r.Error
		c.Error = &e
	}
	return c
}
