package core

import (
	"errors"
	"strings"
)

type ErrorKind string

const (
	KindUnsupportedFormat ErrorKind = "UnsupportedFormatError"
	KindEmptyContent      ErrorKind = "EmptyContentError"
	KindEmbeddingService  ErrorKind = "EmbeddingServiceError"
	KindVectorStore       ErrorKind = "VectorStoreError"
	KindCrawlTimeout      ErrorKind = "CrawlTimeoutError"
	KindCrawlConnectivity ErrorKind = "CrawlConnectivityError"
	KindTenantIsolation   ErrorKind = "TenantIsolationViolation"
	KindNotFound          ErrorKind = "NotFound"
	KindInvalidInput      ErrorKind = "InvalidInput"
)

// Error is a categorized failure. Two errors of the same kind match under
// errors.Is, so callers compare against the Err* sentinels below.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat}
	ErrEmptyContent      = &Error{Kind: KindEmptyContent}
	ErrEmbeddingService  = &Error{Kind: KindEmbeddingService}
	ErrVectorStore       = &Error{Kind: KindVectorStore}
	ErrCrawlTimeout      = &Error{Kind: KindCrawlTimeout}
	ErrCrawlConnectivity = &Error{Kind: KindCrawlConnectivity}
	ErrTenantIsolation   = &Error{Kind: KindTenantIsolation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
)

// NewError builds a categorized error wrapping cause (which may be nil).
func NewError(kind ErrorKind, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf returns the kind of the first categorized error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
