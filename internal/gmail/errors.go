package gmail

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ErrorKind tags why a Gmail call failed.
type ErrorKind int

const (
	// KindUpstream covers provider outages, non-success statuses and transport errors.
	KindUpstream ErrorKind = iota
	// KindUnauthenticated means Gmail rejected the access token.
	KindUnauthenticated
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "upstream"
	}
}

// FetchError is returned by Fetcher operations.
type FetchError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("gmail %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsUnauthenticated reports whether err is a FetchError caused by a rejected credential.
func IsUnauthenticated(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindUnauthenticated
}

func newFetchError(op string, err error) *FetchError {
	kind := KindUpstream
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		kind = KindUnauthenticated
	}
	return &FetchError{Kind: kind, Op: op, Err: err}
}
