package imagecache

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemeNotAllowed rejects URLs that are not http(s) with a host.
	ErrSchemeNotAllowed = errors.New("url scheme not allowed")
	// ErrNotImage rejects responses whose Content-Type is not image/*.
	ErrNotImage = errors.New("response is not an image")
	// ErrTooLarge rejects images above the configured byte ceiling.
	ErrTooLarge = errors.New("image exceeds size limit")
	// ErrUndecodable rejects bodies no registered image decoder recognizes.
	ErrUndecodable = errors.New("image format not recognized")
	// ErrNoCandidate means the page offered no usable image reference.
	ErrNoCandidate = errors.New("no image candidate on page")
	// ErrNoOrderLink means the article has nothing to discover from.
	ErrNoOrderLink = errors.New("article has no order link")
)

// StatusError reports an HTTP error status from a page or image fetch.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Outcome labels for stockroom_image_fetch_total.
const (
	OutcomeCached      = "cached"
	OutcomeNoOrderLink = "no_order_link"
	OutcomeScheme      = "scheme"
	OutcomeTransport   = "transport"
	OutcomeStatus      = "status"
	OutcomeNotImage    = "not_image"
	OutcomeTooLarge    = "too_large"
	OutcomeNoCandidate = "no_candidate"
	OutcomeUndecodable = "undecodable"
	OutcomeStore       = "store"
)

// storeError marks failures of the local side (blob store, article store).
type storeError struct {
	err error
}

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

// classify maps a fetch-cycle error to its outcome label.
func classify(err error) string {
	var (
		statusErr     *StatusError
		localStoreErr *storeError
	)
	switch {
	case err == nil:
		return OutcomeCached
	case errors.Is(err, ErrNoOrderLink):
		return OutcomeNoOrderLink
	case errors.Is(err, ErrSchemeNotAllowed):
		return OutcomeScheme
	case errors.Is(err, ErrTooLarge):
		return OutcomeTooLarge
	case errors.Is(err, ErrNotImage):
		return OutcomeNotImage
	case errors.Is(err, ErrUndecodable):
		return OutcomeUndecodable
	case errors.Is(err, ErrNoCandidate):
		return OutcomeNoCandidate
	case errors.As(err, &statusErr):
		return OutcomeStatus
	case errors.As(err, &localStoreErr):
		return OutcomeStore
	default:
		return OutcomeTransport
	}
}
