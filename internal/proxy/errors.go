package proxy

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCircuitOpen is returned while the upstream breaker rejects calls.
var ErrCircuitOpen = errors.New("upstream circuit open")

// UpstreamError describes a failed upstream exchange. A non-2xx answer carries the
// upstream Status and Body; a transport failure carries only Err.
type UpstreamError struct {
	Status      int
	Body        []byte
	ContentType string
	Err         error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
	return fmt.Sprintf("upstream responded %d %s", e.Status, http.StatusText(e.Status))
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// HasBody reports whether the upstream answer can be forwarded verbatim.
func (e *UpstreamError) HasBody() bool {
	return e.Status != 0 && len(e.Body) > 0
}

// clientFault reports whether the upstream rejected the request itself rather than failing.
func (e *UpstreamError) clientFault() bool {
	return e.Status >= 400 && e.Status < 500
}
