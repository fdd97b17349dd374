package orkestro

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultTransport returns the standard net/http transport.
func DefaultTransport() Transport {
	return http.DefaultTransport
}

// ReplayExchange is one scripted request/response pair for ReplayTransport.
type ReplayExchange struct {
	// Match, when set, asserts properties of the incoming request. A
	// non-nil return is surfaced as the transport error.
	Match func(req *http.Request) error
	// Response is returned for the matched request. Its Request field is
	// filled in by the transport.
	Response *http.Response
	// Err, when set, is returned instead of Response, simulating a
	// transport-level failure.
	Err error
	// Latency delays the response, simulating a slow exchange.
	Latency time.Duration
}

// ReplayTransport serves scripted exchanges in order and records every
// request it sees, for tests and offline development. It is safe for
// concurrent use; concurrent requests consume exchanges in arrival order.
type ReplayTransport struct {
	mu        sync.Mutex
	exchanges []ReplayExchange
	next      int
	requests  []*http.Request
}

// NewReplayTransport creates a transport scripted with the given exchanges.
func NewReplayTransport(exchanges ...ReplayExchange) *ReplayTransport {
	return &ReplayTransport{exchanges: exchanges}
}

// RoundTrip implements the Transport interface.
func (t *ReplayTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req.Clone(req.Context()))
	if t.next >= len(t.exchanges) {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: request %d to %s", ErrReplayExhausted, t.next+1, req.URL)
	}
	ex := t.exchanges[t.next]
	t.next++
	t.mu.Unlock()

	if ex.Latency > 0 {
		timer := time.NewTimer(ex.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	if ex.Match != nil {
		if err := ex.Match(req); err != nil {
			return nil, err
		}
	}
	if ex.Err != nil {
		return nil, ex.Err
	}
	resp := ex.Response
	if resp == nil {
		resp = NewStringResponse(http.StatusOK, "", nil)
	}
	resp.Request = req
	return resp, nil
}

// Requests returns clones of every request the transport received, in
// arrival order.
func (t *ReplayTransport) Requests() []*http.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*http.Request, len(t.requests))
	copy(out, t.requests)
	return out
}

// Remaining returns the number of unconsumed exchanges.
func (t *ReplayTransport) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.exchanges) - t.next
}

// NewStringResponse builds a response with a replayable string body, for
// scripting exchanges.
func NewStringResponse(statusCode int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    statusCode,
		Status:        fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
	}
}
