package serializer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jmgilman/go/errors"
)

// ErrTooLarge is returned by FromLimitedResponse for bodies over the limit.
var ErrTooLarge = errors.New(errors.CodeInvalidInput, "response body exceeds size limit")

// Snapshot is an immutable copy of a received response.
// It is what the cache stores; readers never get the snapshot itself,
// only clones or freshly built responses.
type Snapshot struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// The value of the clock at the time the response was received.
	ReceivedAt time.Time
}

// FromResponse reads the whole body of res and returns a snapshot of it.
// The response body is closed when it returns.
func FromResponse(res *http.Response, receivedAt time.Time) (*Snapshot, error) {
	snap := &Snapshot{
		StatusCode: res.StatusCode,
		Header:     cloneHeader(res.Header),
		ReceivedAt: receivedAt,
	}
	if res.Body == nil {
		return snap, nil
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	snap.Body = body
	return snap, nil
}

// FromLimitedResponse is like FromResponse, but reads at most limit bytes of
// the body. If the body is longer, it returns ErrTooLarge and leaves res
// intact: its body still yields the complete content, and the caller must
// close it.
func FromLimitedResponse(res *http.Response, receivedAt time.Time, limit int64) (*Snapshot, error) {
	if res.Body == nil {
		return FromResponse(res, receivedAt)
	}
	if res.ContentLength > limit {
		return nil, ErrTooLarge
	}
	prefix, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		res.Body.Close()
		return nil, err
	}
	if int64(len(prefix)) > limit {
		res.Body = &prefixedBody{
			Reader: io.MultiReader(bytes.NewReader(prefix), res.Body),
			Closer: res.Body,
		}
		return nil, ErrTooLarge
	}
	res.Body.Close()
	return &Snapshot{
		StatusCode: res.StatusCode,
		Header:     cloneHeader(res.Header),
		Body:       prefix,
		ReceivedAt: receivedAt,
	}, nil
}

// prefixedBody replays the bytes already read before the rest of the body.
type prefixedBody struct {
	io.Reader
	io.Closer
}

// Successful reports whether the status code is in the 2xx range.
func (s *Snapshot) Successful() bool {
	return s.StatusCode >= 200 && s.StatusCode < 300
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{
		StatusCode: s.StatusCode,
		Header:     cloneHeader(s.Header),
		Body:       bytes.Clone(s.Body),
		ReceivedAt: s.ReceivedAt,
	}
}

// Response builds a new *http.Response for the given request.
// Header and body are copies, so the caller may mutate or consume them freely.
func (s *Snapshot) Response(req *http.Request) *http.Response {
	body := bytes.Clone(s.Body)
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", s.StatusCode, http.StatusText(s.StatusCode)),
		StatusCode:    s.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        cloneHeader(s.Header),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// Bytes returns the HTTP/1.1 representation of the snapshot.
func (s *Snapshot) Bytes() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := s.Response(nil).Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Size returns the estimated size of the snapshot in bytes: status line,
// header fields and body as they appear in its HTTP/1.1 representation.
// Framing headers such as Content-Length are not counted.
func (s *Snapshot) Size() int64 {
	// "HTTP/1.1 200 OK\r\n"
	size := int64(len("HTTP/1.1 ") + len(strconv.Itoa(s.StatusCode)) + 1 + len(http.StatusText(s.StatusCode)) + 2)
	for name, values := range s.Header {
		for _, v := range values {
			// "Name: value\r\n"
			size += int64(len(name) + len(v) + 4)
		}
	}
	// blank line before the body
	size += 2
	return size + int64(len(s.Body))
}

// FromBytes parses the HTTP/1.1 representation produced by Bytes.
func FromBytes(b []byte, receivedAt time.Time) (*Snapshot, error) {
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return nil, err
	}
	return FromResponse(res, receivedAt)
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}
