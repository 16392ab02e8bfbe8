package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Entry is everything needed to replay a stored response.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

func (e *Entry) clone() *Entry {
	if e == nil {
		return nil
	}
	return &Entry{
		Status:   e.Status,
		Header:   e.Header.Clone(),
		Body:     bytes.Clone(e.Body),
		StoredAt: e.StoredAt,
	}
}

// Response builds a fresh *http.Response for req from the entry. Each call
// gets its own body reader.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Snapshot duplicates resp into an Entry. Response bodies are single-read
// streams, so the body is buffered and resp.Body is replaced with a reader
// over the same bytes; the caller can keep using resp afterwards.
func Snapshot(resp *http.Response) (*Entry, error) {
	body, err := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close response body: %w", closeErr)
	}
	resp.ContentLength = int64(len(body))

	return &Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     bytes.Clone(body),
		StoredAt: time.Now().UTC(),
	}, nil
}

// RequestKey is the identity a request is cached under. Only GET requests
// are cacheable, so the key is the URL without its fragment.
func RequestKey(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
