package serializer

import (
	"bufio"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readTestResponse(t *testing.T, raw string) *http.Response {
	t.Helper()
	res, err := http.ReadResponse(bufio.NewReader(strings.NewReader(raw)), nil)
	require.NoError(t, err)
	return res
}

func TestSnapshotBodyIntact(t *testing.T) {
	res := readTestResponse(t, "HTTP/1.1 200 OK\r\nServer: Test\r\nContent-Length: 16\r\n\r\nThis is the body")

	snap, err := FromResponse(res, time.Now())
	require.NoError(t, err)

	body, err := io.ReadAll(snap.Response(nil).Body)
	require.NoError(t, err)
	assert.Equal(t, "This is the body", string(body))
	assert.Equal(t, "Test", snap.Header.Get("Server"))
	assert.True(t, snap.Successful())
}

func TestSnapshotResponsesAreIndependent(t *testing.T) {
	snap := &Snapshot{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       []byte("original"),
	}

	first := snap.Response(nil)
	first.Header.Set("Content-Type", "application/json")
	b, _ := io.ReadAll(first.Body)
	b[0] = 'X'

	second := snap.Response(nil)
	body, err := io.ReadAll(second.Body)
	require.NoError(t, err)
	assert.Equal(t, "original", string(body))
	assert.Equal(t, "text/plain", second.Header.Get("Content-Type"))
}

func TestSnapshotClone(t *testing.T) {
	snap := &Snapshot{StatusCode: http.StatusCreated, Body: []byte("abc")}
	clone := snap.Clone()
	clone.Body[0] = 'z'
	clone.Header.Set("X-Test", "1")

	assert.Equal(t, "abc", string(snap.Body))
	assert.Empty(t, snap.Header.Get("X-Test"))
}

func TestSnapshotBytes(t *testing.T) {
	snap := &Snapshot{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Test": {"-ing"}},
		Body:       []byte("hello"),
	}
	b, err := snap.Bytes()
	require.NoError(t, err)
	// status line 17, "Test: -ing" 12, blank line 2, body 5
	assert.Equal(t, int64(36), snap.Size())
	assert.LessOrEqual(t, snap.Size(), int64(len(b)))

	parsed, err := FromBytes(b, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "-ing", parsed.Header.Get("Test"))
	assert.Equal(t, "hello", string(parsed.Body))
}

func TestSuccessful(t *testing.T) {
	for code, want := range map[int]bool{199: false, 200: true, 204: true, 299: true, 304: false, 500: false} {
		assert.Equal(t, want, (&Snapshot{StatusCode: code}).Successful(), "status %d", code)
	}
}

func TestFromLimitedResponse(t *testing.T) {
	res := readTestResponse(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")

	snap, err := FromLimitedResponse(res, time.Now(), 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(snap.Body))
}

func TestFromLimitedResponseTooLarge(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"declared length", "HTTP/1.1 200 OK\r\nContent-Length: 11\r\n\r\nhello world"},
		{"unknown length", "HTTP/1.1 200 OK\r\nConnection: close\r\n\r\nhello world"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := readTestResponse(t, tt.raw)

			snap, err := FromLimitedResponse(res, time.Now(), 5)
			assert.ErrorIs(t, err, ErrTooLarge)
			assert.Nil(t, snap)

			// the whole body can still be read from the response
			body, err := io.ReadAll(res.Body)
			require.NoError(t, err)
			assert.Equal(t, "hello world", string(body))
			assert.NoError(t, res.Body.Close())
		})
	}
}
