package cache

import (
	"time"

	serializer "github.com/always-cache/request-cache/pkg/response-serializer"
)

// Entry is a stored response together with its bookkeeping.
type Entry struct {
	Key      string
	Response *serializer.Snapshot
	// Admission time.
	CreatedAt      time.Time
	TTL            time.Duration
	Tags           []string
	Size           int64
	AccessCount    int64
	LastAccessedAt time.Time
}

// Expired reports whether the entry has outlived its TTL.
// Access does not extend the lifetime.
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// ExpiresAt returns the instant after which the entry is expired.
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// TimeToLive returns the remaining lifetime, or zero once expired.
func (e *Entry) TimeToLive(now time.Time) time.Duration {
	if ttl := e.ExpiresAt().Sub(now); ttl > 0 {
		return ttl
	}
	return 0
}

func (e *Entry) hasAnyTag(tags map[string]struct{}) bool {
	return hasAnyTag(e.Tags, tags)
}

func hasAnyTag(tags []string, set map[string]struct{}) bool {
	for _, tag := range tags {
		if _, ok := set[tag]; ok {
			return true
		}
	}
	return false
}

// clone returns a copy that shares nothing mutable with e.
func (e *Entry) clone() *Entry {
	c := *e
	c.Response = e.Response.Clone()
	c.Tags = append([]string(nil), e.Tags...)
	return &c
}

// EntryMetadata is the serializable part of an entry, i.e. everything but the body.
type EntryMetadata struct {
	Key            string        `json:"key"`
	StatusCode     int           `json:"status_code"`
	CreatedAt      time.Time     `json:"created_at"`
	TTL            time.Duration `json:"ttl"`
	Tags           []string      `json:"tags,omitempty"`
	Size           int64         `json:"size"`
	AccessCount    int64         `json:"access_count"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
}

func (e *Entry) metadata() EntryMetadata {
	md := EntryMetadata{
		Key:            e.Key,
		CreatedAt:      e.CreatedAt,
		TTL:            e.TTL,
		Tags:           append([]string(nil), e.Tags...),
		Size:           e.Size,
		AccessCount:    e.AccessCount,
		LastAccessedAt: e.LastAccessedAt,
	}
	if e.Response != nil {
		md.StatusCode = e.Response.StatusCode
	}
	return md
}
