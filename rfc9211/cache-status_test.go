package rfc9211

import "testing"

func TestHit(t *testing.T) {
	cs := CacheStatus{TimeToLive: 30, Detail: "cache-first"}
	cs.Hit()
	if s := cs.String(); s != "RequestCache; hit; ttl=30; detail=cache-first" {
		t.Fatalf("Cache-Status is %s", s)
	}
}

func TestForward(t *testing.T) {
	cs := CacheStatus{FwdStatus: 200, Stored: true, Collapsed: true}
	cs.Forward(FwdReasonUriMiss)
	if s := cs.String(); s != "RequestCache; fwd=uri-miss; fwd-status=200; stored; collapsed" {
		t.Fatalf("Cache-Status is %s", s)
	}
	if cs.IsHit() {
		t.Fatal("forwarded status reported as hit")
	}
}
