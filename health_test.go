package stratumcore

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFeedHealth(t *testing.T) {
	now := time.Now()
	empty := newTestRegistry(t, nil)
	ready := newTestRegistry(t, nil)
	if _, err := ready.ProcessTemplate(templateAt(100, "a100")); err != nil {
		t.Fatalf("ProcessTemplate: %v", err)
	}
	boom := errors.New("connection refused ")

	tests := []struct {
		name    string
		reg     *JobRegistry
		fs      FeedStatus
		healthy bool
		reason  string
	}{
		{"nil registry", nil, FeedStatus{}, false, "no job registry"},
		{"no job", empty, FeedStatus{}, false, "no job template available"},
		{"no job, feed error", empty, FeedStatus{LastError: boom}, false, "node/job feed error"},
		{"feed error", ready, FeedStatus{LastError: boom, LastSuccess: now}, false, "node/job feed error"},
		{"never refreshed", ready, FeedStatus{}, false, "no successful job refresh yet"},
		{"stalled", ready, FeedStatus{LastSuccess: now.Add(-10 * time.Minute)}, false, "node/job updates stalled"},
		{"zmq down", ready, FeedStatus{LastSuccess: now, ZMQEnabled: true}, true, "zmq block notifications down; polling only"},
		{"ok", ready, FeedStatus{LastSuccess: now, ZMQEnabled: true, ZMQHealthy: true}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := feedHealth(tt.reg, tt.fs, now)
			if h.Healthy != tt.healthy || h.Reason != tt.reason {
				t.Fatalf("health = %+v", h)
			}
		})
	}

	h := feedHealth(ready, FeedStatus{LastSuccess: now.Add(-10 * time.Minute)}, now)
	if !strings.Contains(h.Detail, "10 minutes") {
		t.Fatalf("stall detail = %q", h.Detail)
	}
	h = feedHealth(empty, FeedStatus{LastError: boom}, now)
	if h.Detail != "connection refused" {
		t.Fatalf("error detail = %q", h.Detail)
	}
}
