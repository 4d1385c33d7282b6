package stratumcore

import (
	"strings"
	"time"

	"github.com/hako/durafmt"
)

// Templates older than this mean the node or the feed has stalled.
const maxFeedLag = 2 * time.Minute

// Health says whether shares submitted now are judged against fresh work.
type Health struct {
	Healthy bool
	Reason  string
	Detail  string
}

func feedHealth(reg *JobRegistry, fs FeedStatus, now time.Time) Health {
	if now.IsZero() {
		now = time.Now()
	}
	if reg == nil {
		return Health{Reason: "no job registry"}
	}

	job := reg.CurrentJob()
	if job == nil || job.CreatedAt.IsZero() {
		if fs.LastError != nil {
			return Health{Reason: "node/job feed error", Detail: strings.TrimSpace(fs.LastError.Error())}
		}
		return Health{Reason: "no job template available"}
	}
	if fs.LastError != nil {
		return Health{Reason: "node/job feed error", Detail: strings.TrimSpace(fs.LastError.Error())}
	}
	if fs.LastSuccess.IsZero() {
		return Health{Reason: "no successful job refresh yet"}
	}
	if age := now.Sub(fs.LastSuccess); age > maxFeedLag {
		return Health{Reason: "node/job updates stalled", Detail: "last success " + durafmt.Parse(age).LimitFirstN(2).String() + " ago"}
	}
	if fs.ZMQEnabled && !fs.ZMQHealthy {
		return Health{Healthy: true, Reason: "zmq block notifications down; polling only"}
	}
	return Health{Healthy: true}
}
