package stratumcore

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hako/durafmt"
)

// JobSource resolves job ids for share validation.
type JobSource interface {
	Job(id string) (*Job, bool)
	Extranonce2Size() int
}

type RegistryOptions struct {
	Extranonces *ExtranonceCounter
	JobIDs      *JobCounter
	Jobs        JobOptions
	Events      EventSink
}

// registrySnapshot is never modified once published.
type registrySnapshot struct {
	current *Job
	jobs    map[string]*Job
}

// JobRegistry owns the current job and the set of jobs shares may still be
// submitted against. Writers are serialized; readers load an immutable
// snapshot and never block.
type JobRegistry struct {
	extranonces *ExtranonceCounter
	jobIDs      *JobCounter
	opts        JobOptions
	events      EventSink

	writeMu     sync.Mutex
	state       atomic.Pointer[registrySnapshot]
	lastBlockAt time.Time
}

func NewJobRegistry(opts RegistryOptions) *JobRegistry {
	if opts.Extranonces == nil {
		opts.Extranonces = NewExtranonceCounter(0)
	}
	if opts.JobIDs == nil {
		opts.JobIDs = NewJobCounter()
	}
	if opts.Events == nil {
		opts.Events = NopSink{}
	}
	jobOpts := opts.Jobs.withDefaults()
	jobOpts.Extranonce1Size = opts.Extranonces.Size()

	r := &JobRegistry{
		extranonces: opts.Extranonces,
		jobIDs:      opts.JobIDs,
		opts:        jobOpts,
		events:      opts.Events,
	}
	r.state.Store(&registrySnapshot{jobs: map[string]*Job{}})
	return r
}

// ProcessTemplate installs tpl as a new block if it is one. It returns false
// without touching state when tpl builds on the current previous hash or is
// older than the current job.
func (r *JobRegistry) ProcessTemplate(tpl GetBlockTemplateResult) (bool, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	snap := r.state.Load()
	if cur := snap.current; cur != nil {
		if tpl.Previous == cur.Template.Previous {
			return false, nil
		}
		if tpl.Height < cur.Template.Height {
			logger.Debug("ignoring out-of-order template", "height", tpl.Height, "current_height", cur.Template.Height, "prev", tpl.Previous)
			return false, nil
		}
	}

	job, err := newJob(r.jobIDs.Next(), tpl, r.opts)
	if err != nil {
		logger.Error("build job for new block", "height", tpl.Height, "error", err)
		return false, err
	}

	r.state.Store(&registrySnapshot{
		current: job,
		jobs:    map[string]*Job{job.JobID: job},
	})

	now := time.Now()
	attrs := []any{"height", tpl.Height, "job_id", job.JobID, "prev", tpl.Previous, "bits", tpl.Bits, "txs", len(tpl.Transactions), "difficulty", job.Difficulty}
	if !r.lastBlockAt.IsZero() {
		attrs = append(attrs, "prev_block_lasted", durafmt.Parse(now.Sub(r.lastBlockAt)).LimitFirstN(2).String())
	}
	r.lastBlockAt = now
	logger.Info("new block", attrs...)

	r.events.NewBlock(job)
	return true, nil
}

// UpdateCurrentJob builds a fresh job for tpl on the current block and adds
// it alongside the existing ones.
func (r *JobRegistry) UpdateCurrentJob(tpl GetBlockTemplateResult) (*Job, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	job, err := newJob(r.jobIDs.Next(), tpl, r.opts)
	if err != nil {
		logger.Error("build updated job", "height", tpl.Height, "error", err)
		return nil, err
	}

	snap := r.state.Load()
	jobs := make(map[string]*Job, len(snap.jobs)+1)
	for id, j := range snap.jobs {
		jobs[id] = j
	}
	jobs[job.JobID] = job
	r.state.Store(&registrySnapshot{current: job, jobs: jobs})

	logger.Info("updated job", "height", tpl.Height, "job_id", job.JobID, "txs", len(tpl.Transactions), "valid_jobs", len(jobs))

	r.events.UpdatedJob(job, false)
	return job, nil
}

// Job returns the job with the given id if shares may still be submitted
// against it.
func (r *JobRegistry) Job(id string) (*Job, bool) {
	job, ok := r.state.Load().jobs[id]
	return job, ok
}

// CurrentJob returns the most recent job, or nil before the first template.
func (r *JobRegistry) CurrentJob() *Job {
	return r.state.Load().current
}

// ValidJobIDs lists the submittable job ids in sorted order.
func (r *JobRegistry) ValidJobIDs() []string {
	snap := r.state.Load()
	ids := make([]string, 0, len(snap.jobs))
	for id := range snap.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NextExtranonce1 allocates the extranonce1 for a new miner connection.
func (r *JobRegistry) NextExtranonce1() string {
	return r.extranonces.Next()
}

func (r *JobRegistry) Extranonce1Size() int {
	return r.extranonces.Size()
}

func (r *JobRegistry) Extranonce2Size() int {
	return r.opts.Extranonce2Size
}
