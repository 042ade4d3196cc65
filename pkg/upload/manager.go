// Package upload executes one outbound file transfer at a time, chosen by a
// destination-specific strategy, with progress polling and completion and
// failure broadcasting.
//
// Intents are admitted to a single-worker FIFO queue. Failed jobs stay in
// the queue with an error status until retried or cancelled; successful jobs
// are removed and their result broadcast. Progress is pulled: a fixed-delay
// poller samples the active job and republishes the percentage, decoupling
// strategy implementations from the broadcast mechanism.
package upload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ykurenkov/chatsync/pkg/core"
	"github.com/ykurenkov/chatsync/pkg/fanout"
	"github.com/ykurenkov/chatsync/pkg/jobqueue"
	"github.com/ykurenkov/chatsync/pkg/schedule"
	"github.com/ykurenkov/chatsync/pkg/security"
)

const defaultPollInterval = 500 * time.Millisecond

// Progress is one sampled snapshot of the active job's transfer percentage.
type Progress struct {
	JobID   int64
	Percent int
}

// FailureReporter surfaces a transient user-facing notice when the actively
// uploading job fails.
type FailureReporter interface {
	ReportUploadFailure(accountID int64, file core.FileRef, err error)
}

// Options holds manager configuration.
type Options struct {
	Logger       *slog.Logger
	Sessions     SessionCache
	Reporter     FailureReporter
	PollInterval time.Duration
	Sweep        schedule.Schedule
	SweepMaxAge  time.Duration
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return optionFunc(func(o *Options) { o.Logger = log })
}

// WithSessionCache replaces the default in-process session cache.
func WithSessionCache(c SessionCache) Option {
	return optionFunc(func(o *Options) { o.Sessions = c })
}

// WithFailureReporter wires the user-facing failure notice.
func WithFailureReporter(r FailureReporter) Option {
	return optionFunc(func(o *Options) { o.Reporter = r })
}

// WithPollInterval overrides the progress sampling interval.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		if d > 0 {
			o.PollInterval = d
		}
	})
}

// WithSessionSweep evicts cached session tokens older than maxAge on the
// given schedule.
func WithSessionSweep(s schedule.Schedule, maxAge time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.Sweep = s
		o.SweepMaxAge = maxAge
	})
}

// Manager is the upload pipeline.
type Manager struct {
	q          *jobqueue.Queue[*Job]
	strategies StrategyTable
	sessions   SessionCache
	reporter   FailureReporter
	log        *slog.Logger

	adding    *fanout.Broadcaster[[]*Job]
	status    *fanout.Broadcaster[*Job]
	results   *fanout.Broadcaster[*core.UploadResult]
	completed *fanout.Broadcaster[[]int64]
	progress  *fanout.Broadcaster[Progress]

	pollInterval time.Duration
	sweep        schedule.Schedule
	sweepMaxAge  time.Duration

	mergedMu sync.Mutex
	merged   map[<-chan []int64]chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates an upload manager over a fixed strategy table.
// Panics if the table is empty.
func NewManager(strategies StrategyTable, opts ...Option) *Manager {
	if len(strategies) == 0 {
		panic("chatsync: upload.NewManager requires a non-empty strategy table")
	}

	options := &Options{PollInterval: defaultPollInterval}
	for _, opt := range opts {
		opt.Apply(options)
	}
	log := options.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("pipeline", uuid.New().String()[:8])

	sessions := options.Sessions
	if sessions == nil {
		sessions = NewMemorySessionCache()
	}

	m := &Manager{
		strategies:   strategies,
		sessions:     sessions,
		reporter:     options.Reporter,
		log:          log,
		adding:       fanout.New[[]*Job](),
		status:       fanout.New[*Job](),
		results:      fanout.New[*core.UploadResult](),
		completed:    fanout.New[[]int64](),
		progress:     fanout.New[Progress](),
		pollInterval: options.PollInterval,
		sweep:        options.Sweep,
		sweepMaxAge:  options.SweepMaxAge,
		merged:       make(map[<-chan []int64]chan struct{}),
		done:         make(chan struct{}),
	}
	m.q = jobqueue.New(jobqueue.Config[*Job]{
		Exec:         m.exec,
		RetainFailed: true,
		OnSuccess:    m.onSuccess,
		OnFailure:    m.onFailure,
		Logger:       log,
	})

	go m.pollProgress()
	if m.sweep != nil && m.sweepMaxAge > 0 {
		go m.runSweep()
	}
	return m
}

// Enqueue admits one job per intent, emits the new jobs on the adding
// stream, and drains. The whole batch is rejected if any intent is invalid.
func (m *Manager) Enqueue(intents []core.UploadIntent) ([]*Job, error) {
	for _, in := range intents {
		if err := security.ValidateFileRef(in.File); err != nil {
			return nil, err
		}
	}
	jobs := make([]*Job, 0, len(intents))
	for _, in := range intents {
		j := &Job{
			id:         jobqueue.NextID(),
			accountID:  in.AccountID,
			dest:       in.Destination,
			file:       in.File,
			autoCommit: in.AutoCommit,
		}
		m.q.Submit(j)
		jobs = append(jobs, j)
	}
	if len(jobs) > 0 {
		m.adding.Publish(jobs)
	}
	m.q.StartIfIdle()
	return jobs, nil
}

// NewIntents expands a multi-file selection into intents sharing one
// destination.
func NewIntents(accountID int64, dest core.Destination, autoCommit bool, files ...core.FileRef) []core.UploadIntent {
	intents := make([]core.UploadIntent, 0, len(files))
	for _, f := range files {
		intents = append(intents, core.UploadIntent{
			AccountID:   accountID,
			Destination: dest,
			File:        f,
			AutoCommit:  autoCommit,
		})
	}
	return intents
}

// Cancel aborts the active upload or removes a queued one. A cancelled job
// never emits a result, only a deletion.
func (m *Manager) Cancel(id int64) bool {
	if j, ok := m.q.Get(id); ok {
		j.epoch.Add(1)
	}
	return m.q.Cancel(id)
}

// CancelAll removes every job for the account and destination, emitting one
// deletion event with all removed ids.
func (m *Manager) CancelAll(accountID int64, dest core.Destination) []int64 {
	return m.q.CancelAll(func(j *Job) bool {
		if j.accountID != accountID || !j.dest.Equal(dest) {
			return false
		}
		j.epoch.Add(1)
		return true
	})
}

// Retry resets an errored job back to queued without moving it, preserving
// its drain position, then drains.
func (m *Manager) Retry(id int64) bool {
	if !m.q.Retry(id) {
		return false
	}
	if j, ok := m.q.Get(id); ok {
		j.setErrorMessage("")
		m.status.Publish(j)
	}
	return true
}

// Get returns a snapshot of jobs for the account and destination.
func (m *Manager) Get(accountID int64, dest core.Destination) []*Job {
	return m.q.Find(func(j *Job) bool {
		return j.accountID == accountID && j.dest.Equal(dest)
	})
}

// GetByMethods returns a snapshot of jobs for the account whose destination
// method is one of the filters.
func (m *Manager) GetByMethods(accountID int64, methods ...core.Method) []*Job {
	return m.q.Find(func(j *Job) bool {
		if j.accountID != accountID {
			return false
		}
		for _, method := range methods {
			if j.dest.Method == method {
				return true
			}
		}
		return false
	})
}

// Snapshot returns every job currently in the queue, in submission order.
func (m *Manager) Snapshot() []*Job {
	return m.q.Find(func(*Job) bool { return true })
}

// ObserveAdding streams newly admitted job batches.
func (m *Manager) ObserveAdding() <-chan []*Job {
	return m.adding.Subscribe()
}

// ObserveStatus streams jobs whose status changed.
func (m *Manager) ObserveStatus() <-chan *Job {
	return m.status.Subscribe()
}

// ObserveResults streams completed uploads.
func (m *Manager) ObserveResults() <-chan *core.UploadResult {
	return m.results.Subscribe()
}

// ObserveProgress streams sampled progress snapshots of the active job.
func (m *Manager) ObserveProgress() <-chan Progress {
	return m.progress.Subscribe()
}

// ObserveDeleting streams ids removed from the queue by cancellation.
// With includeCompleted, ids of successfully finished jobs are merged in, so
// consumers can treat "gone from the queue" uniformly. Failure does not
// count as deletion: errored jobs stay queued until retried or cancelled.
func (m *Manager) ObserveDeleting(includeCompleted bool) <-chan []int64 {
	deleted := m.q.Deleted().Subscribe()
	if !includeCompleted {
		return deleted
	}

	completed := m.completed.Subscribe()
	out := make(chan []int64, 100)
	stop := make(chan struct{})

	m.mergedMu.Lock()
	m.merged[out] = stop
	m.mergedMu.Unlock()

	go func() {
		defer m.q.Deleted().Unsubscribe(deleted)
		defer m.completed.Unsubscribe(completed)
		for {
			select {
			case ids := <-deleted:
				select {
				case out <- ids:
				default:
				}
			case ids := <-completed:
				select {
				case out <- ids:
				default:
				}
			case <-stop:
				return
			case <-m.done:
				return
			}
		}
	}()
	return out
}

// Unsubscribe removes a subscriber channel created by any Observe method.
func (m *Manager) Unsubscribe(ch any) {
	switch c := ch.(type) {
	case <-chan []*Job:
		m.adding.Unsubscribe(c)
	case <-chan *Job:
		m.status.Unsubscribe(c)
	case <-chan *core.UploadResult:
		m.results.Unsubscribe(c)
	case <-chan Progress:
		m.progress.Unsubscribe(c)
	case <-chan []int64:
		m.mergedMu.Lock()
		stop, ok := m.merged[c]
		if ok {
			delete(m.merged, c)
		}
		m.mergedMu.Unlock()
		if ok {
			close(stop)
			return
		}
		m.q.Deleted().Unsubscribe(c)
	}
}

// Close stops the poller and sweep and discards all jobs, aborting the
// active transfer.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.q.CancelAll(func(j *Job) bool {
			j.epoch.Add(1)
			return true
		})
	})
}

// exec dispatches and runs one upload on the queue's worker.
func (m *Manager) exec(ctx context.Context, j *Job) error {
	m.status.Publish(j)

	strat, err := m.strategies.resolve(j.dest)
	if err != nil {
		return err
	}

	var session string
	key, reusable := j.dest.SessionKey(j.accountID)
	if reusable {
		session, err = m.sessions.Get(ctx, key)
		if err != nil {
			m.log.Warn("session cache read failed", "job_id", j.id, "error", err)
			session = ""
		}
	}

	epoch := j.epoch.Load()
	res, err := strat.Upload(ctx, j, session, func(pct int) {
		if j.epoch.Load() != epoch {
			return
		}
		j.advanceProgress(pct)
	})
	if err != nil {
		return err
	}

	j.advanceProgress(100)
	res.JobID = j.id
	if reusable && res.Session != "" {
		if err := m.sessions.Put(ctx, key, res.Session); err != nil {
			m.log.Warn("session cache write failed", "job_id", j.id, "error", err)
		}
	}
	j.stashResult(res)
	return nil
}

// onSuccess runs after the job has left the queue.
func (m *Manager) onSuccess(j *Job) {
	m.completed.Publish([]int64{j.id})
	if res := j.takeResult(); res != nil {
		m.results.Publish(res)
	}
	m.log.Info("upload finished", "job_id", j.id, "file", j.file.Name, "destination", j.dest.String())
}

// onFailure runs with the job retained in the queue in error status.
// Only jobs that were actively uploading can fail, so the user-facing
// notice is unconditional here.
func (m *Manager) onFailure(j *Job, err error) {
	j.setErrorMessage(security.SanitizeErrorMessage(err.Error()))
	m.status.Publish(j)
	if m.reporter != nil {
		m.reporter.ReportUploadFailure(j.accountID, j.file, err)
	}
}

// pollProgress samples the active job on a fixed delay and republishes the
// percentage. Best effort: a read may observe 0 immediately before 100.
func (m *Manager) pollProgress() {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			if j, ok := m.q.Active(); ok {
				m.progress.Publish(Progress{JobID: j.id, Percent: j.Progress()})
			}
		}
	}
}

func (m *Manager) runSweep() {
	next := m.sweep.Next(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-timer.C:
			if err := m.sessions.Evict(context.Background(), m.sweepMaxAge); err != nil {
				m.log.Warn("session sweep failed", "error", err)
			}
			next = m.sweep.Next(time.Now())
			timer.Reset(time.Until(next))
		}
	}
}
