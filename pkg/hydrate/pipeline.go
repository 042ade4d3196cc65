// Package hydrate turns raw, possibly-partial inbound message fragments into
// fully formed, locally cached messages, exactly once per message id.
//
// Fragments arrive out of band from push notifications and the long-poll
// feed. Each Process call admits one job to a single-worker queue; the job
// runs a fixed sequence of stages: classify fragments, check the local cache,
// fetch missing DTOs from the remote API, drop key-exchange handshakes,
// resolve referenced owners, persist, and re-read the persisted rows as the
// emitted source of truth. Consolidated results are broadcast to subscribers
// with last-value replay.
package hydrate

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/ykurenkov/chatsync/pkg/core"
	"github.com/ykurenkov/chatsync/pkg/fanout"
	"github.com/ykurenkov/chatsync/pkg/jobqueue"
	"github.com/ykurenkov/chatsync/pkg/notify"
	"github.com/ykurenkov/chatsync/pkg/security"
)

// Deps are the collaborators the pipeline is built against.
// Messages, Owners, and API are required; the rest are optional.
type Deps struct {
	Messages  core.MessageStore
	Owners    core.OwnerStore
	API       core.MessageAPI
	Refresher core.OwnerRefresher
	KeyEx     core.KeyExchangeInterceptor
	Notifier  core.NotificationPresenter
}

// Options holds pipeline configuration.
type Options struct {
	Logger       *slog.Logger
	Interceptors *notify.Registry
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

// WithInterceptors shares an externally owned interceptor registry.
func WithInterceptors(r *notify.Registry) Option {
	return optionFunc(func(o *Options) { o.Interceptors = r })
}

// Pipeline is the realtime message hydration pipeline.
type Pipeline struct {
	deps         Deps
	q            *jobqueue.Queue[*batchJob]
	results      *fanout.Broadcaster[*core.BatchResult]
	interceptors *notify.Registry
	log          *slog.Logger
}

// New creates a pipeline. Panics if a required collaborator is missing.
func New(deps Deps, opts ...Option) *Pipeline {
	if deps.Messages == nil || deps.Owners == nil || deps.API == nil {
		panic("chatsync: hydrate.New requires Messages, Owners, and API")
	}

	options := &Options{}
	for _, opt := range opts {
		opt.Apply(options)
	}
	log := options.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("pipeline", uuid.New().String()[:8])

	interceptors := options.Interceptors
	if interceptors == nil {
		interceptors = notify.NewRegistry()
	}

	p := &Pipeline{
		deps:         deps,
		results:      fanout.New[*core.BatchResult](fanout.WithReplay()),
		interceptors: interceptors,
		log:          log,
	}
	p.q = jobqueue.New(jobqueue.Config[*batchJob]{
		Exec:   p.exec,
		Logger: log,
		OnFailure: func(j *batchJob, err error) {
			// Best-effort background sync: failures are logged, the batch
			// is dropped, and the queue drains to the next job.
			log.Error("hydration batch dropped", "job_id", j.id, "account_id", j.accountID, "error", err)
		},
	})
	return p
}

// Process admits a batch of update fragments. The bulk push path performs
// no uniqueness check.
func (p *Pipeline) Process(accountID int64, fragments []core.UpdateFragment) (int64, error) {
	if err := security.ValidateBatch(fragments); err != nil {
		return 0, err
	}
	j := &batchJob{
		id:        jobqueue.NextID(),
		accountID: accountID,
		fragments: fragments,
	}
	id := p.q.Submit(j)
	p.q.StartIfIdle()
	return id, nil
}

// ProcessSingle admits a job for one message by id, the realtime long-poll
// path. Duplicate notifications are common there, so the submission fails
// with a QueueContainsError if the message id is already pending anywhere in
// the queue. With ignoreIfExists set, a locally cached message is only
// acknowledged, never re-fetched.
func (p *Pipeline) ProcessSingle(accountID int64, messageID int, peerID int64, cmid int, ignoreIfExists bool) (int64, error) {
	j := &batchJob{
		id:        jobqueue.NextID(),
		accountID: accountID,
		fragments: []core.UpdateFragment{{
			Backup: &core.BackupFragment{MessageID: messageID, PeerID: peerID, CMID: cmid},
		}},
		ignoreIfExists: ignoreIfExists,
	}
	err := p.q.SubmitChecked(j, func(other *batchJob) error {
		if other.contains(messageID) {
			return &core.QueueContainsError{MessageID: messageID}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	p.q.StartIfIdle()
	return j.id, nil
}

// ProcessDeleted admits a job that removes messages from the local cache and
// emits the removed ids on the results stream.
func (p *Pipeline) ProcessDeleted(accountID int64, messageIDs []int) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, core.ErrEmptyBatch
	}
	j := &batchJob{
		id:         jobqueue.NextID(),
		accountID:  accountID,
		deletedIDs: messageIDs,
	}
	id := p.q.Submit(j)
	p.q.StartIfIdle()
	return id, nil
}

// Results subscribes to consolidated batch results. Every subscriber
// receives every completed batch; a late subscriber first receives the most
// recent one. Call Unsubscribe when done.
func (p *Pipeline) Results() <-chan *core.BatchResult {
	return p.results.Subscribe()
}

// Unsubscribe removes a subscriber channel created by Results.
func (p *Pipeline) Unsubscribe(ch <-chan *core.BatchResult) {
	p.results.Unsubscribe(ch)
}

// HasPendingMessage reports whether a message id is queued or active.
func (p *Pipeline) HasPendingMessage(messageID int) bool {
	return p.q.HasPending(func(j *batchJob) bool { return j.contains(messageID) })
}

// QueueLen returns the number of admitted jobs, the active one included.
func (p *Pipeline) QueueLen() int {
	return p.q.Len()
}

// RegisterNotificationsInterceptor suppresses push notifications for a
// conversation while a UI surface displays it.
func (p *Pipeline) RegisterNotificationsInterceptor(interceptorID, accountID, peerID int64) {
	p.interceptors.Register(interceptorID, accountID, peerID)
}

// UnregisterNotificationsInterceptor lifts a suppression.
func (p *Pipeline) UnregisterNotificationsInterceptor(interceptorID int64) {
	p.interceptors.Unregister(interceptorID)
}

// NotificationIntercepted reports whether notifications for the conversation
// are currently suppressed.
func (p *Pipeline) NotificationIntercepted(accountID, peerID int64) bool {
	return p.interceptors.Intercepted(accountID, peerID)
}

// Close cancels the active job and discards everything queued.
func (p *Pipeline) Close() {
	p.q.CancelAll(func(*batchJob) bool { return true })
}
