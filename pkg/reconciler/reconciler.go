package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/booking"
	"github.com/ethanbaker/meetingroom/pkg/logging"
	"github.com/ethanbaker/meetingroom/pkg/metrics"
	"github.com/ethanbaker/meetingroom/pkg/transcription"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Defaults
const (
	DefaultPollInterval  = 4 * time.Second
	DefaultRetention     = 30 * 24 * time.Hour
	DefaultPruneSchedule = "@hourly"

	sinkTimeout = 30 * time.Second
)

// StatusSource looks up the provider-side state of a job
type StatusSource interface {
	GetStatus(ctx context.Context, id string) (*transcription.StatusSnapshot, error)
}

// TranscriptSink delivers a transcript to a meeting's external record
type TranscriptSink interface {
	AppendTranscript(ctx context.Context, externalID, text string) error
}

// MeetingLookup resolves the meeting a job belongs to
type MeetingLookup interface {
	GetBooking(ctx context.Context, id string) (*booking.Meeting, error)
}

// Options contains the collaborators of the Reconciler
type Options struct {
	Store         JobStore
	Provider      StatusSource
	Sink          TranscriptSink
	Meetings      MeetingLookup
	PollInterval  time.Duration
	Retention     time.Duration
	PruneSchedule string // cron spec
	Metrics       *metrics.Metrics
}

// poller is a running poll goroutine
type poller struct {
	cancel context.CancelFunc
}

// Reconciler owns every transcription job until it reaches a terminal state and
// guarantees the transcript of a completed job is delivered at most once per
// successful propagation
type Reconciler struct {
	store     JobStore
	provider  StatusSource
	sink      TranscriptSink
	meetings  MeetingLookup
	interval  time.Duration
	retention time.Duration
	schedule  string
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mutex   sync.Mutex
	pollers map[string]*poller
	stopped bool
}

// New creates a new reconciler. Call Start to enable pruning
func New(opts Options) (*Reconciler, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("a valid job store must be provided")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("a valid status provider must be provided")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("a valid transcript sink must be provided")
	}
	if opts.Meetings == nil {
		return nil, fmt.Errorf("a valid meeting lookup must be provided")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		store:     opts.Store,
		provider:  opts.Provider,
		sink:      opts.Sink,
		meetings:  opts.Meetings,
		interval:  opts.PollInterval,
		retention: opts.Retention,
		schedule:  opts.PruneSchedule,
		metrics:   opts.Metrics,
		log:       logging.For("RECONCILER"),
		now:       time.Now,
		cron:      cron.New(),
		ctx:       ctx,
		cancel:    cancel,
		pollers:   make(map[string]*poller),
	}

	if r.interval <= 0 {
		r.interval = DefaultPollInterval
	}
	if r.retention <= 0 {
		r.retention = DefaultRetention
	}
	if r.schedule == "" {
		r.schedule = DefaultPruneSchedule
	}
	if r.metrics == nil {
		r.metrics = metrics.Nop()
	}

	return r, nil
}

// Start schedules the periodic prune of finished jobs
func (r *Reconciler) Start() error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.Prune(r.ctx); err != nil {
			r.log.Error().Err(err).Msg("failed to prune jobs")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", r.schedule, err)
	}

	r.cron.Start()
	r.log.Info().Str("schedule", r.schedule).Dur("retention", r.retention).Msg("job prune scheduled")
	return nil
}

// Register takes ownership of a submitted job and starts polling it
func (r *Reconciler) Register(ctx context.Context, handle *transcription.JobHandle, meetingID string) (*Job, error) {
	if handle == nil || handle.ID == "" {
		return nil, fmt.Errorf("%w: job handle has no id", apperr.ErrValidation)
	}

	// Registering the same handle twice keeps the first job
	if existing, err := r.store.Get(ctx, handle.ID); err == nil {
		if existing.Propagation == PropagationPending {
			r.startPoller(existing.ID)
		}
		return existing, nil
	} else if !apperr.IsNotFound(err) {
		return nil, err
	}

	status := handle.Status
	if status == "" || status.Terminal() {
		// Terminal outcomes are confirmed through a lookup with the transcript
		status = transcription.StatusSubmitted
	}

	job := &Job{
		ID:          handle.ID,
		MeetingID:   meetingID,
		Source:      handle.Source,
		Status:      status,
		Propagation: PropagationPending,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to store job: %w", err)
	}

	r.metrics.TranscriptionJobsTotal.WithLabelValues(string(job.Source)).Inc()
	r.metrics.JobsPending.Inc()
	r.log.Info().Str("job_id", job.ID).Str("meeting_id", meetingID).Str("source", string(job.Source)).Msg("job registered")

	r.startPoller(job.ID)
	return job, nil
}

// HandleWebhook applies a provider notification. An unknown job yields
// apperr.ErrNotFound
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte) error {
	snap, err := transcription.ParseWebhook(body)
	if err != nil {
		return err
	}

	if _, err := r.store.Get(ctx, snap.ID); err != nil {
		return err
	}

	// The notification may only signal completion, fetch the transcript
	if snap.Status == transcription.StatusCompleted && snap.Transcript == "" {
		if snap, err = r.provider.GetStatus(ctx, snap.ID); err != nil {
			return err
		}
	}

	return r.observe(ctx, snap, "webhook")
}

// CancelMeeting stops tracking every pending job of a meeting
func (r *Reconciler) CancelMeeting(meetingID string) {
	ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
	defer cancel()

	jobs, err := r.store.ListByMeeting(ctx, meetingID)
	if err != nil {
		r.log.Error().Err(err).Str("meeting_id", meetingID).Msg("failed to list jobs of cancelled meeting")
		return
	}

	for _, job := range jobs {
		r.stopPoller(job.ID)
		if job.Propagation != PropagationPending {
			continue
		}
		if err := r.finish(ctx, job.ID, "meeting cancelled"); err != nil {
			r.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to close job")
		}
	}
}

// Job returns a tracked job, including finished ones until pruned
func (r *Reconciler) Job(ctx context.Context, id string) (*Job, error) {
	return r.store.Get(ctx, id)
}

// Resume restarts polling for every job still pending in the store
func (r *Reconciler) Resume(ctx context.Context) error {
	jobs, err := r.store.ListByPropagation(ctx, PropagationPending)
	if err != nil {
		return fmt.Errorf("failed to list pending jobs: %w", err)
	}

	for _, job := range jobs {
		r.metrics.JobsPending.Inc()
		r.startPoller(job.ID)
	}

	if len(jobs) > 0 {
		r.log.Info().Int("jobs", len(jobs)).Msg("resumed pending jobs")
	}
	return nil
}

// Prune deletes finished jobs older than the retention period
func (r *Reconciler) Prune(ctx context.Context) (int64, error) {
	removed, err := r.store.DeleteFinishedBefore(ctx, r.now().Add(-r.retention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		r.log.Info().Int64("jobs", removed).Msg("pruned finished jobs")
	}
	return removed, nil
}

// Stop cancels every poller and waits for them to exit
func (r *Reconciler) Stop() {
	r.mutex.Lock()
	r.stopped = true
	r.mutex.Unlock()

	r.cancel()
	<-r.cron.Stop().Done()
	r.wg.Wait()
}

/** Internal */

// observe records a status observation and acts on terminal outcomes
func (r *Reconciler) observe(ctx context.Context, snap *transcription.StatusSnapshot, trigger string) error {
	job, err := r.store.RecordStatus(ctx, snap.ID, snap.Status, snap.Transcript, r.now())
	if err != nil {
		return err
	}

	if job.Propagation != PropagationPending {
		return nil
	}

	switch job.Status {
	case transcription.StatusCompleted:
		return r.propagate(ctx, job, trigger)
	case transcription.StatusFailed:
		return r.finish(ctx, job.ID, "transcription failed")
	}
	return nil
}

// propagate delivers the transcript of a completed job. Only the caller that wins
// the Pending -> Propagated swap calls the sink
func (r *Reconciler) propagate(ctx context.Context, job *Job, trigger string) error {
	meeting, err := r.meetingOf(ctx, job)
	if err != nil {
		return err
	}
	if meeting == nil {
		r.metrics.PropagationsTotal.WithLabelValues(trigger, "skipped").Inc()
		return r.finish(ctx, job.ID, "no meeting to propagate to")
	}

	won, err := r.store.CompareAndSwapPropagation(ctx, job.ID, PropagationPending, PropagationPropagated)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	target := meeting.ExternalDocID
	if target == "" {
		target = meeting.ID
	}

	// Once won, the append is not abandoned because the trigger went away
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	if err := r.sink.AppendTranscript(sinkCtx, target, job.Transcript); err != nil {
		r.metrics.PropagationsTotal.WithLabelValues(trigger, "error").Inc()
		r.release(job)
		return fmt.Errorf("failed to propagate transcript of job %s: %w", job.ID, err)
	}

	r.stopPoller(job.ID)
	r.metrics.JobsPending.Dec()
	r.metrics.PropagationsTotal.WithLabelValues(trigger, "ok").Inc()
	r.log.Info().Str("job_id", job.ID).Str("meeting_id", meeting.ID).Str("trigger", trigger).Msg("transcript propagated")

	return nil
}

// release hands a job back to the pollers after a failed delivery
func (r *Reconciler) release(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := r.store.CompareAndSwapPropagation(ctx, job.ID, PropagationPropagated, PropagationPending); err != nil {
		r.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to release job after delivery failure")
		return
	}

	// The meeting may have been cancelled while delivering
	if meeting, err := r.meetingOf(ctx, job); err == nil && meeting == nil {
		if err := r.finish(ctx, job.ID, "meeting removed during delivery"); err != nil {
			r.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to close job")
		}
		return
	}

	r.log.Warn().Str("job_id", job.ID).Msg("transcript delivery failed, will retry")
}

// meetingOf returns nil without error when the job has no live meeting
func (r *Reconciler) meetingOf(ctx context.Context, job *Job) (*booking.Meeting, error) {
	if job.MeetingID == "" {
		return nil, nil
	}

	meeting, err := r.meetings.GetBooking(ctx, job.MeetingID)
	if apperr.IsNotFound(err) {
		return nil, nil
	}
	return meeting, err
}

// finish closes a pending job without propagation
func (r *Reconciler) finish(ctx context.Context, id, reason string) error {
	closed, err := r.store.CompareAndSwapPropagation(ctx, id, PropagationPending, PropagationClosed)
	if err != nil {
		return err
	}

	r.stopPoller(id)
	if closed {
		r.metrics.JobsPending.Dec()
		r.log.Info().Str("job_id", id).Str("reason", reason).Msg("job closed")
	}
	return nil
}

func (r *Reconciler) startPoller(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.stopped {
		return
	}
	if _, ok := r.pollers[id]; ok {
		return
	}

	ctx, cancel := context.WithCancel(r.ctx)
	p := &poller{cancel: cancel}
	r.pollers[id] = p

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.removePoller(id, p)
		r.poll(ctx, id)
	}()
}

func (r *Reconciler) stopPoller(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if p, ok := r.pollers[id]; ok {
		p.cancel()
		delete(r.pollers, id)
	}
}

func (r *Reconciler) removePoller(id string, p *poller) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p.cancel()
	if r.pollers[id] == p {
		delete(r.pollers, id)
	}
}

// poll checks the provider every interval until the job leaves Pending
func (r *Reconciler) poll(ctx context.Context, id string) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		job, err := r.store.Get(ctx, id)
		if err != nil {
			if apperr.IsNotFound(err) {
				return
			}
			r.log.Warn().Err(err).Str("job_id", id).Msg("failed to load job")
			continue
		}
		if job.Propagation != PropagationPending {
			return
		}

		snap, err := r.provider.GetStatus(ctx, id)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				r.log.Warn().Err(err).Str("job_id", id).Msg("status lookup failed")
			}
			continue
		}

		if err := r.observe(ctx, snap, "poll"); err != nil {
			r.log.Warn().Err(err).Str("job_id", id).Msg("failed to apply job status")
		}
	}
}
