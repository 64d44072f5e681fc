// Package generation drives one image generation at a time: submit, poll until
// the remote job finishes, then record the result in the history store.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imagine/internal/domain"
	"imagine/internal/infra"
	"imagine/internal/providers/midjourney"
	"imagine/internal/validation"
)

const (
	DefaultPollInterval   = 1500 * time.Millisecond
	DefaultPollTimeout    = 5 * time.Minute
	DefaultPersistTimeout = 10 * time.Second
)

// Progress checkpoints.
const (
	progressQueued    = 5
	progressSubmitted = 12
	progressPollBase  = 20
	progressPollStep  = 10
	progressPollCap   = 95
	progressDone      = 100
)

// Remote is the generation service as seen by the controller.
type Remote interface {
	HasEndpoint() bool
	Submit(ctx context.Context, composedPrompt string) (*midjourney.Response, error)
	Poll(ctx context.Context, endpoint string) (*midjourney.Response, error)
	PollEndpoint(id string) string
}

var _ Remote = (*midjourney.Client)(nil)

// Options configures a Controller. Zero durations fall back to the defaults.
type Options struct {
	Client         Remote
	Store          domain.GenerationRepository
	Logger         *infra.Logger
	PollInterval   time.Duration
	PollTimeout    time.Duration
	PersistTimeout time.Duration
	OwnerID        string
	Now            func() time.Time
	// OnChange receives a copy of the job after every published change. It runs
	// outside the controller lock and may be called from several goroutines;
	// use GenerationJob.Revision to discard stale notifications.
	OnChange func(domain.GenerationJob)
}

// Controller owns a single active generation job. A new Start supersedes the
// previous job; continuations of superseded jobs never touch the state again.
type Controller struct {
	client         Remote
	store          domain.GenerationRepository
	logger         *infra.Logger
	pollInterval   time.Duration
	pollTimeout    time.Duration
	persistTimeout time.Duration
	ownerID        string
	now            func() time.Time
	onChange       func(domain.GenerationJob)

	mu       sync.Mutex
	job      domain.GenerationJob
	gen      uint64
	revision uint64
	cancel   context.CancelFunc
	closed   bool
}

// NewController wires a controller in the idle state.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	c := &Controller{
		client:         opts.Client,
		store:          opts.Store,
		logger:         logger,
		pollInterval:   opts.PollInterval,
		pollTimeout:    opts.PollTimeout,
		persistTimeout: opts.PersistTimeout,
		ownerID:        strings.TrimSpace(opts.OwnerID),
		now:            opts.Now,
		onChange:       opts.OnChange,
		job:            domain.GenerationJob{Status: domain.JobStatusIdle},
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = DefaultPollTimeout
	}
	if c.persistTimeout <= 0 {
		c.persistTimeout = DefaultPersistTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Snapshot returns a copy of the current job.
func (c *Controller) Snapshot() domain.GenerationJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job.Clone()
}

// Start runs a generation to a terminal state and returns the final job. Input
// and configuration problems are reported before any state change or network
// call.
func (c *Controller) Start(ctx context.Context, prompt string, ratio domain.AspectRatio) (domain.GenerationJob, error) {
	r, runCtx, err := c.begin(ctx, prompt, ratio)
	if err != nil {
		return c.Snapshot(), err
	}
	return r.finish(runCtx)
}

// Launch validates and enters the submitting state like Start, then finishes
// the job in the background. It returns the submitting snapshot; progress is
// visible through Snapshot and OnChange.
func (c *Controller) Launch(ctx context.Context, prompt string, ratio domain.AspectRatio) (domain.GenerationJob, error) {
	r, runCtx, err := c.begin(ctx, prompt, ratio)
	if err != nil {
		return c.Snapshot(), err
	}
	first := r.last
	go func() {
		_, _ = r.finish(runCtx)
	}()
	return first, nil
}

func (c *Controller) begin(ctx context.Context, prompt string, ratio domain.AspectRatio) (*run, context.Context, error) {
	if err := validation.ValidatePrompt(prompt); err != nil {
		return nil, nil, err
	}
	if ratio == "" {
		ratio = domain.DefaultAspectRatio
	}
	if !ratio.Valid() {
		return nil, nil, domain.ErrInvalidAspectRatio
	}
	if c.client == nil || !c.client.HasEndpoint() {
		return nil, nil, domain.ErrMissingConfig
	}

	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return nil, nil, domain.ErrClosed
	}
	c.supersedeLocked()
	c.cancel = cancel
	r := &run{c: c, gen: c.gen, cancel: cancel}
	c.job = domain.GenerationJob{
		ID:          uuid.NewString(),
		Prompt:      strings.TrimSpace(prompt),
		AspectRatio: ratio,
		Status:      domain.JobStatusSubmitting,
		Progress:    progressQueued,
		StartedAt:   c.now(),
	}
	snap := c.stampLocked()
	r.last = snap
	c.mu.Unlock()
	c.notify(snap)
	return r, runCtx, nil
}

// Cancel aborts the active job. It reports false when nothing was running.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	if c.closed || !c.job.Status.Active() {
		c.mu.Unlock()
		return false
	}
	c.supersedeLocked()
	c.job.Status = domain.JobStatusCancelled
	c.job.Progress = 0
	snap := c.stampLocked()
	c.mu.Unlock()
	c.notify(snap)
	return true
}

// Reset aborts any active job and returns to the idle state.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.supersedeLocked()
	c.job = domain.GenerationJob{Status: domain.JobStatusIdle}
	snap := c.stampLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// Close cancels the active job and stops all further state changes. Later
// Start calls fail with domain.ErrClosed.
func (c *Controller) Close() {
	c.Cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersedeLocked()
	c.closed = true
}

// supersedeLocked aborts the in-flight job and invalidates its continuations.
func (c *Controller) supersedeLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
}

func (c *Controller) stampLocked() domain.GenerationJob {
	c.revision++
	c.job.Revision = c.revision
	return c.job.Clone()
}

func (c *Controller) notify(job domain.GenerationJob) {
	if c.onChange != nil {
		c.onChange(job)
	}
}

// run is one Start invocation. Its writes only land while gen is current.
type run struct {
	c      *Controller
	gen    uint64
	cancel context.CancelFunc
	last   domain.GenerationJob
}

// finish drives the job from submitting to a terminal state.
func (r *run) finish(ctx context.Context) (domain.GenerationJob, error) {
	c := r.c
	defer r.cancel()

	log := c.logger.With().Str("job_id", r.last.ID).Str("aspect_ratio", string(r.last.AspectRatio)).Logger()
	log.Info().Msg("generation started")

	err := r.execute(ctx, &log)

	c.mu.Lock()
	if c.gen == r.gen {
		c.cancel = nil
	}
	c.mu.Unlock()

	result := r.last
	if result.Status.Active() {
		result.Status = domain.JobStatusCancelled
		result.Progress = 0
	}
	switch {
	case err == nil:
		log.Info().Int("images", len(result.Images)).Dur("duration", result.Elapsed()).Msg("generation completed")
	case errors.Is(err, domain.ErrCancelled):
		log.Info().Msg("generation cancelled")
	default:
		log.Warn().Err(err).Str("kind", domain.ErrorKind(err)).Msg("generation failed")
	}
	return result, err
}

func (r *run) update(mutate func(*domain.GenerationJob)) bool {
	c := r.c
	c.mu.Lock()
	if c.closed || c.gen != r.gen {
		c.mu.Unlock()
		return false
	}
	mutate(&c.job)
	snap := c.stampLocked()
	r.last = snap
	c.mu.Unlock()
	c.notify(snap)
	return true
}

func (r *run) execute(ctx context.Context, log *zerolog.Logger) error {
	c := r.c
	job := r.last
	r.update(func(j *domain.GenerationJob) { j.Progress = progressSubmitted })

	resp, err := c.client.Submit(ctx, validation.ComposePrompt(job.Prompt, job.AspectRatio))
	if err != nil {
		if ctx.Err() != nil {
			return r.cancelled()
		}
		return r.fail(transportError(err))
	}

	endpoint := resp.PollingURL
	if endpoint == "" && resp.ID != "" {
		endpoint = c.client.PollEndpoint(resp.ID)
	}
	r.update(func(j *domain.GenerationJob) {
		j.ExternalID = resp.ID
		j.PollEndpoint = endpoint
	})
	log.Debug().Str("external_id", resp.ID).Str("status", resp.Status).Str("endpoint", endpoint).Msg("generation submitted")

	switch {
	case resp.Completed():
		return r.complete(ctx, log, resp.Results)
	case resp.Failed():
		return r.fail(&domain.RemoteFailure{Message: resp.Message})
	case endpoint == "":
		return r.fail(domain.ErrMissingPollEndpoint)
	}

	if !r.update(func(j *domain.GenerationJob) { j.Status = domain.JobStatusPolling }) {
		return r.cancelled()
	}
	return r.poll(ctx, log, endpoint)
}

func (r *run) poll(ctx context.Context, log *zerolog.Logger, endpoint string) error {
	c := r.c
	deadline := c.now().Add(c.pollTimeout)
	attempt := 0
	for {
		if ctx.Err() != nil {
			return r.cancelled()
		}
		if !c.now().Before(deadline) {
			return r.fail(fmt.Errorf("%w after %s", domain.ErrTimeout, c.pollTimeout))
		}
		attempt++
		step := min(progressPollCap, progressPollBase+attempt*progressPollStep)
		r.update(func(j *domain.GenerationJob) { j.Progress = max(j.Progress, step) })

		resp, err := c.client.Poll(ctx, endpoint)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return r.cancelled()
			}
			log.Warn().Err(err).Int("attempt", attempt).Str("endpoint", endpoint).Msg("poll failed, retrying")
		default:
			if resp.PollingURL != "" {
				endpoint = resp.PollingURL
			}
			r.update(func(j *domain.GenerationJob) {
				if resp.ID != "" {
					j.ExternalID = resp.ID
				}
				j.PollEndpoint = endpoint
			})
			log.Debug().Int("attempt", attempt).Str("status", resp.Status).Msg("poll response")
			if resp.Completed() {
				return r.complete(ctx, log, resp.Results)
			}
			if resp.Failed() {
				return r.fail(&domain.RemoteFailure{Message: resp.Message})
			}
		}

		wait := min(c.pollInterval, deadline.Sub(c.now()))
		if err := Sleep(ctx, wait); err != nil {
			return r.cancelled()
		}
	}
}

func (r *run) complete(ctx context.Context, log *zerolog.Logger, results []string) error {
	c := r.c
	images := uniqueImages(results)
	completedAt := c.now()
	ok := r.update(func(j *domain.GenerationJob) {
		j.Status = domain.JobStatusCompleted
		j.Progress = progressDone
		j.Images = images
		j.CompletedAt = &completedAt
		j.ErrorMessage = ""
		j.ErrorKind = ""
	})
	if !ok {
		return domain.ErrCancelled
	}
	r.persist(ctx, log)
	return nil
}

// persist records the completed job. Failures are logged and never change the
// job status.
func (r *run) persist(ctx context.Context, log *zerolog.Logger) {
	c := r.c
	if c.store == nil {
		return
	}
	job := r.last
	record := &domain.StoredGeneration{
		ExternalID:   job.ExternalID,
		PollEndpoint: job.PollEndpoint,
		Prompt:       validation.Sanitize(job.Prompt),
		AspectRatio:  job.AspectRatio,
		Images:       append([]string(nil), job.Images...),
		OwnerID:      c.ownerID,
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.persistTimeout)
	defer cancel()

	saved, err := c.store.SaveResult(pctx, record)
	if err != nil {
		if errors.Is(err, domain.ErrPersistenceDisabled) {
			log.Debug().Msg("history store disabled, result not saved")
			return
		}
		log.Warn().Err(&domain.PersistError{Op: "save", Err: err}).Msg("failed to save generation")
		return
	}
	r.update(func(j *domain.GenerationJob) {
		j.StoredID = saved.ID
		if !saved.CreatedAt.IsZero() {
			at := saved.CreatedAt
			j.CompletedAt = &at
		}
	})
	log.Debug().Str("stored_id", saved.ID).Msg("generation saved")
}

func (r *run) fail(err error) error {
	r.update(func(j *domain.GenerationJob) {
		j.Status = domain.JobStatusFailed
		j.Progress = 0
		j.Images = nil
		j.ErrorMessage = failureMessage(err)
		j.ErrorKind = domain.ErrorKind(err)
	})
	return err
}

func (r *run) cancelled() error {
	r.update(func(j *domain.GenerationJob) {
		j.Status = domain.JobStatusCancelled
		j.Progress = 0
	})
	return domain.ErrCancelled
}

func transportError(err error) error {
	var statusErr *midjourney.StatusError
	if errors.As(err, &statusErr) {
		return &domain.TransportError{StatusCode: statusErr.StatusCode, Status: statusErr.Status}
	}
	return &domain.TransportError{Status: err.Error()}
}

func failureMessage(err error) string {
	var remote *domain.RemoteFailure
	if errors.As(err, &remote) {
		if remote.Message == "" {
			return "Generation failed"
		}
		return remote.Message
	}
	msg := err.Error()
	if msg == "" {
		return "Generation failed"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func uniqueImages(results []string) []string {
	out := make([]string, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, u := range results {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
