package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/publish"
	"github.com/postpilothq/postpilot/internal/quota"
	"github.com/postpilothq/postpilot/internal/repository"
	"github.com/postpilothq/postpilot/internal/retry"
	"github.com/postpilothq/postpilot/internal/service"
)

// Dispatcher finds due posts and runs exactly one publish attempt per
// post. Exclusivity comes from the store's conditional scheduled ->
// publishing transition, so multiple dispatcher instances can run against
// the same database without extra coordination.
type Dispatcher struct {
	posts    repository.PostRepository
	conns    repository.ConnectionRepository
	history  repository.PublishHistoryRepository
	registry *publish.Registry
	gate     quota.Gate
	policy   *retry.Policy
	creds    service.CredentialResolver
	clock    Clock

	workers        int
	batchSize      int
	publishTimeout time.Duration
}

type Options struct {
	Workers        int
	BatchSize      int
	PublishTimeout time.Duration
}

func NewDispatcher(
	posts repository.PostRepository,
	conns repository.ConnectionRepository,
	history repository.PublishHistoryRepository,
	registry *publish.Registry,
	gate quota.Gate,
	policy *retry.Policy,
	creds service.CredentialResolver,
	clock Clock,
	opts Options) *Dispatcher {

	if opts.Workers <= 0 {
		opts.Workers = 10
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Minute
	}

	return &Dispatcher{
		posts:          posts,
		conns:          conns,
		history:        history,
		registry:       registry,
		gate:           gate,
		policy:         policy,
		creds:          creds,
		clock:          clock,
		workers:        opts.Workers,
		batchSize:      opts.BatchSize,
		publishTimeout: opts.PublishTimeout,
	}
}

// Run polls for due posts until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	slog.Info("dispatcher started", "poll_interval", pollInterval.String(), "workers", d.workers)
	for {
		select {
		case <-ctx.Done():
			slog.Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one poll cycle: list due posts and fan out to the worker pool.
func (d *Dispatcher) Tick(ctx context.Context) {
	due, err := d.posts.ListDue(ctx, d.clock.Now(), d.batchSize)
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if len(due) == 0 {
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, d.workers)

	for _, post := range due {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(post *models.ScheduledPost) {
			defer wg.Done()
			defer func() { <-semaphore }()
			d.DispatchOne(ctx, post)
		}(post)
	}

	wg.Wait()
}

// DispatchByID handles a queue-triggered nudge for a single post. The post
// is re-read so a cancel or reschedule between enqueue and trigger wins.
func (d *Dispatcher) DispatchByID(ctx context.Context, postID string) error {
	post, err := d.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil || post.Status != models.PostStatusScheduled {
		return nil
	}
	if post.ScheduledFor.After(d.clock.Now()) {
		return nil
	}
	d.DispatchOne(ctx, post)
	return nil
}

// DispatchOne claims the post and runs one publish attempt. Losing the
// claim race means another worker owns the post; that is a silent no-op.
func (d *Dispatcher) DispatchOne(ctx context.Context, post *models.ScheduledPost) {
	now := d.clock.Now()

	claimed, err := d.posts.ClaimForPublishing(ctx, post.ID, now)
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if !claimed {
		return
	}

	// A post past the ceiling must never get another attempt, whatever
	// state drift put it back on the due list. RetryCount equal to the
	// ceiling is the final granted retry and still runs.
	if post.RetryCount > d.policy.Ceiling {
		if err := d.posts.MarkFailed(ctx, post.ID, publish.ErrUnknown.String(),
			"retry ceiling reached", post.RetryCount, now); err != nil {
			slog.Info(err.Error())
		}
		return
	}

	result := d.attempt(ctx, post)
	d.applyOutcome(ctx, post, result)
}

// attempt runs quota gate -> credential resolution -> platform publish for
// an exclusively owned post, always producing a classified result.
func (d *Dispatcher) attempt(ctx context.Context, post *models.ScheduledPost) publish.Result {
	allowed, err := d.gate.Allow(ctx, post.OwnerID)
	if err != nil {
		slog.Info(err.Error())
		// A broken gate must not burn platform quota.
		allowed = false
	}
	if !allowed {
		// Indistinguishable downstream from a platform 429, which keeps
		// the retry path single-shaped. No budget is consumed.
		return publish.FailureResult(publish.ErrRateLimited, "publish quota exhausted")
	}

	conn, err := d.conns.GetByID(ctx, post.ConnectionID)
	if err != nil {
		return publish.FailureResult(publish.ErrUnknown, err.Error())
	}
	if conn == nil {
		return publish.FailureResult(publish.ErrAccountDisconnected, "linked account no longer exists")
	}

	publisher, err := d.registry.Resolve(conn.Platform)
	if err != nil {
		return publish.FailureResult(publish.ErrUnknown, err.Error())
	}

	accessToken, err := d.creds.Resolve(conn)
	if err != nil {
		return publish.FailureResult(publish.ErrInvalidCredentials, err.Error())
	}

	if err := d.gate.Record(ctx, post.OwnerID); err != nil {
		slog.Info(err.Error())
	}

	publishCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	return safePublish(publishCtx, publisher, publish.Request{
		AccessToken:    accessToken,
		PlatformUserID: conn.AccountID,
		AccountType:    conn.AccountType,
		Caption:        post.Caption,
		ImageURL:       post.ImageURL,
		Hashtags:       post.Hashtags,
	})
}

// safePublish downgrades adapter panics to a retryable unknown result so
// one malformed post cannot take down the dispatch loop.
func safePublish(ctx context.Context, p publish.Publisher, req publish.Request) (result publish.Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("publisher panic recovered", "platform", p.Platform(), "panic", fmt.Sprintf("%v", r))
			result = publish.FailureResult(publish.ErrUnknown, fmt.Sprintf("publisher panic: %v", r))
		}
	}()
	return p.Publish(ctx, req)
}

// applyOutcome writes the post's next state. The post is exclusively owned
// while publishing, so these writes are unconditional.
func (d *Dispatcher) applyOutcome(ctx context.Context, post *models.ScheduledPost, result publish.Result) {
	now := d.clock.Now()

	record := &models.PublishHistory{
		OwnerID:      post.OwnerID,
		PostID:       post.ID,
		ConnectionID: post.ConnectionID,
		Success:      result.Success,
		ErrorCode:    result.ErrorCode.String(),
		ErrorMessage: result.ErrorMessage,
		Retryable:    result.Retryable,
	}
	if result.Success {
		record.ErrorCode = ""
	}
	if _, err := d.history.Create(ctx, record); err != nil {
		slog.Info(err.Error())
	}

	if result.Success {
		if err := d.posts.MarkPublished(ctx, post.ID, result.PlatformPostID, result.PlatformPostURL, now); err != nil {
			slog.Info(err.Error())
		}
		slog.Info("post published", "post_id", post.ID, "platform_post_id", result.PlatformPostID)
		return
	}

	decision := d.policy.Decide(result.ErrorCode, post.RetryCount, now)
	if decision.Terminal {
		if err := d.posts.MarkFailed(ctx, post.ID, result.ErrorCode.String(), result.ErrorMessage,
			decision.RetryCount, now); err != nil {
			slog.Info(err.Error())
		}
		slog.Info("post failed terminally", "post_id", post.ID, "code", result.ErrorCode.String())
		return
	}

	if _, err := d.posts.RescheduleForRetry(ctx, post.ID, decision.RetryCount, decision.NextAttempt, now); err != nil {
		slog.Info(err.Error())
	}
	slog.Info("post retry scheduled", "post_id", post.ID, "code", result.ErrorCode.String(),
		"retry_count", decision.RetryCount, "next_attempt", decision.NextAttempt)
}
