package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/publish"
	"github.com/postpilothq/postpilot/internal/quota"
	"github.com/postpilothq/postpilot/internal/repository"
	"github.com/postpilothq/postpilot/internal/retry"
)

// fakePublisher returns queued results in order, repeating the last one.
// With no queued results every call succeeds.
type fakePublisher struct {
	mu      sync.Mutex
	calls   int
	results []publish.Result
	panicOn bool
}

func (f *fakePublisher) Platform() string { return "fake" }

func (f *fakePublisher) Publish(ctx context.Context, req publish.Request) publish.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panicOn {
		panic("boom")
	}
	if len(f.results) == 0 {
		return publish.SuccessResult("plat-1", "https://platform.example/plat-1")
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticCreds struct{}

func (staticCreds) Resolve(conn *models.Connection) (string, error) { return "tok", nil }

func (staticCreds) ResolveRefresh(conn *models.Connection) (string, error) {
	return "refresh", nil
}

type fixture struct {
	d       *Dispatcher
	posts   *repository.MemoryPostRepository
	conns   *repository.MemoryConnectionRepository
	history *repository.MemoryHistoryRepository
	gate    *quota.MemoryGate
	pub     *fakePublisher
	clock   *FakeClock
	connID  int64
}

func newFixture(t *testing.T, limits quota.Limits) *fixture {
	t.Helper()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	posts := repository.NewMemoryPostRepository()
	conns := repository.NewMemoryConnectionRepository()
	history := repository.NewMemoryHistoryRepository()
	gate := quota.NewMemoryGateAt(limits, clock.Now)
	pub := &fakePublisher{}

	registry := publish.NewRegistry()
	registry.Register(pub)

	connID, err := conns.Create(context.Background(), &models.Connection{
		OwnerID:     1,
		Platform:    "fake",
		AccountID:   "acct",
		AccountType: models.AccountTypeIndividual,
	})
	require.NoError(t, err)

	d := NewDispatcher(posts, conns, history, registry, gate,
		retry.NewPolicy(3, time.Minute, 10*time.Minute),
		staticCreds{}, clock, Options{Workers: 4, PublishTimeout: time.Second})

	return &fixture{d: d, posts: posts, conns: conns, history: history, gate: gate, pub: pub, clock: clock, connID: connID}
}

func (f *fixture) seed(t *testing.T, post *models.ScheduledPost) *models.ScheduledPost {
	t.Helper()
	if post.ConnectionID == 0 {
		post.ConnectionID = f.connID
	}
	if post.OwnerID == 0 {
		post.OwnerID = 1
	}
	if post.Status == "" {
		post.Status = models.PostStatusScheduled
	}
	if post.ScheduledFor.IsZero() {
		post.ScheduledFor = f.clock.Now()
	}
	require.NoError(t, f.posts.Create(context.Background(), post))
	return post
}

func (f *fixture) get(t *testing.T, id string) *models.ScheduledPost {
	t.Helper()
	post, err := f.posts.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, post)
	return post
}

func TestDispatchPublishesDuePost(t *testing.T) {
	f := newFixture(t, quota.Limits{})
	f.seed(t, &models.ScheduledPost{ID: "p1", Caption: "hi"})

	f.d.Tick(context.Background())

	post := f.get(t, "p1")
	assert.Equal(t, models.PostStatusPublished, post.Status)
	assert.Equal(t, "plat-1", post.PlatformPostID)
	assert.Equal(t, "https://platform.example/plat-1", post.PlatformPostURL)
	require.NotNil(t, post.PublishedAt)
	assert.Equal(t, f.clock.Now(), *post.PublishedAt)
	assert.Equal(t, 1, f.pub.callCount())

	records, err := f.history.ListByPostID(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
	assert.Empty(t, records[0].ErrorCode)
}

func TestDispatchSkipsFuturePosts(t *testing.T) {
	f := newFixture(t, quota.Limits{})
	f.seed(t, &models.ScheduledPost{ID: "p1", ScheduledFor: f.clock.Now().Add(time.Hour)})

	f.d.Tick(context.Background())

	assert.Equal(t, models.PostStatusScheduled, f.get(t, "p1").Status)
	assert.Equal(t, 0, f.pub.callCount())
}

func TestDispatchClaimIsExclusive(t *testing.T) {
	f := newFixture(t, quota.Limits{})
	post := f.seed(t, &models.ScheduledPost{ID: "p1"})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := *post
			f.d.DispatchOne(context.Background(), &cp)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.pub.callCount(), "exactly one worker wins the claim")
	assert.Equal(t, models.PostStatusPublished, f.get(t, "p1").Status)
}

func TestDispatchTerminalFailure(t *testing.T) {
	f := newFixture(t, quota.Limits{})
	f.pub.results = []publish.Result{publish.FailureResult(publish.ErrTokenExpired, "token expired")}
	f.seed(t, &models.ScheduledPost{ID: "p1"})

	f.d.Tick(context.Background())

	post := f.get(t, "p1")
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.Equal(t, publish.ErrTokenExpired.String(), post.ErrorCode)
	assert.Equal(t, "token expired", post.ErrorMessage)
	assert.Equal(t, 0, post.RetryCount, "terminal failure does not consume a retry")

	// The next tick must not pick it up again.
	f.clock.Advance(time.Hour)
	f.d.Tick(context.Background())
	assert.Equal(t, 1, f.pub.callCount())
}

func TestDispatchRetryableFailureReschedules(t *testing.T) {
	f := newFixture(t, quota.Limits{})
	f.pub.results = []publish.Result{
		publish.FailureResult(publish.ErrRateLimited, "throttled"),
		publish.SuccessResult("plat-2", "https://platform.example/plat-2"),
	}
	f.seed(t, &models.ScheduledPost{ID: "p1"})

	f.d.Tick(context.Background())

	post := f.get(t, "p1")
	assert.Equal(t, models.PostStatusScheduled, post.Status, "bounced back through failed into scheduled")
	assert.Equal(t, 1, post.RetryCount)
	assert.Equal(t, f.clock.Now().Add(time.Minute), post.ScheduledFor, "first backoff step")
	assert.Empty(t, post.ErrorCode, "attempt detail lives in publish history")

	// Not due yet.
	f.clock.Advance(30 * time.Second)
	f.d.Tick(context.Background())
	assert.Equal(t, 1, f.pub.callCount())

	// Due after the backoff elapses; the second attempt succeeds.
	f.clock.Advance(31 * time.Second)
	f.d.Tick(context.Background())

	post = f.get(t, "p1")
	assert.Equal(t, models.PostStatusPublished, post.Status)
	assert.Equal(t, 1, post.RetryCount, "count reflects attempts consumed")

	records, err := f.history.ListByPostID(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.False(t, records[0].Success)
	assert.Equal(t, publish.ErrRateLimited.String(), records[0].ErrorCode)
	assert.True(t, records[1].Success)
}

func TestDispatchMediaUploadFailureRetries(t *testing.T) {
	f := newFixture(t, quota.Limits{})
	f.pub.results = []publish.Result{
		publish.FailureResult(publish.ErrMediaUploadFailed, "push image bytes: status 500"),
		publish.SuccessResult("plat-3", "https://platform.example/plat-3"),
	}
	f.seed(t, &models.ScheduledPost{ID: "p1", ImageURL: "https://cdn.example.com/a.jpg"})

	f.d.Tick(context.Background())
	assert.Equal(t, models.PostStatusScheduled, f.get(t, "p1").Status)

	f.clock.Advance(2 * time.Minute)
	f.d.Tick(context.Background())
	assert.Equal(t, models.PostStatusPublished, f.get(t, "p1").Status)
	assert.Equal(t, 2, f.pub.callCount(), "whole upload sequence re-runs")
}

func TestDispatchRetriesConvergeOnCeiling(t *testing.T) {
	f := newFixture(t, quota.Limits{})
	f.pub.results = []publish.Result{publish.FailureResult(publish.ErrPlatformError, "upstream 500")}
	f.seed(t, &models.ScheduledPost{ID: "p1"})

	for i := 0; i < 10; i++ {
		f.d.Tick(context.Background())
		f.clock.Advance(time.Hour)
	}

	post := f.get(t, "p1")
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.Equal(t, 3, post.RetryCount)
	// Initial attempt plus three retries, then terminal.
	assert.Equal(t, 4, f.pub.callCount())
}

func TestDispatchQuotaGateDenies(t *testing.T) {
	f := newFixture(t, quota.Limits{PerMinute: 1})
	require.NoError(t, f.gate.Record(context.Background(), 1))
	f.seed(t, &models.ScheduledPost{ID: "p1"})

	f.d.Tick(context.Background())

	post := f.get(t, "p1")
	assert.Equal(t, models.PostStatusScheduled, post.Status, "denied attempt retries like a platform 429")
	assert.Equal(t, 1, post.RetryCount)
	assert.Equal(t, 0, f.pub.callCount(), "platform never called")

	usage, err := f.gate.Usage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Minute, "gated attempt consumes no budget")

	records, err := f.history.ListByPostID(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, publish.ErrRateLimited.String(), records[0].ErrorCode)
}

func TestDispatchMissingConnection(t *testing.T) {
	f := newFixture(t, quota.Limits{})
	f.seed(t, &models.ScheduledPost{ID: "p1", ConnectionID: 404})

	f.d.Tick(context.Background())

	post := f.get(t, "p1")
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.Equal(t, publish.ErrAccountDisconnected.String(), post.ErrorCode)
	assert.Equal(t, 0, f.pub.callCount())
}

func TestDispatchPanicDowngradedToRetryable(t *testing.T) {
	f := newFixture(t, quota.Limits{})
	f.pub.panicOn = true
	f.seed(t, &models.ScheduledPost{ID: "p1"})

	f.d.Tick(context.Background())

	post := f.get(t, "p1")
	assert.Equal(t, models.PostStatusScheduled, post.Status)
	assert.Equal(t, 1, post.RetryCount)
}

func TestDispatchCeilingGuard(t *testing.T) {
	f := newFixture(t, quota.Limits{})
	f.seed(t, &models.ScheduledPost{ID: "p1", RetryCount: 4})

	f.d.Tick(context.Background())

	post := f.get(t, "p1")
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.Equal(t, 0, f.pub.callCount(), "no attempt past the ceiling")
}

func TestDispatchFinalGrantedRetryRuns(t *testing.T) {
	f := newFixture(t, quota.Limits{})
	f.pub.results = []publish.Result{publish.FailureResult(publish.ErrPlatformError, "upstream 500")}
	f.seed(t, &models.ScheduledPost{ID: "p1", RetryCount: 3})

	f.d.Tick(context.Background())

	post := f.get(t, "p1")
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.Equal(t, 3, post.RetryCount)
	assert.Equal(t, 1, f.pub.callCount(), "retry count at the ceiling is the last granted attempt")
}

func TestDispatchByID(t *testing.T) {
	f := newFixture(t, quota.Limits{})
	f.seed(t, &models.ScheduledPost{ID: "due"})
	f.seed(t, &models.ScheduledPost{ID: "future", ScheduledFor: f.clock.Now().Add(time.Hour)})
	f.seed(t, &models.ScheduledPost{ID: "gone", Status: models.PostStatusCancelled})

	ctx := context.Background()
	require.NoError(t, f.d.DispatchByID(ctx, "due"))
	require.NoError(t, f.d.DispatchByID(ctx, "future"))
	require.NoError(t, f.d.DispatchByID(ctx, "gone"))
	require.NoError(t, f.d.DispatchByID(ctx, "missing"))

	assert.Equal(t, models.PostStatusPublished, f.get(t, "due").Status)
	assert.Equal(t, models.PostStatusScheduled, f.get(t, "future").Status)
	assert.Equal(t, models.PostStatusCancelled, f.get(t, "gone").Status)
	assert.Equal(t, 1, f.pub.callCount())
}
