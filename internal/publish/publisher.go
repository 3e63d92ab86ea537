package publish

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Request carries everything an adapter needs for one dispatch attempt.
type Request struct {
	AccessToken    string
	PlatformUserID string
	AccountType    string
	Caption        string
	ImageURL       string
	Hashtags       []string
}

// Result is the classified outcome of one attempt. Success and the error
// fields are mutually exclusive.
type Result struct {
	Success         bool
	PlatformPostID  string
	PlatformPostURL string
	ErrorCode       ErrorCode
	ErrorMessage    string
	Retryable       bool
}

// SuccessResult builds a success outcome.
func SuccessResult(postID, postURL string) Result {
	return Result{Success: true, PlatformPostID: postID, PlatformPostURL: postURL}
}

// FailureResult builds a classified failure outcome. Retryability is
// derived from the code, never set by adapters directly.
func FailureResult(code ErrorCode, message string) Result {
	return Result{
		Success:      false,
		ErrorCode:    code,
		ErrorMessage: message,
		Retryable:    code.Retryable(),
	}
}

// Publisher is the per-platform capability. Publish never returns a Go
// error for expected platform failures; those come back classified in the
// Result. Implementations must honor ctx cancellation.
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, req Request) Result
}

// Registry maps platform identifiers to adapters. It is populated once at
// startup; adding a platform means registering one adapter.
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
}

func NewRegistry() *Registry {
	return &Registry{publishers: make(map[string]Publisher)}
}

func (r *Registry) Register(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[p.Platform()] = p
}

func (r *Registry) Resolve(platform string) (Publisher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publishers[platform]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for platform %q", platform)
	}
	return p, nil
}

// Platforms lists registered platform identifiers, sorted.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
