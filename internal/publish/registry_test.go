package publish

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	platform string
}

func (s *stubPublisher) Platform() string { return s.platform }

func (s *stubPublisher) Publish(ctx context.Context, req Request) Result {
	return Result{Success: true}
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubPublisher{platform: "linkedin"})
	r.Register(&stubPublisher{platform: "instagram"})

	p, err := r.Resolve("linkedin")
	require.NoError(t, err)
	assert.Equal(t, "linkedin", p.Platform())

	_, err = r.Resolve("myspace")
	assert.Error(t, err)

	assert.Equal(t, []string{"instagram", "linkedin"}, r.Platforms())
}
