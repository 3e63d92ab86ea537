package instagram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilothq/postpilot/internal/publish"
)

func TestPublishTwoStep(t *testing.T) {
	var containerPayload map[string]any

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/ig-user/media", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&containerPayload))
		json.NewEncoder(w).Encode(map[string]string{"id": "container-1"})
	})
	mux.HandleFunc("/ig-user/media_publish", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "container-1", payload["creation_id"])
		json.NewEncoder(w).Encode(map[string]string{"id": "media-9"})
	})

	p := NewPublisherWithClient(srv.URL, srv.Client())
	res := p.Publish(context.Background(), publish.Request{
		AccessToken:    "tok",
		PlatformUserID: "ig-user",
		Caption:        "sunset",
		Hashtags:       []string{"nofilter"},
		ImageURL:       "https://cdn.example.com/a.jpg",
	})

	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, "media-9", res.PlatformPostID)
	assert.Equal(t, "https://www.instagram.com/p/media-9/", res.PlatformPostURL)

	assert.Equal(t, "https://cdn.example.com/a.jpg", containerPayload["image_url"])
	assert.Equal(t, "sunset\n\n#nofilter", containerPayload["caption"])
}

func TestPublishRequiresImage(t *testing.T) {
	p := NewPublisher()
	res := p.Publish(context.Background(), publish.Request{Caption: "text only"})

	require.False(t, res.Success)
	assert.Equal(t, publish.ErrContentPolicyViolation, res.ErrorCode)
	assert.False(t, res.Retryable)
}

func TestPublishContainerStageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"invalid image url"}}`)
	}))
	t.Cleanup(srv.Close)

	p := NewPublisherWithClient(srv.URL, srv.Client())
	res := p.Publish(context.Background(), publish.Request{
		AccessToken:    "tok",
		PlatformUserID: "u",
		ImageURL:       "https://cdn.example.com/a.jpg",
	})

	// Unclassified container-stage failures retry the whole sequence.
	require.False(t, res.Success)
	assert.Equal(t, publish.ErrMediaUploadFailed, res.ErrorCode)
	assert.True(t, res.Retryable)
}

func TestPublishStageClassification(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/u/media", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "c1"})
	})
	mux.HandleFunc("/u/media_publish", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	p := NewPublisherWithClient(srv.URL, srv.Client())
	res := p.Publish(context.Background(), publish.Request{
		AccessToken:    "tok",
		PlatformUserID: "u",
		ImageURL:       "https://cdn.example.com/a.jpg",
	})

	require.False(t, res.Success)
	assert.Equal(t, publish.ErrTokenExpired, res.ErrorCode)
}
