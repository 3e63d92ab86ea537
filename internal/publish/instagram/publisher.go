package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/postpilothq/postpilot/internal/publish"
)

const (
	defaultAPIBase = "https://graph.instagram.com/v21.0"
	postURLFormat  = "https://www.instagram.com/p/%s/"
)

// Publisher posts images to Instagram through the Graph API two-step:
// create a media container referencing the hosted image, then publish the
// container. Instagram pulls the image itself, so there is no byte upload.
type Publisher struct {
	apiBase string
	client  *http.Client
}

func NewPublisher() *Publisher {
	return &Publisher{apiBase: defaultAPIBase, client: http.DefaultClient}
}

func NewPublisherWithClient(apiBase string, client *http.Client) *Publisher {
	return &Publisher{apiBase: apiBase, client: client}
}

func (p *Publisher) Platform() string { return "instagram" }

func (p *Publisher) Publish(ctx context.Context, req publish.Request) publish.Result {
	if req.ImageURL == "" {
		// Instagram has no text-only feed post.
		return publish.FailureResult(publish.ErrContentPolicyViolation, "instagram posts require an image")
	}

	containerID, result := p.createContainer(ctx, req)
	if result != nil {
		return *result
	}

	return p.publishContainer(ctx, req, containerID)
}

func caption(text string, hashtags []string) string {
	if len(hashtags) == 0 {
		return text
	}
	tags := make([]string, 0, len(hashtags))
	for _, tag := range hashtags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag != "" {
			tags = append(tags, "#"+tag)
		}
	}
	if len(tags) == 0 {
		return text
	}
	return text + "\n\n" + strings.Join(tags, " ")
}

func (p *Publisher) createContainer(ctx context.Context, req publish.Request) (string, *publish.Result) {
	payload := map[string]any{
		"image_url":    req.ImageURL,
		"caption":      caption(req.Caption, req.Hashtags),
		"access_token": req.AccessToken,
	}

	id, failure := p.post(ctx, fmt.Sprintf("%s/%s/media", p.apiBase, req.PlatformUserID), payload, true)
	if failure != nil {
		return "", failure
	}
	return id, nil
}

func (p *Publisher) publishContainer(ctx context.Context, req publish.Request, containerID string) publish.Result {
	payload := map[string]any{
		"creation_id":  containerID,
		"access_token": req.AccessToken,
	}

	id, failure := p.post(ctx, fmt.Sprintf("%s/%s/media_publish", p.apiBase, req.PlatformUserID), payload, false)
	if failure != nil {
		return *failure
	}
	return publish.SuccessResult(id, fmt.Sprintf(postURLFormat, id))
}

// post sends one Graph API call and returns the created resource id.
// Container-stage failures classify as media_upload_failed so a partial
// sequence retries from the beginning.
func (p *Publisher) post(ctx context.Context, url string, payload map[string]any, containerStage bool) (string, *publish.Result) {
	body, err := json.Marshal(payload)
	if err != nil {
		failure := publish.FailureResult(publish.ErrUnknown, err.Error())
		return "", &failure
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		failure := publish.FailureResult(publish.ErrUnknown, err.Error())
		return "", &failure
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		code := publish.ClassifyTransport(err)
		if containerStage && code == publish.ErrUnknown {
			code = publish.ErrMediaUploadFailed
		}
		failure := publish.FailureResult(code, err.Error())
		return "", &failure
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		code := publish.ClassifyStatus(resp.StatusCode, string(respBody))
		if containerStage && code == publish.ErrUnknown {
			code = publish.ErrMediaUploadFailed
		}
		slog.Info("instagram call rejected", "status", resp.StatusCode, "code", code.String())
		failure := publish.FailureResult(code, fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(respBody))))
		return "", &failure
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		failure := publish.FailureResult(publish.ErrUnknown, fmt.Sprintf("parse response: %v", err))
		return "", &failure
	}
	if result.ID == "" {
		failure := publish.FailureResult(publish.ErrUnknown, "no media id returned")
		return "", &failure
	}

	return result.ID, nil
}

func truncate(s string) string {
	if len(s) > 300 {
		return s[:300]
	}
	return s
}
