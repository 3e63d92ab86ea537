package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/publish"
)

const (
	defaultAPIBase = "https://api.linkedin.com"
	apiVersion     = "202405"
	postURLFormat  = "https://www.linkedin.com/feed/update/%s/"
)

// Publisher posts to LinkedIn. Text posts are a single creation request;
// image posts go through the register-upload, push-bytes, create-post
// sequence. All three upload steps count as one logical attempt and are
// never resumed part-way.
type Publisher struct {
	apiBase string
	client  *http.Client
}

func NewPublisher() *Publisher {
	return &Publisher{apiBase: defaultAPIBase, client: http.DefaultClient}
}

// NewPublisherWithClient overrides the endpoint and transport, used by
// tests against a local fake.
func NewPublisherWithClient(apiBase string, client *http.Client) *Publisher {
	return &Publisher{apiBase: apiBase, client: client}
}

func (p *Publisher) Platform() string { return "linkedin" }

func (p *Publisher) Publish(ctx context.Context, req publish.Request) publish.Result {
	author := authorURN(req.AccountType, req.PlatformUserID)

	var mediaURN string
	if req.ImageURL != "" {
		urn, result := p.uploadImage(ctx, req, author)
		if result != nil {
			return *result
		}
		mediaURN = urn
	}

	return p.createPost(ctx, req, author, mediaURN)
}

// authorURN resolves the actor identity namespace from the account type.
func authorURN(accountType, platformUserID string) string {
	if accountType == models.AccountTypeOrganization {
		return fmt.Sprintf("urn:li:organization:%s", platformUserID)
	}
	return fmt.Sprintf("urn:li:person:%s", platformUserID)
}

func commentary(caption string, hashtags []string) string {
	if len(hashtags) == 0 {
		return caption
	}
	tags := make([]string, 0, len(hashtags))
	for _, tag := range hashtags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag != "" {
			tags = append(tags, "#"+tag)
		}
	}
	if len(tags) == 0 {
		return caption
	}
	return caption + "\n\n" + strings.Join(tags, " ")
}

type initializeUploadRequest struct {
	InitializeUploadRequest struct {
		Owner string `json:"owner"`
	} `json:"initializeUploadRequest"`
}

type initializeUploadResponse struct {
	Value struct {
		UploadURL string `json:"uploadUrl"`
		Image     string `json:"image"`
	} `json:"value"`
}

// uploadImage runs the two-phase media flow: register an upload slot,
// fetch the source bytes, push them to the returned target. Any step
// failing classifies as media_upload_failed; the caller retries the whole
// sequence from the start.
func (p *Publisher) uploadImage(ctx context.Context, req publish.Request, author string) (string, *publish.Result) {
	var initReq initializeUploadRequest
	initReq.InitializeUploadRequest.Owner = author

	body, err := json.Marshal(initReq)
	if err != nil {
		result := publish.FailureResult(publish.ErrUnknown, err.Error())
		return "", &result
	}

	initURL := p.apiBase + "/rest/images?action=initializeUpload"
	resp, err := p.doJSON(ctx, http.MethodPost, initURL, req.AccessToken, body)
	if err != nil {
		result := publish.FailureResult(publish.ErrMediaUploadFailed, fmt.Sprintf("initialize upload: %v", err))
		return "", &result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		slog.Info("linkedin upload init rejected", "status", resp.StatusCode)
		result := publish.FailureResult(publish.ErrMediaUploadFailed,
			fmt.Sprintf("initialize upload: status %d: %s", resp.StatusCode, truncate(string(respBody))))
		return "", &result
	}

	var initResp initializeUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&initResp); err != nil {
		result := publish.FailureResult(publish.ErrMediaUploadFailed, fmt.Sprintf("decode upload init response: %v", err))
		return "", &result
	}
	if initResp.Value.UploadURL == "" || initResp.Value.Image == "" {
		result := publish.FailureResult(publish.ErrMediaUploadFailed, "upload init response missing upload target")
		return "", &result
	}

	imageBytes, err := p.fetchImage(ctx, req.ImageURL)
	if err != nil {
		result := publish.FailureResult(publish.ErrMediaUploadFailed, fmt.Sprintf("fetch source image: %v", err))
		return "", &result
	}

	if err := p.pushBytes(ctx, initResp.Value.UploadURL, req.AccessToken, imageBytes); err != nil {
		result := publish.FailureResult(publish.ErrMediaUploadFailed, fmt.Sprintf("push image bytes: %v", err))
		return "", &result
	}

	return initResp.Value.Image, nil
}

func (p *Publisher) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching image", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (p *Publisher) pushBytes(ctx context.Context, uploadURL, accessToken string, data []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload target returned status %d", resp.StatusCode)
	}
	return nil
}

type createPostBody struct {
	Author       string       `json:"author"`
	Commentary   string       `json:"commentary"`
	Visibility   string       `json:"visibility"`
	Distribution distribution `json:"distribution"`
	Content      *postContent `json:"content,omitempty"`
}

type distribution struct {
	FeedDistribution string `json:"feedDistribution"`
}

type postContent struct {
	Media mediaRef `json:"media"`
}

type mediaRef struct {
	ID string `json:"id"`
}

func (p *Publisher) createPost(ctx context.Context, req publish.Request, author, mediaURN string) publish.Result {
	postBody := createPostBody{
		Author:       author,
		Commentary:   commentary(req.Caption, req.Hashtags),
		Visibility:   "PUBLIC",
		Distribution: distribution{FeedDistribution: "MAIN_FEED"},
	}
	if mediaURN != "" {
		postBody.Content = &postContent{Media: mediaRef{ID: mediaURN}}
	}

	body, err := json.Marshal(postBody)
	if err != nil {
		return publish.FailureResult(publish.ErrUnknown, err.Error())
	}

	resp, err := p.doJSON(ctx, http.MethodPost, p.apiBase+"/rest/posts", req.AccessToken, body)
	if err != nil {
		return publish.FailureResult(publish.ClassifyTransport(err), err.Error())
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code := publish.ClassifyStatus(resp.StatusCode, string(respBody))
		slog.Info("linkedin post creation rejected", "status", resp.StatusCode, "code", code.String())
		return publish.FailureResult(code,
			fmt.Sprintf("post creation returned status %d: %s", resp.StatusCode, truncate(string(respBody))))
	}

	// LinkedIn returns the created post URN in a response header, not
	// the body.
	postID := resp.Header.Get("x-restli-id")
	if postID == "" {
		return publish.FailureResult(publish.ErrUnknown, "post creation response missing x-restli-id header")
	}

	return publish.SuccessResult(postID, fmt.Sprintf(postURLFormat, postID))
}

func (p *Publisher) doJSON(ctx context.Context, method, url, accessToken string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("LinkedIn-Version", apiVersion)
	httpReq.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	return p.client.Do(httpReq)
}

func truncate(s string) string {
	if len(s) > 300 {
		return s[:300]
	}
	return s
}
