// Package threads provides a client for the Threads Graph API content
// publishing endpoints. It supports creating and publishing text posts,
// single-media posts, and carousels (up to 20 items).
//
// The client requires a long-lived Threads access token and numeric user ID.
//
// Threads publishing is a multi-step process:
//  1. Create media containers (one per item, uploaded via public URL)
//  2. For carousels: create a carousel container referencing child containers
//  3. Poll container status until server-side processing completes
//  4. Publish the container
//
// The client also exposes the publishing-quota query, the repost endpoint,
// and the geo-gating eligibility query used by the pipeline.
package threads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the Threads Graph API base URL.
	DefaultBaseURL = "https://graph.threads.net/v1.0"

	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 30 * time.Second

	// MaxCarouselItems is the Threads carousel size limit.
	MaxCarouselItems = 20

	// MaxTextLength is the Threads per-post text limit.
	MaxTextLength = 500

	// defaultPollInterval is how long Threads recommends waiting before
	// publishing a freshly created container.
	defaultPollInterval = 35 * time.Second

	// defaultPollTimeout bounds the container status poll loop.
	defaultPollTimeout = 5 * time.Minute
)

// Container processing statuses reported by GET /{container-id}.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusFinished   = "FINISHED"
	StatusError      = "ERROR"
	StatusExpired    = "EXPIRED"
	StatusPublished  = "PUBLISHED"
)

// Reply-control values accepted by the API.
const (
	ReplyEveryone         = "everyone"
	ReplyAccountsFollowed = "accounts_you_follow"
	ReplyMentionedOnly    = "mentioned_only"
)

// Client provides methods for publishing to Threads via the Graph API.
type Client struct {
	httpClient  *http.Client
	accessToken string
	userID      string
	baseURL     string
}

// NewClient creates a Threads API client for the given long-lived access
// token and numeric user ID.
func NewClient(accessToken, userID string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		accessToken: accessToken,
		userID:      userID,
		baseURL:     DefaultBaseURL,
	}
}

// NewClientWithBaseURL is like NewClient but targets a custom API base URL.
// Used by tests and by callers pinning a different Graph API version.
func NewClientWithBaseURL(accessToken, userID, baseURL string) *Client {
	c := NewClient(accessToken, userID)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// --- API response types ---

// apiResponse is the generic Threads Graph API response.
type apiResponse struct {
	ID    string    `json:"id"`
	Error *APIError `json:"error,omitempty"`
}

// APIError is the structured error object returned by the Graph API.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode,omitempty"`
	FBTraceID string `json:"fbtrace_id,omitempty"`

	// RawBody is the full response body the error was parsed from.
	RawBody string `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Threads API error: %s (type: %s, code: %d)", e.Message, e.Type, e.Code)
}

// IsAuthError reports whether the error indicates a rejected access token.
func (e *APIError) IsAuthError() bool {
	return e.Type == "OAuthException" || e.Code == 190
}

// containerStatusResponse is the response from GET /{container_id}?fields=status,error_message.
type containerStatusResponse struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"` // IN_PROGRESS, FINISHED, ERROR, EXPIRED, PUBLISHED
	ErrorMessage string    `json:"error_message,omitempty"`
	Error        *APIError `json:"error,omitempty"`
}

// ContainerOptions carries the optional fields accepted by container creation.
// Zero values are omitted from the request.
type ContainerOptions struct {
	ReplyTo        string   // reply_to_id: post this container as a reply
	ReplyControl   string   // who may reply: everyone, accounts_you_follow, mentioned_only
	QuotePostID    string   // quote_post_id
	LinkAttachment string   // link_attachment, text-only posts
	CountryCodes   []string // allowlisted_country_codes for geo gating
	AltText        string   // alt_text for a single media item
}

func (o ContainerOptions) apply(params url.Values) {
	if o.ReplyTo != "" {
		params.Set("reply_to_id", o.ReplyTo)
	}
	if o.ReplyControl != "" {
		params.Set("reply_control", o.ReplyControl)
	}
	if o.QuotePostID != "" {
		params.Set("quote_post_id", o.QuotePostID)
	}
	if o.LinkAttachment != "" {
		params.Set("link_attachment", o.LinkAttachment)
	}
	if len(o.CountryCodes) > 0 {
		params.Set("allowlisted_country_codes", strings.Join(o.CountryCodes, ","))
	}
	if o.AltText != "" {
		params.Set("alt_text", o.AltText)
	}
}

// --- Container creation ---

// CreateTextContainer creates a text-only media container.
func (c *Client) CreateTextContainer(ctx context.Context, text string, opts ContainerOptions) (string, error) {
	params := url.Values{
		"media_type":   {"TEXT"},
		"text":         {text},
		"access_token": {c.accessToken},
	}
	opts.apply(params)

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/threads", c.userID), params)
	if err != nil {
		return "", fmt.Errorf("create text container: %w", err)
	}
	log.Info().Str("containerId", resp.ID).Str("type", "text").Msg("Text container created")
	return resp.ID, nil
}

// CreateImageContainer creates an image media container.
// imageURL must be a publicly accessible URL.
// If isCarouselItem is true, the container is created as a carousel child item
// and text is ignored by the API.
func (c *Client) CreateImageContainer(ctx context.Context, imageURL, text string, isCarouselItem bool, opts ContainerOptions) (string, error) {
	log.Debug().Bool("isCarouselItem", isCarouselItem).Msg("Creating image container")
	params := url.Values{
		"media_type":   {"IMAGE"},
		"image_url":    {imageURL},
		"access_token": {c.accessToken},
	}
	if isCarouselItem {
		params.Set("is_carousel_item", "true")
	} else if text != "" {
		params.Set("text", text)
	}
	opts.apply(params)

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/threads", c.userID), params)
	if err != nil {
		return "", fmt.Errorf("create image container: %w", err)
	}
	log.Info().Str("containerId", resp.ID).Str("type", "image").Msg("Image container created")
	return resp.ID, nil
}

// CreateVideoContainer creates a video media container.
// videoURL must be a publicly accessible URL.
func (c *Client) CreateVideoContainer(ctx context.Context, videoURL, text string, isCarouselItem bool, opts ContainerOptions) (string, error) {
	params := url.Values{
		"media_type":   {"VIDEO"},
		"video_url":    {videoURL},
		"access_token": {c.accessToken},
	}
	if isCarouselItem {
		params.Set("is_carousel_item", "true")
	} else if text != "" {
		params.Set("text", text)
	}
	opts.apply(params)

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/threads", c.userID), params)
	if err != nil {
		return "", fmt.Errorf("create video container: %w", err)
	}
	log.Info().Str("containerId", resp.ID).Str("type", "video").Msg("Video container created")
	return resp.ID, nil
}

// CreateCarouselContainer creates a carousel container from child container IDs.
// text is the post text rendered above the carousel.
func (c *Client) CreateCarouselContainer(ctx context.Context, children []string, text string, opts ContainerOptions) (string, error) {
	if len(children) < 2 {
		return "", fmt.Errorf("carousel requires at least 2 items, got %d", len(children))
	}
	if len(children) > MaxCarouselItems {
		return "", fmt.Errorf("carousel supports at most %d items, got %d", MaxCarouselItems, len(children))
	}

	params := url.Values{
		"media_type":   {"CAROUSEL"},
		"children":     {strings.Join(children, ",")},
		"access_token": {c.accessToken},
	}
	if text != "" {
		params.Set("text", text)
	}
	opts.apply(params)

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/threads", c.userID), params)
	if err != nil {
		return "", fmt.Errorf("create carousel container: %w", err)
	}
	return resp.ID, nil
}

// --- Publishing ---

// Publish publishes a media container (carousel or single).
// Returns the Threads media ID of the published post.
func (c *Client) Publish(ctx context.Context, containerID string) (string, error) {
	log.Debug().Str("containerId", containerID).Msg("Publishing container")
	params := url.Values{
		"creation_id":  {containerID},
		"access_token": {c.accessToken},
	}

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/threads_publish", c.userID), params)
	if err != nil {
		return "", fmt.Errorf("publish container %s: %w", containerID, err)
	}
	log.Info().Str("containerId", containerID).Str("postId", resp.ID).Msg("Container published successfully")
	return resp.ID, nil
}

// Repost reposts an existing Threads post.
// Returns the ID of the repost.
func (c *Client) Repost(ctx context.Context, mediaID string) (string, error) {
	params := url.Values{
		"access_token": {c.accessToken},
	}

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/repost", mediaID), params)
	if err != nil {
		return "", fmt.Errorf("repost %s: %w", mediaID, err)
	}
	log.Info().Str("mediaId", mediaID).Str("repostId", resp.ID).Msg("Post reposted")
	return resp.ID, nil
}

// --- Status polling ---

// ContainerStatus returns the processing status of a media container along
// with the server-side error message, if any.
func (c *Client) ContainerStatus(ctx context.Context, containerID string) (status, errorMessage string, err error) {
	endpoint := fmt.Sprintf("/%s?fields=status,error_message&access_token=%s",
		containerID, url.QueryEscape(c.accessToken))

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return "", "", fmt.Errorf("container status request: %w", err)
	}

	var resp containerStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", fmt.Errorf("parse response: %w", err)
	}

	if resp.Error != nil {
		resp.Error.RawBody = string(body)
		return "", "", resp.Error
	}

	return resp.Status, resp.ErrorMessage, nil
}

// WaitForContainer polls container status on a fixed interval until FINISHED,
// ERROR, or EXPIRED. A non-positive interval or timeout falls back to the
// Threads-recommended defaults (35s interval, 5m timeout).
func (c *Client) WaitForContainer(ctx context.Context, containerID string, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	deadline := time.Now().Add(timeout)

	for {
		status, errMsg, err := c.ContainerStatus(ctx, containerID)
		if err != nil {
			return fmt.Errorf("container %s: %w", containerID, err)
		}

		switch status {
		case StatusFinished, StatusPublished:
			log.Debug().Str("containerId", containerID).Msg("Container processing finished")
			return nil
		case StatusError:
			return &ProcessingError{ContainerID: containerID, Message: errMsg}
		case StatusExpired:
			return &ProcessingError{ContainerID: containerID, Message: "container expired before publish"}
		case StatusInProgress:
			log.Debug().Str("containerId", containerID).Dur("nextPoll", interval).Msg("Container still processing")
		default:
			log.Warn().Str("containerId", containerID).Str("status", status).Msg("Unknown container status")
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("container %s: timed out after %s waiting for processing", containerID, timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// ProcessingError reports that Threads failed to process a container
// server-side.
type ProcessingError struct {
	ContainerID string
	Message     string
}

func (e *ProcessingError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("container %s: processing failed on Threads' side", e.ContainerID)
	}
	return fmt.Sprintf("container %s: %s", e.ContainerID, e.Message)
}

// --- Quota ---

// QuotaSnapshot is the publishing-limit usage reported by the API. Post and
// reply budgets are tracked independently.
type QuotaSnapshot struct {
	PostsUsed     int
	PostsTotal    int
	RepliesUsed   int
	RepliesTotal  int
	QuotaDuration time.Duration
}

type publishingLimitResponse struct {
	Data []struct {
		QuotaUsage int `json:"quota_usage"`
		Config     struct {
			QuotaTotal    int `json:"quota_total"`
			QuotaDuration int `json:"quota_duration"`
		} `json:"config"`
		ReplyQuotaUsage int `json:"reply_quota_usage"`
		ReplyConfig     struct {
			QuotaTotal    int `json:"quota_total"`
			QuotaDuration int `json:"quota_duration"`
		} `json:"reply_config"`
	} `json:"data"`
	Error *APIError `json:"error,omitempty"`
}

// PublishingLimit fetches the current daily publishing quota usage for the
// account, for both original posts and replies.
func (c *Client) PublishingLimit(ctx context.Context) (*QuotaSnapshot, error) {
	endpoint := fmt.Sprintf("/%s/threads_publishing_limit?fields=quota_usage,config,reply_quota_usage,reply_config&access_token=%s",
		c.userID, url.QueryEscape(c.accessToken))

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("publishing limit request: %w", err)
	}

	var resp publishingLimitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != nil {
		resp.Error.RawBody = string(body)
		return nil, resp.Error
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("publishing limit: empty response (body: %s)", truncate(string(body), 200))
	}

	d := resp.Data[0]
	snapshot := &QuotaSnapshot{
		PostsUsed:     d.QuotaUsage,
		PostsTotal:    d.Config.QuotaTotal,
		RepliesUsed:   d.ReplyQuotaUsage,
		RepliesTotal:  d.ReplyConfig.QuotaTotal,
		QuotaDuration: time.Duration(d.Config.QuotaDuration) * time.Second,
	}
	log.Debug().
		Int("postsUsed", snapshot.PostsUsed).
		Int("postsTotal", snapshot.PostsTotal).
		Int("repliesUsed", snapshot.RepliesUsed).
		Int("repliesTotal", snapshot.RepliesTotal).
		Msg("Publishing limit fetched")
	return snapshot, nil
}

// --- Geo gating ---

type geoEligibilityResponse struct {
	ID       string    `json:"id"`
	Eligible bool      `json:"is_eligible_for_geo_gating"`
	Error    *APIError `json:"error,omitempty"`
}

// GeoGatingEligible reports whether the account may publish geo-gated content.
func (c *Client) GeoGatingEligible(ctx context.Context) (bool, error) {
	endpoint := fmt.Sprintf("/%s?fields=is_eligible_for_geo_gating&access_token=%s",
		c.userID, url.QueryEscape(c.accessToken))

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return false, fmt.Errorf("geo gating eligibility request: %w", err)
	}

	var resp geoEligibilityResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != nil {
		resp.Error.RawBody = string(body)
		return false, resp.Error
	}
	return resp.Eligible, nil
}

// --- Internal helpers ---

// postForm sends a POST request with form-encoded parameters to the Threads API.
func (c *Client) postForm(ctx context.Context, endpoint string, params url.Values) (*apiResponse, error) {
	startTime := time.Now()

	// Log form parameter names (not values) at Trace level
	paramNames := make([]string, 0, len(params))
	for key := range params {
		paramNames = append(paramNames, key)
	}
	log.Trace().Strs("formParams", paramNames).Msg("Form parameters")

	log.Debug().Str("method", http.MethodPost).Str("path", endpoint).Msg("Threads API request")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("Threads API response")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Threads API response")

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(body), 200))
	}

	if resp.Error != nil {
		resp.Error.RawBody = string(body)
		log.Error().Str("errorMessage", resp.Error.Message).Str("errorType", resp.Error.Type).Int("errorCode", resp.Error.Code).Msg("Threads API error")
		return nil, resp.Error
	}

	if resp.ID == "" {
		return nil, fmt.Errorf("unexpected response: no ID returned (body: %s)", truncate(string(body), 200))
	}

	return &resp, nil
}

// get issues a GET request against the API and returns the raw body.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
