package hosting

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const githubAPIBaseURL = "https://api.github.com"

// GitHubHost hosts payloads as files in a GitHub repository via the
// contents API. The raw download URL GitHub returns is publicly fetchable,
// which makes a throwaway repository a serviceable media staging area.
type GitHubHost struct {
	httpClient *http.Client
	baseURL    string
	token      string
	owner      string
	repo       string
	dir        string
	timeout    time.Duration
}

// GitHubConfig configures a GitHubHost.
type GitHubConfig struct {
	Token   string // personal access token with contents read/write
	Owner   string
	Repo    string
	Dir     string        // directory inside the repo, default "threadspipe-uploads"
	Timeout time.Duration // per-upload bound, default 60s
}

// NewGitHubHost creates a GitHub-backed temporary host.
func NewGitHubHost(cfg GitHubConfig) (*GitHubHost, error) {
	if cfg.Token == "" || cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github hosting requires token, owner, and repo")
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "threadspipe-uploads"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}
	return &GitHubHost{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    githubAPIBaseURL,
		token:      cfg.Token,
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		dir:        dir,
		timeout:    timeout,
	}, nil
}

type githubContentRequest struct {
	Message string `json:"message"`
	Content string `json:"content,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

type githubContentResponse struct {
	Content *struct {
		Path        string `json:"path"`
		SHA         string `json:"sha"`
		DownloadURL string `json:"download_url"`
	} `json:"content"`
	Message string `json:"message"` // populated on error responses
}

// Upload writes data to a uniquely named file in the repository and returns
// its raw download URL plus the blob SHA needed for deletion.
func (h *GitHubHost) Upload(ctx context.Context, data []byte, filenameHint, contentType string) (*UploadedFile, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	filename := uuid.NewString()
	if ext := path.Ext(filenameHint); ext != "" {
		filename += ext
	}
	filePath := path.Join(h.dir, filename)

	log.Debug().
		Str("path", filePath).
		Str("contentType", contentType).
		Int("sizeBytes", len(data)).
		Msg("Uploading payload to GitHub")

	reqBody := githubContentRequest{
		Message: fmt.Sprintf("temporary media upload %s", filename),
		Content: base64.StdEncoding.EncodeToString(data),
	}
	resp, err := h.do(ctx, http.MethodPut, filePath, reqBody)
	if err != nil {
		return nil, fmt.Errorf("github upload: %w", err)
	}
	if resp.Content == nil || resp.Content.DownloadURL == "" {
		return nil, fmt.Errorf("github upload: no download URL in response")
	}

	log.Info().Str("path", filePath).Msg("Payload uploaded to GitHub")
	return &UploadedFile{
		URL: resp.Content.DownloadURL,
		Key: filePath,
		SHA: resp.Content.SHA,
	}, nil
}

// Delete removes a previously uploaded file from the repository.
func (h *GitHubHost) Delete(ctx context.Context, f *UploadedFile) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	reqBody := githubContentRequest{
		Message: fmt.Sprintf("remove temporary media upload %s", path.Base(f.Key)),
		SHA:     f.SHA,
	}
	if _, err := h.do(ctx, http.MethodDelete, f.Key, reqBody); err != nil {
		return fmt.Errorf("github delete %s: %w", f.Key, err)
	}
	log.Debug().Str("path", f.Key).Msg("Hosted payload deleted from GitHub")
	return nil
}

func (h *GitHubHost) do(ctx context.Context, method, filePath string, body githubContentRequest) (*githubContentResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", h.baseURL, h.owner, h.repo, filePath)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp githubContentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if httpResp.StatusCode >= 300 {
		msg := resp.Message
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		return nil, fmt.Errorf("github API status %d: %s", httpResp.StatusCode, msg)
	}

	return &resp, nil
}
