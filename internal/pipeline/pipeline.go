// Package pipeline orchestrates publishing an arbitrary-length post to
// Threads as a chain of platform-compliant units.
//
// A run proceeds strictly in order: validate the request, gate on the
// publishing quota, resolve and temporarily host media, segment the content
// into units, publish each unit as a reply to the previous one, then clean
// up every temporarily hosted file regardless of outcome.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/docssquirrelhq/threadspipe/internal/hosting"
	"github.com/docssquirrelhq/threadspipe/internal/media"
	"github.com/docssquirrelhq/threadspipe/internal/segment"
	"github.com/docssquirrelhq/threadspipe/internal/threads"
)

// Request is one publish request. Text and Attachments may not both be
// empty.
type Request struct {
	Text        string
	Attachments []media.Attachment

	// Captions are index-aligned alt texts for Attachments; shorter
	// lists are padded with no caption.
	Captions []string

	// ReplyTo posts the chain as a reply to an existing post, and
	// selects the reply quota budget.
	ReplyTo string

	// WhoCanReply overrides the configured reply restriction for this
	// request.
	WhoCanReply string `validate:"omitempty,oneof=everyone accounts_you_follow mentioned_only"`

	// QuotePostID quotes an existing post.
	QuotePostID string

	// LinkAttachment attaches a link; only valid on media-free units.
	LinkAttachment string `validate:"omitempty,url"`

	// Tags is the explicit hashtag list. When empty and hashtag handling
	// is enabled, trailing #tags are extracted from Text.
	Tags []string
}

// Result is the outcome of a successful run: the published post IDs in
// chain order.
type Result struct {
	PostIDs []string
}

// Pipeline publishes requests against the Threads API. Safe for sequential
// reuse; concurrent runs should use separate instances since configuration
// is per-instance.
type Pipeline struct {
	cfg      Config
	client   *threads.Client
	host     hosting.Host
	validate *validator.Validate
}

// New creates a pipeline from the given configuration and temporary
// hosting backend. host may be nil when all media is supplied by URL.
func New(cfg Config, host hosting.Host) (*Pipeline, error) {
	if cfg.AccessToken == "" || cfg.UserID == "" {
		return nil, &ValidationError{Reason: "access token and user ID are required"}
	}
	cfg.normalize()

	client := threads.NewClient(cfg.AccessToken, cfg.UserID)
	if cfg.BaseURL != "" {
		client = threads.NewClientWithBaseURL(cfg.AccessToken, cfg.UserID, cfg.BaseURL)
	}

	return &Pipeline{
		cfg:      cfg,
		client:   client,
		host:     host,
		validate: validator.New(),
	}, nil
}

// Reconfigure replaces the pipeline configuration wholesale. Not safe to
// call during a run.
func (p *Pipeline) Reconfigure(cfg Config) error {
	if cfg.AccessToken == "" || cfg.UserID == "" {
		return &ValidationError{Reason: "access token and user ID are required"}
	}
	cfg.normalize()
	p.cfg = cfg
	client := threads.NewClient(cfg.AccessToken, cfg.UserID)
	if cfg.BaseURL != "" {
		client = threads.NewClientWithBaseURL(cfg.AccessToken, cfg.UserID, cfg.BaseURL)
	}
	p.client = client
	return nil
}

// Publish runs the full pipeline for one request. On partial failure the
// returned result carries the IDs of units that were already published.
func (p *Pipeline) Publish(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if err := p.validateRequest(req); err != nil {
		return nil, err
	}

	if p.cfg.CheckRateLimitBeforePost {
		if err := p.gateQuota(ctx, req.ReplyTo != ""); err != nil {
			return nil, err
		}
	}

	refs, uploads, err := p.prepareMedia(ctx, req)
	if err != nil {
		// prepareMedia has already cleaned up any partial uploads.
		return nil, err
	}
	defer p.cleanup(ctx, uploads)

	if len(p.cfg.AllowedCountryCodes) > 0 {
		eligible, gerr := p.client.GeoGatingEligible(ctx)
		if gerr != nil {
			return nil, p.mapRemoteError(gerr, -1, "")
		}
		if !eligible {
			return nil, &GeoGatingIneligibleError{}
		}
	}

	units, err := segment.Split(req.Text, req.Tags, refs, segment.Options{
		ChainedPost:           p.cfg.ChainedPost,
		HandleHashtags:        p.cfg.HandleHashtags,
		PersistHashtags:       p.cfg.PersistHashtags,
		PersistQuotedPost:     p.cfg.PersistQuotedPost,
		PersistLinkAttachment: p.cfg.PersistLinkAttachment,
		Link:                  req.LinkAttachment,
		QuoteID:               req.QuotePostID,
	})
	if err != nil {
		return nil, &ValidationError{Reason: err.Error(), cause: err}
	}

	log.Info().Int("units", len(units)).Int("uploads", len(uploads)).Msg("Publishing chain")

	result := &Result{PostIDs: make([]string, 0, len(units))}
	replyTo := req.ReplyTo
	for _, unit := range units {
		postID, err := p.publishUnit(ctx, unit, replyTo, req)
		if err != nil {
			log.Error().Err(err).Int("unit", unit.Index).Int("published", len(result.PostIDs)).Msg("Chain aborted")
			return result, err
		}
		result.PostIDs = append(result.PostIDs, postID)
		replyTo = postID
	}

	log.Info().
		Int("posts", len(result.PostIDs)).
		Dur("duration", time.Since(start)).
		Msg("Chain published")
	return result, nil
}

// Repost reposts an existing Threads post.
func (p *Pipeline) Repost(ctx context.Context, mediaID string) (string, error) {
	id, err := p.client.Repost(ctx, mediaID)
	if err != nil {
		return "", p.mapRemoteError(err, -1, "")
	}
	return id, nil
}

// Quota fetches the current publishing-limit snapshot.
func (p *Pipeline) Quota(ctx context.Context) (*threads.QuotaSnapshot, error) {
	snapshot, err := p.client.PublishingLimit(ctx)
	if err != nil {
		return nil, p.mapRemoteError(err, -1, "")
	}
	return snapshot, nil
}

// --- Validation ---

func (p *Pipeline) validateRequest(req Request) error {
	if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		return &ValidationError{Reason: "request must carry text or at least one attachment"}
	}
	if err := p.validate.Struct(req); err != nil {
		return &ValidationError{Reason: err.Error(), cause: err}
	}
	return nil
}

// --- Quota gate ---

// gateQuota re-fetches the quota snapshot and fails (or blocks, when
// configured) while the selected budget is spent.
func (p *Pipeline) gateQuota(ctx context.Context, isReply bool) error {
	budget := "post"
	if isReply {
		budget = "reply"
	}

	for {
		snapshot, err := p.client.PublishingLimit(ctx)
		if err != nil {
			return p.mapRemoteError(err, -1, "")
		}

		used, total := snapshot.PostsUsed, snapshot.PostsTotal
		if isReply {
			used, total = snapshot.RepliesUsed, snapshot.RepliesTotal
		}
		if used < total {
			log.Debug().Str("budget", budget).Int("used", used).Int("total", total).Msg("Quota gate passed")
			return nil
		}

		if !p.cfg.WaitOnRateLimit {
			return &QuotaExceededError{Budget: budget, Snapshot: *snapshot}
		}

		wait := snapshot.QuotaDuration
		if wait <= 0 {
			wait = time.Hour
		}
		log.Warn().
			Str("budget", budget).
			Int("used", used).
			Int("total", total).
			Dur("wait", wait).
			Msg("Quota exhausted, waiting for the window to reset")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// --- Media preparation ---

// prepareMedia resolves every attachment and uploads binary payloads to the
// temporary host. On upload failure it deletes the uploads that succeeded
// before the failing one and returns a MediaUploadError.
func (p *Pipeline) prepareMedia(ctx context.Context, req Request) ([]segment.MediaRef, []*hosting.UploadedFile, error) {
	resolved, err := media.ResolveAll(req.Attachments)
	if err != nil {
		return nil, nil, &ValidationError{Reason: err.Error(), cause: err}
	}

	refs := make([]segment.MediaRef, 0, len(resolved))
	var uploads []*hosting.UploadedFile

	for i, r := range resolved {
		caption := ""
		if i < len(req.Captions) {
			caption = req.Captions[i]
		}

		if r.IsRemote() {
			refs = append(refs, segment.MediaRef{URL: r.URL, Kind: kindFromURL(r.URL), Caption: caption})
			continue
		}

		if p.host == nil {
			p.cleanup(ctx, uploads)
			return nil, nil, &ValidationError{Reason: "binary attachments require a hosting backend"}
		}

		uploaded, uerr := p.host.Upload(ctx, r.Data, r.FilenameHint, r.ContentType)
		if uerr != nil {
			p.cleanup(ctx, uploads)
			return nil, nil, &MediaUploadError{Index: i, Err: uerr}
		}
		uploads = append(uploads, uploaded)
		refs = append(refs, segment.MediaRef{URL: uploaded.URL, Kind: r.Kind, Caption: caption})
	}

	return refs, uploads, nil
}

// cleanup deletes every temporarily hosted file, exactly once per upload.
// Failures are downgraded to warnings; cleanup never fails a run.
func (p *Pipeline) cleanup(ctx context.Context, uploads []*hosting.UploadedFile) {
	for _, f := range uploads {
		if err := p.host.Delete(ctx, f); err != nil {
			log.Warn().Err(err).Str("key", f.Key).Msg("Failed to delete temporarily hosted file")
		}
	}
}

// videoExtensions mirrors the formats Threads accepts as video. Remote URLs
// are never downloaded, so classification falls back to the extension.
var videoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm", ".m4v", ".3gp"}

func kindFromURL(url string) media.Kind {
	lower := strings.ToLower(url)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return media.KindVideo
		}
	}
	return media.KindImage
}

// --- Remote error mapping ---

// mapRemoteError converts client-level errors into the pipeline's typed
// error kinds.
func (p *Pipeline) mapRemoteError(err error, unitIndex int, containerID string) error {
	var apiErr *threads.APIError
	if errors.As(err, &apiErr) && apiErr.IsAuthError() {
		return &AuthorizationError{Err: apiErr}
	}

	var procErr *threads.ProcessingError
	if errors.As(err, &procErr) {
		return &RemoteProcessingError{
			UnitIndex:   unitIndex,
			ContainerID: procErr.ContainerID,
			Message:     procErr.Message,
		}
	}

	if containerID != "" {
		return &RemoteProcessingError{UnitIndex: unitIndex, ContainerID: containerID, Message: err.Error()}
	}
	return err
}
