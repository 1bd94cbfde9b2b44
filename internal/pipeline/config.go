package pipeline

import (
	"time"
)

const (
	// defaultPublishWait is how long to wait for container processing
	// before publishing, per Threads' recommendation.
	defaultPublishWait = 35 * time.Second

	// minPublishWait is the enforced floor on the poll interval.
	minPublishWait = 30 * time.Second

	// defaultPollTimeout bounds the total container-status wait.
	defaultPollTimeout = 5 * time.Minute
)

// Config is the pipeline's construction-time configuration. It is read-only
// during a run; callers may replace it wholesale between runs with
// Reconfigure.
type Config struct {
	// AccessToken is the long-lived Threads bearer token.
	AccessToken string
	// UserID is the numeric Threads account identifier.
	UserID string
	// BaseURL overrides the Threads Graph API base URL. Empty means the
	// production endpoint.
	BaseURL string

	// CheckRateLimitBeforePost gates every run on the publishing quota.
	CheckRateLimitBeforePost bool
	// WaitOnRateLimit blocks until the quota window is expected to reset
	// instead of failing when the budget is spent.
	WaitOnRateLimit bool

	// ChainedPost splits oversized content into a chain of replies. When
	// disabled, oversized text is truncated to a single post.
	ChainedPost bool
	// HandleHashtags extracts trailing #tags from the text when the
	// request supplies none.
	HandleHashtags bool
	// PersistHashtags cycles the hashtag list across every unit of a
	// chain instead of using each tag once.
	PersistHashtags bool
	// PersistQuotedPost attaches the quoted post to every unit instead
	// of only the first.
	PersistQuotedPost bool
	// PersistLinkAttachment attaches the link to every media-free unit
	// instead of only the first eligible one.
	PersistLinkAttachment bool

	// WaitBeforePublish polls container processing status before each
	// publish call.
	WaitBeforePublish bool
	// WaitBeforeItemPublish additionally polls each carousel child
	// container before the parent is created.
	WaitBeforeItemPublish bool
	// PublishWaitTime is the status poll interval (default 35s, floor 30s).
	PublishWaitTime time.Duration
	// PollTimeout bounds the total wait for one container (default 5m).
	PollTimeout time.Duration

	// WhoCanReply restricts replies on published posts: everyone,
	// accounts_you_follow, or mentioned_only. Empty leaves the account
	// default.
	WhoCanReply string
	// AllowedCountryCodes geo-gates published posts to the given ISO
	// country codes. Requires an eligible account.
	AllowedCountryCodes []string
}

// DefaultConfig returns the policy defaults: quota checking, chaining,
// hashtag handling, and pre-publish waiting all enabled.
func DefaultConfig() Config {
	return Config{
		CheckRateLimitBeforePost: true,
		ChainedPost:              true,
		HandleHashtags:           true,
		WaitBeforePublish:        true,
		PublishWaitTime:          defaultPublishWait,
		PollTimeout:              defaultPollTimeout,
	}
}

// normalize applies defaults and enforces the poll-interval floor.
func (c *Config) normalize() {
	if c.PublishWaitTime <= 0 {
		c.PublishWaitTime = defaultPublishWait
	}
	if c.PublishWaitTime < minPublishWait {
		c.PublishWaitTime = minPublishWait
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaultPollTimeout
	}
}
