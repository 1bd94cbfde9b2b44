// Command threadspipe publishes arbitrary-length posts to Threads, splitting
// them into a chain of platform-compliant posts when they exceed the per-post
// limits.
//
// Credentials come from THREADS_ACCESS_TOKEN / THREADS_USER_ID (or SSM, see
// internal/credentials). Local files and raw payloads are staged on a
// temporary host before publishing: set GITHUB_TOKEN + THREADSPIPE_GITHUB_REPO
// for GitHub hosting, or THREADSPIPE_S3_BUCKET for S3.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/docssquirrelhq/threadspipe/internal/credentials"
	"github.com/docssquirrelhq/threadspipe/internal/hosting"
	"github.com/docssquirrelhq/threadspipe/internal/logging"
	"github.com/docssquirrelhq/threadspipe/internal/media"
	"github.com/docssquirrelhq/threadspipe/internal/pipeline"
)

// CLI flags
var (
	textFlag         string
	mediaFlags       []string
	captionFlags     []string
	tagFlags         []string
	replyToFlag      string
	quoteFlag        string
	linkFlag         string
	whoCanReplyFlag  string
	countryCodesFlag string
	noChainFlag      bool
	noWaitFlag       bool
	waitOnLimitFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "threadspipe",
	Short: "Publish arbitrary-length posts to Threads",
	Long: `ThreadsPipe publishes text and media to Threads via the official Graph API.

Content longer than the 500-character post limit, or carrying more than 20
media items, is split into a chain of posts where each post replies to the
previous one. Trailing hashtags are distributed one per post, local files
are staged on a temporary host, and the daily publishing quota is checked
before anything is created.

Examples:
  threadspipe post --text "Hello Threads"
  threadspipe post --text "$(cat essay.txt)" --tag golang --tag opensource
  threadspipe post --media photo.jpg --caption "Sunset over the bay"
  threadspipe post --text "Thread of 25 pics" --media 'pics/*.jpg'
  threadspipe quota
  threadspipe repost 17851234567890123`,
}

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Publish a post (or chain of posts)",
	Run:   runPost,
}

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show the current daily publishing quota usage",
	Run:   runQuota,
}

var repostCmd = &cobra.Command{
	Use:   "repost <post-id>",
	Short: "Repost an existing Threads post",
	Args:  cobra.ExactArgs(1),
	Run:   runRepost,
}

func init() {
	postCmd.Flags().StringVarP(&textFlag, "text", "t", "", "Post text (split automatically when over the limit)")
	postCmd.Flags().StringArrayVarP(&mediaFlags, "media", "m", nil, "Media attachment: URL or local file path (repeatable, order preserved)")
	postCmd.Flags().StringArrayVar(&captionFlags, "caption", nil, "Alt text for the media item at the same position (repeatable)")
	postCmd.Flags().StringArrayVar(&tagFlags, "tag", nil, "Hashtag to distribute across the chain, without '#' (repeatable)")
	postCmd.Flags().StringVar(&replyToFlag, "reply-to", "", "Publish the chain as a reply to this post ID")
	postCmd.Flags().StringVar(&quoteFlag, "quote", "", "Quote this post ID")
	postCmd.Flags().StringVar(&linkFlag, "link", "", "Attach a link (text-only posts)")
	postCmd.Flags().StringVar(&whoCanReplyFlag, "who-can-reply", "", "Restrict replies: everyone, accounts_you_follow, mentioned_only")
	postCmd.Flags().StringVar(&countryCodesFlag, "country-codes", "", "Comma-separated ISO country codes for geo gating")
	postCmd.Flags().BoolVar(&noChainFlag, "no-chain", false, "Truncate oversized text instead of chaining")
	postCmd.Flags().BoolVar(&noWaitFlag, "no-wait", false, "Skip waiting for container processing before publish")
	postCmd.Flags().BoolVar(&waitOnLimitFlag, "wait-on-limit", false, "Block until the quota window resets instead of failing")

	rootCmd.AddCommand(postCmd, quotaCmd, repostCmd)
}

func main() {
	godotenv.Load()
	logging.Init()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildPipeline resolves credentials, selects a hosting backend, and
// constructs the pipeline from the CLI flags.
func buildPipeline(ctx context.Context) *pipeline.Pipeline {
	creds, err := credentials.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve Threads credentials")
	}

	cfg := pipeline.DefaultConfig()
	cfg.AccessToken = creds.AccessToken
	cfg.UserID = creds.UserID
	cfg.ChainedPost = !noChainFlag
	cfg.WaitBeforePublish = !noWaitFlag
	cfg.WaitOnRateLimit = waitOnLimitFlag
	if countryCodesFlag != "" {
		cfg.AllowedCountryCodes = strings.Split(countryCodesFlag, ",")
	}

	p, err := pipeline.New(cfg, selectHost(ctx))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}
	return p
}

// selectHost picks the temporary hosting backend from the environment.
// Returns nil when none is configured; URL-only posts work without one.
func selectHost(ctx context.Context) hosting.Host {
	switch {
	case os.Getenv("THREADSPIPE_S3_BUCKET") != "":
		host, err := hosting.NewS3Host(ctx, hosting.S3Config{
			Bucket: os.Getenv("THREADSPIPE_S3_BUCKET"),
			Prefix: os.Getenv("THREADSPIPE_S3_PREFIX"),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 hosting")
		}
		log.Debug().Str("backend", "s3").Msg("Temporary hosting configured")
		return host

	case os.Getenv("GITHUB_TOKEN") != "":
		repo := logging.EnvOrDefault("THREADSPIPE_GITHUB_REPO", "")
		owner, name, ok := strings.Cut(repo, "/")
		if !ok {
			log.Fatal().Str("repo", repo).Msg("THREADSPIPE_GITHUB_REPO must be owner/repo")
		}
		host, err := hosting.NewGitHubHost(hosting.GitHubConfig{
			Token: os.Getenv("GITHUB_TOKEN"),
			Owner: owner,
			Repo:  name,
			Dir:   os.Getenv("THREADSPIPE_GITHUB_DIR"),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize GitHub hosting")
		}
		log.Debug().Str("backend", "github").Msg("Temporary hosting configured")
		return host

	default:
		log.Debug().Msg("No hosting backend configured; only URL attachments are supported")
		return nil
	}
}

func runPost(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	p := buildPipeline(ctx)

	attachments := make([]media.Attachment, 0, len(mediaFlags))
	for _, m := range mediaFlags {
		if media.IsURL(m) {
			attachments = append(attachments, media.Attachment{URL: m})
		} else {
			attachments = append(attachments, media.Attachment{Path: m})
		}
	}

	result, err := p.Publish(ctx, pipeline.Request{
		Text:           textFlag,
		Attachments:    attachments,
		Captions:       captionFlags,
		Tags:           tagFlags,
		ReplyTo:        replyToFlag,
		QuotePostID:    quoteFlag,
		LinkAttachment: linkFlag,
		WhoCanReply:    whoCanReplyFlag,
	})
	if err != nil {
		reportPublishError(result, err)
	}

	for _, id := range result.PostIDs {
		fmt.Println(id)
	}
}

// reportPublishError prints a targeted message per failure kind, then exits.
func reportPublishError(result *pipeline.Result, err error) {
	var quotaErr *pipeline.QuotaExceededError
	var authErr *pipeline.AuthorizationError
	var uploadErr *pipeline.MediaUploadError
	var procErr *pipeline.RemoteProcessingError

	switch {
	case errors.As(err, &quotaErr):
		log.Fatal().Err(err).Msg("Daily publishing quota exhausted; retry after the window resets or use --wait-on-limit")
	case errors.As(err, &authErr):
		log.Fatal().Str("response", authErr.RawBody()).Msg("Threads rejected the access token; it may be expired")
	case errors.As(err, &uploadErr):
		log.Fatal().Err(err).Int("attachment", uploadErr.Index).Msg("Media upload failed; staged files were cleaned up")
	case errors.As(err, &procErr):
		for _, id := range result.PostIDs {
			fmt.Println(id)
		}
		log.Fatal().Err(err).Int("published", len(result.PostIDs)).Msg("Chain aborted mid-way; already-published posts listed above")
	default:
		log.Fatal().Err(err).Msg("Publish failed")
	}
}

func runQuota(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	p := buildPipeline(ctx)

	snapshot, err := p.Quota(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch publishing quota")
	}

	fmt.Printf("posts:   %d/%d used\n", snapshot.PostsUsed, snapshot.PostsTotal)
	fmt.Printf("replies: %d/%d used\n", snapshot.RepliesUsed, snapshot.RepliesTotal)
	fmt.Printf("window:  %s\n", snapshot.QuotaDuration)
}

func runRepost(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	p := buildPipeline(ctx)

	id, err := p.Repost(ctx, args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("Repost failed")
	}
	fmt.Println(id)
}
