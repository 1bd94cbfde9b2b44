package pipeline

import (
	"fmt"

	"github.com/docssquirrelhq/threadspipe/internal/threads"
)

// ValidationError reports a request that was rejected before any remote
// call was made: empty content, malformed URL or base64, unsupported media
// kind, or content that cannot fit without chaining.
type ValidationError struct {
	Reason string
	cause  error
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.cause }

// QuotaExceededError reports that the daily publishing budget is spent.
// It carries the snapshot the decision was made on. No container was built.
type QuotaExceededError struct {
	Budget   string // "post" or "reply"
	Snapshot threads.QuotaSnapshot
}

func (e *QuotaExceededError) Error() string {
	used, total := e.Snapshot.PostsUsed, e.Snapshot.PostsTotal
	if e.Budget == "reply" {
		used, total = e.Snapshot.RepliesUsed, e.Snapshot.RepliesTotal
	}
	return fmt.Sprintf("%s quota exceeded: %d/%d used", e.Budget, used, total)
}

// MediaUploadError reports a failed upload to the temporary hosting
// backend. Remaining uploads were aborted and completed siblings cleaned up.
type MediaUploadError struct {
	Index int
	Err   error
}

func (e *MediaUploadError) Error() string {
	return fmt.Sprintf("media upload failed for attachment %d: %v", e.Index, e.Err)
}

func (e *MediaUploadError) Unwrap() error { return e.Err }

// RemoteProcessingError reports that Threads failed to process a container
// for one of the chain's units. Units published before the failure are
// preserved in the result.
type RemoteProcessingError struct {
	UnitIndex   int
	ContainerID string
	Message     string
}

func (e *RemoteProcessingError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unit %d: container %s failed remote processing", e.UnitIndex, e.ContainerID)
	}
	return fmt.Sprintf("unit %d: container %s: %s", e.UnitIndex, e.ContainerID, e.Message)
}

// AuthorizationError reports that the API rejected the access token. The
// remote error body is attached verbatim.
type AuthorizationError struct {
	Err *threads.APIError
}

func (e *AuthorizationError) Error() string {
	return "authorization failed: " + e.Err.Error()
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// RawBody returns the raw remote error body.
func (e *AuthorizationError) RawBody() string { return e.Err.RawBody }

// GeoGatingIneligibleError reports that the account may not publish
// geo-gated content but the request carried country codes.
type GeoGatingIneligibleError struct{}

func (e *GeoGatingIneligibleError) Error() string {
	return "account is not eligible for geo-gated content"
}
