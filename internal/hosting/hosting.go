// Package hosting uploads binary media payloads to an external content
// store to obtain a publicly fetchable URL, and deletes them again once the
// publishing pipeline is done with them. Threads only accepts media by URL,
// so anything supplied as bytes has to pass through here first.
//
// Two backends are provided: a GitHub repository (contents API) and an S3
// bucket with presigned GET URLs.
package hosting

import (
	"context"
	"time"
)

// defaultUploadTimeout bounds a single upload call when the caller does not
// configure one.
const defaultUploadTimeout = 60 * time.Second

// UploadedFile records one temporarily hosted payload. Every upload made
// during a pipeline run must receive exactly one Delete attempt during
// cleanup.
type UploadedFile struct {
	// URL is the publicly fetchable location of the payload.
	URL string

	// Key is the backend object key or repository path.
	Key string

	// SHA is the blob SHA required by the GitHub contents API to delete
	// the file. Empty for backends that do not need it.
	SHA string
}

// Host is a temporary content store. Implementations carry no business
// logic beyond upload and delete.
type Host interface {
	// Upload stores data and returns its public URL plus a deletion handle.
	Upload(ctx context.Context, data []byte, filenameHint, contentType string) (*UploadedFile, error)

	// Delete removes a previously uploaded file. Failures are reported but
	// callers treat them as warnings, never as pipeline failures.
	Delete(ctx context.Context, f *UploadedFile) error
}
