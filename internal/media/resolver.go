// Package media normalizes heterogeneous attachment inputs into something
// the publishing pipeline can use directly: either a fetchable remote URL,
// or a binary payload (with its sniffed media kind) that needs temporary
// hosting before the Threads API can fetch it.
//
// Media kind (image vs video) is decided from content sniffing, never from
// the filename or the caller's stated type.
package media

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind classifies a resolved binary payload.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Attachment is a caller-supplied media descriptor. Exactly one of URL,
// Path, Data, or Base64 must be set.
type Attachment struct {
	URL    string // already-fetchable remote URL
	Path   string // local file
	Data   []byte // raw binary payload
	Base64 string // base64-encoded payload
}

// Resolved is the normalized form of an Attachment: either a remote URL
// (Data nil) or a binary payload with its sniffed kind and content type.
type Resolved struct {
	URL          string
	Data         []byte
	Kind         Kind
	ContentType  string
	FilenameHint string
}

// IsRemote reports whether the attachment is already fetchable and needs
// no temporary hosting.
func (r *Resolved) IsRemote() bool { return r.URL != "" }

// InvalidAttachmentError reports a malformed attachment descriptor.
// The whole request is rejected; no partial publish happens.
type InvalidAttachmentError struct {
	Index  int
	Reason string
}

func (e *InvalidAttachmentError) Error() string {
	return fmt.Sprintf("attachment %d: %s", e.Index, e.Reason)
}

// UnsupportedTypeError reports a binary payload that sniffed to something
// other than an image or a video.
type UnsupportedTypeError struct {
	Index       int
	ContentType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("attachment %d: unsupported media type %s (only image and video are accepted)", e.Index, e.ContentType)
}

// urlPattern covers scheme, host name or IPv4 literal, optional port,
// path, query, and fragment.
var urlPattern = regexp.MustCompile(`^https?://(?:(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}|localhost|(?:\d{1,3}\.){3}\d{1,3})(?::\d{1,5})?(?:/[^\s?#]*)?(?:\?[^\s#]*)?(?:#\S*)?$`)

// base64Pattern restricts input to the standard base64 alphabet plus padding.
var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`)

// IsURL reports whether s matches the URL grammar accepted for direct use.
func IsURL(s string) bool {
	return urlPattern.MatchString(s)
}

// Resolve normalizes a single attachment. index is used only for error
// reporting.
func Resolve(att Attachment, index int) (*Resolved, error) {
	if err := checkExclusive(att, index); err != nil {
		return nil, err
	}

	switch {
	case att.URL != "":
		if !IsURL(att.URL) {
			return nil, &InvalidAttachmentError{Index: index, Reason: fmt.Sprintf("malformed URL %q", att.URL)}
		}
		log.Debug().Int("index", index).Str("url", att.URL).Msg("Attachment already remote")
		return &Resolved{URL: att.URL}, nil

	case att.Path != "":
		data, err := os.ReadFile(att.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, &InvalidAttachmentError{Index: index, Reason: fmt.Sprintf("file not found: %s", att.Path)}
			}
			return nil, fmt.Errorf("attachment %d: read %s: %w", index, att.Path, err)
		}
		return resolveBinary(data, filepath.Base(att.Path), index)

	case att.Base64 != "":
		data, err := decodeBase64(att.Base64, index)
		if err != nil {
			return nil, err
		}
		return resolveBinary(data, "", index)

	default:
		return resolveBinary(att.Data, "", index)
	}
}

// ResolveAll normalizes every attachment, failing fast on the first invalid
// one.
func ResolveAll(atts []Attachment) ([]*Resolved, error) {
	resolved := make([]*Resolved, 0, len(atts))
	for i, att := range atts {
		r, err := Resolve(att, i)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, r)
	}
	return resolved, nil
}

func checkExclusive(att Attachment, index int) error {
	set := 0
	if att.URL != "" {
		set++
	}
	if att.Path != "" {
		set++
	}
	if len(att.Data) > 0 {
		set++
	}
	if att.Base64 != "" {
		set++
	}
	if set == 0 {
		return &InvalidAttachmentError{Index: index, Reason: "empty attachment: set one of URL, Path, Data, or Base64"}
	}
	if set > 1 {
		return &InvalidAttachmentError{Index: index, Reason: "ambiguous attachment: set exactly one of URL, Path, Data, or Base64"}
	}
	return nil
}

// decodeBase64 validates and strictly decodes a base64 payload. Length must
// be a multiple of 4 and characters restricted to the base64 alphabet plus
// padding.
func decodeBase64(s string, index int) ([]byte, error) {
	if len(s)%4 != 0 {
		return nil, &InvalidAttachmentError{Index: index, Reason: "invalid file: base64 length is not a multiple of 4"}
	}
	if !base64Pattern.MatchString(s) {
		return nil, &InvalidAttachmentError{Index: index, Reason: "invalid file: base64 contains characters outside the base64 alphabet"}
	}
	data, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		return nil, &InvalidAttachmentError{Index: index, Reason: fmt.Sprintf("invalid file: base64 decode failed: %v", err)}
	}
	return data, nil
}

// resolveBinary sniffs the payload and classifies it as image or video.
func resolveBinary(data []byte, filenameHint string, index int) (*Resolved, error) {
	if len(data) == 0 {
		return nil, &InvalidAttachmentError{Index: index, Reason: "invalid file: empty payload"}
	}

	mtype := mimetype.Detect(data)
	contentType := mtype.String()

	var kind Kind
	switch {
	case strings.HasPrefix(contentType, "image/"):
		kind = KindImage
	case strings.HasPrefix(contentType, "video/"):
		kind = KindVideo
	default:
		return nil, &UnsupportedTypeError{Index: index, ContentType: contentType}
	}

	if filenameHint == "" {
		filenameHint = "upload" + mtype.Extension()
	}

	log.Debug().
		Int("index", index).
		Str("contentType", contentType).
		Str("kind", string(kind)).
		Int("sizeBytes", len(data)).
		Msg("Attachment resolved as binary payload")

	return &Resolved{
		Data:         data,
		Kind:         kind,
		ContentType:  contentType,
		FilenameHint: filenameHint,
	}, nil
}
