// Package segment splits an arbitrary-length post into an ordered sequence
// of units, each within the Threads per-post limits: 500 characters of
// text, 20 media items, one rendered hashtag. Concatenating unit texts
// (minus continuation markers and appended hashtags) reconstructs the
// original text, and concatenating unit media subsets reconstructs the
// original media list.
package segment

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/docssquirrelhq/threadspipe/internal/media"
)

const (
	// MaxTextLength is the Threads per-post character limit.
	MaxTextLength = 500

	// MaxMediaItems is the Threads per-post media limit.
	MaxMediaItems = 20

	// ContinuationMarker prefixes every chunk after the first.
	ContinuationMarker = "…"
)

// MediaRef is one hosted or remote media item ready for container creation.
type MediaRef struct {
	URL     string
	Kind    media.Kind
	Caption string // alt text, "" when the caller supplied none
}

// Unit is one atomic publication within the chain.
type Unit struct {
	Index    int
	Text     string
	Media    []MediaRef
	Carousel bool   // more than one media item
	Link     string // link attachment, media-free units only
	QuoteID  string // quoted post reference
}

// Options control how content is segmented.
type Options struct {
	// ChainedPost enables splitting into multiple chained units. When
	// disabled, oversized text is truncated to a single unit instead.
	ChainedPost bool

	// HandleHashtags extracts trailing #tags from the text when no
	// explicit tag list is supplied.
	HandleHashtags bool

	// PersistHashtags cycles the tag list across all units. When false,
	// each tag is used at most once.
	PersistHashtags bool

	// PersistQuotedPost attaches the quote reference to every unit
	// instead of only the first.
	PersistQuotedPost bool

	// PersistLinkAttachment attaches the link to every media-free unit
	// instead of only the first eligible one.
	PersistLinkAttachment bool

	// Link is the optional link attachment.
	Link string

	// QuoteID is the optional quoted-post identifier.
	QuoteID string
}

// ErrExceedsLimits is returned when the content cannot fit in a single unit
// and chaining is disabled.
var ErrExceedsLimits = errors.New("content exceeds per-post limits and chaining is disabled")

// trailingTagsPattern matches whitespace-separated #token sequences at the
// end of the text.
var trailingTagsPattern = regexp.MustCompile(`(?:\s+#[\pL\pN_]+)+\s*$`)

var tagPattern = regexp.MustCompile(`#[\pL\pN_]+`)

// ExtractTrailingHashtags splits text into its body and any trailing
// hashtag tokens, in order of appearance.
func ExtractTrailingHashtags(text string) (body string, tags []string) {
	loc := trailingTagsPattern.FindStringIndex(text)
	if loc == nil {
		return text, nil
	}
	body = text[:loc[0]]
	tags = tagPattern.FindAllString(text[loc[0]:], -1)
	return body, tags
}

// Split produces the ordered unit sequence for the given text, hashtag
// list, and media list.
func Split(text string, tags []string, refs []MediaRef, opts Options) ([]Unit, error) {
	if opts.HandleHashtags && len(tags) == 0 {
		text, tags = ExtractTrailingHashtags(text)
		if len(tags) > 0 {
			log.Debug().Strs("tags", tags).Msg("Extracted trailing hashtags from text")
		}
	}
	tags = normalizeTags(tags)

	chunks, err := splitText(text, tags, opts)
	if err != nil {
		return nil, err
	}

	batches := batchMedia(refs)
	if !opts.ChainedPost && len(batches) > 1 {
		return nil, fmt.Errorf("%w: %d media items need %d units", ErrExceedsLimits, len(refs), len(batches))
	}

	count := len(chunks)
	if len(batches) > count {
		count = len(batches)
	}
	if count == 0 {
		count = 1 // degenerate single empty unit; callers validate non-empty requests upstream
	}

	units := make([]Unit, count)
	linkPlaced := false
	for i := range units {
		units[i].Index = i
		if i < len(chunks) {
			units[i].Text = chunks[i]
		}
		if i < len(batches) {
			units[i].Media = batches[i]
			units[i].Carousel = len(batches[i]) > 1
		}

		// Link attachments are only valid on media-free units.
		if opts.Link != "" && len(units[i].Media) == 0 {
			if opts.PersistLinkAttachment || !linkPlaced {
				units[i].Link = opts.Link
				linkPlaced = true
			}
		}

		if opts.QuoteID != "" && (i == 0 || opts.PersistQuotedPost) {
			units[i].QuoteID = opts.QuoteID
		}
	}

	log.Debug().
		Int("units", len(units)).
		Int("textChunks", len(chunks)).
		Int("mediaBatches", len(batches)).
		Msg("Content segmented")
	return units, nil
}

// splitText divides text into chunks of at most MaxTextLength characters,
// prefixing continuation chunks with the marker and appending one hashtag
// per chunk. A hashtag that cannot fit is carried to the next chunk; one
// left pending after the final chunk rolls into a new trailing chunk
// rather than being dropped.
func splitText(text string, tags []string, opts Options) ([]string, error) {
	runes := []rune(text)

	if !opts.ChainedPost {
		chunk := string(runes)
		if len(runes) > MaxTextLength {
			log.Warn().Int("length", len(runes)).Msg("Chaining disabled, truncating text to a single post")
			chunk = string(runes[:MaxTextLength])
		}
		if len(tags) > 0 {
			if withTag := appendTag(chunk, tags[0]); withTag != "" {
				chunk = withTag
			}
		}
		if chunk == "" {
			return nil, nil
		}
		return []string{chunk}, nil
	}

	var chunks []string
	tagIdx := 0
	pending := "" // tag carried forward after failing to fit a chunk
	pos := 0

	// takeTag hands out the tag for the next chunk: a carried tag first,
	// then the list in order, cycling only when tags persist across units.
	takeTag := func() string {
		if pending != "" {
			t := pending
			pending = ""
			return t
		}
		if len(tags) == 0 {
			return ""
		}
		if tagIdx >= len(tags) && !opts.PersistHashtags {
			return ""
		}
		t := tags[tagIdx%len(tags)]
		tagIdx++
		return t
	}

	// A media-only post still renders its first hashtag as the text.
	if len(runes) == 0 {
		if tag := takeTag(); tag != "" {
			return []string{tag}, nil
		}
		return nil, nil
	}

	for pos < len(runes) {
		marker := ""
		if len(chunks) > 0 {
			marker = ContinuationMarker
		}

		tag := takeTag()
		capacity := MaxTextLength - len([]rune(marker))
		if tag != "" {
			reserved := capacity - len([]rune(tag)) - 1
			if reserved > 0 {
				capacity = reserved
			} else {
				// No room for the tag alongside any text; carry it.
				pending = tag
				tag = ""
			}
		}

		end := pos + capacity
		if end > len(runes) {
			end = len(runes)
		}
		chunk := marker + string(runes[pos:end])
		pos = end

		if tag != "" {
			if withTag := appendTag(chunk, tag); withTag != "" {
				chunk = withTag
			} else {
				pending = tag
			}
		}
		chunks = append(chunks, chunk)
	}

	// A tag still pending after the body is consumed rolls into its own
	// trailing chunk; dropping it silently would lose caller content.
	if pending != "" {
		if len([]rune(ContinuationMarker+pending)) <= MaxTextLength {
			chunks = append(chunks, ContinuationMarker+pending)
		} else {
			log.Warn().Str("tag", pending).Msg("Hashtag too long for a post of its own, dropping")
		}
	}

	return chunks, nil
}

// appendTag appends " #tag" to chunk if the result stays within the limit,
// returning "" when it does not fit.
func appendTag(chunk, tag string) string {
	candidate := tag
	if chunk != "" {
		candidate = chunk + " " + tag
	}
	if len([]rune(candidate)) > MaxTextLength {
		return ""
	}
	return candidate
}

// batchMedia splits the media list into contiguous batches of at most
// MaxMediaItems, preserving order.
func batchMedia(refs []MediaRef) [][]MediaRef {
	var batches [][]MediaRef
	for start := 0; start < len(refs); start += MaxMediaItems {
		end := start + MaxMediaItems
		if end > len(refs) {
			end = len(refs)
		}
		batches = append(batches, refs[start:end])
	}
	return batches
}

// normalizeTags ensures every tag carries a leading '#' and drops empties.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || t == "#" {
			continue
		}
		if !strings.HasPrefix(t, "#") {
			t = "#" + t
		}
		out = append(out, t)
	}
	return out
}
