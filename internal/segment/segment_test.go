package segment

import (
	"errors"
	"strings"
	"testing"

	"github.com/docssquirrelhq/threadspipe/internal/media"
)

func chained() Options {
	return Options{ChainedPost: true}
}

func makeRefs(n int) []MediaRef {
	refs := make([]MediaRef, n)
	for i := range refs {
		refs[i] = MediaRef{URL: "https://example.com/img.jpg", Kind: media.KindImage}
	}
	return refs
}

// stripUnitText removes the continuation marker and any appended hashtag,
// recovering the original text fragment carried by the unit.
func stripUnitText(text string, tags []string) string {
	text = strings.TrimPrefix(text, ContinuationMarker)
	for _, tag := range tags {
		if text == tag {
			return ""
		}
		if strings.HasSuffix(text, " "+tag) {
			return strings.TrimSuffix(text, " "+tag)
		}
	}
	return text
}

func TestSplitShortTextSingleUnit(t *testing.T) {
	units, err := Split("hello threads", nil, nil, chained())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(units))
	}
	if units[0].Text != "hello threads" {
		t.Errorf("unexpected text: %q", units[0].Text)
	}
}

func TestSplit600CharsTwoUnits(t *testing.T) {
	text := strings.Repeat("a", 600)
	units, err := Split(text, nil, nil, chained())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if len([]rune(units[0].Text)) != 500 {
		t.Errorf("unit 0 should be 500 chars, got %d", len([]rune(units[0].Text)))
	}
	if units[1].Text != ContinuationMarker+strings.Repeat("a", 100) {
		t.Errorf("unit 1 should be marker plus 100 chars, got %q", units[1].Text)
	}
}

func TestSplitNeverExceedsLimit(t *testing.T) {
	text := strings.Repeat("word ", 700)
	units, err := Split(text, []string{"#golang", "#threads"}, nil, Options{ChainedPost: true, PersistHashtags: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, u := range units {
		if n := len([]rune(u.Text)); n > MaxTextLength {
			t.Errorf("unit %d exceeds limit: %d chars", u.Index, n)
		}
	}
}

func TestSplitRoundTrip(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 60) // ~1600 chars
	tags := []string{"#go", "#pipeline"}
	units, err := Split(text, tags, nil, Options{ChainedPost: true, PersistHashtags: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sb strings.Builder
	for _, u := range units {
		sb.WriteString(stripUnitText(u.Text, tags))
	}
	if sb.String() != text {
		t.Error("concatenated unit texts do not reconstruct the original")
	}
}

func TestSplitTruncatesWhenChainingDisabled(t *testing.T) {
	text := strings.Repeat("b", 800)
	units, err := Split(text, nil, nil, Options{ChainedPost: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("expected exactly 1 unit, got %d", len(units))
	}
	if units[0].Text != strings.Repeat("b", 500) {
		t.Errorf("expected 500-char truncated text, got %d chars", len([]rune(units[0].Text)))
	}
}

func TestSplitMediaBatches(t *testing.T) {
	units, err := Split("", nil, makeRefs(25), chained())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if len(units[0].Media) != 20 || !units[0].Carousel {
		t.Errorf("unit 0 should be a 20-item carousel, got %d items", len(units[0].Media))
	}
	if len(units[1].Media) != 5 || !units[1].Carousel {
		t.Errorf("unit 1 should be a 5-item carousel, got %d items", len(units[1].Media))
	}
}

func TestSplitMediaOrderPreserved(t *testing.T) {
	refs := make([]MediaRef, 45)
	for i := range refs {
		refs[i] = MediaRef{URL: strings.Repeat("x", i+1), Kind: media.KindImage}
	}
	units, err := Split("", nil, refs, chained())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}

	var got []MediaRef
	for _, u := range units {
		got = append(got, u.Media...)
	}
	if len(got) != len(refs) {
		t.Fatalf("expected %d items total, got %d", len(refs), len(got))
	}
	for i := range refs {
		if got[i].URL != refs[i].URL {
			t.Fatalf("media order broken at index %d", i)
		}
	}
}

func TestSplitSingleMediaNotCarousel(t *testing.T) {
	units, err := Split("one photo", nil, makeRefs(1), chained())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if units[0].Carousel {
		t.Error("single media item must not set the carousel flag")
	}
}

func TestSplitTooManyMediaWithoutChaining(t *testing.T) {
	_, err := Split("", nil, makeRefs(25), Options{ChainedPost: false})
	if !errors.Is(err, ErrExceedsLimits) {
		t.Errorf("expected ErrExceedsLimits, got: %v", err)
	}
}

func TestSplitLinkOnFirstMediaFreeUnit(t *testing.T) {
	text := strings.Repeat("c", 600)
	opts := chained()
	opts.Link = "https://example.com/article"
	units, err := Split(text, nil, makeRefs(20), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Unit 0 carries media, so the link lands on unit 1.
	if units[0].Link != "" {
		t.Error("link must not appear on a media-bearing unit")
	}
	if units[1].Link != opts.Link {
		t.Errorf("expected link on unit 1, got %q", units[1].Link)
	}
}

func TestSplitLinkPersisted(t *testing.T) {
	text := strings.Repeat("d", 1200)
	opts := chained()
	opts.Link = "https://example.com/article"
	opts.PersistLinkAttachment = true
	units, err := Split(text, nil, nil, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, u := range units {
		if u.Link != opts.Link {
			t.Errorf("unit %d missing persisted link", u.Index)
		}
	}
}

func TestSplitQuoteOnFirstUnitOnly(t *testing.T) {
	text := strings.Repeat("e", 1200)
	opts := chained()
	opts.QuoteID = "quoted-001"
	units, err := Split(text, nil, nil, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if units[0].QuoteID != "quoted-001" {
		t.Error("unit 0 should carry the quote reference")
	}
	for _, u := range units[1:] {
		if u.QuoteID != "" {
			t.Errorf("unit %d should not carry the quote reference", u.Index)
		}
	}
}

func TestSplitQuotePersisted(t *testing.T) {
	text := strings.Repeat("f", 1200)
	opts := chained()
	opts.QuoteID = "quoted-001"
	opts.PersistQuotedPost = true
	units, err := Split(text, nil, nil, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, u := range units {
		if u.QuoteID != "quoted-001" {
			t.Errorf("unit %d missing persisted quote reference", u.Index)
		}
	}
}

func TestExtractTrailingHashtags(t *testing.T) {
	body, tags := ExtractTrailingHashtags("shipping a new release today #golang #opensource")
	if body != "shipping a new release today" {
		t.Errorf("unexpected body: %q", body)
	}
	if len(tags) != 2 || tags[0] != "#golang" || tags[1] != "#opensource" {
		t.Errorf("unexpected tags: %v", tags)
	}

	body, tags = ExtractTrailingHashtags("no tags #inline here")
	if body != "no tags #inline here" || tags != nil {
		t.Errorf("mid-text hashtags must not be extracted, got body %q tags %v", body, tags)
	}
}

func TestSplitHandleHashtags(t *testing.T) {
	opts := chained()
	opts.HandleHashtags = true
	units, err := Split("short update #release", nil, nil, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(units))
	}
	if units[0].Text != "short update #release" {
		t.Errorf("expected tag re-appended, got %q", units[0].Text)
	}
}

func TestSplitTagsUsedOnceWithoutPersist(t *testing.T) {
	text := strings.Repeat("g", 1500)
	units, err := Split(text, []string{"#one"}, nil, chained())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for _, u := range units {
		if strings.Contains(u.Text, "#one") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected tag to appear exactly once, got %d", count)
	}
}

func TestSplitOversizedTagRollsIntoTrailingUnit(t *testing.T) {
	// The tag is too long to share a unit with any text, so it must end
	// up in a trailing unit of its own rather than being dropped.
	tag := "#" + strings.Repeat("x", 498)
	text := strings.Repeat("h", 500)
	units, err := Split(text, []string{tag}, nil, chained())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := units[len(units)-1]
	if last.Text != ContinuationMarker+tag {
		t.Errorf("expected trailing tag unit, got %q", last.Text)
	}

	// Round trip still holds.
	var sb strings.Builder
	for _, u := range units {
		sb.WriteString(stripUnitText(u.Text, []string{tag}))
	}
	if sb.String() != text {
		t.Error("round trip broken by tag rollover")
	}
}

func TestNormalizeTags(t *testing.T) {
	got := normalizeTags([]string{"golang", "#dev", " ", "#"})
	if len(got) != 2 || got[0] != "#golang" || got[1] != "#dev" {
		t.Errorf("unexpected normalized tags: %v", got)
	}
}
