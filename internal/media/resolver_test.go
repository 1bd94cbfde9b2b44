package media

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// pngBytes is a minimal PNG header, enough for magic-number sniffing.
var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

// mp4Bytes carries an ISO base media "ftyp" box.
var mp4Bytes = []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 0, 1, 'i', 's', 'o', 'm', 'm', 'p', '4', '2'}

func TestIsURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/photo.jpg", true},
		{"http://example.com", true},
		{"https://sub.example.co.uk/a/b/c?x=1&y=2", true},
		{"http://192.168.1.10:8080/media/1.png", true},
		{"http://localhost:3000/x.jpg", true},
		{"https://example.com/path#frag", true},
		{"ftp://example.com/file", false},
		{"example.com/photo.jpg", false},
		{"https://", false},
		{"not a url", false},
		{"/tmp/photo.jpg", false},
	}
	for _, tt := range tests {
		if got := IsURL(tt.url); got != tt.want {
			t.Errorf("IsURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestResolveRemoteURLPassthrough(t *testing.T) {
	r, err := Resolve(Attachment{URL: "https://example.com/photo.jpg"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.IsRemote() {
		t.Error("expected remote attachment")
	}
	if r.URL != "https://example.com/photo.jpg" {
		t.Errorf("unexpected URL: %s", r.URL)
	}
	if len(r.Data) != 0 {
		t.Error("remote attachment must not carry a payload")
	}
}

func TestResolveMalformedURL(t *testing.T) {
	_, err := Resolve(Attachment{URL: "https://"}, 2)
	var invalid *InvalidAttachmentError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidAttachmentError, got: %v", err)
	}
	if invalid.Index != 2 {
		t.Errorf("expected index 2, got %d", invalid.Index)
	}
}

func TestResolveRawImageBytes(t *testing.T) {
	r, err := Resolve(Attachment{Data: pngBytes}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != KindImage {
		t.Errorf("expected image kind, got %s", r.Kind)
	}
	if r.ContentType != "image/png" {
		t.Errorf("expected image/png, got %s", r.ContentType)
	}
	if !strings.HasSuffix(r.FilenameHint, ".png") {
		t.Errorf("expected .png filename hint, got %s", r.FilenameHint)
	}
}

func TestResolveRawVideoBytes(t *testing.T) {
	r, err := Resolve(Attachment{Data: mp4Bytes}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != KindVideo {
		t.Errorf("expected video kind, got %s", r.Kind)
	}
	if !strings.HasPrefix(r.ContentType, "video/") {
		t.Errorf("expected video content type, got %s", r.ContentType)
	}
}

func TestResolveRejectsNonMedia(t *testing.T) {
	_, err := Resolve(Attachment{Data: []byte("just some text, definitely not media")}, 1)
	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedTypeError, got: %v", err)
	}
	if unsupported.Index != 1 {
		t.Errorf("expected index 1, got %d", unsupported.Index)
	}
}

func TestResolveBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pngBytes)
	r, err := Resolve(Attachment{Base64: encoded}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != KindImage {
		t.Errorf("expected image kind, got %s", r.Kind)
	}
}

func TestResolveBase64BadLength(t *testing.T) {
	_, err := Resolve(Attachment{Base64: "abcde"}, 0)
	var invalid *InvalidAttachmentError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidAttachmentError, got: %v", err)
	}
	if !strings.Contains(invalid.Reason, "multiple of 4") {
		t.Errorf("unexpected reason: %s", invalid.Reason)
	}
}

func TestResolveBase64BadAlphabet(t *testing.T) {
	_, err := Resolve(Attachment{Base64: "ab!="}, 0)
	var invalid *InvalidAttachmentError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidAttachmentError, got: %v", err)
	}
}

func TestResolveBase64RoundTrip(t *testing.T) {
	// Arbitrary binary content survives encode/resolve when correctly padded.
	encoded := base64.StdEncoding.EncodeToString(mp4Bytes)
	if len(encoded)%4 != 0 {
		t.Fatal("test encoding should be padded")
	}
	r, err := Resolve(Attachment{Base64: encoded}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(r.Data) != string(mp4Bytes) {
		t.Error("decoded payload does not match original bytes")
	}
}

func TestResolveLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(path, pngBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Resolve(Attachment{Path: path}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != KindImage {
		t.Errorf("expected image kind, got %s", r.Kind)
	}
	if r.FilenameHint != "photo.png" {
		t.Errorf("expected filename hint photo.png, got %s", r.FilenameHint)
	}
}

func TestResolveLocalFileNotFound(t *testing.T) {
	_, err := Resolve(Attachment{Path: "/nonexistent/photo.png"}, 0)
	var invalid *InvalidAttachmentError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidAttachmentError, got: %v", err)
	}
}

func TestResolveExclusivity(t *testing.T) {
	_, err := Resolve(Attachment{}, 0)
	if err == nil {
		t.Error("expected error for empty attachment")
	}

	_, err = Resolve(Attachment{URL: "https://example.com/a.jpg", Data: pngBytes}, 0)
	if err == nil {
		t.Error("expected error for ambiguous attachment")
	}
}

func TestResolveAllFailsFast(t *testing.T) {
	atts := []Attachment{
		{URL: "https://example.com/ok.jpg"},
		{Base64: "bad"},
		{Data: pngBytes},
	}
	_, err := ResolveAll(atts)
	var invalid *InvalidAttachmentError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidAttachmentError, got: %v", err)
	}
	if invalid.Index != 1 {
		t.Errorf("expected failure at index 1, got %d", invalid.Index)
	}
}
