package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	maxImageLongSide = 1280
	maxImageBytes    = 900 * 1024
)

// ImageSource produces one snapshot per call. There is no format contract
// beyond "something the vision endpoint accepts"; capture output is passed
// through PrepareImage before upload.
type ImageSource interface {
	Capture() ([]byte, error)
}

// URLSource pulls a snapshot over HTTP, the usual shape for IP cameras that
// expose a still-frame endpoint.
type URLSource struct {
	URL    string
	Token  string
	client *http.Client
}

func (s *URLSource) Capture() ([]byte, error) {
	req, err := http.NewRequest("GET", s.URL, nil)
	if err != nil {
		return nil, &CaptureError{Source: s.URL, Err: err}
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	client := s.client
	if client == nil {
		client = snapshotHTTPClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &CaptureError{Source: s.URL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CaptureError{Source: s.URL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &CaptureError{Source: s.URL, Err: fmt.Errorf("snapshot HTTP %d", resp.StatusCode)}
	}
	return body, nil
}

// FileSource reads the latest frame a wired camera dropped to disk.
type FileSource struct {
	Path string
}

func (s *FileSource) Capture() ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, &CaptureError{Source: s.Path, Err: err}
	}
	return data, nil
}

// NewImageSource builds a source from a spot's config. An explicit kind
// wins; otherwise anything that looks like an HTTP URL is treated as one.
func NewImageSource(cfg SpotConfig) (ImageSource, error) {
	kind := cfg.SourceKind
	if kind == "" {
		if strings.HasPrefix(cfg.Source, "http://") || strings.HasPrefix(cfg.Source, "https://") {
			kind = "url"
		} else {
			kind = "file"
		}
	}
	switch kind {
	case "url":
		return &URLSource{URL: cfg.Source, Token: cfg.SourceToken}, nil
	case "file":
		return &FileSource{Path: cfg.Source}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

// PrepareImage normalizes a captured frame for upload: decode (honoring
// EXIF orientation), downscale to fit the long side, then JPEG-encode,
// stepping quality down until the payload fits under the byte cap.
// Undecodable bytes are a capture failure.
func PrepareImage(raw []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &CaptureError{Source: "image decode", Err: err}
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxImageLongSide || bounds.Dy() > maxImageLongSide {
		img = imaging.Fit(img, maxImageLongSide, maxImageLongSide, imaging.Lanczos)
	}

	var encoded []byte
	for quality := 85; quality >= 35; quality -= 10 {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, &CaptureError{Source: "image encode", Err: err}
		}
		encoded = buf.Bytes()
		if len(encoded) <= maxImageBytes {
			return encoded, nil
		}
	}

	// Even minimum quality came out oversized. Ship it anyway; the provider
	// rejecting it surfaces as a normal analysis failure.
	log.Printf("image still oversized after re-encode bytes=%d cap=%d", len(encoded), maxImageBytes)
	return encoded, nil
}
