package domain

import (
	"fmt"
	"strings"
)

// DownloadKind selects what the remote service should produce
type DownloadKind string

const (
	KindVideo DownloadKind = "video"
	KindAudio DownloadKind = "audio"
)

// DefaultAudioBitrate is sent when the caller does not pick one
const DefaultAudioBitrate = 192

// ValidateKind checks if a download kind is valid
func ValidateKind(kind DownloadKind) bool {
	return kind == KindVideo || kind == KindAudio
}

// DownloadRequest is one user submission to the remote job API
type DownloadRequest struct {
	URL           string
	Kind          DownloadKind
	MaxHeight     *int
	AudioBitrate  int
	CustomCookies string // Netscape cookie-file text, empty when none
}

// NewDownloadRequest validates the inputs and builds a request.
// A non-positive bitrate falls back to DefaultAudioBitrate and a
// non-positive maxHeight means "best available".
func NewDownloadRequest(rawURL string, kind DownloadKind, maxHeight, audioBitrate int, customCookies string) (DownloadRequest, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return DownloadRequest{}, fmt.Errorf("please enter a video URL")
	}
	abs, ok := Resolve(rawURL, "")
	if !ok {
		return DownloadRequest{}, fmt.Errorf("please enter a valid URL: %s", rawURL)
	}

	if kind == "" {
		kind = KindVideo
	}
	if !ValidateKind(kind) {
		return DownloadRequest{}, fmt.Errorf("invalid kind: %s", kind)
	}

	req := DownloadRequest{
		URL:           abs,
		Kind:          kind,
		AudioBitrate:  audioBitrate,
		CustomCookies: strings.TrimSpace(customCookies),
	}
	if req.AudioBitrate <= 0 {
		req.AudioBitrate = DefaultAudioBitrate
	}
	if kind == KindVideo && maxHeight > 0 {
		h := maxHeight
		req.MaxHeight = &h
	}

	return req, nil
}

// Payload returns the JSON body for the creation call
func (r DownloadRequest) Payload() map[string]interface{} {
	payload := map[string]interface{}{
		"url":           r.URL,
		"kind":          string(r.Kind),
		"audio_bitrate": r.AudioBitrate,
	}
	if r.MaxHeight != nil {
		payload["max_height"] = *r.MaxHeight
	}
	if r.CustomCookies != "" {
		payload["custom_cookies"] = r.CustomCookies
	}
	return payload
}
