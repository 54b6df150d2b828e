package domain

import (
	"net/url"
	"regexp"
	"strings"
)

// mediaExtensionPattern matches direct media file addresses
var mediaExtensionPattern = regexp.MustCompile(`(?i)\.(mp4|webm|ogg|mp3|m4a|wav|flac|aac|m3u8|mpd)(\?.*)?$`)

// platformPatterns match known video/social and audio platform page shapes
var platformPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)youtube\.com/watch`),
	regexp.MustCompile(`(?i)youtu\.be/`),
	regexp.MustCompile(`(?i)vimeo\.com/`),
	regexp.MustCompile(`(?i)dailymotion\.com/`),
	regexp.MustCompile(`(?i)twitch\.tv/`),
	regexp.MustCompile(`(?i)tiktok\.com/`),
	regexp.MustCompile(`(?i)facebook\.com/.*/videos/`),
	regexp.MustCompile(`(?i)instagram\.com/(p|reel|tv)/`),
	regexp.MustCompile(`(?i)twitter\.com/.*/status/`),
	regexp.MustCompile(`(?i)x\.com/.*/status/`),
	regexp.MustCompile(`(?i)streamable\.com/`),
	regexp.MustCompile(`(?i)imgur\.com/.*\.(mp4|gifv)`),
	regexp.MustCompile(`(?i)gfycat\.com/`),
	regexp.MustCompile(`(?i)redgifs\.com/`),
	regexp.MustCompile(`(?i)reddit\.com/.*/comments/`),
	regexp.MustCompile(`(?i)v\.redd\.it/`),
	regexp.MustCompile(`(?i)soundcloud\.com/`),
	regexp.MustCompile(`(?i)spotify\.com/track/`),
	regexp.MustCompile(`(?i)bandcamp\.com/track/`),
	regexp.MustCompile(`(?i)mixcloud\.com/`),
}

// streamPatterns match adaptive streaming manifests
var streamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.m3u8`),
	regexp.MustCompile(`(?i)\.mpd`),
	regexp.MustCompile(`(?i)manifest\.(m3u8|mpd)`),
	regexp.MustCompile(`(?i)playlist\.m3u8`),
	regexp.MustCompile(`(?i)master\.m3u8`),
}

// rejectedPrefixes are schemes that can never be handed to an external downloader
var rejectedPrefixes = []string{"blob:", "data:", "chrome:", "chrome-extension:"}

// Classifier decides whether an address references playable media
type Classifier struct {
	media   []*regexp.Regexp
	streams []*regexp.Regexp
}

var defaultClassifier = DefaultClassifier()

// DefaultClassifier returns a classifier with the built-in rule set
func DefaultClassifier() *Classifier {
	media := make([]*regexp.Regexp, 0, len(platformPatterns)+1)
	media = append(media, mediaExtensionPattern)
	media = append(media, platformPatterns...)
	return &Classifier{
		media:   media,
		streams: append([]*regexp.Regexp(nil), streamPatterns...),
	}
}

// WithMediaRules returns a copy of the classifier extended with extra media rules
func (c *Classifier) WithMediaRules(rules ...*regexp.Regexp) *Classifier {
	media := make([]*regexp.Regexp, 0, len(c.media)+len(rules))
	media = append(media, c.media...)
	media = append(media, rules...)
	return &Classifier{media: media, streams: c.streams}
}

// Resolve turns candidate into an absolute http(s) address using pageBase for
// relative references. It reports false for anything a downloader cannot fetch.
func Resolve(candidate, pageBase string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || hasRejectedPrefix(candidate) {
		return "", false
	}

	ref, err := url.Parse(candidate)
	if err != nil {
		return "", false
	}

	if !ref.IsAbs() {
		if pageBase == "" {
			return "", false
		}
		base, err := url.Parse(pageBase)
		if err != nil || !base.IsAbs() {
			return "", false
		}
		ref = base.ResolveReference(ref)
	}

	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	if ref.Host == "" {
		return "", false
	}

	return ref.String(), true
}

// IsMediaURL reports whether candidate, resolved against pageBase, matches a media rule
func (c *Classifier) IsMediaURL(candidate, pageBase string) bool {
	abs, ok := Resolve(candidate, pageBase)
	if !ok {
		return false
	}
	return matchesAny(c.media, abs)
}

// IsStreamURL reports whether candidate looks like a stream manifest. It only
// inspects the string; relative manifests match too.
func (c *Classifier) IsStreamURL(candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || strings.HasPrefix(candidate, "blob:") || strings.HasPrefix(candidate, "data:") {
		return false
	}
	return matchesAny(c.streams, candidate)
}

// IsStreamURLFrom is IsStreamURL that additionally requires candidate to
// resolve against pageBase to a fetchable http(s) address.
func (c *Classifier) IsStreamURLFrom(candidate, pageBase string) bool {
	if !c.IsStreamURL(candidate) {
		return false
	}
	_, ok := Resolve(candidate, pageBase)
	return ok
}

// IsMediaURL classifies candidate with the default rule set
func IsMediaURL(candidate, pageBase string) bool {
	return defaultClassifier.IsMediaURL(candidate, pageBase)
}

// IsStreamURL classifies candidate with the default rule set
func IsStreamURL(candidate string) bool {
	return defaultClassifier.IsStreamURL(candidate)
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func hasRejectedPrefix(s string) bool {
	lower := strings.ToLower(s)
	for _, prefix := range rejectedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
