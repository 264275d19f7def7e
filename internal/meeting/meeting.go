// Package meeting derives meeting identifiers from page addresses.
package meeting

import (
	"net/url"
	"regexp"
	"strings"
)

// Platform tags attached to recording metadata.
const (
	PlatformGoogleMeet = "google-meet"
	PlatformUnknown    = "unknown"
)

// DefaultHosts are recognized without configuration.
var DefaultHosts = []string{"meet.google.com", "meet.example"}

var meetingCodePattern = regexp.MustCompile(`^[a-z]{3}-[a-z]{4}-[a-z]{3}$`)

// Extractor recognizes meeting addresses on a fixed set of hosts.
type Extractor struct {
	hosts map[string]struct{}
}

// NewExtractor builds an extractor for DefaultHosts plus any extra hosts.
func NewExtractor(extra ...string) *Extractor {
	hosts := make(map[string]struct{}, len(DefaultHosts)+len(extra))
	for _, h := range append(append([]string(nil), DefaultHosts...), extra...) {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts[h] = struct{}{}
		}
	}
	return &Extractor{hosts: hosts}
}

// MeetingID returns the meeting code in rawURL, or "" when the address is
// not a recognized meeting page.
func (e *Extractor) MeetingID(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return ""
	}
	if _, ok := e.hosts[strings.ToLower(parsed.Hostname())]; !ok {
		return ""
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	last := segments[len(segments)-1]
	if !meetingCodePattern.MatchString(last) {
		return ""
	}
	return last
}

// ExtractMeetingID applies the default extractor.
func ExtractMeetingID(rawURL string) string {
	return defaultExtractor.MeetingID(rawURL)
}

var defaultExtractor = NewExtractor()

// Platform returns the platform tag implied by meetingID.
func Platform(meetingID string) string {
	if meetingID != "" {
		return PlatformGoogleMeet
	}
	return PlatformUnknown
}
