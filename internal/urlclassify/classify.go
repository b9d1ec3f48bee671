// Package urlclassify implements the URLClassifier collaborator: small,
// pure predicates over a fileURL used to route it through the
// extractor-backed path, strip playlist markers, and guess expiry.
package urlclassify

import (
	"net/url"
	"strings"
	"time"
)

var socialMediaDomains = []string{
	"youtube.com", "youtu.be", "facebook.com", "fb.watch", "instagram.com",
	"twitter.com", "x.com", "tiktok.com", "reddit.com", "vimeo.com",
	"dailymotion.com", "twitch.tv", "snapchat.com",
}

// IsSocialMediaURL reports whether the URL's host matches a known
// social-media/video-sharing domain (including common subdomains).
func IsSocialMediaURL(rawURL string) bool {
	host := getBaseDomainLower(rawURL)
	for _, d := range socialMediaDomains {
		if host == d {
			return true
		}
	}
	return false
}

// IsYouTubeURL reports whether the URL points at youtube.com or youtu.be.
func IsYouTubeURL(rawURL string) bool {
	host := getBaseDomainLower(rawURL)
	return host == "youtube.com" || host == "youtu.be"
}

// FilterYoutubeURLWithoutPlaylist strips a "list=" query parameter (and
// any "index="/"start_radio=" companions) from a YouTube URL so a
// single-video extraction never accidentally pulls an entire playlist.
func FilterYoutubeURLWithoutPlaylist(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Del("list")
	q.Del("index")
	q.Del("start_radio")
	u.RawQuery = q.Encode()
	return u.String()
}

// expiryQueryParams are query keys whose value is an absolute expiry time
// on a time-boxed signed URL (cloud storage, CDN edge tokens). Keys are
// matched exactly, case included. Their absence never proves non-expiry,
// so IsURLExpired reports true only for a parsed expiry already in the
// past.
var expiryQueryParams = []string{"expires", "exp", "se", "expiry"}

// IsURLExpired applies a conservative query-parameter heuristic: it looks
// for a recognizable Unix-epoch or RFC3339 expiry token and reports true
// only if one is present and already in the past.
func IsURLExpired(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	q := u.Query()
	for _, key := range expiryQueryParams {
		v := q.Get(key)
		if v == "" {
			continue
		}
		if t, ok := parseEpochOrRFC3339(v); ok {
			return time.Now().After(t)
		}
	}
	return false
}

func parseEpochOrRFC3339(v string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	var seconds int64
	for _, c := range v {
		if c < '0' || c > '9' {
			return time.Time{}, false
		}
	}
	if len(v) == 0 {
		return time.Time{}, false
	}
	for _, c := range v {
		seconds = seconds*10 + int64(c-'0')
	}
	if seconds <= 0 {
		return time.Time{}, false
	}
	return time.Unix(seconds, 0), true
}

// GetBaseDomain returns the registrable-ish base domain (last two labels)
// of the URL's host, lower-cased, e.g. "www.youtube.com" -> "youtube.com".
func GetBaseDomain(rawURL string) string {
	return getBaseDomainLower(rawURL)
}

func getBaseDomainLower(rawURL string) string {
	u, err := url.Parse(rawURL)
	host := ""
	if err == nil {
		host = u.Hostname()
	}
	if host == "" {
		// Tolerate a bare host/path without a scheme.
		host = rawURL
		if i := strings.Index(host, "/"); i >= 0 {
			host = host[:i]
		}
	}
	host = strings.ToLower(host)
	labels := strings.Split(host, ".")
	if len(labels) >= 2 {
		return labels[len(labels)-2] + "." + labels[len(labels)-1]
	}
	return host
}
