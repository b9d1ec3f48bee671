// Package retry classifies extractor/transport failures into a fixed
// tag taxonomy and decides the resulting action, mirroring the
// substring-based categorizeError switch the teacher's external-process
// donor uses for its own yt-dlp output.
package retry

import (
	"errors"
	"strings"
)

// ProblemTag is the classification extracted from a failure.
type ProblemTag string

const (
	TagNone               ProblemTag = ""
	TagDownloadIOFailed   ProblemTag = "DOWNLOAD_IO_FAILED"
	TagLinkExpired        ProblemTag = "LINK_EXPIRED"
	TagFileDeletedPaused  ProblemTag = "FILE_DELETED_PAUSED"
	TagLoginRequired      ProblemTag = "LOGIN_REQUIRED"
	TagContentUnavailable ProblemTag = "CONTENT_UNAVAILABLE"
	TagFormatUnavailable  ProblemTag = "FORMAT_UNAVAILABLE"
	TagSiteBanned         ProblemTag = "SITE_BANNED"
	TagServerIssue        ProblemTag = "SERVER_ISSUE"
	TagDownloadFailed     ProblemTag = "DOWNLOAD_FAILED"
)

// Sentinel errors, one per tag that TaskEngine itself detects directly in
// Go code rather than scraping from an external subprocess's text output
// (LOGIN_REQUIRED and friends below only ever arrive as extractor
// stderr/stdout, so they have no Go-side sentinel). Wrap these with
// fmt.Errorf("...: %w", ErrX) at the call site; ClassifyErr still
// resolves the tag through the wrapping via errors.Is.
var (
	ErrDownloadIOFailed  = errors.New(string(TagDownloadIOFailed))
	ErrLinkExpired       = errors.New(string(TagLinkExpired))
	ErrFileDeletedPaused = errors.New(string(TagFileDeletedPaused))
)

var sentinels = []struct {
	err error
	tag ProblemTag
}{
	{ErrLinkExpired, TagLinkExpired},
	{ErrFileDeletedPaused, TagFileDeletedPaused},
	{ErrDownloadIOFailed, TagDownloadIOFailed},
}

// classificationRule pairs a case-insensitive substring with its tag. The
// table is walked in order so earlier entries take priority on overlap.
// These only ever match raw extractor subprocess text, which carries no
// Go sentinel of its own.
var classificationRules = []struct {
	substring string
	tag       ProblemTag
}{
	{"rate-limit reached or login required", TagLoginRequired},
	{"content may be inappropriate", TagLoginRequired},
	{"restricted video", TagLoginRequired},
	{"--cookies for the authentication", TagLoginRequired},
	{"requested content is not available", TagContentUnavailable},
	{"requested format is not available", TagFormatUnavailable},
	{"connection reset by peer", TagSiteBanned},
	{"youtubedlexception", TagServerIssue},
}

// UserMessages maps each tag to the status message surfaced on the Record.
var UserMessages = map[ProblemTag]string{
	TagDownloadIOFailed:   "Could not create or write the destination file",
	TagLinkExpired:        "This link has expired",
	TagFileDeletedPaused:  "Destination file is missing; download paused",
	TagLoginRequired:      "Login or cookies required to access this content",
	TagContentUnavailable: "Requested content is not available",
	TagFormatUnavailable:  "Requested format is not available",
	TagSiteBanned:         "Site temporarily banned this connection",
	TagServerIssue:        "Server issue, try again later",
	TagDownloadFailed:     "Download failed after exhausting retries",
}

// ClassifyErr resolves a Go error to its tag. It checks the sentinel
// table first via errors.Is — so a sentinel wrapped with fmt.Errorf's
// %w still resolves correctly — and only falls back to Classify's
// substring match over err.Error() for errors that originate outside
// this process (extractor stderr/stdout), which never carry one of the
// sentinels above.
func ClassifyErr(err error) ProblemTag {
	if err == nil {
		return TagNone
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.tag
		}
	}
	return Classify(err.Error())
}

// Classify inspects raw text (extractor stderr/stdout) case-insensitively
// and returns the first matching tag, or TagNone.
func Classify(raw string) ProblemTag {
	lower := strings.ToLower(raw)
	for _, rule := range classificationRules {
		if strings.Contains(lower, rule.substring) {
			return rule.tag
		}
	}
	if strings.Contains(lower, "exception") {
		return TagServerIssue
	}
	return TagNone
}

// Action is the decision RetryPolicy hands back to TaskEngine.
type Action int

const (
	ActionCloseWithTag Action = iota
	ActionForcedRestart
	ActionRestartViaNetworkGate
	ActionCloseBudgetExhausted
)

// Decide implements the §4.6 decision table. hasError reports whether an
// explicit error/failure occurred this tick (as opposed to merely
// waiting); resumeRetryCount/maxErrors are read from the Record's
// resumeSessionRetryCount / globalSettings.autoResumeMaxErrors.
func Decide(tag ProblemTag, hasError bool, resumeRetryCount, maxErrors int) Action {
	if tag != TagNone {
		return ActionCloseWithTag
	}
	if hasError {
		if resumeRetryCount < maxErrors {
			return ActionForcedRestart
		}
		return ActionCloseBudgetExhausted
	}
	return ActionRestartViaNetworkGate
}
