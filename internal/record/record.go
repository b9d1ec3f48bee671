// Package record defines the persisted download task document: its fields,
// its invariants, and the mutators that are allowed to change it. Record
// itself never touches disk — that is RecordStore's job (package
// recordstore) — and never spawns goroutines; it is a plain value type
// manipulated exclusively by its owning TaskEngine.
package record

import (
	"path/filepath"
	"strings"
	"time"

	"aio-download-engine/internal/config"

	"github.com/google/uuid"
)

// Status is one of the three coarse lifecycle states a Record can be in.
type Status string

const (
	StatusClosed      Status = "CLOSED"
	StatusDownloading Status = "DOWNLOADING"
	StatusComplete    Status = "COMPLETE"
)

// TransferKind distinguishes a plain ranged-HTTP transfer from one
// delegated to the external extractor, replacing the source's inheritance
// hierarchy with a tagged variant (SPEC_FULL §9).
type TransferKind string

const (
	TransferDirectHTTP      TransferKind = "direct_http"
	TransferExtractorBacked TransferKind = "extractor_backed"
)

// destinationPlaceholderBytes is the size of the placeholder file created
// before a direct transfer begins. The donor's own format does not explain
// why this value was chosen; it is preserved verbatim as an opaque
// constant (see DESIGN.md / SPEC_FULL §9 open questions).
const destinationPlaceholderBytes = 108

// tempFileSuffix is appended to the destination filename while a direct
// transfer is still in flight.
const tempFileSuffix = ".aio_download"

// VideoInfo holds remote video metadata populated on the extractor path.
type VideoInfo struct {
	Title          string `json:"title"`
	URL            string `json:"url"`
	Referer        string `json:"referer"`
	CookieTempPath string `json:"cookieTempPath"`
	ThumbnailURL   string `json:"thumbnailUrl"`
}

// VideoFormat is the selected extractor output format.
type VideoFormat struct {
	ID                string `json:"id"`
	ResolutionLabel   string `json:"resolutionLabel"`
	VideoCodec        string `json:"videoCodec"`
	AudioOnly         bool   `json:"audioOnly"`
	IsFromSocialMedia bool   `json:"isFromSocialMedia"`
}

// Record is the single source of truth for a task's state. Field names
// match §3 of the specification exactly: this is a compatibility surface
// for the JSON mirror and the Merger's freshness check, so renaming a
// field is a breaking change.
type Record struct {
	ID     string       `json:"id"`
	Status Status       `json:"status"`
	Kind   TransferKind `json:"kind"`

	IsRunning           bool `json:"isRunning"`
	IsComplete          bool `json:"isComplete"`
	IsDeleted           bool `json:"isDeleted"`
	IsRemoved           bool `json:"isRemoved"`
	IsWaitingForNetwork bool `json:"isWaitingForNetwork"`

	IsFileUrlExpired         bool   `json:"isFileUrlExpired"`
	IsFailedToAccessFile     bool   `json:"isFailedToAccessFile"`
	IsDestinationFileMissing bool   `json:"isDestinationFileMissing"`
	ExtractorProblem         bool   `json:"extractorProblem"`
	ExtractorProblemMsg      string `json:"extractorProblemMsg"`
	StatusMessage            string `json:"statusMessage"`

	FileURL                string            `json:"fileURL"`
	SiteReferrer            string            `json:"siteReferrer"`
	ExtraHeaders            map[string]string `json:"extraHeaders"`
	ExtraHeaderOrder        []string          `json:"extraHeaderOrder"`
	FileName                string            `json:"fileName"`
	FileDirectory           string            `json:"fileDirectory"`
	FileMimeType            string            `json:"fileMimeType"`
	FileContentDisposition  string            `json:"fileContentDisposition"`
	FileDirectoryUri        string            `json:"fileDirectoryUri"`
	CookieString            string            `json:"cookieString"`
	ThumbPath               string            `json:"thumbPath"`
	ThumbnailUrl            string            `json:"thumbnailUrl"`
	MediaFilePlaybackDuration string          `json:"mediaFilePlaybackDuration"`

	FileSize          int64  `json:"fileSize"`
	IsUnknownFileSize bool   `json:"isUnknownFileSize"`
	FileChecksum      string `json:"fileChecksum"`
	HashAlgorithm     string `json:"hashAlgorithm"`

	DownloadedByte     int64   `json:"downloadedByte"`
	ProgressPercentage float64 `json:"progressPercentage"`

	PartStartingPoint      []int64   `json:"partStartingPoint"`
	PartEndingPoint        []int64   `json:"partEndingPoint"`
	PartChunkSizes         []int64   `json:"partChunkSizes"`
	PartsDownloadedByte    []int64   `json:"partsDownloadedByte"`
	PartProgressPercentage []float64 `json:"partProgressPercentage"`

	StartTimeDate        int64  `json:"startTimeDate"`
	LastModifiedTimeDate int64  `json:"lastModifiedTimeDate"`
	TimeSpentInMilliSec  int64  `json:"timeSpentInMilliSec"`
	RemainingTimeInSec   int64  `json:"remainingTimeInSec"`
	AverageSpeed         int64  `json:"averageSpeed"`
	MaxSpeed             int64  `json:"maxSpeed"`
	RealtimeSpeed        int64  `json:"realtimeSpeed"`

	FormattedDownloadedByte string `json:"formattedDownloadedByte"`
	FormattedFileSize      string `json:"formattedFileSize"`
	FormattedAverageSpeed  string `json:"formattedAverageSpeed"`
	FormattedMaxSpeed      string `json:"formattedMaxSpeed"`
	FormattedRealtimeSpeed string `json:"formattedRealtimeSpeed"`
	FormattedTimeSpent     string `json:"formattedTimeSpent"`
	FormattedRemainingTime string `json:"formattedRemainingTime"`

	IsResumeSupported      bool `json:"isResumeSupported"`
	IsMultiThreadSupported bool `json:"isMultiThreadSupported"`

	ResumeSessionRetryCount       int `json:"resumeSessionRetryCount"`
	TotalTrackedConnectionRetries int `json:"totalTrackedConnectionRetries"`

	VideoInfo                        *VideoInfo   `json:"videoInfo,omitempty"`
	VideoFormat                      *VideoFormat `json:"videoFormat,omitempty"`
	TempYtdlpDestinationFilePath     string       `json:"tempYtdlpDestinationFilePath"`
	TempYtdlpStatusInfo              string       `json:"tempYtdlpStatusInfo"`
	ExecutionCommand                 string       `json:"executionCommand"`
	IsBasicExtractorModelInitialized bool         `json:"isBasicExtractorModelInitialized"`
	IsSmartCategoryDirProcessed       bool        `json:"isSmartCategoryDirProcessed"`

	GlobalSettings config.Settings `json:"globalSettings"`
}

// New creates a fresh Record for a direct-HTTP or extractor-backed task,
// sizing the per-part arrays to the settings snapshot's thread count and
// taking a structural clone of the settings (SPEC_FULL §9: settings
// changes after creation must not perturb an in-flight task).
func New(fileURL string, kind TransferKind, settings config.Settings) *Record {
	n := settings.DefaultThreadConnections
	if n < 1 {
		n = 1
	}
	if n > 18 {
		n = 18
	}
	now := time.Now().UnixMilli()
	return &Record{
		ID:                      uuid.NewString(),
		Status:                  StatusClosed,
		Kind:                    kind,
		FileURL:                 fileURL,
		ExtraHeaders:            map[string]string{},
		FileSize:                -1,
		IsUnknownFileSize:       true,
		PartStartingPoint:       make([]int64, n),
		PartEndingPoint:         make([]int64, n),
		PartChunkSizes:          make([]int64, n),
		PartsDownloadedByte:     make([]int64, n),
		PartProgressPercentage:  make([]float64, n),
		StartTimeDate:           now,
		LastModifiedTimeDate:    now,
		GlobalSettings:          settings.Snapshot(),
	}
}

// touch updates lastModifiedTimeDate only.
func (r *Record) Touch() {
	r.LastModifiedTimeDate = time.Now().UnixMilli()
}

// MarkCompleted applies the completion invariant atomically: percentage
// 100, every part full, zero realtime speed.
func (r *Record) MarkCompleted() {
	r.Status = StatusComplete
	r.IsRunning = false
	r.IsComplete = true
	r.ProgressPercentage = 100
	r.DownloadedByte = r.FileSize
	for i := range r.PartProgressPercentage {
		r.PartProgressPercentage[i] = 100
		if i < len(r.PartsDownloadedByte) && i < len(r.PartChunkSizes) {
			r.PartsDownloadedByte[i] = r.PartChunkSizes[i]
		}
	}
	r.RealtimeSpeed = 0
	r.FormattedRealtimeSpeed = formatSpeed(0)
	r.Touch()
}

// ResetTransients zeros realtime-speed fields; called before persistence
// so a reloaded Record never shows a stale in-flight speed.
func (r *Record) ResetTransients() {
	r.RealtimeSpeed = 0
	r.FormattedRealtimeSpeed = formatSpeed(0)
}

// DestinationPath derives the final on-disk path from fileDirectory/fileName.
func (r *Record) DestinationPath() string {
	return collapseSeparators(filepath.Join(r.FileDirectory, r.FileName))
}

// TempDestinationPath is the in-flight path for a direct transfer.
func (r *Record) TempDestinationPath() string {
	return r.DestinationPath() + tempFileSuffix
}

// CookieFilePath derives the per-id Netscape cookie file path under dir.
// ok is false if the record has no cookies to persist.
func (r *Record) CookieFilePath(dataDir string) (path string, ok bool) {
	if strings.TrimSpace(r.CookieString) == "" {
		return "", false
	}
	return filepath.Join(dataDir, r.ID+"_cookies.txt"), true
}

// collapseSeparators reduces every run of repeated path separators in p to
// a single separator.
func collapseSeparators(p string) string {
	for strings.Contains(p, string(filepath.Separator)+string(filepath.Separator)) {
		p = strings.ReplaceAll(p, string(filepath.Separator)+string(filepath.Separator), string(filepath.Separator))
	}
	return p
}

func formatSpeed(bytesPerSec int64) string {
	const unit = 1024
	if bytesPerSec < unit {
		return intToStr(bytesPerSec) + " B/s"
	}
	div, exp := int64(unit), 0
	for n := bytesPerSec / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := "KMGTPE"
	return formatFloat(float64(bytesPerSec)/float64(div)) + " " + string(units[exp]) + "iB/s"
}

func intToStr(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func formatFloat(f float64) string {
	whole := int64(f)
	frac := int64((f - float64(whole)) * 10)
	if frac < 0 {
		frac = -frac
	}
	return intToStr(whole) + "." + intToStr(frac)
}

// DestinationPlaceholderBytes exposes the placeholder size for TaskEngine.
func DestinationPlaceholderBytes() int64 { return destinationPlaceholderBytes }
