// Package config defines the engine's settings snapshot and the layered
// configuration loader that produces it, plus a small persisted-overrides
// manager backed by the ambient storage database.
package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"aio-download-engine/internal/storage"
)

// DownloadLocation selects the destination directory root.
type DownloadLocation int

const (
	PrivateFolder DownloadLocation = iota
	SystemGallery
)

// Settings is the deep-copyable snapshot consumed by a TaskEngine at
// creation time. Changes to the live Settings after a task starts must not
// perturb tasks already running against an earlier snapshot — callers copy
// by value (Settings contains no pointers or slices) rather than sharing a
// pointer into mutable state.
type Settings struct {
	DefaultDownloadLocation       DownloadLocation
	DefaultParallelConnections    int
	DefaultThreadConnections      int // 1..18
	DownloadBufferSize            int
	DownloadHTTPProxyServer       string
	DownloadHTTPUserAgent         string
	DownloadMaxHTTPReadingTimeout int // seconds
	DownloadMaxNetworkSpeed       int64
	AutoResume                    bool
	AutoResumeMaxErrors           int
	AutoRemoveTasks               bool
	AutoRemoveTaskAfterNDays      int
	DownloadVerifyChecksum        bool
	DownloadWifiOnly              bool
	DownloadPlayNotificationSound bool
	DownloadHideNotification      bool
}

// Defaults returns the compiled-in baseline settings.
func Defaults() Settings {
	return Settings{
		DefaultDownloadLocation:       PrivateFolder,
		DefaultParallelConnections:    3,
		DefaultThreadConnections:      4,
		DownloadBufferSize:            32 * 1024,
		DownloadHTTPUserAgent:         "",
		DownloadMaxHTTPReadingTimeout: 30,
		DownloadMaxNetworkSpeed:       0,
		AutoResume:                    true,
		AutoResumeMaxErrors:           3,
		AutoRemoveTasks:               false,
		AutoRemoveTaskAfterNDays:      7,
		DownloadVerifyChecksum:        false,
		DownloadWifiOnly:              false,
		DownloadPlayNotificationSound: true,
		DownloadHideNotification:      false,
	}
}

// Snapshot returns a structural clone suitable for embedding in a Record.
// Settings holds only value fields, so a plain copy already satisfies the
// "deep copy, no shared mutable state" requirement.
func (s Settings) Snapshot() Settings {
	return s
}

// Load builds a Settings by layering, in increasing priority: compiled-in
// defaults, an optional "key = value" config file, then environment
// variables prefixed AIODL_. The caller (cmd/enginectl) overlays any
// persisted overrides on top of the result through Manager.Apply; no CLI
// flag sets a field of Settings.
func Load(configPath string) (Settings, error) {
	s := Defaults()

	if configPath != "" {
		if f, err := os.Open(configPath); err == nil {
			defer f.Close()
			applyKeyValueFile(&s, f)
		}
	}

	applyEnv(&s)
	return s, nil
}

func applyKeyValueFile(s *Settings, f *os.File) {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		setField(s, strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	}
}

func applyEnv(s *Settings) {
	const prefix = "AIODL_"
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], prefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(parts[0], prefix))
		setField(s, key, parts[1])
	}
}

func setField(s *Settings, key, value string) {
	switch strings.ToLower(key) {
	case "default_parallel_connections":
		s.DefaultParallelConnections = atoiOr(value, s.DefaultParallelConnections)
	case "default_thread_connections":
		s.DefaultThreadConnections = clamp(atoiOr(value, s.DefaultThreadConnections), 1, 18)
	case "download_buffer_size":
		s.DownloadBufferSize = atoiOr(value, s.DownloadBufferSize)
	case "download_http_proxy_server":
		s.DownloadHTTPProxyServer = value
	case "download_http_user_agent":
		s.DownloadHTTPUserAgent = value
	case "download_max_http_reading_timeout":
		s.DownloadMaxHTTPReadingTimeout = atoiOr(value, s.DownloadMaxHTTPReadingTimeout)
	case "download_max_network_speed":
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			s.DownloadMaxNetworkSpeed = v
		}
	case "auto_resume":
		s.AutoResume = value == "true" || value == "1"
	case "auto_resume_max_errors":
		s.AutoResumeMaxErrors = atoiOr(value, s.AutoResumeMaxErrors)
	case "auto_remove_tasks":
		s.AutoRemoveTasks = value == "true" || value == "1"
	case "auto_remove_task_after_n_days":
		s.AutoRemoveTaskAfterNDays = atoiOr(value, s.AutoRemoveTaskAfterNDays)
	case "download_verify_checksum":
		s.DownloadVerifyChecksum = value == "true" || value == "1"
	case "download_wifi_only":
		s.DownloadWifiOnly = value == "true" || value == "1"
	case "download_play_notification_sound":
		s.DownloadPlayNotificationSound = value == "true" || value == "1"
	case "download_hide_notification":
		s.DownloadHideNotification = value == "true" || value == "1"
	case "default_download_location":
		if strings.EqualFold(value, "system_gallery") {
			s.DefaultDownloadLocation = SystemGallery
		} else {
			s.DefaultDownloadLocation = PrivateFolder
		}
	}
}

func atoiOr(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Keys for persisted overrides stored in the ambient database.
const (
	KeyUserAgent            = "download_http_user_agent"
	KeyEnableIntegrityCheck = "download_verify_checksum"
	KeyWifiOnly             = "download_wifi_only"
)

// Manager persists a small set of user-editable settings overrides into the
// ambient storage database, the way the donor project's ConfigManager
// wraps a key/value settings table.
type Manager struct {
	storage *storage.Storage
}

func NewManager(s *storage.Storage) *Manager {
	return &Manager{storage: s}
}

// Apply overlays any persisted overrides onto a base Settings snapshot.
func (m *Manager) Apply(base Settings) Settings {
	if ua, err := m.storage.GetString(KeyUserAgent); err == nil && ua != "" {
		base.DownloadHTTPUserAgent = ua
	}
	if v, err := m.storage.GetString(KeyEnableIntegrityCheck); err == nil && v != "" {
		base.DownloadVerifyChecksum = v == "true"
	}
	if v, err := m.storage.GetString(KeyWifiOnly); err == nil && v != "" {
		base.DownloadWifiOnly = v == "true"
	}
	return base
}

func (m *Manager) SetUserAgent(ua string) error {
	return m.storage.SetString(KeyUserAgent, ua)
}

func (m *Manager) SetVerifyChecksum(enabled bool) error {
	return m.storage.SetString(KeyEnableIntegrityCheck, boolStr(enabled))
}

func (m *Manager) SetWifiOnly(enabled bool) error {
	return m.storage.SetString(KeyWifiOnly, boolStr(enabled))
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
