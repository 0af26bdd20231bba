// Package settings loads runlens configuration.
//
// Values come from, in order of precedence, flags bound by the CLI,
// RUNLENS_* environment variables, the config file and defaults.
package settings

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wandb/runlens/internal/runregistry"
	"github.com/wandb/runlens/pkg/leveldb"
)

// EnvPrefix is the prefix of environment variables read as settings.
const EnvPrefix = "RUNLENS"

// Keys of the settings.
const (
	KeyCacheSize           = "cache_size"
	KeyQuickScanBytes      = "quick_scan_bytes"
	KeyQuickScanMaxRecords = "quick_scan_max_records"
	KeyDebounce            = "debounce"
	KeyPollInterval        = "poll_interval"
	KeyMaxConcurrentParses = "max_concurrent_parses"
	KeyMaxConcurrentScans  = "max_concurrent_scans"
	KeyVerifyChecksums     = "verify_checksums"
	KeyChecksumAlgo        = "checksum_algo"
	KeyPalette             = "palette"
	KeyNotifyRate          = "notify_rate"
	KeyErrorReporting      = "error_reporting"
	KeySentryDSN           = "sentry_dsn"
)

// ValidKeys are the keys that can be persisted with "config set".
var ValidKeys = []string{
	KeyCacheSize,
	KeyQuickScanBytes,
	KeyQuickScanMaxRecords,
	KeyDebounce,
	KeyPollInterval,
	KeyMaxConcurrentParses,
	KeyMaxConcurrentScans,
	KeyVerifyChecksums,
	KeyChecksumAlgo,
	KeyPalette,
	KeyNotifyRate,
	KeyErrorReporting,
	KeySentryDSN,
}

const (
	DefaultCacheSize           = runregistry.DefaultCacheSize
	DefaultQuickScanBytes      = 16 * 1024
	DefaultQuickScanMaxRecords = 10
	DefaultDebounce            = 1500 * time.Millisecond
	DefaultPollInterval        = 500 * time.Millisecond
	DefaultMaxConcurrentParses = runregistry.DefaultMaxConcurrentParses
	DefaultMaxConcurrentScans  = 8
	DefaultChecksumAlgo        = "ieee"
	DefaultNotifyRate          = 2.0

	MinCacheSize      = 1
	MaxCacheSize      = 1000
	MinQuickScanBytes = 1024
	MaxQuickScanBytes = 16 * 1024 * 1024
	MaxConcurrency    = 64
	MinDebounce       = 10 * time.Millisecond
	MinPollInterval   = 10 * time.Millisecond
)

// Settings is the resolved configuration.
type Settings struct {
	CacheSize           int
	QuickScanBytes      int
	QuickScanMaxRecords int
	Debounce            time.Duration
	PollInterval        time.Duration
	MaxConcurrentParses int
	MaxConcurrentScans  int
	VerifyChecksums     bool
	ChecksumAlgo        leveldb.CRCAlgo
	Palette             []string

	// NotifyRate is the maximum number of change notifications per second.
	NotifyRate float64

	ErrorReporting bool
	SentryDSN      string
}

// Configure sets defaults on v and makes it read RUNLENS_* variables.
func Configure(v *viper.Viper) {
	v.SetDefault(KeyCacheSize, DefaultCacheSize)
	v.SetDefault(KeyQuickScanBytes, DefaultQuickScanBytes)
	v.SetDefault(KeyQuickScanMaxRecords, DefaultQuickScanMaxRecords)
	v.SetDefault(KeyDebounce, DefaultDebounce)
	v.SetDefault(KeyPollInterval, DefaultPollInterval)
	v.SetDefault(KeyMaxConcurrentParses, DefaultMaxConcurrentParses)
	v.SetDefault(KeyMaxConcurrentScans, DefaultMaxConcurrentScans)
	v.SetDefault(KeyVerifyChecksums, false)
	v.SetDefault(KeyChecksumAlgo, DefaultChecksumAlgo)
	v.SetDefault(KeyPalette, slices.Clone(runregistry.DefaultPalette))
	v.SetDefault(KeyNotifyRate, DefaultNotifyRate)
	v.SetDefault(KeyErrorReporting, false)
	v.SetDefault(KeySentryDSN, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// Load resolves the settings in v.
//
// Out-of-range numbers are clamped. An unknown checksum algorithm is an
// error.
func Load(v *viper.Viper) (Settings, error) {
	algo, ok := leveldb.ParseCRCAlgo(strings.ToLower(v.GetString(KeyChecksumAlgo)))
	if !ok {
		return Settings{}, fmt.Errorf(
			"settings: invalid %s %q", KeyChecksumAlgo, v.GetString(KeyChecksumAlgo))
	}

	s := Settings{
		CacheSize:           v.GetInt(KeyCacheSize),
		QuickScanBytes:      v.GetInt(KeyQuickScanBytes),
		QuickScanMaxRecords: v.GetInt(KeyQuickScanMaxRecords),
		Debounce:            v.GetDuration(KeyDebounce),
		PollInterval:        v.GetDuration(KeyPollInterval),
		MaxConcurrentParses: v.GetInt(KeyMaxConcurrentParses),
		MaxConcurrentScans:  v.GetInt(KeyMaxConcurrentScans),
		VerifyChecksums:     v.GetBool(KeyVerifyChecksums),
		ChecksumAlgo:        algo,
		Palette:             slices.Clone(v.GetStringSlice(KeyPalette)),
		NotifyRate:          v.GetFloat64(KeyNotifyRate),
		ErrorReporting:      v.GetBool(KeyErrorReporting),
		SentryDSN:           v.GetString(KeySentryDSN),
	}

	s.normalize()
	return s, nil
}

func (s *Settings) normalize() {
	s.CacheSize = clamp(s.CacheSize, MinCacheSize, MaxCacheSize)
	s.QuickScanBytes = clamp(s.QuickScanBytes, MinQuickScanBytes, MaxQuickScanBytes)
	s.QuickScanMaxRecords = max(s.QuickScanMaxRecords, 1)
	s.MaxConcurrentParses = clamp(s.MaxConcurrentParses, 1, MaxConcurrency)
	s.MaxConcurrentScans = clamp(s.MaxConcurrentScans, 1, MaxConcurrency)

	s.Debounce = max(s.Debounce, MinDebounce)
	s.PollInterval = max(s.PollInterval, MinPollInterval)

	if s.NotifyRate <= 0 {
		s.NotifyRate = DefaultNotifyRate
	}

	s.Palette = slices.DeleteFunc(s.Palette, func(color string) bool {
		return strings.TrimSpace(color) == ""
	})
	if len(s.Palette) == 0 {
		s.Palette = slices.Clone(runregistry.DefaultPalette)
	}
}

// FrameOptions returns the log reader options.
func (s Settings) FrameOptions() leveldb.Options {
	return leveldb.Options{
		VerifyChecksums: s.VerifyChecksums,
		CRCAlgo:         s.ChecksumAlgo,
	}
}

// IsValidKey reports whether key can be persisted.
func IsValidKey(key string) bool {
	return slices.Contains(ValidKeys, key)
}

func clamp(val, minimum, maximum int) int {
	if val < minimum {
		return minimum
	}
	if val > maximum {
		return maximum
	}
	return val
}
