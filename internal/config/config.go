package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Auto-typing modes.
const (
	TypingModeRaw       = "raw"
	TypingModeCorrected = "corrected"
	TypingModeBoth      = "both"
)

// Auto-typing delivery methods.
const (
	TypingMethodType  = "type"
	TypingMethodPaste = "paste"
)

// Config holds configurable parameters.
type Config struct {
	Hotkey           string `json:"hotkey"`
	HotkeyDebounceMs int    `json:"hotkey_debounce_ms"`

	WhisperBinary        string  `json:"whisper_binary"`
	WhisperModel         string  `json:"whisper_model"`
	Language             string  `json:"language"`
	TranscribeTimeoutSec int     `json:"transcribe_timeout_sec"`
	ConfidenceThreshold  float64 `json:"confidence_threshold"`

	OllamaHost               string  `json:"ollama_host"`
	OllamaPort               int     `json:"ollama_port"`
	OllamaModel              string  `json:"ollama_model"`
	CorrectionEnabled        bool    `json:"correction_enabled"`
	CorrectionTimeoutSec     int     `json:"correction_timeout_sec"`
	CorrectionMaxRetries     int     `json:"correction_max_retries"`
	CorrectionRetryBaseDelay float64 `json:"correction_retry_base_delay_sec"`
	PromptStrategy           string  `json:"prompt_strategy"`

	AudioDeviceIndex     *int    `json:"audio_device_index"`
	SampleRate           int     `json:"sample_rate"`
	Channels             int     `json:"channels"`
	ChunkSize            int     `json:"chunk_size"`
	MinRecordingSec      float64 `json:"min_recording_sec"`
	SilenceSkipThreshold int     `json:"silence_skip_threshold"`

	AutoTypingEnabled      bool     `json:"auto_typing_enabled"`
	AutoTypingMode         string   `json:"auto_typing_mode"`
	AutoTypingMethod       string   `json:"auto_typing_method"`
	AutoTypingDelaySec     float64  `json:"auto_typing_delay_sec"`
	AutoTypingSpeedSec     float64  `json:"auto_typing_speed_sec"`
	AutoTypingExcludedApps []string `json:"auto_typing_excluded_apps"`

	NotificationEnabled bool   `json:"notification_enabled"`
	CopyToClipboard     bool   `json:"copy_to_clipboard"`
	LogTranscriptions   bool   `json:"log_transcriptions"`
	LogFile             string `json:"log_file"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Hotkey:           "f9",
		HotkeyDebounceMs: 50,

		WhisperBinary:        "whisper-cli",
		WhisperModel:         "",
		Language:             "auto",
		TranscribeTimeoutSec: 60,
		ConfidenceThreshold:  0.4,

		OllamaHost:               "localhost",
		OllamaPort:               11434,
		OllamaModel:              "llama3.2:3b",
		CorrectionEnabled:        true,
		CorrectionTimeoutSec:     30,
		CorrectionMaxRetries:     3,
		CorrectionRetryBaseDelay: 0.5,
		PromptStrategy:           "transcription",

		AudioDeviceIndex:     nil,
		SampleRate:           16000,
		Channels:             1,
		ChunkSize:            1024,
		MinRecordingSec:      0.5,
		SilenceSkipThreshold: 50,

		AutoTypingEnabled:      false,
		AutoTypingMode:         TypingModeRaw,
		AutoTypingMethod:       TypingMethodType,
		AutoTypingDelaySec:     1.0,
		AutoTypingSpeedSec:     0.02,
		AutoTypingExcludedApps: []string{"Keychain Access", "Login Window", "1Password"},

		NotificationEnabled: true,
		CopyToClipboard:     true,
		LogTranscriptions:   true,
		LogFile:             "logs/transcriptions.log",
	}
}

// Load loads config from JSON file if provided, merging over defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveDefault writes a default config JSON to the provided path.
func SaveDefault(path string) error {
	cfg := DefaultConfig()
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0644)
}

// OllamaURL builds the base URL of the correction service.
func (c Config) OllamaURL() string {
	return fmt.Sprintf("http://%s:%d", c.OllamaHost, c.OllamaPort)
}

// Validate verifies config fields and returns an error if any value is invalid.
func Validate(cfg *Config) error {
	if cfg.Channels < 1 || cfg.Channels > 8 {
		return fmt.Errorf("invalid channels: %d (allowed 1..8)", cfg.Channels)
	}
	if cfg.SampleRate <= 0 {
		return fmt.Errorf("invalid sample_rate: %d (must be > 0)", cfg.SampleRate)
	}
	if cfg.ChunkSize <= 0 {
		return fmt.Errorf("invalid chunk_size: %d (must be > 0)", cfg.ChunkSize)
	}
	if cfg.MinRecordingSec < 0 {
		return fmt.Errorf("invalid min_recording_sec: %v (must be >= 0)", cfg.MinRecordingSec)
	}
	if cfg.SilenceSkipThreshold < 0 {
		return fmt.Errorf("invalid silence_skip_threshold: %d (must be >= 0)", cfg.SilenceSkipThreshold)
	}
	if cfg.TranscribeTimeoutSec <= 0 {
		return fmt.Errorf("invalid transcribe_timeout_sec: %d (must be > 0)", cfg.TranscribeTimeoutSec)
	}
	if cfg.CorrectionTimeoutSec <= 0 {
		return fmt.Errorf("invalid correction_timeout_sec: %d (must be > 0)", cfg.CorrectionTimeoutSec)
	}
	if cfg.CorrectionMaxRetries < 0 {
		return fmt.Errorf("invalid correction_max_retries: %d (must be >= 0)", cfg.CorrectionMaxRetries)
	}
	if cfg.CorrectionRetryBaseDelay < 0 {
		return fmt.Errorf("invalid correction_retry_base_delay_sec: %v (must be >= 0)", cfg.CorrectionRetryBaseDelay)
	}
	if cfg.OllamaPort <= 0 || cfg.OllamaPort > 65535 {
		return fmt.Errorf("invalid ollama_port: %d", cfg.OllamaPort)
	}
	if cfg.HotkeyDebounceMs < 0 {
		return fmt.Errorf("invalid hotkey_debounce_ms: %d (must be >= 0)", cfg.HotkeyDebounceMs)
	}
	if cfg.AutoTypingDelaySec < 0 {
		return fmt.Errorf("invalid auto_typing_delay_sec: %v (must be >= 0)", cfg.AutoTypingDelaySec)
	}
	if cfg.AutoTypingSpeedSec < 0 {
		return fmt.Errorf("invalid auto_typing_speed_sec: %v (must be >= 0)", cfg.AutoTypingSpeedSec)
	}
	switch strings.ToLower(cfg.AutoTypingMode) {
	case TypingModeRaw, TypingModeCorrected, TypingModeBoth:
	default:
		return fmt.Errorf("invalid auto_typing_mode: %s (allowed: raw, corrected, both)", cfg.AutoTypingMode)
	}
	switch strings.ToLower(cfg.AutoTypingMethod) {
	case TypingMethodType, TypingMethodPaste:
	default:
		return fmt.Errorf("invalid auto_typing_method: %s (allowed: type, paste)", cfg.AutoTypingMethod)
	}
	return nil
}
