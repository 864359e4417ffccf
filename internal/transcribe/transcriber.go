package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Crypto69/speechy/internal/config"
)

// Result holds the outcome of one transcription.
type Result struct {
	Text          string
	Language      string
	Confidence    float64
	NoSpeech      bool
	LowConfidence bool
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// Transcriber runs a local whisper.cpp CLI against WAV files.
type Transcriber struct {
	binary     string
	modelPath  string
	language   string
	confidence float64

	runner   commandRunner
	stat     func(name string) (os.FileInfo, error)
	readDir  func(name string) ([]os.DirEntry, error)
	readFile func(name string) ([]byte, error)
	remove   func(name string) error

	modelOnce     sync.Once
	resolvedModel string
	resolveErr    error
}

// New creates a transcriber from config.
func New(cfg config.Config) *Transcriber {
	return &Transcriber{
		binary:     cfg.WhisperBinary,
		modelPath:  cfg.WhisperModel,
		language:   cfg.Language,
		confidence: cfg.ConfidenceThreshold,
		runner:     &execRunner{},
		stat:       os.Stat,
		readDir:    os.ReadDir,
		readFile:   os.ReadFile,
		remove:     os.Remove,
	}
}

// whisperOutput matches the JSON file emitted by whisper-cli -ojf.
type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Text   string `json:"text"`
		Tokens []struct {
			Text string  `json:"text"`
			P    float64 `json:"p"`
		} `json:"tokens"`
	} `json:"transcription"`
}

// Transcribe runs whisper on the WAV file at path. The caller bounds the
// run through ctx. Cancellation kills the child process.
func (t *Transcriber) Transcribe(ctx context.Context, wavPath string) (Result, error) {
	model, err := t.resolveModel()
	if err != nil {
		return Result{}, err
	}

	base := strings.TrimSuffix(wavPath, filepath.Ext(wavPath))
	jsonPath := base + ".json"
	args := buildWhisperArgs(model, wavPath, base, t.language)

	res, runErr := t.runner.Run(ctx, t.binary, args...)
	if runErr != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("whisper run aborted: %w", ctx.Err())
		}
		return Result{}, fmt.Errorf("whisper failed (exit=%d): %w\n%s", res.ExitCode, runErr, res.Stderr)
	}

	data, err := t.readFile(jsonPath)
	if err != nil {
		return Result{}, fmt.Errorf("whisper completed but JSON output is missing: %w", err)
	}
	defer func() { _ = t.remove(jsonPath) }()

	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Result{}, fmt.Errorf("cannot parse whisper output: %w", err)
	}

	var sb strings.Builder
	var probSum float64
	var probCount int
	for _, seg := range out.Transcription {
		sb.WriteString(seg.Text)
		for _, tok := range seg.Tokens {
			// Skip special tokens like [_BEG_] so they do not skew confidence.
			if strings.HasPrefix(strings.TrimSpace(tok.Text), "[_") {
				continue
			}
			probSum += tok.P
			probCount++
		}
	}

	text := strings.TrimSpace(sb.String())
	result := Result{
		Text:     text,
		Language: out.Result.Language,
	}
	if probCount > 0 {
		result.Confidence = probSum / float64(probCount)
	}
	if text == "" {
		result.NoSpeech = true
		return result, nil
	}
	if probCount > 0 && result.Confidence < t.confidence {
		result.LowConfidence = true
	}
	return result, nil
}

// resolveModel locates the model file once and caches the outcome,
// including failure, so repeated runs fail fast.
func (t *Transcriber) resolveModel() (string, error) {
	t.modelOnce.Do(func() {
		t.resolvedModel, t.resolveErr = t.findModel()
	})
	return t.resolvedModel, t.resolveErr
}

func (t *Transcriber) findModel() (string, error) {
	modelPath := strings.TrimSpace(t.modelPath)
	if modelPath == "" {
		return "", fmt.Errorf("whisper_model is required")
	}

	info, err := t.stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := t.readDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".bin" || ext == ".gguf" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}
	sort.Strings(names)
	return filepath.Join(modelPath, names[0]), nil
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// buildWhisperArgs builds whisper-cli args for full JSON export.
func buildWhisperArgs(modelPath, audioPath, outBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-ojf",
		"-np",
	}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}
	return args
}
