package ffmpeg

import (
	"bytes"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
)

// WhisperSampleRate is the sample rate whisper models are trained on.
const WhisperSampleRate = 16000

// runner executes a command, returning stderr on failure. Allows tests
// to intercept the ffmpeg invocation.
type runner func(name string, args ...string) error

// Converter normalizes captured WAV files to whisper's expected
// format: mono 16 kHz signed 16-bit PCM.
type Converter struct {
	Binary string
	Debug  bool
	run    runner
}

// NewConverter creates a converter using the ffmpeg binary on PATH.
func NewConverter() *Converter {
	c := &Converter{Binary: "ffmpeg"}
	c.run = c.runCmd
	return c
}

// Needed reports whether a file in the given format requires conversion.
func Needed(sampleRate, channels int) bool {
	return sampleRate != WhisperSampleRate || channels != 1
}

// Normalize writes a mono 16 kHz PCM version of inPath to outPath.
func (c *Converter) Normalize(inPath, outPath string) error {
	args := []string{
		"-y",
		"-i", inPath,
		"-ac", "1",
		"-ar", strconv.Itoa(WhisperSampleRate),
		"-c:a", "pcm_s16le",
		outPath,
	}
	if c.Debug {
		log.Printf("[ffmpeg] executing: %s %s", c.Binary, strings.Join(args, " "))
	}
	if err := c.run(c.Binary, args...); err != nil {
		return fmt.Errorf("ffmpeg normalize failed: %w", err)
	}
	return nil
}

func (c *Converter) runCmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%v\n%s", err, stderr.String())
	}
	return nil
}
