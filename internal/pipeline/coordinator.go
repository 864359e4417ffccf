package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Crypto69/speechy/internal/audio/ffmpeg"
	"github.com/Crypto69/speechy/internal/capture"
	"github.com/Crypto69/speechy/internal/config"
	"github.com/Crypto69/speechy/internal/inject"
	"github.com/Crypto69/speechy/internal/transcribe"
)

// Ack is the immediate answer to one hotkey toggle.
type Ack int

const (
	AckStarted Ack = iota
	AckStopping
	AckBusy
)

func (a Ack) String() string {
	switch a {
	case AckStarted:
		return "started"
	case AckStopping:
		return "stopping"
	case AckBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// recorder is the capture surface the coordinator drives.
type recorder interface {
	Start(ctx context.Context) error
	Stop() (capture.Buffer, error)
	Notifications() <-chan capture.Notification
}

// transcriber turns a WAV file into text.
type transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (transcribe.Result, error)
}

// corrector rewrites a transcript.
type corrector interface {
	Correct(ctx context.Context, text string) (string, error)
}

// injector types text at the cursor.
type injector interface {
	Inject(ctx context.Context, text string) (inject.Result, error)
}

// converter normalizes a WAV to the transcriber's expected format.
type converter interface {
	Normalize(inPath, outPath string) error
}

// Coordinator owns the toggle state machine and drives each session
// through capture, transcription, correction and injection. The hotkey
// callback only ever calls Toggle, which never blocks; all stage work
// runs in a per-session job goroutine.
type Coordinator struct {
	cfg     config.Config
	machine *Machine
	bus     *EventBus

	rec  recorder
	tr   transcriber
	corr corrector
	inj  injector
	conv converter

	tempDir  string
	writeWAV func(buf capture.Buffer, dir string) (string, error)
	remove   func(path string) error

	// OnLevel, when set, receives input level readings during recording.
	OnLevel func(level float64)

	// startDone is closed once the current session's device open has
	// finished, so the processing job never stops a recorder whose
	// Start has not run yet.
	startMu   sync.Mutex
	startDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup
}

// New creates a coordinator. corr may be nil when correction is disabled
// and inj may be nil when auto-typing is disabled.
func New(cfg config.Config, rec recorder, tr transcriber, corr corrector, inj injector, bus *EventBus) *Coordinator {
	if bus == nil {
		bus = NewEventBus(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:      cfg,
		machine:  NewMachine(),
		bus:      bus,
		rec:      rec,
		tr:       tr,
		corr:     corr,
		inj:      inj,
		tempDir:  os.TempDir(),
		writeWAV: capture.Buffer.WriteWAV,
		remove:   os.Remove,
		ctx:      ctx,
		cancel:   cancel,
	}
	if ffmpeg.Needed(cfg.SampleRate, cfg.Channels) {
		c.conv = ffmpeg.NewConverter()
	}
	return c
}

// State returns the current pipeline state.
func (c *Coordinator) State() State {
	return c.machine.State()
}

// Events returns the coordinator's event bus.
func (c *Coordinator) Events() *EventBus {
	return c.bus
}

// Toggle flips the pipeline on a hotkey press and returns immediately.
// Idle starts a recording, Recording hands the session to a processing
// job, Processing is acknowledged as busy and otherwise ignored.
// Device acquisition runs on its own goroutine, never on the caller's
// (hotkey listener) thread; acquisition failures arrive as events.
func (c *Coordinator) Toggle() Ack {
	if session, err := c.machine.Advance(StateIdle, StateRecording); err == nil {
		started := make(chan struct{})
		c.startMu.Lock()
		c.startDone = started
		c.startMu.Unlock()
		go c.startCapture(session, started)
		return AckStarted
	}
	if session, err := c.machine.Advance(StateRecording, StateProcessing); err == nil {
		c.bus.Publish(Event{Session: session, Type: EventRecordingStopped, Message: "processing"})
		c.jobs.Add(1)
		go c.runJob(session)
		return AckStopping
	}
	session := c.machine.Session()
	c.bus.Publish(Event{Session: session, Type: EventBusy, Message: "still processing previous recording"})
	return AckBusy
}

func (c *Coordinator) startCapture(session uint64, started chan struct{}) {
	defer close(started)
	if err := c.rec.Start(c.ctx); err != nil {
		if _, aerr := c.machine.Advance(StateRecording, StateIdle); aerr != nil {
			// A toggle already moved the session to processing; the job's
			// Stop call reports the failure instead.
			return
		}
		c.bus.Publish(Event{Session: session, Type: EventCaptureFailed, Err: err.Error()})
		return
	}
	go c.watchCapture(session, c.rec.Notifications())
	c.bus.Publish(Event{Session: session, Type: EventRecordingStarted})
}

// waitStart blocks until the most recent device open has finished.
func (c *Coordinator) waitStart() {
	c.startMu.Lock()
	started := c.startDone
	c.startMu.Unlock()
	if started != nil {
		<-started
	}
}

// watchCapture drains level readings while a session records. A device
// error mid-stream aborts the session: partial audio is discarded and
// the machine returns to idle without a processing job.
func (c *Coordinator) watchCapture(session uint64, notify <-chan capture.Notification) {
	for n := range notify {
		if n.Err == nil {
			if c.OnLevel != nil {
				c.OnLevel(n.Level)
			}
			continue
		}
		if _, err := c.machine.Advance(StateRecording, StateIdle); err != nil {
			// A toggle already moved the session to processing. The job's
			// Stop call will see the same error and report it.
			return
		}
		if _, serr := c.rec.Stop(); serr != nil {
			log.Printf("[pipeline] capture aborted: %v", serr)
		}
		c.bus.Publish(Event{Session: session, Type: EventCaptureFailed, Err: n.Err.Error()})
		return
	}
}

// runJob executes the stage sequence for one completed recording. Every
// failure is converted to a terminal event here; the machine always
// returns to idle.
func (c *Coordinator) runJob(session uint64) {
	defer c.jobs.Done()
	defer func() {
		if _, err := c.machine.Advance(StateProcessing, StateIdle); err != nil {
			log.Printf("[pipeline] failed to return to idle: %v", err)
		}
	}()

	c.waitStart()
	buf, err := c.rec.Stop()
	if err != nil {
		c.bus.Publish(Event{Session: session, Type: EventCaptureFailed, Err: err.Error()})
		return
	}

	minDur := time.Duration(c.cfg.MinRecordingSec * float64(time.Second))
	if buf.Duration() < minDur {
		c.bus.Publish(Event{Session: session, Type: EventTooShort,
			Message: fmt.Sprintf("recording was %.2fs, minimum is %.2fs", buf.Duration().Seconds(), minDur.Seconds())})
		return
	}
	if buf.MaxAmplitude() < c.cfg.SilenceSkipThreshold {
		c.bus.Publish(Event{Session: session, Type: EventNoSpeech, Message: "audio level below silence threshold"})
		return
	}

	wavPath, err := c.writeWAV(buf, c.tempDir)
	if err != nil {
		c.bus.Publish(Event{Session: session, Type: EventTranscriptionFailed, Err: err.Error()})
		return
	}
	defer func() { _ = c.remove(wavPath) }()

	if c.conv != nil {
		normPath := strings.TrimSuffix(wavPath, ".wav") + "_16k.wav"
		if err := c.conv.Normalize(wavPath, normPath); err != nil {
			c.bus.Publish(Event{Session: session, Type: EventTranscriptionFailed, Err: err.Error()})
			return
		}
		defer func() { _ = c.remove(normPath) }()
		wavPath = normPath
	}

	tctx, tcancel := context.WithTimeout(c.ctx, time.Duration(c.cfg.TranscribeTimeoutSec)*time.Second)
	res, err := c.tr.Transcribe(tctx, wavPath)
	tcancel()
	if err != nil {
		c.bus.Publish(Event{Session: session, Type: EventTranscriptionFailed, Err: err.Error()})
		return
	}
	if res.NoSpeech || strings.TrimSpace(res.Text) == "" {
		c.bus.Publish(Event{Session: session, Type: EventNoSpeech, Message: "transcriber returned no speech"})
		return
	}
	raw := strings.TrimSpace(res.Text)

	var corrected *string
	if c.cfg.CorrectionEnabled && c.corr != nil {
		cctx, ccancel := context.WithTimeout(c.ctx, time.Duration(c.cfg.CorrectionTimeoutSec)*time.Second)
		out, cerr := c.corr.Correct(cctx, raw)
		ccancel()
		if cerr != nil {
			// Correction is best-effort: fall back to the raw transcript.
			log.Printf("[pipeline] correction failed, using raw transcript: %v", cerr)
		} else {
			corrected = &out
		}
	}

	ready := Event{Session: session, Type: EventTranscriptReady, Raw: raw, Corrected: corrected}
	if res.LowConfidence {
		ready.Message = fmt.Sprintf("low confidence (%.2f)", res.Confidence)
	}
	c.bus.Publish(ready)

	if c.cfg.AutoTypingEnabled && c.inj != nil {
		c.autoType(session, raw, corrected)
	}
}

// autoType runs the injection stage for the configured typing mode.
// Mode "corrected" falls back to raw when correction was unavailable.
func (c *Coordinator) autoType(session uint64, raw string, corrected *string) {
	var texts []string
	switch strings.ToLower(c.cfg.AutoTypingMode) {
	case config.TypingModeCorrected:
		if corrected != nil {
			texts = []string{*corrected}
		} else {
			texts = []string{raw}
		}
	case config.TypingModeBoth:
		texts = []string{raw}
		if corrected != nil {
			texts = append(texts, *corrected)
		}
	default:
		texts = []string{raw}
	}

	for _, text := range texts {
		res, err := c.inj.Inject(c.ctx, text)
		if err != nil {
			c.bus.Publish(Event{Session: session, Type: EventInjectionFailed, Err: err.Error()})
			return
		}
		if res.Skipped {
			c.bus.Publish(Event{Session: session, Type: EventInjectionSkipped, App: res.App})
			return
		}
	}
}

// Close aborts any in-progress capture, waits for a running job, and
// releases the coordinator.
func (c *Coordinator) Close() {
	c.cancel()
	c.waitStart()
	if _, err := c.machine.Advance(StateRecording, StateIdle); err == nil {
		if _, serr := c.rec.Stop(); serr != nil {
			log.Printf("[pipeline] capture stop on close: %v", serr)
		}
	}
	c.jobs.Wait()
}
