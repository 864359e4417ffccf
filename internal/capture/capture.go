package capture

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"

	"github.com/Crypto69/speechy/internal/config"
)

// State represents recorder state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopping
)

// Notification carries a periodic input level reading, or a fatal
// device error that ended the stream.
type Notification struct {
	Level float64
	Err   error
}

// Buffer holds captured PCM samples.
type Buffer struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration returns the recorded duration.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(float64(frames) / float64(b.SampleRate) * float64(time.Second))
}

// MaxAmplitude returns the largest absolute sample value.
func (b Buffer) MaxAmplitude() int {
	max := 0
	for _, s := range b.Samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > max {
			max = v
		}
	}
	return max
}

// WriteWAV writes the buffer to a temp WAV file and returns its path.
func (b Buffer) WriteWAV(dir string) (string, error) {
	if dir == "" {
		cwd, _ := os.Getwd()
		dir = cwd
	}
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	path := filepath.Join(dir, fmt.Sprintf("SpeechyTemp_%s.wav", id))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create wav failed: %w", err)
	}
	enc := wav.NewEncoder(file, b.SampleRate, 16, b.Channels, 1)
	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: b.Channels, SampleRate: b.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		_ = file.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("wav write failed: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("wav close failed: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// stream abstracts a PortAudio input stream so tests can inject a fake.
type stream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

// openStreamFunc opens an input stream filling in on each Read.
type openStreamFunc func(deviceIndex *int, channels, sampleRate int, in []int16) (stream, error)

// Recorder captures microphone audio into memory.
type Recorder struct {
	mu         sync.Mutex
	state      State
	cfg        config.Config
	stopCtx    context.Context
	stopCancel context.CancelFunc
	done       chan result
	notify     chan Notification

	openStream openStreamFunc
	initAudio  func() error
	termAudio  func()
}

type result struct {
	buf Buffer
	err error
}

// New creates a recorder.
func New(cfg config.Config) *Recorder {
	return &Recorder{
		cfg:        cfg,
		state:      StateIdle,
		openStream: openPortAudioStream,
		initAudio:  portaudio.Initialize,
		termAudio:  func() { _ = portaudio.Terminate() },
	}
}

// Notifications returns the channel of level readings and device errors.
// The channel is replaced on each Start.
func (r *Recorder) Notifications() <-chan Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notify
}

// State returns the current recorder state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start opens the input device and begins capturing. Acquisition failures
// are reported here and also delivered on the result channel, so a Stop
// that races in during the open window is released rather than blocked.
// After a successful Start, Stop must be called exactly once to collect
// the buffer, even when the capture loop ended itself on a device error.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return fmt.Errorf("recorder not idle")
	}
	r.state = StateRecording
	r.done = make(chan result, 1)
	r.notify = make(chan Notification, 16)
	r.stopCtx, r.stopCancel = context.WithCancel(ctx)
	done := r.done
	notify := r.notify
	r.mu.Unlock()

	if err := r.initAudio(); err != nil {
		return r.failStart(done, notify, fmt.Errorf("portaudio init failed: %w", err))
	}

	in := make([]int16, r.cfg.ChunkSize*r.cfg.Channels)
	st, err := r.openStream(r.cfg.AudioDeviceIndex, r.cfg.Channels, r.cfg.SampleRate, in)
	if err != nil {
		r.termAudio()
		return r.failStart(done, notify, fmt.Errorf("open stream failed: %w", err))
	}
	if err := st.Start(); err != nil {
		_ = st.Close()
		r.termAudio()
		return r.failStart(done, notify, fmt.Errorf("start stream failed: %w", err))
	}

	go r.captureLoop(st, in, done, notify)
	return nil
}

// failStart delivers the acquisition failure on done, then returns the
// recorder to idle unless a racing Stop has already committed to the
// result channel and owns the teardown.
func (r *Recorder) failStart(done chan result, notify chan Notification, err error) error {
	r.stopCancel()
	close(notify)
	done <- result{err: err}

	r.mu.Lock()
	if r.state == StateRecording {
		r.state = StateIdle
	}
	r.mu.Unlock()
	return err
}

// Stop ends capture and returns everything recorded so far. When the
// capture loop already terminated on a device error, Stop still returns
// the partial samples together with that error.
func (r *Recorder) Stop() (Buffer, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return Buffer{}, fmt.Errorf("recorder not running")
	}
	r.state = StateStopping
	cancel := r.stopCancel
	done := r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	res := <-done
	r.setIdle()
	return res.buf, res.err
}

func (r *Recorder) captureLoop(st stream, in []int16, done chan result, notify chan Notification) {
	defer r.termAudio()

	samples := make([]int16, 0, r.cfg.SampleRate*r.cfg.Channels*4)
	var readErr error

	for {
		select {
		case <-r.stopCtx.Done():
			goto finish
		default:
		}

		if err := st.Read(); err != nil {
			readErr = fmt.Errorf("stream read failed: %w", err)
			select {
			case notify <- Notification{Err: readErr}:
			default:
			}
			goto finish
		}
		samples = append(samples, in...)

		select {
		case notify <- Notification{Level: rms(in)}:
		default:
		}
	}

finish:
	_ = st.Stop()
	_ = st.Close()
	close(notify)

	// State stays out of idle until Stop consumes the result, so partial
	// samples and the read error are never dropped.
	done <- result{
		buf: Buffer{Samples: samples, SampleRate: r.cfg.SampleRate, Channels: r.cfg.Channels},
		err: readErr,
	}
}

func (r *Recorder) setIdle() {
	r.mu.Lock()
	r.state = StateIdle
	r.mu.Unlock()
}

// rms computes the root mean square level of a chunk, normalized to 0..1.
func rms(in []int16) float64 {
	if len(in) == 0 {
		return 0
	}
	var sum float64
	for _, s := range in {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum/float64(len(in))) / 32768.0
}

func openPortAudioStream(deviceIndex *int, channels, sampleRate int, in []int16) (stream, error) {
	if deviceIndex == nil {
		return portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), len(in), in)
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices failed: %w", err)
	}
	if *deviceIndex < 0 || *deviceIndex >= len(devices) {
		return nil, fmt.Errorf("audio device index %d out of range (%d devices)", *deviceIndex, len(devices))
	}
	dev := devices[*deviceIndex]
	if dev.MaxInputChannels < channels {
		return nil, fmt.Errorf("device %q has %d input channels, need %d", dev.Name, dev.MaxInputChannels, channels)
	}
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = channels
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = len(in)
	return portaudio.OpenStream(params, in)
}

// Device describes an available input device.
type Device struct {
	Index    int
	Name     string
	Channels int
	Default  bool
}

// ListDevices enumerates input-capable audio devices.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices failed: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []Device
	for i, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, Device{
			Index:    i,
			Name:     d.Name,
			Channels: d.MaxInputChannels,
			Default:  def != nil && d.Name == def.Name && d.HostApi == def.HostApi,
		})
	}
	return out, nil
}
