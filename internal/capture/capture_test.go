package capture

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/Crypto69/speechy/internal/config"
)

// fakeStream fills the shared buffer with a fixed chunk on each Read.
type fakeStream struct {
	mu      sync.Mutex
	in      []int16
	chunk   []int16
	reads   int
	failAt  int // fail on this read number (1-based), 0 means never
	stopped bool
	closed  bool
}

func (f *fakeStream) Start() error { return nil }

func (f *fakeStream) Read() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failAt > 0 && f.reads >= f.failAt {
		return errors.New("device unplugged")
	}
	copy(f.in, f.chunk)
	time.Sleep(time.Millisecond)
	return nil
}

func (f *fakeStream) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestRecorder(cfg config.Config, fs *fakeStream) *Recorder {
	r := New(cfg)
	r.initAudio = func() error { return nil }
	r.termAudio = func() {}
	r.openStream = func(_ *int, _, _ int, in []int16) (stream, error) {
		fs.in = in
		return fs, nil
	}
	return r
}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.ChunkSize = 8
	cfg.SampleRate = 16000
	cfg.Channels = 1
	return cfg
}

func TestStartStopAccumulatesSamples(t *testing.T) {
	fs := &fakeStream{chunk: []int16{100, -200, 300, -400, 500, -600, 700, -800}}
	r := newTestRecorder(testConfig(), fs)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	buf, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if len(buf.Samples) == 0 {
		t.Fatal("expected captured samples")
	}
	if len(buf.Samples)%8 != 0 {
		t.Errorf("expected whole chunks, got %d samples", len(buf.Samples))
	}
	if buf.SampleRate != 16000 || buf.Channels != 1 {
		t.Errorf("unexpected buffer format: %d Hz, %d ch", buf.SampleRate, buf.Channels)
	}
	if !fs.stopped || !fs.closed {
		t.Error("stream was not stopped and closed")
	}
	if r.State() != StateIdle {
		t.Errorf("expected idle after stop, got %v", r.State())
	}
}

func TestStartWhileRecordingFails(t *testing.T) {
	fs := &fakeStream{chunk: make([]int16, 8)}
	r := newTestRecorder(testConfig(), fs)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Error("second Start should fail while recording")
	}
	if _, err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestStopWhenIdleFails(t *testing.T) {
	r := newTestRecorder(testConfig(), &fakeStream{chunk: make([]int16, 8)})
	if _, err := r.Stop(); err == nil {
		t.Error("Stop should fail when idle")
	}
}

func TestOpenFailureSurfacesFromStart(t *testing.T) {
	r := New(testConfig())
	r.initAudio = func() error { return nil }
	r.termAudio = func() {}
	r.openStream = func(_ *int, _, _ int, _ []int16) (stream, error) {
		return nil, errors.New("no such device")
	}
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail when device cannot be opened")
	}
	if r.State() != StateIdle {
		t.Errorf("expected idle after failed start, got %v", r.State())
	}
}

func TestStopDuringFailingOpenReturns(t *testing.T) {
	opening := make(chan struct{})
	release := make(chan struct{})
	r := New(testConfig())
	r.initAudio = func() error { return nil }
	r.termAudio = func() {}
	r.openStream = func(_ *int, _, _ int, _ []int16) (stream, error) {
		close(opening)
		<-release
		return nil, errors.New("device wedged")
	}

	startErr := make(chan error, 1)
	go func() { startErr <- r.Start(context.Background()) }()
	<-opening

	stopErr := make(chan error, 1)
	go func() {
		_, err := r.Stop()
		stopErr <- err
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)

	select {
	case err := <-startErr:
		if err == nil {
			t.Error("expected Start to fail")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
	select {
	case err := <-stopErr:
		if err == nil {
			t.Error("expected Stop to surface the open failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after failed device open")
	}
	if r.State() != StateIdle {
		t.Errorf("expected idle after failed open, got %v", r.State())
	}
}

func TestDeviceErrorMidStream(t *testing.T) {
	fs := &fakeStream{chunk: make([]int16, 8), failAt: 3}
	r := newTestRecorder(testConfig(), fs)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	notify := r.Notifications()

	var devErr error
	deadline := time.After(time.Second)
	for devErr == nil {
		select {
		case n, ok := <-notify:
			if !ok {
				t.Fatal("notifications closed without a device error")
			}
			if n.Err != nil {
				devErr = n.Err
			}
		case <-deadline:
			t.Fatal("timed out waiting for device error notification")
		}
	}

	buf, err := r.Stop()
	if err == nil {
		t.Error("expected Stop to return the read error")
	}
	if len(buf.Samples) == 0 {
		t.Error("expected partial samples preserved before failure")
	}
}

func TestNotificationsCarryLevels(t *testing.T) {
	fs := &fakeStream{chunk: []int16{16384, -16384, 16384, -16384, 16384, -16384, 16384, -16384}}
	r := newTestRecorder(testConfig(), fs)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	notify := r.Notifications()

	select {
	case n := <-notify:
		if n.Err != nil {
			t.Fatalf("unexpected error notification: %v", n.Err)
		}
		if n.Level < 0.4 || n.Level > 0.6 {
			t.Errorf("expected level around 0.5, got %v", n.Level)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for level notification")
	}
	if _, err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestBufferDuration(t *testing.T) {
	buf := Buffer{Samples: make([]int16, 16000), SampleRate: 16000, Channels: 1}
	if d := buf.Duration(); d != time.Second {
		t.Errorf("expected 1s, got %v", d)
	}
	stereo := Buffer{Samples: make([]int16, 16000), SampleRate: 16000, Channels: 2}
	if d := stereo.Duration(); d != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", d)
	}
	if (Buffer{}).Duration() != 0 {
		t.Error("empty buffer should have zero duration")
	}
}

func TestBufferMaxAmplitude(t *testing.T) {
	buf := Buffer{Samples: []int16{10, -500, 42, 499}}
	if got := buf.MaxAmplitude(); got != 500 {
		t.Errorf("expected 500, got %d", got)
	}
	if (Buffer{}).MaxAmplitude() != 0 {
		t.Error("empty buffer should have zero amplitude")
	}
}

func TestWriteWAVRoundTrip(t *testing.T) {
	buf := Buffer{Samples: []int16{1, -2, 3, -4}, SampleRate: 16000, Channels: 1}
	path, err := buf.WriteWAV(t.TempDir())
	if err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open wav: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	audioBuf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}
	if dec.SampleRate != 16000 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Errorf("unexpected wav format: %d Hz, %d ch, %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	if len(audioBuf.Data) != 4 || audioBuf.Data[1] != -2 {
		t.Errorf("unexpected decoded samples: %v", audioBuf.Data)
	}
}
