package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"

	"github.com/Crypto69/speechy/internal/capture"
	"github.com/Crypto69/speechy/internal/clipboard"
	"github.com/Crypto69/speechy/internal/config"
	"github.com/Crypto69/speechy/internal/correct"
	"github.com/Crypto69/speechy/internal/history"
	"github.com/Crypto69/speechy/internal/hotkey"
	"github.com/Crypto69/speechy/internal/inject"
	"github.com/Crypto69/speechy/internal/notify"
	"github.com/Crypto69/speechy/internal/pipeline"
	"github.com/Crypto69/speechy/internal/transcribe"
)

func main() {
	configPath := flag.String("config", "", "path to config JSON file")
	printConfig := flag.String("print-config", "", "write a default config file to the given path and exit")
	listDevices := flag.Bool("list-devices", false, "list audio input devices and exit")
	listModels := flag.Bool("list-models", false, "list correction models on the Ollama server and exit")
	flag.Parse()

	if *printConfig != "" {
		if err := config.SaveDefault(*printConfig); err != nil {
			log.Fatalf("[main] write default config: %v", err)
		}
		fmt.Printf("wrote default config to %s\n", *printConfig)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] load config: %v", err)
	}
	if err := config.Validate(&cfg); err != nil {
		log.Fatalf("[main] invalid config: %v", err)
	}

	if *listDevices {
		devices, err := capture.ListDevices()
		if err != nil {
			log.Fatalf("[main] list devices: %v", err)
		}
		for _, d := range devices {
			mark := " "
			if d.Default {
				mark = "*"
			}
			fmt.Printf("%s %3d  %s (%d ch)\n", mark, d.Index, d.Name, d.Channels)
		}
		return
	}

	corrector := correct.New(cfg, newHTTPClient(cfg))

	if *listModels {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		names, err := corrector.ListModels(ctx)
		if err != nil {
			log.Fatalf("[main] list models: %v", err)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}

	if cfg.CorrectionEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := corrector.Ping(ctx); err != nil {
			log.Printf("[main] correction server unreachable, transcripts will not be corrected: %v", err)
		} else if ok, err := corrector.HasModel(ctx); err == nil && !ok {
			log.Printf("[main] correction model %s not installed on server", cfg.OllamaModel)
		}
		cancel()
	}

	recorder := capture.New(cfg)
	transcriber := transcribe.New(cfg)
	injector := inject.New(cfg)
	bus := pipeline.NewEventBus(500)
	coord := pipeline.New(cfg, recorder, transcriber, corrector, injector, bus)

	events, unsubscribe := bus.Subscribe()
	go consumeEvents(cfg, events)

	listener := hotkey.New(cfg.Hotkey, time.Duration(cfg.HotkeyDebounceMs)*time.Millisecond, func() {
		coord.Toggle()
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go listener.Run(ctx)
	log.Printf("[main] ready, press %s to toggle recording", cfg.Hotkey)

	<-ctx.Done()
	log.Printf("[main] shutting down")
	coord.Close()
	unsubscribe()
}

// consumeEvents performs the presentation duties the pipeline core stays
// out of: notifications, clipboard, transcript log, stdout status lines.
func consumeEvents(cfg config.Config, events <-chan pipeline.Event) {
	notifier := notify.New(cfg.NotificationEnabled)
	transcripts := history.New(cfg.LogTranscriptions, cfg.LogFile)

	for e := range events {
		switch e.Type {
		case pipeline.EventRecordingStarted:
			log.Printf("[status] recording started (session %d)", e.Session)
			notifier.Notify("Speechy", "Recording started")
		case pipeline.EventRecordingStopped:
			log.Printf("[status] recording stopped, processing")
		case pipeline.EventTooShort:
			log.Printf("[status] %s", e.Message)
			notifier.Notify("Speechy", "Recording too short")
		case pipeline.EventNoSpeech:
			log.Printf("[status] no speech detected")
			notifier.Notify("Speechy", "No speech detected")
		case pipeline.EventTranscriptionFailed:
			log.Printf("[status] transcription failed: %s", e.Err)
			notifier.Notify("Speechy", "Transcription failed")
		case pipeline.EventTranscriptReady:
			text := e.Raw
			if e.Corrected != nil {
				text = *e.Corrected
			}
			if e.Message != "" {
				log.Printf("[status] transcript (%s): %s", e.Message, text)
			} else {
				log.Printf("[status] transcript: %s", text)
			}
			notifier.Notify("Transcript", preview(text))
			if cfg.CopyToClipboard {
				if err := clipboard.Copy(text); err != nil {
					log.Printf("[status] clipboard copy failed: %v", err)
				}
			}
			if err := transcripts.Append(e.Raw, e.Corrected); err != nil {
				log.Printf("[status] transcript log failed: %v", err)
			}
		case pipeline.EventInjectionSkipped:
			log.Printf("[status] auto-type skipped, %s is excluded", e.App)
		case pipeline.EventInjectionFailed:
			log.Printf("[status] auto-type failed: %s", e.Err)
			notifier.Notify("Speechy", "Auto-type failed, check accessibility permissions")
		case pipeline.EventCaptureFailed:
			log.Printf("[status] capture failed: %s", e.Err)
			notifier.Notify("Speechy", "Microphone error")
		case pipeline.EventBusy:
			log.Printf("[status] still processing previous recording")
		}
	}
}

func preview(text string) string {
	const max = 80
	if len(text) > max {
		return text[:max] + "..."
	}
	return text
}

func newHTTPClient(cfg config.Config) *http.Client {
	tr := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	_ = http2.ConfigureTransport(tr)
	return &http.Client{
		Transport: tr,
		Timeout:   time.Duration(cfg.CorrectionTimeoutSec) * time.Second,
	}
}
