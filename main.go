package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/gen2brain/malgo"
	"github.com/google/uuid"

	"sessioncore/audio"
	"sessioncore/coordinator"
	"sessioncore/devicemonitor"
	"sessioncore/eventbus"
	"sessioncore/internal/config"
	"sessioncore/transcription/providers"
)

func main() {
	cfg := config.Load()

	logFile := setupLogging(cfg.TraceLog)
	if logFile != nil {
		defer logFile.Close()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC: %v", r)
			panic(r)
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal("failed to create data directory:", err)
	}

	bus := eventbus.New()
	grpcServer := eventbus.NewServer(bus, cfg.GRPCAddr)
	if err := grpcServer.Start(); err != nil {
		log.Fatal("failed to start event bus:", err)
	}
	defer grpcServer.Stop()

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatal("failed to initialize audio context:", err)
	}
	defer malgoCtx.Uninit()
	defer malgoCtx.Free()

	provider := providers.NewOnDevice(nil)
	if cfg.TranscriptionModel != "" {
		if err := provider.Load(cfg.TranscriptionModel); err != nil {
			log.Printf("note: transcription model %s could not be loaded: %v", cfg.TranscriptionModel, err)
		}
	}

	coord := coordinator.New(bus, provider)

	devices, err := audio.EnumerateInputs(malgoCtx)
	if err != nil {
		log.Fatal("failed to enumerate audio devices:", err)
	}

	micDevice := findDevice(devices, audio.KindMicrophone, cfg.MicDeviceName)
	if micDevice == nil {
		log.Fatal("no microphone device available")
	}

	var sysDevice *audio.Device
	if cfg.CaptureSystem {
		sysDevice = findDevice(devices, audio.KindSystemAudio, cfg.SystemDeviceName)
		sysDevice = audio.PickSafeDefaults(devices, sysDevice)
	}

	sessionCfg := coordinator.Config{
		SessionID: newSessionID(),
		Title:     "session",
		DataDir:   cfg.DataDir,
		AutoSave:  cfg.AutoSave,
		Language:  cfg.Language,
		Enhancement: audio.EnhancementConfig{
			HighPassCutoffHz:  cfg.HighPassCutoffHz,
			NoiseSuppression:  cfg.NoiseSuppression,
			NoiseModelPath:    cfg.NoiseModelPath,
			LoudnessNormalize: cfg.LoudnessNormalize,
		},
		MicDeviceName: micDevice.Name,
	}
	if sysDevice != nil {
		sessionCfg.SystemDeviceName = sysDevice.Name
	}

	micOpen := func(onBatch audio.BatchHandler, onError audio.ErrorHandler) (*audio.Processor, error) {
		proc, err := audio.NewMicrophoneProcessor(sessionCfg.Enhancement, onBatch, onError)
		if err != nil {
			return nil, err
		}
		if err := proc.Start(malgoCtx, micDevice.ID, 48000, 1); err != nil {
			return nil, err
		}
		return proc, nil
	}

	sysOpen := func(onBatch audio.BatchHandler, onError audio.ErrorHandler) (*audio.Processor, error) {
		proc := audio.NewSystemAudioProcessor(onBatch, onError)
		if sysDevice == nil {
			return proc, nil
		}
		if err := proc.Start(malgoCtx, sysDevice.ID, 48000, 2); err != nil {
			return nil, err
		}
		return proc, nil
	}

	if err := coord.Start(sessionCfg, micOpen, sysOpen); err != nil {
		log.Fatal("failed to start recording session:", err)
	}

	micMonitor := devicemonitor.New(malgoCtx, micDevice.ID, audio.KindMicrophone, reconnectListener{coord})
	go micMonitor.Run()
	defer micMonitor.Stop()

	if sysDevice != nil {
		sysMonitor := devicemonitor.New(malgoCtx, sysDevice.ID, audio.KindSystemAudio, reconnectListener{coord})
		go sysMonitor.Run()
		defer sysMonitor.Stop()
	}

	log.Println("session recording core started")
	select {}
}

func setupLogging(path string) *os.File {
	if path == "" {
		return nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open trace log %s: %v\n", path, err)
		return nil
	}

	log.SetOutput(io.MultiWriter(os.Stdout, file))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Printf("trace log attached: %s", path)

	return file
}

func findDevice(devices []audio.Device, kind audio.Kind, name string) *audio.Device {
	for i := range devices {
		d := &devices[i]
		if d.Kind != kind {
			continue
		}
		if name == "" || d.Name == name {
			return d
		}
	}
	return nil
}

func newSessionID() string {
	return uuid.New().String()
}

type reconnectListener struct {
	coord *coordinator.Coordinator
}

func (r reconnectListener) OnDisconnected(kind audio.Kind) {
	log.Printf("main: device disconnected: %s", kind)
	r.coord.NotifyDisconnected(kind)
}

func (r reconnectListener) OnReconnected(kind audio.Kind) {
	r.coord.NotifyReconnected(kind)
}
