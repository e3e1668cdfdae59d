// Package devicemonitor periodically polls whether the in-use capture
// devices are still present and reports disconnect/reconnect
// transitions, the same ticker-driven polling shape the teacher's
// RecordingService uses for its audio-level callback.
package devicemonitor

import (
	"log"
	"time"

	"github.com/gen2brain/malgo"

	"sessioncore/audio"
)

const pollInterval = 2 * time.Second

// Listener receives disconnect/reconnect notifications.
type Listener interface {
	OnDisconnected(kind audio.Kind)
	OnReconnected(kind audio.Kind)
}

// Monitor polls malgo's device enumeration for a fixed device ID and
// reports when it stops or starts appearing.
type Monitor struct {
	ctx      *malgo.AllocatedContext
	deviceID malgo.DeviceID
	kind     audio.Kind
	listener Listener

	present bool
	stop    chan struct{}
}

// New builds a monitor for one device. The device is assumed present
// when the monitor starts, so the first poll that misses it reports a
// disconnect.
func New(ctx *malgo.AllocatedContext, deviceID malgo.DeviceID, kind audio.Kind, listener Listener) *Monitor {
	return &Monitor{
		ctx:      ctx,
		deviceID: deviceID,
		kind:     kind,
		listener: listener,
		present:  true,
		stop:     make(chan struct{}),
	}
}

// Run polls until Stop is called. It is meant to run in its own
// goroutine.
func (m *Monitor) Run() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *Monitor) check() {
	devices, err := audio.EnumerateInputs(m.ctx)
	if err != nil {
		log.Printf("devicemonitor: enumerate failed: %v", err)
		return
	}

	found := false
	for _, d := range devices {
		if d.ID == m.deviceID {
			found = true
			break
		}
	}

	if found && !m.present {
		m.present = true
		m.listener.OnReconnected(m.kind)
	} else if !found && m.present {
		m.present = false
		m.listener.OnDisconnected(m.kind)
	}
}

// Stop halts the polling loop.
func (m *Monitor) Stop() {
	close(m.stop)
}
