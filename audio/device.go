// Package audio implements the device layer: enumeration, transport
// classification, and native PCM capture for the microphone and
// system-audio sources.
package audio

import (
	"strings"

	"github.com/gen2brain/malgo"
)

// Kind distinguishes the two source roles the pipeline cares about.
type Kind int

const (
	KindMicrophone Kind = iota
	KindSystemAudio
)

func (k Kind) String() string {
	if k == KindSystemAudio {
		return "system_audio"
	}
	return "microphone"
}

// Transport is a coarse classification of how a device is connected,
// inferred from its name only (see classifyTransport).
// Bluetooth devices are the ones most likely to deliver variable
// sample rates and need defensive handling (§4.1).
type Transport int

const (
	TransportUnknown Transport = iota
	TransportWired
	TransportBluetooth
)

func (t Transport) String() string {
	switch t {
	case TransportWired:
		return "wired"
	case TransportBluetooth:
		return "bluetooth"
	default:
		return "unknown"
	}
}

// Device is one enumerated input endpoint.
type Device struct {
	ID               malgo.DeviceID
	Name             string
	Kind             Kind
	Transport        Transport
	NominalSampleRate uint32
}

var bluetoothNameHints = []string{
	"airpods", "bluetooth", "bt ", " bt", "wireless", "hands-free", "hfp", "headset",
}

// classifyTransport infers a transport from the device name. This is a
// heuristic, not a hardware query: malgo does not expose bus type on
// every backend, so name matching is the only portable signal
// available.
func classifyTransport(name string) Transport {
	lower := strings.ToLower(name)
	for _, hint := range bluetoothNameHints {
		if strings.Contains(lower, hint) {
			return TransportBluetooth
		}
	}
	if lower == "" {
		return TransportUnknown
	}
	return TransportWired
}

// EnumerateInputs lists available capture devices for both roles.
// System-audio entries come from the platform's loopback/output-tap
// devices exposed through the same malgo capture device list; callers
// distinguish them from ordinary microphones using Kind.
func EnumerateInputs(ctx *malgo.AllocatedContext) ([]Device, error) {
	raw, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(raw))
	for _, d := range raw {
		name := d.Name()
		devices = append(devices, Device{
			ID:                d.ID,
			Name:              name,
			Kind:              classifyRole(name),
			Transport:         classifyTransport(name),
			NominalSampleRate: nominalSampleRate(d),
		})
	}
	return devices, nil
}

// classifyRole guesses whether an enumerated capture device is a
// loopback/system-audio tap or an ordinary microphone, based on the
// name patterns malgo's backends commonly report for monitor/loopback
// endpoints (e.g. "Monitor of ...", "BlackHole", "Stereo Mix").
func classifyRole(name string) Kind {
	lower := strings.ToLower(name)
	systemHints := []string{"monitor of", "blackhole", "stereo mix", "loopback", "what u hear"}
	for _, hint := range systemHints {
		if strings.Contains(lower, hint) {
			return KindSystemAudio
		}
	}
	return KindMicrophone
}

func nominalSampleRate(info malgo.DeviceInfo) uint32 {
	// malgo's DeviceInfo doesn't universally populate a single nominal
	// rate across backends; 48000 is the pipeline's own rate and a safe
	// default until the device is actually opened and its native format
	// negotiated.
	_ = info
	return 48000
}

// PickSafeDefaults implements the deterministic override described in
// §4.1: a Bluetooth system-audio selection is replaced by a built-in
// (non-Bluetooth) device when one is available, because Bluetooth
// system-audio taps commonly deliver variable sample rates that defeat
// the persistent resampler's energy-preservation guarantee. The
// microphone selection and the user's own playback device are never
// touched.
func PickSafeDefaults(devices []Device, systemChoice *Device) *Device {
	if systemChoice == nil || systemChoice.Transport != TransportBluetooth {
		return systemChoice
	}
	for i := range devices {
		d := &devices[i]
		if d.Kind == KindSystemAudio && d.Transport != TransportBluetooth {
			return d
		}
	}
	return systemChoice
}
