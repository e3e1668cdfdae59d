package audio

import "testing"

func TestClassifyTransport(t *testing.T) {
	cases := map[string]Transport{
		"AirPods Pro":         TransportBluetooth,
		"Bluetooth Headset":   TransportBluetooth,
		"Jabra BT Mono":       TransportBluetooth,
		"USB Microphone":      TransportWired,
		"Built-in Microphone": TransportWired,
		"":                    TransportUnknown,
	}
	for name, want := range cases {
		if got := classifyTransport(name); got != want {
			t.Errorf("classifyTransport(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestClassifyRole(t *testing.T) {
	cases := map[string]Kind{
		"Monitor of Built-in Audio": KindSystemAudio,
		"BlackHole 2ch":             KindSystemAudio,
		"Stereo Mix (Realtek)":      KindSystemAudio,
		"Built-in Microphone":       KindMicrophone,
		"USB Headset Mic":           KindMicrophone,
	}
	for name, want := range cases {
		if got := classifyRole(name); got != want {
			t.Errorf("classifyRole(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestPickSafeDefaultsOverridesBluetoothSystemAudio(t *testing.T) {
	devices := []Device{
		{Name: "AirPods Pro", Kind: KindSystemAudio, Transport: TransportBluetooth},
		{Name: "Monitor of Built-in Audio", Kind: KindSystemAudio, Transport: TransportWired},
	}
	choice := &devices[0]

	got := PickSafeDefaults(devices, choice)
	if got.Transport == TransportBluetooth {
		t.Errorf("PickSafeDefaults should avoid a Bluetooth system-audio device when a wired one exists")
	}
	if got.Name != "Monitor of Built-in Audio" {
		t.Errorf("PickSafeDefaults picked %q, want the wired system-audio device", got.Name)
	}
}

func TestPickSafeDefaultsKeepsBluetoothWhenNoAlternative(t *testing.T) {
	devices := []Device{
		{Name: "AirPods Pro", Kind: KindSystemAudio, Transport: TransportBluetooth},
	}
	choice := &devices[0]

	got := PickSafeDefaults(devices, choice)
	if got != choice {
		t.Errorf("PickSafeDefaults should keep the Bluetooth device when no alternative exists")
	}
}

func TestPickSafeDefaultsPassesThroughNonBluetooth(t *testing.T) {
	d := &Device{Name: "USB Mic", Kind: KindSystemAudio, Transport: TransportWired}
	if got := PickSafeDefaults(nil, d); got != d {
		t.Errorf("PickSafeDefaults should not touch a non-Bluetooth choice")
	}
	if got := PickSafeDefaults(nil, nil); got != nil {
		t.Errorf("PickSafeDefaults(nil, nil) = %v, want nil", got)
	}
}
