package sensorlink

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptionsNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{"defaults", PortOptions{}, PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"}, false},
		{"even parity word", PortOptions{BaudRate: 115200, Parity: " even "}, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "E"}, false},
		{"odd", PortOptions{Parity: "o", StopBits: 2, DataBits: 7}, PortOptions{BaudRate: DefaultBaudRate, DataBits: 7, StopBits: 2, Parity: "O"}, false},
		{"bad data bits", PortOptions{DataBits: 9}, PortOptions{}, true},
		{"bad stop bits", PortOptions{StopBits: 3}, PortOptions{}, true},
		{"bad parity", PortOptions{Parity: "mark"}, PortOptions{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%+v) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%+v) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPortOptionsSerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 57600, StopBits: 2, Parity: "E"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode error: %v", err)
	}
	if mode.BaudRate != 57600 || mode.DataBits != 8 {
		t.Errorf("unexpected mode %+v", mode)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("stop bits = %v, want TwoStopBits", mode.StopBits)
	}
	if mode.Parity != serial.EvenParity {
		t.Errorf("parity = %v, want EvenParity", mode.Parity)
	}

	mode, err = PortOptions{}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode error: %v", err)
	}
	if mode.StopBits != serial.OneStopBit || mode.Parity != serial.NoParity {
		t.Errorf("unexpected default mode %+v", mode)
	}

	if _, err := (PortOptions{Parity: "x"}).SerialMode(); err == nil {
		t.Error("expected error for invalid parity")
	}
}

func TestOpenSerialRejectsBadOptions(t *testing.T) {
	if _, err := OpenSerial("/dev/null-does-not-exist", PortOptions{DataBits: 3}); err == nil {
		t.Error("expected error for invalid data bits")
	}
}
