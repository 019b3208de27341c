package nodemcu

import (
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialTransport opens real serial ports with go.bug.st/serial (8N1).
type SerialTransport struct {
	// USBOnly restricts enumeration to USB serial adapters, which is what
	// NodeMCU dev boards expose.
	USBOnly bool
}

// Ports lists candidate device paths. Detailed enumeration is tried first so
// that USBOnly can be honoured; when it is unavailable the plain list is used.
func (t SerialTransport) Ports() ([]string, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil || len(details) == 0 {
		if t.USBOnly && err == nil {
			return nil, nil
		}
		names, lerr := serial.GetPortsList()
		if lerr != nil {
			return nil, fmt.Errorf("listing serial ports: %w", lerr)
		}
		return names, nil
	}

	var names []string
	for _, d := range details {
		if t.USBOnly && !d.IsUSB {
			continue
		}
		names = append(names, d.Name)
	}
	return names, nil
}

func (t SerialTransport) Open(path string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}
