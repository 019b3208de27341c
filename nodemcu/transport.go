package nodemcu

import "io"

// Port is one open byte channel to a device. Drain blocks until everything
// written has been transmitted.
type Port interface {
	io.ReadWriteCloser
	Drain() error
}

// Transport enumerates and opens device paths.
type Transport interface {
	Ports() ([]string, error)
	Open(path string, baudRate int) (Port, error)
}
