// Package tensor provides small device-addressed numeric
// buffers.
//
// Values either live in ordinary process memory (the Host
// device) or inside an emulated accelerator whose memory can
// only be reached through explicit staging copies. The
// emulator stands in for real accelerator backends in tests
// and simulations, while keeping the same reachability rules.
package tensor

import (
	"errors"
	"fmt"
)

// ErrFreed is returned when a Buffer is used after Free.
var ErrFreed = errors.New("buffer is freed")

// A Device owns memory that Buffers are allocated from.
type Device interface {
	// Name identifies the device, e.g. "host" or "emu0".
	Name() string

	// Allocate reserves room for n float64 values.
	Allocate(n int) (Buffer, error)
}

// A Buffer is a fixed-size allocation on some Device.
//
// Read and Write always copy; on an emulated accelerator they
// are staging transfers and get counted by the device.
type Buffer interface {
	// Device returns the device the Buffer lives on.
	Device() Device

	// Len returns the number of float64 values.
	Len() int

	// Read copies the Buffer's contents into out, whose
	// length must equal Len.
	Read(out []float64) error

	// Write copies data into the Buffer. The length of data
	// must equal Len.
	Write(data []float64) error

	// Free releases the Buffer. Any later use fails with
	// ErrFreed.
	Free() error
}

type hostDevice struct{}

var hostSingleton Device = hostDevice{}

// Host returns the Device representing ordinary process
// memory. It always returns the same value, so Devices may be
// compared against it.
func Host() Device {
	return hostSingleton
}

func (hostDevice) Name() string {
	return "host"
}

func (hostDevice) Allocate(n int) (Buffer, error) {
	if n < 0 {
		return nil, fmt.Errorf("allocate: negative size %d", n)
	}
	return &hostBuffer{data: make([]float64, n)}, nil
}

type hostBuffer struct {
	data  []float64
	freed bool
}

func (h *hostBuffer) Device() Device {
	return hostSingleton
}

func (h *hostBuffer) Len() int {
	return len(h.data)
}

func (h *hostBuffer) Read(out []float64) error {
	if h.freed {
		return ErrFreed
	}
	if len(out) != len(h.data) {
		return fmt.Errorf("read: have %d values but out has room for %d", len(h.data), len(out))
	}
	copy(out, h.data)
	return nil
}

func (h *hostBuffer) Write(data []float64) error {
	if h.freed {
		return ErrFreed
	}
	if len(data) != len(h.data) {
		return fmt.Errorf("write: have room for %d values but got %d", len(h.data), len(data))
	}
	copy(h.data, data)
	return nil
}

func (h *hostBuffer) Free() error {
	if h.freed {
		return ErrFreed
	}
	h.freed = true
	h.data = nil
	return nil
}
