package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var emuCounter atomic.Int64

// An Emulator is an accelerator-like Device.
//
// Its memory lives in a private arena that the rest of the
// process cannot address directly: the only way data moves in
// or out is through CopyIn and CopyOut staging transfers, which
// the Emulator counts. Freed blocks are pooled by size and
// reused by later allocations.
type Emulator struct {
	name     string
	capacity int

	lock      sync.Mutex
	arena     []float64
	pool      map[int][]int
	liveAlloc int
	copiesIn  int
	copiesOut int
}

// NewEmulator creates an Emulator with unbounded memory and an
// automatically assigned name ("emu0", "emu1", ...).
func NewEmulator() *Emulator {
	return NewEmulatorCapacity(0)
}

// NewEmulatorCapacity creates an Emulator whose arena holds at
// most capacity float64 values. A capacity of zero means
// unbounded.
func NewEmulatorCapacity(capacity int) *Emulator {
	id := emuCounter.Add(1) - 1
	return &Emulator{
		name:     fmt.Sprintf("emu%d", id),
		capacity: capacity,
		pool:     map[int][]int{},
	}
}

// Name returns the Emulator's assigned name.
func (e *Emulator) Name() string {
	return e.name
}

// Allocate reserves a block of n values inside the arena,
// reusing a pooled block of the same size when one exists.
func (e *Emulator) Allocate(n int) (Buffer, error) {
	if n < 0 {
		return nil, fmt.Errorf("allocate: negative size %d", n)
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	offset, err := e.reserve(n)
	if err != nil {
		return nil, err
	}
	e.liveAlloc++
	return &emuBuffer{dev: e, offset: offset, n: n}, nil
}

func (e *Emulator) reserve(n int) (int, error) {
	if offsets := e.pool[n]; len(offsets) > 0 {
		offset := offsets[len(offsets)-1]
		e.pool[n] = offsets[:len(offsets)-1]
		clear(e.arena[offset : offset+n])
		return offset, nil
	}
	if e.capacity > 0 && len(e.arena)+n > e.capacity {
		return 0, fmt.Errorf("allocate: %s is out of memory (%d in use, %d requested, %d capacity)",
			e.name, len(e.arena), n, e.capacity)
	}
	offset := len(e.arena)
	e.arena = append(e.arena, make([]float64, n)...)
	return offset, nil
}

// CopyIn stages data from process memory into the block.
func (e *Emulator) CopyIn(b Buffer, data []float64) error {
	eb, err := e.check(b, len(data))
	if err != nil {
		return err
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	copy(e.arena[eb.offset:eb.offset+eb.n], data)
	e.copiesIn++
	return nil
}

// CopyOut stages the block's contents out into process memory.
func (e *Emulator) CopyOut(b Buffer, out []float64) error {
	eb, err := e.check(b, len(out))
	if err != nil {
		return err
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	copy(out, e.arena[eb.offset:eb.offset+eb.n])
	e.copiesOut++
	return nil
}

// LiveAllocs returns the number of blocks that have been
// allocated but not freed.
func (e *Emulator) LiveAllocs() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.liveAlloc
}

// Copies returns the number of staging transfers into and out
// of the Emulator so far.
func (e *Emulator) Copies() (in, out int) {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.copiesIn, e.copiesOut
}

func (e *Emulator) check(b Buffer, n int) (*emuBuffer, error) {
	eb, ok := b.(*emuBuffer)
	if !ok || eb.dev != e {
		return nil, fmt.Errorf("buffer belongs to %s, not %s", b.Device().Name(), e.name)
	}
	if eb.freed.Load() {
		return nil, ErrFreed
	}
	if n != eb.n {
		return nil, fmt.Errorf("staging copy of %d values for a block of %d", n, eb.n)
	}
	return eb, nil
}

type emuBuffer struct {
	dev    *Emulator
	offset int
	n      int
	freed  atomic.Bool
}

func (b *emuBuffer) Device() Device {
	return b.dev
}

func (b *emuBuffer) Len() int {
	return b.n
}

func (b *emuBuffer) Read(out []float64) error {
	return b.dev.CopyOut(b, out)
}

func (b *emuBuffer) Write(data []float64) error {
	return b.dev.CopyIn(b, data)
}

func (b *emuBuffer) Free() error {
	if b.freed.Swap(true) {
		return ErrFreed
	}
	e := b.dev
	e.lock.Lock()
	defer e.lock.Unlock()
	e.liveAlloc--
	e.pool[b.n] = append(e.pool[b.n], b.offset)
	return nil
}
