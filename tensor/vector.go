package tensor

// A Vector is a one-dimensional array of float64 values living
// on some Device.
type Vector struct {
	buf Buffer
}

// FromSlice allocates a Vector on dev holding a copy of data.
func FromSlice(dev Device, data []float64) (*Vector, error) {
	buf, err := dev.Allocate(len(data))
	if err != nil {
		return nil, err
	}
	if err := buf.Write(data); err != nil {
		buf.Free()
		return nil, err
	}
	return &Vector{buf: buf}, nil
}

// Zeros allocates a Vector of n zero values on dev.
func Zeros(dev Device, n int) (*Vector, error) {
	buf, err := dev.Allocate(n)
	if err != nil {
		return nil, err
	}
	return &Vector{buf: buf}, nil
}

// Full allocates a Vector of n values on dev, all equal to x.
func Full(dev Device, n int, x float64) (*Vector, error) {
	data := make([]float64, n)
	for i := range data {
		data[i] = x
	}
	return FromSlice(dev, data)
}

// Scalar allocates a length-1 Vector on dev holding x.
func Scalar(dev Device, x float64) (*Vector, error) {
	return FromSlice(dev, []float64{x})
}

// Len returns the number of values in the Vector.
func (v *Vector) Len() int {
	return v.buf.Len()
}

// Device returns the Device the Vector lives on.
func (v *Vector) Device() Device {
	return v.buf.Device()
}

// Read copies the Vector's contents into a new slice.
func (v *Vector) Read() ([]float64, error) {
	out := make([]float64, v.buf.Len())
	if err := v.buf.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Write replaces the Vector's contents with a copy of data,
// whose length must equal Len.
func (v *Vector) Write(data []float64) error {
	return v.buf.Write(data)
}

// Free releases the Vector's storage. Any later use fails with
// ErrFreed.
func (v *Vector) Free() error {
	return v.buf.Free()
}
