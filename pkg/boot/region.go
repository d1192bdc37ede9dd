package boot

import "fmt"

// Region is the destination memory range the firmware image is placed in.
// It carries its capacity alongside the base address and refuses any
// write past it.
type Region struct {
	Base uint32

	mem []byte
	n   int
}

// NewRegion allocates a region of capacity bytes at base.
func NewRegion(base uint32, capacity int) (*Region, error) {
	if capacity <= 0 {
		return nil, &ConfigError{Field: "region size", Reason: "must be positive"}
	}
	if uint64(base)+uint64(capacity) > 1<<32 {
		return nil, &ConfigError{
			Field:  "region",
			Reason: fmt.Sprintf("0x%08X+%d exceeds the 32-bit address space", base, capacity),
		}
	}
	return &Region{Base: base, mem: make([]byte, capacity)}, nil
}

// Capacity returns the maximum image size.
func (r *Region) Capacity() int {
	return len(r.mem)
}

// Buffer returns the whole writable window, for a receive primitive.
func (r *Region) Buffer() []byte {
	return r.mem
}

// Commit records that the first n bytes of the buffer hold the image.
func (r *Region) Commit(n int) error {
	if n < 0 || n > len(r.mem) {
		return &OverflowError{Size: n, Capacity: len(r.mem)}
	}
	r.n = n
	return nil
}

// Load copies a pre-initialized image into the region.
func (r *Region) Load(image []byte) error {
	if len(image) > len(r.mem) {
		return &OverflowError{Size: len(image), Capacity: len(r.mem)}
	}
	copy(r.mem, image)
	r.n = len(image)
	return nil
}

// Len returns the size of the loaded image.
func (r *Region) Len() int {
	return r.n
}

// Bytes returns the loaded image.
func (r *Region) Bytes() []byte {
	return r.mem[:r.n]
}

// Addr translates an offset into an absolute address.
func (r *Region) Addr(off int) uint32 {
	return r.Base + uint32(off)
}

// String implements fmt.Stringer.
func (r *Region) String() string {
	return fmt.Sprintf("0x%08X+%d (%d loaded)", r.Base, len(r.mem), r.n)
}
