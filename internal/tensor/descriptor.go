package tensor

import (
	"fmt"
	"slices"
	"strings"
)

// MaxRank is the highest dimensionality any kernel in this library handles.
const MaxRank = 5

// Descriptor is an immutable shape/stride oracle. Lengths and strides are in elements.
type Descriptor struct {
	dtype   DataType
	lengths []int
	strides []int
	layout  string
}

// New returns a packed descriptor with row-major strides.
func New(dtype DataType, lengths ...int) Descriptor {
	return Descriptor{
		dtype:   dtype,
		lengths: slices.Clone(lengths),
		strides: PackedStrides(lengths),
		layout:  defaultLayout(len(lengths)),
	}
}

// NewStrided returns a descriptor with explicit strides.
func NewStrided(dtype DataType, lengths, strides []int) (Descriptor, error) {
	if len(lengths) != len(strides) {
		return Descriptor{}, fmt.Errorf("lengths and strides rank mismatch: %d != %d", len(lengths), len(strides))
	}
	for i := range lengths {
		if lengths[i] < 0 || strides[i] < 0 {
			return Descriptor{}, fmt.Errorf("negative length or stride in dimension %d", i)
		}
	}
	return Descriptor{
		dtype:   dtype,
		lengths: slices.Clone(lengths),
		strides: slices.Clone(strides),
		layout:  defaultLayout(len(lengths)),
	}, nil
}

// WithLayout returns a copy tagged with a memory layout name such as NDHWC.
func (d Descriptor) WithLayout(layout string) Descriptor {
	d.layout = layout
	return d
}

// PackedStrides computes row-major strides for lengths.
func PackedStrides(lengths []int) []int {
	strides := make([]int, len(lengths))
	acc := 1
	for i := len(lengths) - 1; i >= 0; i-- {
		strides[i] = acc
		if lengths[i] > 0 {
			acc *= lengths[i]
		}
	}
	return strides
}

func defaultLayout(rank int) string {
	switch rank {
	case 4:
		return "NCHW"
	case 5:
		return "NCDHW"
	}
	return ""
}

func (d Descriptor) Type() DataType   { return d.dtype }
func (d Descriptor) Rank() int        { return len(d.lengths) }
func (d Descriptor) Layout() string   { return d.layout }
func (d Descriptor) Lengths() []int   { return slices.Clone(d.lengths) }
func (d Descriptor) Strides() []int   { return slices.Clone(d.strides) }
func (d Descriptor) Length(i int) int { return d.lengths[i] }
func (d Descriptor) Stride(i int) int { return d.strides[i] }

// ElementSize is the number of logical elements.
func (d Descriptor) ElementSize() int {
	if len(d.lengths) == 0 {
		return 0
	}
	n := 1
	for _, l := range d.lengths {
		n *= l
	}
	return n
}

// ElementSpace is the number of elements spanned in memory, padding included.
func (d Descriptor) ElementSpace() int {
	if d.ElementSize() == 0 {
		return 0
	}
	space := 1
	for i, l := range d.lengths {
		space += (l - 1) * d.strides[i]
	}
	return space
}

// Bytes is the memory footprint of the tensor.
func (d Descriptor) Bytes() int {
	return d.ElementSpace() * d.dtype.Size()
}

// IsPacked reports whether the tensor occupies a contiguous unpadded block.
func (d Descriptor) IsPacked() bool {
	return d.ElementSize() > 0 && d.ElementSize() == d.ElementSpace()
}

// Equal compares type, lengths, strides and layout.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.dtype == o.dtype &&
		d.layout == o.layout &&
		slices.Equal(d.lengths, o.lengths) &&
		slices.Equal(d.strides, o.strides)
}

func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteString(d.dtype.String())
	b.WriteString(joinInts(d.lengths, "x"))
	if !d.IsPacked() {
		b.WriteString("s")
		b.WriteString(joinInts(d.strides, "x"))
	}
	if d.layout != "" {
		b.WriteString(d.layout)
	}
	return b.String()
}

func joinInts(v []int, sep string) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprint(x)
	}
	return "[" + strings.Join(parts, sep) + "]"
}
