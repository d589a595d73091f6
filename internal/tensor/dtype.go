// Package tensor holds the read-only tensor descriptors consumed by the planners and solvers.
package tensor

import (
	"github.com/x448/float16"
)

// DataType is the element type of a tensor.
type DataType int

// Supported data types.
const (
	Half DataType = iota
	Float
	Double
	BFloat16
	Int8
	Int32
)

// traits is the numeric record every dtype-dependent code path reads instead of
// branching on the type itself.
type traits struct {
	size    int
	clType  string
	define  string
	name    string
	isFloat bool
}

var dtypeTraits = map[DataType]traits{
	Half:     {2, "half", "FP16", "half", true},
	Float:    {4, "float", "FP32", "float", true},
	Double:   {8, "double", "FP64", "double", true},
	BFloat16: {2, "ushort", "BFP16", "bfloat16", true},
	Int8:     {1, "char", "INT8", "int8", false},
	Int32:    {4, "int", "INT32", "int32", false},
}

// Valid reports whether dt is one of the supported types.
func (dt DataType) Valid() bool {
	_, ok := dtypeTraits[dt]
	return ok
}

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	return dtypeTraits[dt].size
}

// CLType is the kernel-side scalar type name.
func (dt DataType) CLType() string {
	return dtypeTraits[dt].clType
}

// Define is the suffix of the USE_<define> build flag selecting this type in kernels.
func (dt DataType) Define() string {
	return dtypeTraits[dt].define
}

// IsFloat reports whether the type is a floating point type.
func (dt DataType) IsFloat() bool {
	return dtypeTraits[dt].isFloat
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	if t, ok := dtypeTraits[dt]; ok {
		return t.name
	}
	return "unknown"
}

// Scalar converts a fused coefficient (alpha, beta, a fill value) into the value the
// kernel expects for this type. Half is marshaled as IEEE binary16, double widens,
// every other type receives a float32.
func (dt DataType) Scalar(v float32) any {
	switch dt {
	case Half:
		return float16.Fromfloat32(v)
	case Double:
		return float64(v)
	default:
		return v
	}
}
