// Package tensorop plans and launches elementwise tensor operations
// (C = op(alpha0*A, alpha1*B) + beta*C) where B may broadcast against C, plus the
// sub-tensor set, scale and copy kernels.
package tensorop

import (
	"fmt"

	"github.com/fxnlabs/kernel-cache/internal/kcerr"
	"github.com/fxnlabs/kernel-cache/internal/tensor"
)

// Op is the binary operation applied elementwise.
type Op int

const (
	Add Op = iota
	Mul
	Min
	Max
)

func (o Op) String() string {
	switch o {
	case Add:
		return "OpAdd"
	case Mul:
		return "OpMul"
	case Min:
		return "OpMin"
	case Max:
		return "OpMax"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// ParseOp maps add, mul, min and max to an Op.
func ParseOp(s string) (Op, error) {
	switch s {
	case "add":
		return Add, nil
	case "mul":
		return Mul, nil
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	}
	return 0, fmt.Errorf("unknown tensor op %q", s)
}

// Problem describes one OpTensor call.
type Problem struct {
	Op     Op
	A      tensor.Descriptor
	B      tensor.Descriptor
	C      tensor.Descriptor
	Alpha0 float32
	Alpha1 float32
	Beta   float32
}

// Validate checks the operands before any device work. A must have the rank and element
// count of C, and B must broadcast against C: every B[i] is 1 or C[i].
func Validate(p Problem) error {
	const op = "OpTensor"
	rank := p.C.Rank()
	if rank == 0 {
		return kcerr.BadParameter(op, "C tensor has no dimensions")
	}
	if p.A.ElementSize() != p.C.ElementSize() {
		return kcerr.BadParameter(op, "A and C tensors do not match: %d != %d elements", p.A.ElementSize(), p.C.ElementSize())
	}
	if p.B.Type() != p.C.Type() {
		return kcerr.BadParameter(op, "datatypes of B and C do not match: %s != %s", p.B.Type(), p.C.Type())
	}
	if !p.C.Type().Valid() {
		return kcerr.BadParameter(op, "unsupported data type %d", int(p.C.Type()))
	}
	if rank > tensor.MaxRank {
		return kcerr.Dimension(op, rank)
	}
	// The argument builders index A's strides by C's dimensions.
	if p.A.Rank() != rank {
		return kcerr.BadParameter(op, "number of dims in A and C do not match: %d, %d", p.A.Rank(), rank)
	}
	if p.B.Rank() != rank {
		return kcerr.BadParameter(op, "number of dims in B and C do not match: %d, %d", p.B.Rank(), rank)
	}
	for i := 0; i < rank; i++ {
		if b := p.B.Length(i); b != 1 && b != p.C.Length(i) {
			return kcerr.BadParameter(op, "B dim != 1 && B dim != C dim: %d", i)
		}
	}
	return nil
}

// Broadcast is the result of the shared bit-flagging pass over B and C.
type Broadcast struct {
	// Bitmap has bit (rank-1-i) set when dimension i of B is not broadcast.
	Bitmap uint32
	// LastNotOne is the innermost dimension where B's length is not 1, or -1.
	LastNotOne int
	// NumWG is the product of B's non-broadcast extents.
	NumWG int
	// WorkPerWG is the product of C's extents over the broadcast dimensions.
	WorkPerWG int
}

// AnalyzeBroadcast scans from the innermost non-one dimension of B down to 0. Trailing
// dimensions past it are all broadcast and fold straight into the per-group work.
func AnalyzeBroadcast(b, c []int) Broadcast {
	rank := len(b)
	d := rank - 1
	for d >= 0 && b[d] == 1 {
		d--
	}

	bc := Broadcast{LastNotOne: d, NumWG: 1, WorkPerWG: 1}
	for i := d + 1; i < rank; i++ {
		bc.WorkPerWG *= c[i]
	}
	for i := d; i >= 0; i-- {
		if b[i] != 1 {
			bc.Bitmap |= 1 << (rank - 1 - i)
			if b[i] > 0 {
				bc.NumWG *= b[i]
			}
		} else {
			bc.WorkPerWG *= c[i]
		}
	}
	return bc
}

// IsNotBroadcast reports whether dimension i of B has its bit set.
func (bc Broadcast) IsNotBroadcast(rank, i int) bool {
	return bc.Bitmap&(1<<(rank-1-i)) != 0
}

// LeadingOnes reports whether B broadcasts over a non-empty prefix of outer dimensions
// and over nothing else, e.g. B=[1,1,1,W] against C=[N,C,H,W].
func (bc Broadcast) LeadingOnes(rank int) bool {
	k := 0
	for k < rank && !bc.IsNotBroadcast(rank, k) {
		k++
	}
	if k == 0 || k == rank {
		return false
	}
	for i := k; i < rank; i++ {
		if !bc.IsNotBroadcast(rank, i) {
			return false
		}
	}
	return true
}

// FwdBias reports the "only the channel dimension varies" pattern of a 4-D bias add.
func (bc Broadcast) FwdBias(rank int) bool {
	return rank == 4 && bc.Bitmap == 1<<2
}
