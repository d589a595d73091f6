package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestDataType(t *testing.T) {
	assert.Equal(t, 2, Half.Size())
	assert.Equal(t, 4, Float.Size())
	assert.Equal(t, 8, Double.Size())
	assert.Equal(t, "ushort", BFloat16.CLType())
	assert.Equal(t, "FP32", Float.Define())
	assert.False(t, Int8.IsFloat())
	assert.False(t, DataType(42).Valid())
	assert.Equal(t, "unknown", DataType(42).String())

	t.Run("Scalar marshaling", func(t *testing.T) {
		assert.Equal(t, float16.Fromfloat32(1.5), Half.Scalar(1.5))
		assert.Equal(t, float64(2), Double.Scalar(2))
		assert.Equal(t, float32(3), BFloat16.Scalar(3))
		assert.Equal(t, float32(-1), Int32.Scalar(-1))
	})
}

func TestDescriptor(t *testing.T) {
	t.Run("packed", func(t *testing.T) {
		d := New(Float, 2, 3, 4)
		assert.Equal(t, []int{12, 4, 1}, d.Strides())
		assert.Equal(t, 24, d.ElementSize())
		assert.Equal(t, 24, d.ElementSpace())
		assert.True(t, d.IsPacked())
		assert.Equal(t, 96, d.Bytes())
		assert.Equal(t, "float[2x3x4]", d.String())
	})

	t.Run("strided", func(t *testing.T) {
		d, err := NewStrided(Half, []int{2, 3}, []int{8, 1})
		require.NoError(t, err)
		assert.Equal(t, 6, d.ElementSize())
		assert.Equal(t, 11, d.ElementSpace())
		assert.False(t, d.IsPacked())
	})

	t.Run("rank mismatch", func(t *testing.T) {
		_, err := NewStrided(Float, []int{2, 3}, []int{1})
		assert.Error(t, err)
	})

	t.Run("layout and equality", func(t *testing.T) {
		a := New(Float, 1, 2, 3, 4)
		assert.Equal(t, "NCHW", a.Layout())
		b := a.WithLayout("NHWC")
		assert.False(t, a.Equal(b))
		assert.True(t, a.Equal(New(Float, 1, 2, 3, 4)))
	})

	t.Run("accessors return copies", func(t *testing.T) {
		d := New(Float, 4, 4)
		l := d.Lengths()
		l[0] = 100
		assert.Equal(t, 4, d.Length(0))
	})
}
