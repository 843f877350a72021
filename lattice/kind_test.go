package lattice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tachyon-lang/tachyonjit/internal/optok"
	"github.com/tachyon-lang/tachyonjit/lattice"
)

func TestJoinIdentical(t *testing.T) {
	assert.Equal(t, lattice.Int, lattice.Join(lattice.Int, lattice.Int))
}

func TestJoinWithBottomIsIdentity(t *testing.T) {
	assert.Equal(t, lattice.Float, lattice.Join(lattice.Bottom, lattice.Float))
	assert.Equal(t, lattice.Float, lattice.Join(lattice.Float, lattice.Bottom))
}

func TestJoinDistinctCollapsesToAny(t *testing.T) {
	assert.Equal(t, lattice.Any, lattice.Join(lattice.Int, lattice.Float))
}

func TestJoinDefinedPropagatesUndefined(t *testing.T) {
	a := lattice.Defined(lattice.Int)
	b := lattice.UndefinedSlot
	joined := lattice.JoinDefined(a, b)
	assert.True(t, joined.Undefined)
}

func TestSupportsUnboxOnlyFloat(t *testing.T) {
	assert.True(t, lattice.SupportsUnbox(lattice.Float))
	assert.False(t, lattice.SupportsUnbox(lattice.Int))
	assert.False(t, lattice.SupportsUnbox(lattice.Any))
}

func TestHasSpecializedBinary(t *testing.T) {
	assert.True(t, lattice.HasSpecializedBinary(optok.ADD, lattice.Int, lattice.Int))
	assert.True(t, lattice.HasSpecializedBinary(optok.TRUEDIV, lattice.Float, lattice.Float))
	assert.False(t, lattice.HasSpecializedBinary(optok.TRUEDIV, lattice.Int, lattice.Int))
	assert.False(t, lattice.HasSpecializedBinary(optok.ADD, lattice.Any, lattice.Int))
}

func TestHasSpecializedUnary(t *testing.T) {
	assert.True(t, lattice.HasSpecializedUnary(optok.INVERT, lattice.Int))
	assert.False(t, lattice.HasSpecializedUnary(optok.INVERT, lattice.Float))
	assert.True(t, lattice.HasSpecializedUnary(optok.NOT, lattice.Bool))
}
