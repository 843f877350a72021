package tagged

import "math/big"

// TransientBigInt is a scratch big integer for tagged arithmetic whose
// result leaves the tagged range: SetWord loads a tagged operand, Big
// exposes the underlying math/big.Int for the caller's operation, and
// Retag narrows the result back when it fits. It wraps a big.Int and has
// no refcount field. The runtime helpers compute their overflow results
// with math/big directly and do not use it.
//
// PinnedRefCount is a sentinel refcount high enough that ordinary DecRef
// traffic within one compiled method body can never drive it to zero.
// Nothing in hostabi applies it; no boxing constructor sets it.
const PinnedRefCount = int64(1) << 48

func NewTransientBigInt() *TransientBigInt { return &TransientBigInt{} }

type TransientBigInt struct {
	v big.Int
}

func (t *TransientBigInt) SetWord(w Word) *TransientBigInt {
	t.v.SetInt64(Untag(w))
	return t
}

func (t *TransientBigInt) Big() *big.Int { return &t.v }

// Retag attempts to narrow t back into a tagged Word, the common case for
// arithmetic whose inputs were both tagged and whose result merely
// temporarily overflowed while being computed (e.g. multiplying two large
// tagged ints that individually fit but whose product does not, yet after
// the caller's specific operation — such as then dividing back down — fits
// again). Returns ok=false when the value must be boxed.
func (t *TransientBigInt) Retag() (Word, bool) {
	if !t.v.IsInt64() {
		return 0, false
	}
	return Tag(t.v.Int64())
}
