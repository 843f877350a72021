package hostabi

import (
	"strconv"

	"github.com/tachyon-lang/tachyonjit/tagged"
)

// TaggedInt bridges a tagged.Word into the Value interface. It is how
// tagged integers travel as Values: the runtime helpers return integer
// results that fit the tagged range as TaggedInt, and compiled code carries
// them on the operand stack like any other Value; Box produces a heap *Int
// where one is needed.
// TaggedInt deliberately does not embed Header: it is not a RefCounted
// value, so IncRef/DecRef treat it as a no-op exactly like a Bool or None
// singleton, matching the host's "DecRef checks the tag bit first" rule.
type TaggedInt tagged.Word

func NewTaggedInt(w tagged.Word) TaggedInt { return TaggedInt(w) }

func (t TaggedInt) String() string { return strconv.FormatInt(tagged.Untag(tagged.Word(t)), 10) }
func (TaggedInt) Type() string     { return "int" }
func (t TaggedInt) Truth() bool    { return tagged.Untag(tagged.Word(t)) != 0 }

func (t TaggedInt) Word() tagged.Word { return tagged.Word(t) }

// Box promotes a TaggedInt to a heap-allocated, refcounted *Int, the step
// runtime helpers take when a tagged value must be stored somewhere that
// only ever sees boxed Values (a Dict key, a Tuple element materialized for
// a generic callee).
func (t TaggedInt) Box() *Int { return NewIntFromInt64(tagged.Untag(tagged.Word(t))) }

// UnboxInt attempts to recover a tagged.Word from an arbitrary Value,
// succeeding both for an already-tagged TaggedInt and for a boxed *Int that
// happens to fit the tagged range — the "reboxing" case that arises when a
// generic helper hands back a freshly allocated *Int that a faster caller
// would rather keep tagged.
func UnboxInt(v Value) (tagged.Word, bool) {
	switch n := v.(type) {
	case TaggedInt:
		return tagged.Word(n), true
	case *Int:
		if !n.V.IsInt64() {
			return 0, false
		}
		return tagged.Tag(n.V.Int64())
	default:
		return 0, false
	}
}
