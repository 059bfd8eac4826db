package validator

import (
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/wippyai/wasm-validator/errors"
)

const (
	// maxFlatLocals is how many leading locals are stored one entry each
	maxFlatLocals = 50
	// MaxLocals bounds parameters plus declared locals of one function
	MaxLocals = 50000
)

// localRun covers every local up to and including last
type localRun struct {
	last uint32
	ty   ValType
}

// locals is the local type table. Small functions resolve from the flat
// prefix, larger ones binary search the run list.
type locals struct {
	flat []ValType
	runs []localRun
	num  uint32
}

func (l *locals) reset(flat []ValType, runs []localRun) {
	l.flat = flat[:0]
	l.runs = runs[:0]
	l.num = 0
}

func (l *locals) define(count uint32, t ValType) bool {
	if count == 0 {
		return true
	}
	if l.num+count > MaxLocals || l.num+count < l.num {
		return false
	}
	for i := uint32(0); i < count && len(l.flat) < maxFlatLocals; i++ {
		l.flat = append(l.flat, t)
	}
	l.num += count
	l.runs = append(l.runs, localRun{last: l.num - 1, ty: t})
	return true
}

func (l *locals) get(idx uint32) (ValType, bool) {
	if int(idx) < len(l.flat) {
		return l.flat[idx], true
	}
	if idx >= l.num {
		return ValType{}, false
	}
	i := sort.Search(len(l.runs), func(i int) bool { return l.runs[i].last >= idx })
	return l.runs[i].ty, true
}

// localInits tracks which locals are definitely initialized. Every local
// before firstNonDefault is defaultable and always set; newly set bits are
// logged so a frame exit can roll them back.
type localInits struct {
	bits            *bitset.BitSet
	log             []uint32
	firstNonDefault uint32
	allDefault      bool
}

func (li *localInits) reset(bits *bitset.BitSet, log []uint32) {
	if bits == nil {
		bits = bitset.New(maxFlatLocals)
	}
	bits.ClearAll()
	li.bits = bits
	li.log = log[:0]
	li.firstNonDefault = 0
	li.allDefault = true
}

func (li *localInits) define(start, count uint32, defaultable bool) {
	if !defaultable && li.allDefault {
		li.allDefault = false
		li.firstNonDefault = start
	}
	if li.allDefault {
		return
	}
	if defaultable {
		for i := start; i < start+count; i++ {
			li.bits.Set(uint(i))
		}
	}
}

func (li *localInits) isSet(idx uint32) bool {
	if li.allDefault || idx < li.firstNonDefault {
		return true
	}
	return li.bits.Test(uint(idx))
}

func (li *localInits) set(idx uint32) {
	if li.isSet(idx) {
		return
	}
	li.bits.Set(uint(idx))
	li.log = append(li.log, idx)
}

func (li *localInits) height() int { return len(li.log) }

func (li *localInits) resetTo(height int) {
	for _, idx := range li.log[height:] {
		li.bits.Clear(uint(idx))
	}
	li.log = li.log[:height]
}

// DefineLocals declares count locals of type t after the parameters and
// every earlier declaration.
func (f *FuncValidator) DefineLocals(offset int, count uint32, t ValType) error {
	v := &f.ops
	v.offset = offset
	if err := v.res.CheckValueType(&t, v.features, offset); err != nil {
		return err
	}
	if !t.IsDefaultable() && !v.features.Has(FeatureFunctionReferences) {
		return v.errorf(errors.KindInvalidData, "non-defaultable local type %s", t)
	}
	return v.defineLocals(count, t)
}

func (v *operatorValidator) defineLocals(count uint32, t ValType) error {
	start := v.locals.num
	if !v.locals.define(count, t) {
		return v.errorf(errors.KindLimitExceeded, "too many locals: locals exceed maximum of %d", MaxLocals)
	}
	v.inits.define(start, count, t.IsDefaultable())
	return nil
}

func (v *operatorValidator) localAt(idx uint32) (ValType, error) {
	t, ok := v.locals.get(idx)
	if !ok {
		return ValType{}, errors.Unknown(errors.KindUnknownLocal, "local", idx, v.offset)
	}
	return t, nil
}

func (v *operatorValidator) visitLocalGet(idx uint32) error {
	t, err := v.localAt(idx)
	if err != nil {
		return err
	}
	if !v.inits.isSet(idx) {
		return v.errorf(errors.KindUninitializedLocal, "uninitialized local: %d", idx)
	}
	v.pushType(t)
	return nil
}

func (v *operatorValidator) visitLocalSet(idx uint32) error {
	t, err := v.localAt(idx)
	if err != nil {
		return err
	}
	if _, err := v.pop(t); err != nil {
		return err
	}
	v.inits.set(idx)
	return nil
}

func (v *operatorValidator) visitLocalTee(idx uint32) error {
	t, err := v.localAt(idx)
	if err != nil {
		return err
	}
	if _, err := v.pop(t); err != nil {
		return err
	}
	v.inits.set(idx)
	v.pushType(t)
	return nil
}
