package validator

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/wasm"
)

// resourceBuilder walks the module-level sections in index order and
// fills a ModuleResources, validating every declaration and constant
// expression on the way.
type resourceBuilder struct {
	m        *wasm.Module
	types    *TypeList
	res      *ModuleResources
	alloc    Allocations
	features Features
}

func newResourceBuilder(m *wasm.Module, types *TypeList, features Features) *resourceBuilder {
	return &resourceBuilder{
		m:        m,
		types:    types,
		features: features,
		res:      &ModuleResources{referenced: bitset.New(uint(len(m.Funcs) + m.NumImportedFuncs()))},
	}
}

func (b *resourceBuilder) build() (*ModuleResources, error) {
	steps := []func() error{
		b.typeSection,
		b.imports,
		b.functions,
		b.tables,
		b.memories,
		b.tags,
		b.globals,
		b.exports,
		b.elements,
		b.data,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	b.res.dataCount = b.m.DataCount
	return b.res, nil
}

func (b *resourceBuilder) disabled(f Features, what string) error {
	return errors.FeatureDisabled(errors.NoOffset, f.Name(), what)
}

func (b *resourceBuilder) typeSection() error {
	groups := b.m.RecGroups
	if len(groups) == 0 {
		for i := range b.m.Types {
			groups = append(groups, wasm.RecGroup{Start: uint32(i), Count: 1})
		}
	}
	var ids []CoreTypeID
	for _, g := range groups {
		if g.Explicit && !b.features.Has(FeatureGC) {
			return b.disabled(FeatureGC, "rec group")
		}
		var err error
		ids, err = b.types.AddRecGroup(b.m, g, ids)
		if err != nil {
			return errors.Located(err, fmt.Sprintf("type[%d]", g.Start))
		}
	}
	b.res.view = b.types.snapshot()
	b.res.typeIDs = ids

	for i, id := range ids {
		if err := b.checkSubType(b.res.view.sub(id), &b.m.Types[i]); err != nil {
			return errors.Located(err, fmt.Sprintf("type[%d]", i))
		}
	}
	return nil
}

// checkSubType feature-gates a canonical type definition
func (b *resourceBuilder) checkSubType(st *SubType, raw *wasm.SubType) error {
	if (!raw.Final || len(raw.Parents) > 0) && !b.features.Has(FeatureGC) {
		return b.disabled(FeatureGC, "subtyping")
	}
	c := &st.Composite
	if c.Shared && !b.features.Has(FeatureSharedEverythingThreads) {
		return b.disabled(FeatureSharedEverythingThreads, "shared composite type")
	}
	var vals []ValType
	switch c.Kind {
	case CompFunc:
		if len(c.Func.Results) > 1 && !b.features.Has(FeatureMultiValue) {
			return b.disabled(FeatureMultiValue, "multiple function results")
		}
		vals = append(append(vals, c.Func.Params...), c.Func.Results...)
	case CompStruct:
		if !b.features.Has(FeatureGC) {
			return b.disabled(FeatureGC, "struct type")
		}
		for _, f := range c.Struct.Fields {
			vals = append(vals, f.Storage.Val)
		}
	case CompArray:
		if !b.features.Has(FeatureGC) {
			return b.disabled(FeatureGC, "array type")
		}
		vals = append(vals, c.Array.Elem.Storage.Val)
	case CompCont:
		if !b.features.Has(FeatureStackSwitching) {
			return b.disabled(FeatureStackSwitching, "continuation type")
		}
	}
	for _, t := range vals {
		if err := b.res.CheckValueType(&t, b.features, errors.NoOffset); err != nil {
			return err
		}
		if c.Shared && !b.res.IsShared(t) {
			return errors.Validation(errors.KindInvalidData, errors.NoOffset, "shared composite types must contain only shared types")
		}
	}
	return nil
}

func (b *resourceBuilder) imports() error {
	for i := range b.m.Imports {
		imp := &b.m.Imports[i]
		var err error
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			b.res.funcs = append(b.res.funcs, imp.Desc.TypeIdx)
			_, err = b.funcType(imp.Desc.TypeIdx)
		case wasm.KindTable:
			err = b.table(imp.Desc.Table, nil)
		case wasm.KindMemory:
			err = b.memory(imp.Desc.Memory)
		case wasm.KindGlobal:
			err = b.globalType(imp.Desc.Global, true)
		case wasm.KindTag:
			err = b.tag(imp.Desc.Tag)
		default:
			err = errors.Validation(errors.KindInvalidData, errors.NoOffset, "invalid import kind 0x%x", imp.Desc.Kind)
		}
		if err != nil {
			return errors.Located(err, fmt.Sprintf("import[%d]", i))
		}
	}
	return nil
}

func (b *resourceBuilder) funcType(typeIdx uint32) (*FuncType, error) {
	st, ok := b.res.SubTypeAt(typeIdx)
	if !ok {
		return nil, errors.Unknown(errors.KindUnknownType, "type", typeIdx, errors.NoOffset)
	}
	if st.Composite.Kind != CompFunc {
		return nil, errors.Validation(errors.KindTypeMismatch, errors.NoOffset, "type mismatch: expected func type at index %d, found %s", typeIdx, st.Composite.Kind)
	}
	return st.Composite.Func, nil
}

func (b *resourceBuilder) functions() error {
	for _, typeIdx := range b.m.Funcs {
		if _, err := b.funcType(typeIdx); err != nil {
			return errors.Located(err, fmt.Sprintf("func[%d]", len(b.res.funcs)))
		}
		b.res.funcs = append(b.res.funcs, typeIdx)
	}
	return nil
}

func (b *resourceBuilder) table(t *wasm.TableType, init *wasm.ConstExpr) error {
	if len(b.res.tables) > 0 && !b.features.Has(FeatureReferenceTypes) {
		return b.disabled(FeatureReferenceTypes, "multiple tables")
	}
	if t.Limits.Memory64 && !b.features.Has(FeatureMemory64) {
		return b.disabled(FeatureMemory64, "64-bit table")
	}
	if t.Limits.Shared && !b.features.Has(FeatureSharedEverythingThreads) {
		return b.disabled(FeatureSharedEverythingThreads, "shared table")
	}
	rt, err := FromWasmRef(t.ElemType)
	if err != nil {
		return errors.Validation(errors.KindInvalidData, errors.NoOffset, "%v", err)
	}
	if rt != FuncRef.ref {
		if err := b.res.CheckRefType(&rt, b.features, errors.NoOffset); err != nil {
			return err
		}
	}
	if t.Limits.Shared && !rt.heap.shared {
		return errors.Validation(errors.KindInvalidData, errors.NoOffset, "shared tables must have a shared element type")
	}
	tt := TableType{
		Element: rt,
		Initial: t.Limits.Min,
		Max:     t.Limits.Max,
		Table64: t.Limits.Memory64,
		Shared:  t.Limits.Shared,
	}
	if init != nil {
		if !b.features.Has(FeatureFunctionReferences) {
			return b.disabled(FeatureFunctionReferences, "table initializer")
		}
		if err := b.constExpr(*init, rt.Val(), uint32(len(b.res.globals))); err != nil {
			return errors.Located(err, "init")
		}
	} else if !rt.nullable {
		return errors.Validation(errors.KindTypeMismatch, errors.NoOffset, "type mismatch: non-defaultable element type %s", rt)
	}
	b.res.tables = append(b.res.tables, tt)
	return nil
}

func (b *resourceBuilder) tables() error {
	for i := range b.m.Tables {
		t := &b.m.Tables[i]
		if err := b.table(t, t.Init); err != nil {
			return errors.Located(err, fmt.Sprintf("table[%d]", len(b.res.tables)))
		}
	}
	return nil
}

func (b *resourceBuilder) memory(m *wasm.MemoryType) error {
	if len(b.res.memories) > 0 && !b.features.Has(FeatureMultiMemory) {
		return b.disabled(FeatureMultiMemory, "multiple memories")
	}
	if m.Limits.Memory64 && !b.features.Has(FeatureMemory64) {
		return b.disabled(FeatureMemory64, "64-bit memory")
	}
	if m.Limits.Shared && !b.features.Has(FeatureThreads) {
		return b.disabled(FeatureThreads, "shared memory")
	}
	if m.PageSizeLog2 != nil && !b.features.Has(FeatureCustomPageSizes) {
		return b.disabled(FeatureCustomPageSizes, "custom page size")
	}
	b.res.memories = append(b.res.memories, MemoryType{
		Memory64: m.Limits.Memory64,
		Shared:   m.Limits.Shared,
	})
	return nil
}

func (b *resourceBuilder) memories() error {
	for i := range b.m.Memories {
		if err := b.memory(&b.m.Memories[i]); err != nil {
			return errors.Located(err, fmt.Sprintf("memory[%d]", len(b.res.memories)))
		}
	}
	return nil
}

func (b *resourceBuilder) tag(t *wasm.TagType) error {
	if !b.features.Has(FeatureExceptions) && !b.features.Has(FeatureLegacyExceptions) {
		return b.disabled(FeatureExceptions, "tag")
	}
	fn, err := b.funcType(t.TypeIdx)
	if err != nil {
		return err
	}
	if len(fn.Results) != 0 && !b.features.Has(FeatureStackSwitching) {
		return errors.Validation(errors.KindInvalidData, errors.NoOffset, "invalid exception type: non-empty tag result type")
	}
	b.res.tags = append(b.res.tags, b.res.typeIDs[t.TypeIdx])
	return nil
}

func (b *resourceBuilder) tags() error {
	for i := range b.m.Tags {
		if err := b.tag(&b.m.Tags[i]); err != nil {
			return errors.Located(err, fmt.Sprintf("tag[%d]", len(b.res.tags)))
		}
	}
	return nil
}

func (b *resourceBuilder) globalType(g *wasm.GlobalType, imported bool) error {
	if imported && g.Mutable && !b.features.Has(FeatureMutableGlobal) {
		return b.disabled(FeatureMutableGlobal, "mutable global import")
	}
	if g.Shared && !b.features.Has(FeatureSharedEverythingThreads) {
		return b.disabled(FeatureSharedEverythingThreads, "shared global")
	}
	t, err := FromWasm(g.Type)
	if err != nil {
		return errors.Validation(errors.KindInvalidData, errors.NoOffset, "%v", err)
	}
	if err := b.res.CheckValueType(&t, b.features, errors.NoOffset); err != nil {
		return err
	}
	if g.Shared && !b.res.IsShared(t) {
		return errors.Validation(errors.KindInvalidData, errors.NoOffset, "shared globals must have a shared value type")
	}
	b.res.globals = append(b.res.globals, GlobalType{Content: t, Mutable: g.Mutable, Shared: g.Shared})
	return nil
}

func (b *resourceBuilder) globals() error {
	for i := range b.m.Globals {
		g := &b.m.Globals[i]
		idx := uint32(len(b.res.globals))
		path := fmt.Sprintf("global[%d]", idx)
		if err := b.globalType(&g.Type, false); err != nil {
			return errors.Located(err, path)
		}
		// Only earlier globals are visible to the initializer
		if err := b.constExpr(g.Init, b.res.globals[idx].Content, idx); err != nil {
			return errors.Located(err, path, "init")
		}
	}
	return nil
}

func (b *resourceBuilder) exports() error {
	for _, e := range b.m.Exports {
		if e.Kind == wasm.KindFunc {
			b.res.referenced.Set(uint(e.Idx))
		}
	}
	return nil
}

func (b *resourceBuilder) elements() error {
	numGlobals := uint32(len(b.res.globals))
	for i := range b.m.Elements {
		e := &b.m.Elements[i]
		path := fmt.Sprintf("elem[%d]", i)
		rt, err := FromWasmRef(e.Type)
		if err != nil {
			return errors.Located(errors.Validation(errors.KindInvalidData, errors.NoOffset, "%v", err), path)
		}
		if rt != FuncRef.ref {
			if err := b.res.CheckRefType(&rt, b.features, errors.NoOffset); err != nil {
				return errors.Located(err, path)
			}
		}
		if e.Flags != 0 && !b.features.Has(FeatureBulkMemory) && !b.features.Has(FeatureReferenceTypes) {
			return errors.Located(b.disabled(FeatureBulkMemory, "element segment form"), path)
		}
		if e.IsActive() {
			t, ok := b.res.TableAt(e.TableIdx)
			if !ok {
				return errors.Located(errors.Unknown(errors.KindUnknownTable, "table", e.TableIdx, errors.NoOffset), path)
			}
			if !b.res.IsSubtype(rt.Val(), t.Element.Val()) {
				return errors.Located(errors.TypeMismatch(e.Offset.Offset, t.Element.String(), rt.String()), path)
			}
			if err := b.constExpr(e.Offset, t.IndexType(), numGlobals); err != nil {
				return errors.Located(err, path, "offset")
			}
		}
		for _, idx := range e.FuncIdxs {
			b.res.referenced.Set(uint(idx))
		}
		for j, expr := range e.Exprs {
			if err := b.constExpr(expr, rt.Val(), numGlobals); err != nil {
				return errors.Located(err, path, fmt.Sprintf("item[%d]", j))
			}
		}
		b.res.elements = append(b.res.elements, rt)
	}
	return nil
}

func (b *resourceBuilder) data() error {
	numGlobals := uint32(len(b.res.globals))
	for i := range b.m.Data {
		d := &b.m.Data[i]
		if !d.IsActive() {
			if !b.features.Has(FeatureBulkMemory) {
				return errors.Located(b.disabled(FeatureBulkMemory, "passive data segment"), fmt.Sprintf("data[%d]", i))
			}
			continue
		}
		mem, ok := b.res.MemoryAt(d.MemIdx)
		if !ok {
			return errors.Located(errors.Unknown(errors.KindUnknownMemory, "memory", d.MemIdx, errors.NoOffset), fmt.Sprintf("data[%d]", i))
		}
		if err := b.constExpr(d.Offset, mem.IndexType(), numGlobals); err != nil {
			return errors.Located(err, fmt.Sprintf("data[%d]", i), "offset")
		}
	}
	return nil
}

func (b *resourceBuilder) constExpr(expr wasm.ConstExpr, expected ValType, globalLimit uint32) error {
	env := constEnv{
		globalLimit:     globalLimit,
		importedGlobals: uint32(b.m.NumImportedGlobals()),
		referenced:      func(idx uint32) { b.res.referenced.Set(uint(idx)) },
	}
	var err error
	b.alloc, err = validateConstExpr(b.res, b.features, env, expr, expected, b.alloc)
	return err
}
