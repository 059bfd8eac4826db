package wasm

import "fmt"

// IndexSpace names a module index space
type IndexSpace string

const (
	SpaceType   IndexSpace = "type"
	SpaceFunc   IndexSpace = "function"
	SpaceTable  IndexSpace = "table"
	SpaceMemory IndexSpace = "memory"
	SpaceGlobal IndexSpace = "global"
	SpaceTag    IndexSpace = "tag"
)

// IndexError reports an index that does not resolve in its index space.
type IndexError struct {
	Space IndexSpace
	Index uint32
	msg   string
}

func (e *IndexError) Error() string { return e.msg }

func indexError(space IndexSpace, idx uint32, format string, args ...any) error {
	return &IndexError{Space: space, Index: idx, msg: fmt.Sprintf(format, args...)}
}

// indexSpaces holds the size of each module index space, imports included.
type indexSpaces struct {
	types, funcs, tables, memories, globals, tags uint32
}

func (m *Module) indexSpaces() indexSpaces {
	return indexSpaces{
		types:    uint32(m.NumTypes()),
		funcs:    uint32(m.NumImportedFuncs() + len(m.Funcs)),
		tables:   uint32(m.NumImportedTables() + len(m.Tables)),
		memories: uint32(m.NumImportedMemories() + len(m.Memories)),
		globals:  uint32(m.NumImportedGlobals() + len(m.Globals)),
		tags:     uint32(m.NumImportedTags() + len(m.Tags)),
	}
}

// Validate checks the structural invariants the decoder cannot: every
// index resolves, section counts agree, limits are in range. Typing of
// code and constant expressions is left to the validator package.
func (m *Module) Validate() error {
	s := m.indexSpaces()
	checks := []func(indexSpaces) error{
		m.checkSignatures,
		m.checkSegments,
		m.checkExports,
		m.checkStart,
		m.checkCounts,
		m.checkLimits,
	}
	for _, check := range checks {
		if err := check(s); err != nil {
			return err
		}
	}
	return nil
}

// signatureAt resolves a type index that must name a function type
func (m *Module) signatureAt(s indexSpaces, typeIdx uint32, what string) error {
	if typeIdx >= s.types {
		return indexError(SpaceType, typeIdx, "%s references invalid type index %d (have %d types)", what, typeIdx, s.types)
	}
	if m.FuncTypeAt(typeIdx) == nil {
		return fmt.Errorf("%s: type %d is not a function type", what, typeIdx)
	}
	return nil
}

func (m *Module) checkSignatures(s indexSpaces) error {
	for i, imp := range m.Imports {
		what := fmt.Sprintf("import %d (%s.%s)", i, imp.Module, imp.Name)
		switch {
		case imp.Desc.Kind == KindFunc:
			if err := m.signatureAt(s, imp.Desc.TypeIdx, what); err != nil {
				return err
			}
		case imp.Desc.Kind == KindTag && imp.Desc.Tag != nil:
			if err := m.signatureAt(s, imp.Desc.Tag.TypeIdx, what); err != nil {
				return err
			}
		}
	}
	for i, typeIdx := range m.Funcs {
		if err := m.signatureAt(s, typeIdx, fmt.Sprintf("function %d", i)); err != nil {
			return err
		}
	}
	for i, tag := range m.Tags {
		if err := m.signatureAt(s, tag.TypeIdx, fmt.Sprintf("tag %d", i)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) checkSegments(s indexSpaces) error {
	for i := range m.Elements {
		e := &m.Elements[i]
		if e.IsActive() && e.TableIdx >= s.tables {
			return indexError(SpaceTable, e.TableIdx, "element %d references invalid table index %d", i, e.TableIdx)
		}
		for j, idx := range e.FuncIdxs {
			if idx >= s.funcs {
				return indexError(SpaceFunc, idx, "element %d, entry %d references invalid function index %d", i, j, idx)
			}
		}
	}
	for i := range m.Data {
		d := &m.Data[i]
		if d.IsActive() && d.MemIdx >= s.memories {
			return indexError(SpaceMemory, d.MemIdx, "data segment %d references invalid memory index %d", i, d.MemIdx)
		}
	}
	return nil
}

func (m *Module) checkExports(s indexSpaces) error {
	seen := make(map[string]struct{}, len(m.Exports))
	for i, exp := range m.Exports {
		if _, dup := seen[exp.Name]; dup {
			return fmt.Errorf("duplicate export name %q at index %d", exp.Name, i)
		}
		seen[exp.Name] = struct{}{}

		var limit uint32
		var space IndexSpace
		switch exp.Kind {
		case KindFunc:
			limit, space = s.funcs, SpaceFunc
		case KindTable:
			limit, space = s.tables, SpaceTable
		case KindMemory:
			limit, space = s.memories, SpaceMemory
		case KindGlobal:
			limit, space = s.globals, SpaceGlobal
		case KindTag:
			limit, space = s.tags, SpaceTag
		default:
			return fmt.Errorf("export %d (%s) has invalid kind 0x%02x", i, exp.Name, exp.Kind)
		}
		if exp.Idx >= limit {
			return indexError(space, exp.Idx, "export %d (%s) references invalid %s index %d", i, exp.Name, space, exp.Idx)
		}
	}
	return nil
}

func (m *Module) checkStart(s indexSpaces) error {
	if m.Start == nil {
		return nil
	}
	if *m.Start >= s.funcs {
		return indexError(SpaceFunc, *m.Start, "start function index %d exceeds function count %d", *m.Start, s.funcs)
	}
	ft := m.GetFuncType(*m.Start)
	if ft == nil {
		return fmt.Errorf("start function %d has no type", *m.Start)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("start function must have signature [] -> [], got [%d params] -> [%d results]",
			len(ft.Params), len(ft.Results))
	}
	return nil
}

func (m *Module) checkCounts(indexSpaces) error {
	if m.DataCount != nil && *m.DataCount != uint32(len(m.Data)) {
		return fmt.Errorf("data count section declares %d segments, but data section has %d",
			*m.DataCount, len(m.Data))
	}
	if len(m.Code) > 0 && len(m.Code) != len(m.Funcs) {
		return fmt.Errorf("code section has %d entries but function section has %d",
			len(m.Code), len(m.Funcs))
	}
	return nil
}

func (m *Module) checkLimits(indexSpaces) error {
	memIdx, tableIdx := 0, 0
	for _, imp := range m.Imports {
		switch {
		case imp.Desc.Kind == KindMemory && imp.Desc.Memory != nil:
			if err := checkMemoryType(imp.Desc.Memory, memIdx); err != nil {
				return err
			}
			memIdx++
		case imp.Desc.Kind == KindTable && imp.Desc.Table != nil:
			if err := checkTableType(imp.Desc.Table, tableIdx); err != nil {
				return err
			}
			tableIdx++
		}
	}
	for i := range m.Memories {
		if err := checkMemoryType(&m.Memories[i], memIdx+i); err != nil {
			return err
		}
	}
	for i := range m.Tables {
		if err := checkTableType(&m.Tables[i], tableIdx+i); err != nil {
			return err
		}
	}
	return nil
}

func checkMemoryType(mem *MemoryType, idx int) error {
	maxPages := uint64(MemoryMaxPages32)
	if mem.Limits.Memory64 {
		maxPages = MemoryMaxPages64
	}
	if ps := mem.PageSizeLog2; ps != nil {
		switch *ps {
		case 0:
			// One-byte pages address the full index space
			maxPages = MemoryMaxPages32 << 16
			if mem.Limits.Memory64 {
				maxPages = ^uint64(0)
			}
		case 16:
		default:
			return fmt.Errorf("memory %d: invalid custom page size 2^%d", idx, *ps)
		}
	}

	l := mem.Limits
	switch {
	case l.Shared && l.Max == nil:
		return fmt.Errorf("memory %d: shared memory must have maximum limit", idx)
	case l.Min > maxPages:
		return fmt.Errorf("memory %d: min pages %d exceeds maximum %d", idx, l.Min, maxPages)
	case l.Max != nil && *l.Max > maxPages:
		return fmt.Errorf("memory %d: max pages %d exceeds maximum %d", idx, *l.Max, maxPages)
	case l.Max != nil && *l.Max < l.Min:
		return fmt.Errorf("memory %d: size minimum must not be greater than maximum", idx)
	}
	return nil
}

func checkTableType(t *TableType, idx int) error {
	l := t.Limits
	switch {
	case l.Shared && l.Max == nil:
		return fmt.Errorf("table %d: shared table must have maximum limit", idx)
	case !l.Memory64 && l.Min > uint64(^uint32(0)):
		return fmt.Errorf("table %d: min size %d exceeds 32-bit range", idx, l.Min)
	case l.Max != nil && *l.Max < l.Min:
		return fmt.Errorf("table %d: size minimum must not be greater than maximum", idx)
	}
	return nil
}
