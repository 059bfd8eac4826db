package wasm

import (
	"errors"
	"fmt"
	"io"

	"github.com/wippyai/wasm-validator/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// ParseModule parses a WebAssembly binary module.
// Function bodies are kept as raw bytes with their module offsets; operators
// are decoded on demand with NewOperatorReader.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}

	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}

	// Sections follow canonical order, which differs from section IDs
	var lastSectionOrder int

	for {
		sectionID, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, r.WrapError("section header", err)
		}

		if sectionID != SectionCustom {
			order := sectionOrder(sectionID)
			if order == 0 {
				return nil, r.WrapError("section header", fmt.Errorf("unknown section ID: 0x%02x", sectionID))
			}
			if order <= lastSectionOrder {
				return nil, r.WrapError("section header", fmt.Errorf("section %d appears out of order", sectionID))
			}
			lastSectionOrder = order
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}

		sr, err := r.Sub(int(sectionSize))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		name := sectionName(sectionID)
		if err := parseSection(sectionID, sr, m); err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				return nil, err
			}
			return nil, sr.WrapError(name, err)
		}
		if !sr.EOF() {
			return nil, sr.WrapError(name, errors.New("section size mismatch"))
		}
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, fmt.Errorf("function and code section have inconsistent lengths: %d != %d", len(m.Funcs), len(m.Code))
	}
	if m.DataCount != nil && int(*m.DataCount) != len(m.Data) {
		return nil, fmt.Errorf("data count and data section have inconsistent lengths: %d != %d", *m.DataCount, len(m.Data))
	}

	return m, nil
}

func parseSection(id byte, r *binary.Reader, m *Module) error {
	switch id {
	case SectionCustom:
		return parseCustomSection(r, m)
	case SectionType:
		return parseTypeSection(r, m)
	case SectionImport:
		return parseImportSection(r, m)
	case SectionFunction:
		return parseFunctionSection(r, m)
	case SectionTable:
		return parseTableSection(r, m)
	case SectionMemory:
		return parseMemorySection(r, m)
	case SectionGlobal:
		return parseGlobalSection(r, m)
	case SectionExport:
		return parseExportSection(r, m)
	case SectionStart:
		return parseStartSection(r, m)
	case SectionElement:
		return parseElementSection(r, m)
	case SectionCode:
		return parseCodeSection(r, m)
	case SectionData:
		return parseDataSection(r, m)
	case SectionDataCount:
		return parseDataCountSection(r, m)
	case SectionTag:
		return parseTagSection(r, m)
	}
	return fmt.Errorf("unknown section ID: 0x%02x", id)
}

// sectionOrder returns the canonical ordering for a section ID, or 0 for an
// unknown ID.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	default:
		return 0
	}
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom section"
	case SectionType:
		return "type section"
	case SectionImport:
		return "import section"
	case SectionFunction:
		return "function section"
	case SectionTable:
		return "table section"
	case SectionMemory:
		return "memory section"
	case SectionGlobal:
		return "global section"
	case SectionExport:
		return "export section"
	case SectionStart:
		return "start section"
	case SectionElement:
		return "element section"
	case SectionCode:
		return "code section"
	case SectionData:
		return "data section"
	case SectionDataCount:
		return "data count section"
	case SectionTag:
		return "tag section"
	}
	return "section"
}

// readCount reads a vector length, rejecting counts that cannot fit in the
// remaining bytes.
func readCount(r *binary.Reader) (uint32, error) {
	n, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if int(n) > r.Len() {
		return 0, fmt.Errorf("count %d exceeds remaining %d bytes", n, r.Len())
	}
	return n, nil
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	rest, err := r.ReadRemaining()
	if err != nil {
		return err
	}
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: rest,
	})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != RecTypeByte {
			st, err := readSubTypeWithPrefix(r, form)
			if err != nil {
				return fmt.Errorf("type %d: %w", len(m.Types), err)
			}
			m.AddSubTypes(false, st)
			continue
		}

		n, err := readCount(r)
		if err != nil {
			return err
		}
		group := make([]SubType, 0, n)
		for j := uint32(0); j < n; j++ {
			form, err := r.ReadByte()
			if err != nil {
				return err
			}
			st, err := readSubTypeWithPrefix(r, form)
			if err != nil {
				return fmt.Errorf("type %d: %w", len(m.Types)+len(group), err)
			}
			group = append(group, st)
		}
		m.AddSubTypes(true, group...)
	}
	return nil
}

// readSubTypeWithPrefix reads a subtype whose first byte was already consumed
func readSubTypeWithPrefix(r *binary.Reader, form byte) (SubType, error) {
	st := SubType{Final: true}
	if form == SubTypeByte || form == SubFinalByte {
		st.Final = form == SubFinalByte
		n, err := readCount(r)
		if err != nil {
			return st, err
		}
		st.Parents = make([]uint32, n)
		for i := range st.Parents {
			if st.Parents[i], err = r.ReadU32(); err != nil {
				return st, err
			}
		}
		if form, err = r.ReadByte(); err != nil {
			return st, err
		}
	}
	ct, err := readCompType(r, form)
	if err != nil {
		return st, err
	}
	st.CompType = ct
	return st, nil
}

func readCompType(r *binary.Reader, form byte) (CompType, error) {
	var ct CompType
	if form == SharedTypeByte {
		ct.Shared = true
		var err error
		if form, err = r.ReadByte(); err != nil {
			return ct, err
		}
	}
	ct.Kind = form

	switch form {
	case FuncTypeByte:
		params, err := readExtValTypes(r)
		if err != nil {
			return ct, err
		}
		results, err := readExtValTypes(r)
		if err != nil {
			return ct, err
		}
		ct.Func = &FuncType{Params: params, Results: results}

	case StructTypeByte:
		n, err := readCount(r)
		if err != nil {
			return ct, err
		}
		fields := make([]FieldType, n)
		for i := range fields {
			if fields[i], err = readFieldType(r); err != nil {
				return ct, err
			}
		}
		ct.Struct = &StructType{Fields: fields}

	case ArrayTypeByte:
		f, err := readFieldType(r)
		if err != nil {
			return ct, err
		}
		ct.Array = &ArrayType{Element: f}

	case ContTypeByte:
		idx, err := r.ReadU32()
		if err != nil {
			return ct, err
		}
		ct.Cont = &ContType{TypeIdx: idx}

	default:
		return ct, fmt.Errorf("invalid composite type form 0x%02x", form)
	}
	return ct, nil
}

func readFieldType(r *binary.Reader) (FieldType, error) {
	var f FieldType
	b, err := r.PeekByte()
	if err != nil {
		return f, err
	}
	if b == PackedI8 || b == PackedI16 {
		_, _ = r.ReadByte()
		f.Type = StorageType{Kind: StorageKindPacked, Packed: b}
	} else {
		t, err := readValType(r)
		if err != nil {
			return f, err
		}
		if t.IsRef() {
			f.Type = StorageType{Kind: StorageKindRef, RefType: t.RefType}
		} else {
			f.Type = StorageType{Kind: StorageKindVal, ValType: t.ValType}
		}
	}
	mut, err := r.ReadByte()
	if err != nil {
		return f, err
	}
	switch mut {
	case FieldImmutable:
	case FieldMutable:
		f.Mutable = true
	default:
		return f, fmt.Errorf("invalid field mutability 0x%02x", mut)
	}
	return f, nil
}

func readExtValTypes(r *binary.Reader) ([]ExtValType, error) {
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}
	types := make([]ExtValType, n)
	for i := range types {
		if types[i], err = readValType(r); err != nil {
			return nil, err
		}
	}
	return types, nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Imports = make([]Import, 0, count)
	for i := uint32(0); i < count; i++ {
		modName, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		imp := Import{Module: modName, Name: name, Desc: ImportDesc{Kind: kind}}
		switch kind {
		case KindFunc:
			if imp.Desc.TypeIdx, err = r.ReadU32(); err != nil {
				return err
			}
		case KindTable:
			t, err := readTableType(r, false)
			if err != nil {
				return err
			}
			imp.Desc.Table = &t
		case KindMemory:
			mt, err := readMemoryType(r)
			if err != nil {
				return err
			}
			imp.Desc.Memory = &mt
		case KindGlobal:
			g, err := readGlobalType(r)
			if err != nil {
				return err
			}
			imp.Desc.Global = &g
		case KindTag:
			t, err := readTagType(r)
			if err != nil {
				return err
			}
			imp.Desc.Tag = &t
		default:
			return fmt.Errorf("import %d: invalid import kind 0x%02x", i, kind)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Funcs = make([]uint32, count)
	for i := range m.Funcs {
		if m.Funcs[i], err = r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Tables = make([]TableType, 0, count)
	for i := uint32(0); i < count; i++ {
		t, err := readTableType(r, true)
		if err != nil {
			return fmt.Errorf("table %d: %w", i, err)
		}
		m.Tables = append(m.Tables, t)
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Memories = make([]MemoryType, 0, count)
	for i := uint32(0); i < count; i++ {
		mt, err := readMemoryType(r)
		if err != nil {
			return fmt.Errorf("memory %d: %w", i, err)
		}
		m.Memories = append(m.Memories, mt)
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Globals = make([]Global, 0, count)
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		expr, err := readConstExpr(r)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: expr})
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Exports = make([]Export, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind > KindTag {
			return fmt.Errorf("export %q: invalid export kind 0x%02x", name, kind)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Idx: idx})
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Elements = make([]Element, 0, count)
	for i := uint32(0); i < count; i++ {
		e, err := readElement(r)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		m.Elements = append(m.Elements, e)
	}
	return nil
}

func readElement(r *binary.Reader) (Element, error) {
	flags, err := r.ReadU32()
	if err != nil {
		return Element{}, err
	}
	if flags > 7 {
		return Element{}, fmt.Errorf("invalid element segment flags %d", flags)
	}
	e := Element{Flags: flags}

	if e.IsActive() {
		if flags&0x02 != 0 {
			if e.TableIdx, err = r.ReadU32(); err != nil {
				return e, err
			}
		}
		if e.Offset, err = readConstExpr(r); err != nil {
			return e, err
		}
	}

	switch {
	case flags == 0, flags == 4:
		e.Type = RefType{Nullable: true, HeapType: HeapTypeFunc}
	case e.UsesExprs():
		if e.Type, err = readRefType(r); err != nil {
			return e, err
		}
	default:
		kind, err := r.ReadByte()
		if err != nil {
			return e, err
		}
		if kind != 0x00 {
			return e, fmt.Errorf("invalid element kind 0x%02x", kind)
		}
		e.Type = RefType{Nullable: true, HeapType: HeapTypeFunc}
	}

	n, err := readCount(r)
	if err != nil {
		return e, err
	}
	if e.UsesExprs() {
		e.Exprs = make([]ConstExpr, n)
		for i := range e.Exprs {
			if e.Exprs[i], err = readConstExpr(r); err != nil {
				return e, err
			}
		}
		return e, nil
	}
	e.FuncIdxs = make([]uint32, n)
	for i := range e.FuncIdxs {
		if e.FuncIdxs[i], err = r.ReadU32(); err != nil {
			return e, err
		}
	}
	return e, nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Code = make([]FuncBody, 0, count)
	for i := uint32(0); i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		br, err := r.Sub(int(size))
		if err != nil {
			return fmt.Errorf("function %d: body: %w", i, err)
		}
		body, err := readFuncBody(br)
		if err != nil {
			return fmt.Errorf("function %d: %w", i, err)
		}
		m.Code = append(m.Code, body)
	}
	return nil
}

// maxLocals bounds the total declared locals of one function body
const maxLocals = 50000

func readFuncBody(r *binary.Reader) (FuncBody, error) {
	n, err := readCount(r)
	if err != nil {
		return FuncBody{}, err
	}
	body := FuncBody{Locals: make([]LocalEntry, 0, n)}
	var total uint64
	for j := uint32(0); j < n; j++ {
		c, err := r.ReadU32()
		if err != nil {
			return body, err
		}
		total += uint64(c)
		if total > maxLocals {
			return body, fmt.Errorf("too many locals: %d", total)
		}
		t, err := readValType(r)
		if err != nil {
			return body, err
		}
		body.Locals = append(body.Locals, LocalEntry{Count: c, Type: t})
	}
	body.Offset = r.Offset()
	if body.Code, err = r.ReadRemaining(); err != nil {
		return body, err
	}
	return body, nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Data = make([]DataSegment, 0, count)
	for i := uint32(0); i < count; i++ {
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		d := DataSegment{Flags: flags}
		switch flags {
		case 0:
			d.Offset, err = readConstExpr(r)
		case 1:
		case 2:
			if d.MemIdx, err = r.ReadU32(); err == nil {
				d.Offset, err = readConstExpr(r)
			}
		default:
			return fmt.Errorf("data %d: invalid data segment flags %d", i, flags)
		}
		if err != nil {
			return fmt.Errorf("data %d: %w", i, err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		if d.Init, err = r.ReadBytes(int(size)); err != nil {
			return fmt.Errorf("data %d: %w", i, err)
		}
		m.Data = append(m.Data, d)
	}
	return nil
}

func parseDataCountSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.DataCount = &count
	return nil
}

func parseTagSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Tags = make([]TagType, 0, count)
	for i := uint32(0); i < count; i++ {
		t, err := readTagType(r)
		if err != nil {
			return fmt.Errorf("tag %d: %w", i, err)
		}
		m.Tags = append(m.Tags, t)
	}
	return nil
}

func readLimits(r *binary.Reader) (Limits, *uint32, error) {
	var l Limits
	flags, err := r.ReadByte()
	if err != nil {
		return l, nil, err
	}
	if flags&^(LimitsHasMax|LimitsShared|LimitsMemory64|LimitsPageSize) != 0 {
		return l, nil, fmt.Errorf("invalid limits flags 0x%02x", flags)
	}
	l.Shared = flags&LimitsShared != 0
	l.Memory64 = flags&LimitsMemory64 != 0

	read := r.ReadU64
	if !l.Memory64 {
		read = func() (uint64, error) {
			v, err := r.ReadU32()
			return uint64(v), err
		}
	}
	if l.Min, err = read(); err != nil {
		return l, nil, err
	}
	if flags&LimitsHasMax != 0 {
		mx, err := read()
		if err != nil {
			return l, nil, err
		}
		l.Max = &mx
	}
	var pageSize *uint32
	if flags&LimitsPageSize != 0 {
		v, err := r.ReadU32()
		if err != nil {
			return l, nil, err
		}
		pageSize = &v
	}
	return l, pageSize, nil
}

func readMemoryType(r *binary.Reader) (MemoryType, error) {
	l, pageSize, err := readLimits(r)
	if err != nil {
		return MemoryType{}, err
	}
	return MemoryType{Limits: l, PageSizeLog2: pageSize}, nil
}

// readTableType reads a table type. The initializer form is only valid in
// the table section.
func readTableType(r *binary.Reader, allowInit bool) (TableType, error) {
	var t TableType
	b, err := r.PeekByte()
	if err != nil {
		return t, err
	}
	hasInit := false
	if b == 0x40 {
		if !allowInit {
			return t, errors.New("table initializer not allowed here")
		}
		_, _ = r.ReadByte()
		reserved, err := r.ReadByte()
		if err != nil {
			return t, err
		}
		if reserved != 0x00 {
			return t, fmt.Errorf("invalid table initializer prefix 0x%02x", reserved)
		}
		hasInit = true
	}
	if t.ElemType, err = readRefType(r); err != nil {
		return t, err
	}
	l, pageSize, err := readLimits(r)
	if err != nil {
		return t, err
	}
	if pageSize != nil {
		return t, errors.New("custom page size on table")
	}
	t.Limits = l
	if hasInit {
		expr, err := readConstExpr(r)
		if err != nil {
			return t, err
		}
		t.Init = &expr
	}
	return t, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	t, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut&^0x03 != 0 {
		return GlobalType{}, fmt.Errorf("invalid global mutability 0x%02x", mut)
	}
	return GlobalType{Type: t, Mutable: mut&0x01 != 0, Shared: mut&0x02 != 0}, nil
}

func readTagType(r *binary.Reader) (TagType, error) {
	attr, err := r.ReadByte()
	if err != nil {
		return TagType{}, err
	}
	if attr != 0 {
		return TagType{}, fmt.Errorf("invalid tag attribute 0x%02x", attr)
	}
	idx, err := r.ReadU32()
	if err != nil {
		return TagType{}, err
	}
	return TagType{Attribute: attr, TypeIdx: idx}, nil
}

// readConstExpr consumes a constant expression up to and including its
// end opcode. Operators are decoded to find the end; validity is checked
// by the validator.
func readConstExpr(r *binary.Reader) (ConstExpr, error) {
	start := r.Position()
	expr := ConstExpr{Offset: r.Offset()}
	for {
		instr, err := decodeInstruction(r)
		if err != nil {
			return expr, err
		}
		if instr.Opcode == OpEnd {
			break
		}
	}
	expr.Code = r.Since(start)
	return expr, nil
}
