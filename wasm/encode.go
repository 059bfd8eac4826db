package wasm

import (
	"bytes"

	"github.com/wippyai/wasm-validator/wasm/internal/binary"
)

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	w := binary.NewWriter()

	// Magic number and version
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if len(m.Types) > 0 {
		sec := binary.NewWriter()
		groups := m.RecGroups
		if len(groups) == 0 {
			// One implicit group per type
			groups = make([]RecGroup, len(m.Types))
			for i := range groups {
				groups[i] = RecGroup{Start: uint32(i), Count: 1}
			}
		}
		sec.WriteU32(uint32(len(groups)))
		for _, g := range groups {
			if g.Explicit || g.Count != 1 {
				sec.Byte(RecTypeByte)
				sec.WriteU32(g.Count)
			}
			for i := g.Start; i < g.Start+g.Count; i++ {
				writeSubType(sec, m.Types[i])
			}
		}
		writeSection(w, SectionType, sec.Bytes())
	}

	if len(m.Imports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.Byte(imp.Desc.Kind)
			switch imp.Desc.Kind {
			case KindFunc:
				sec.WriteU32(imp.Desc.TypeIdx)
			case KindTable:
				if imp.Desc.Table != nil {
					writeTableType(sec, *imp.Desc.Table)
				}
			case KindMemory:
				if imp.Desc.Memory != nil {
					writeMemoryType(sec, *imp.Desc.Memory)
				}
			case KindGlobal:
				if imp.Desc.Global != nil {
					writeGlobalType(sec, *imp.Desc.Global)
				}
			case KindTag:
				if imp.Desc.Tag != nil {
					writeTagType(sec, *imp.Desc.Tag)
				}
			}
		}
		writeSection(w, SectionImport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, typeIdx := range m.Funcs {
			sec.WriteU32(typeIdx)
		}
		writeSection(w, SectionFunction, sec.Bytes())
	}

	if len(m.Tables) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Tables)))
		for _, t := range m.Tables {
			writeTableType(sec, t)
		}
		writeSection(w, SectionTable, sec.Bytes())
	}

	if len(m.Memories) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			writeMemoryType(sec, mem)
		}
		writeSection(w, SectionMemory, sec.Bytes())
	}

	// Tag section sits between memory and global
	if len(m.Tags) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Tags)))
		for _, tag := range m.Tags {
			writeTagType(sec, tag)
		}
		writeSection(w, SectionTag, sec.Bytes())
	}

	if len(m.Globals) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			writeGlobalType(sec, g.Type)
			sec.WriteBytes(g.Init.Code)
		}
		writeSection(w, SectionGlobal, sec.Bytes())
	}

	if len(m.Exports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			sec.WriteName(exp.Name)
			sec.Byte(exp.Kind)
			sec.WriteU32(exp.Idx)
		}
		writeSection(w, SectionExport, sec.Bytes())
	}

	if m.Start != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.Start)
		writeSection(w, SectionStart, sec.Bytes())
	}

	if len(m.Elements) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Elements)))
		for i := range m.Elements {
			writeElement(sec, &m.Elements[i])
		}
		writeSection(w, SectionElement, sec.Bytes())
	}

	if m.DataCount != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.DataCount)
		writeSection(w, SectionDataCount, sec.Bytes())
	}

	if len(m.Code) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Code)))
		for _, body := range m.Code {
			bw := binary.NewWriter()
			bw.WriteU32(uint32(len(body.Locals)))
			for _, l := range body.Locals {
				bw.WriteU32(l.Count)
				writeExtValType(bw, l.Type)
			}
			bw.WriteBytes(body.Code)
			sec.WriteU32(uint32(bw.Len()))
			sec.WriteBytes(bw.Bytes())
		}
		writeSection(w, SectionCode, sec.Bytes())
	}

	if len(m.Data) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Data)))
		for _, d := range m.Data {
			sec.WriteU32(d.Flags)
			switch d.Flags {
			case 0:
				sec.WriteBytes(d.Offset.Code)
			case 2:
				sec.WriteU32(d.MemIdx)
				sec.WriteBytes(d.Offset.Code)
			}
			sec.WriteU32(uint32(len(d.Init)))
			sec.WriteBytes(d.Init)
		}
		writeSection(w, SectionData, sec.Bytes())
	}

	for _, cs := range m.CustomSections {
		sec := binary.NewWriter()
		sec.WriteName(cs.Name)
		sec.WriteBytes(cs.Data)
		writeSection(w, SectionCustom, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *binary.Writer, id byte, data []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(data)))
	w.WriteBytes(data)
}

func writeElement(w *binary.Writer, e *Element) {
	w.WriteU32(e.Flags)
	if e.IsActive() {
		if e.Flags&0x02 != 0 {
			w.WriteU32(e.TableIdx)
		}
		w.WriteBytes(e.Offset.Code)
	}
	// Flags 0 and 4 carry neither elemkind nor reftype
	if e.Flags&0x03 != 0 {
		if e.UsesExprs() {
			writeRefType(w, e.Type)
		} else {
			w.Byte(0x00) // elemkind funcref
		}
	}
	if e.UsesExprs() {
		w.WriteU32(uint32(len(e.Exprs)))
		for _, expr := range e.Exprs {
			w.WriteBytes(expr.Code)
		}
		return
	}
	w.WriteU32(uint32(len(e.FuncIdxs)))
	for _, idx := range e.FuncIdxs {
		w.WriteU32(idx)
	}
}

func writeLimits(w *binary.Writer, l Limits, pageSizeLog2 *uint32) {
	flags := LimitsNoMax
	if l.Max != nil {
		flags |= LimitsHasMax
	}
	if l.Shared {
		flags |= LimitsShared
	}
	if l.Memory64 {
		flags |= LimitsMemory64
	}
	if pageSizeLog2 != nil {
		flags |= LimitsPageSize
	}
	w.Byte(flags)
	w.WriteU64(l.Min)
	if l.Max != nil {
		w.WriteU64(*l.Max)
	}
	if pageSizeLog2 != nil {
		w.WriteU32(*pageSizeLog2)
	}
}

func writeMemoryType(w *binary.Writer, m MemoryType) {
	writeLimits(w, m.Limits, m.PageSizeLog2)
}

func writeTableType(w *binary.Writer, t TableType) {
	if t.Init != nil {
		w.Byte(0x40)
		w.Byte(0x00)
	}
	writeRefType(w, t.ElemType)
	writeLimits(w, t.Limits, nil)
	if t.Init != nil {
		w.WriteBytes(t.Init.Code)
	}
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	writeExtValType(w, g.Type)
	var mut byte
	if g.Mutable {
		mut |= 0x01
	}
	if g.Shared {
		mut |= 0x02
	}
	w.Byte(mut)
}

func writeTagType(w *binary.Writer, t TagType) {
	w.Byte(t.Attribute)
	w.WriteU32(t.TypeIdx)
}

func writeSubType(w *binary.Writer, st SubType) {
	// A final type with no parents uses the bare composite form
	if !st.Final || len(st.Parents) > 0 {
		if st.Final {
			w.Byte(SubFinalByte)
		} else {
			w.Byte(SubTypeByte)
		}
		w.WriteU32(uint32(len(st.Parents)))
		for _, p := range st.Parents {
			w.WriteU32(p)
		}
	}
	writeCompType(w, st.CompType)
}

func writeCompType(w *binary.Writer, ct CompType) {
	if ct.Shared {
		w.Byte(SharedTypeByte)
	}
	w.Byte(ct.Kind)
	switch ct.Kind {
	case CompKindFunc:
		writeExtValTypes(w, ct.Func.Params)
		writeExtValTypes(w, ct.Func.Results)
	case CompKindStruct:
		w.WriteU32(uint32(len(ct.Struct.Fields)))
		for _, f := range ct.Struct.Fields {
			writeFieldType(w, f)
		}
	case CompKindArray:
		writeFieldType(w, ct.Array.Element)
	case CompKindCont:
		w.WriteU32(ct.Cont.TypeIdx)
	}
}

func writeFieldType(w *binary.Writer, f FieldType) {
	switch f.Type.Kind {
	case StorageKindPacked:
		w.Byte(f.Type.Packed)
	case StorageKindRef:
		writeRefType(w, f.Type.RefType)
	default:
		w.Byte(byte(f.Type.ValType))
	}
	if f.Mutable {
		w.Byte(FieldMutable)
	} else {
		w.Byte(FieldImmutable)
	}
}

func writeExtValTypes(w *binary.Writer, types []ExtValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		writeExtValType(w, t)
	}
}

func writeExtValType(w *binary.Writer, t ExtValType) {
	var buf bytes.Buffer
	writeValType(&buf, t)
	w.WriteBytes(buf.Bytes())
}

func writeRefType(w *binary.Writer, rt RefType) {
	writeExtValType(w, ExtValType{Kind: ExtValKindRef, RefType: rt})
}
