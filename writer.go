// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import (
	"fmt"
	"math"
)

// Allocator supplies the backing buffer a Write call serializes into,
// mirroring the spec's caller-controlled allocation story rather than
// having the writer reach for make([]byte, ...) itself. Returning nil
// signals ErrOutOfMemory.
type Allocator func(size int) []byte

// Write serializes cf into a byte buffer obtained from alloc, sized exactly
// by a first layout pass before any byte is written (§4.A, §4.H). A nil
// alloc uses a plain make-backed allocator.
//
// Every Code attribute's StackMapTable is round-tripped unchanged from
// whatever bytes Parse attached to it (see the note on AttrStackMapTable's
// RawFrames field): this writer never re-derives frames on its own. Call
// ComputeFrames (§4.J, frame.go) first and replace the attribute if the
// method's instructions changed shape.
func Write(cf *ClassFile, alloc Allocator) ([]byte, error) {
	if alloc == nil {
		alloc = func(size int) []byte { return make([]byte, size) }
	}

	// Intern every attribute name before the pool is sized, so the pool
	// written below already holds each name an attribute header references.
	var internNames func(attrs []Attribute)
	internNames = func(attrs []Attribute) {
		for i := range attrs {
			cf.Pool.AddUTF8(attrs[i].Name())
			if attrs[i].Kind == AttrCode && attrs[i].Code != nil {
				internNames(attrs[i].Code.Attributes)
			}
		}
	}
	internNames(cf.Attributes)
	for _, m := range append(append([]*Member(nil), cf.Fields...), cf.Methods...) {
		internNames(m.Attributes)
	}

	layout, err := layoutClassFile(cf)
	if err != nil {
		return nil, err
	}

	buf := alloc(layout.totalSize)
	if buf == nil {
		return nil, ErrOutOfMemory
	}
	w := &Writer{buf: buf[:0]}

	w.WriteU4(ClassMagic)
	w.WriteU2(cf.MinorVersion)
	w.WriteU2(cf.MajorVersion)

	writeConstPool(w, cf.Pool)

	w.WriteU2(cf.AccessFlags)
	w.WriteU2(uint16(cf.ThisClass))
	w.WriteU2(uint16(cf.SuperClass))

	w.WriteU2(uint16(len(cf.Interfaces)))
	for _, idx := range cf.Interfaces {
		w.WriteU2(uint16(idx))
	}

	if err := writeMembers(w, cf.Pool, cf.Fields, layout.fields); err != nil {
		return nil, err
	}
	if err := writeMembers(w, cf.Pool, cf.Methods, layout.methods); err != nil {
		return nil, err
	}

	w.WriteU2(uint16(len(cf.Attributes)))
	for i := range cf.Attributes {
		if err := writeAttributeWithLayout(w, cf.Pool, &cf.Attributes[i], nil); err != nil {
			return nil, err
		}
	}

	return w.Bytes(), nil
}

// classFileLayout caches the per-method instruction-offset assignments a
// size pass computes, so the write pass never recomputes a branch's target
// offset from scratch.
type classFileLayout struct {
	totalSize int
	fields    []memberLayout
	methods   []memberLayout
}

type memberLayout struct {
	codeLayouts map[*CodeAttr]*codeLayout
}

// codeLayout is the result of assigning a byte offset to every instruction
// in a Code attribute's instruction list (§4.H step 1): the exact input the
// write pass needs to patch every branch's relative offset and every
// exception table entry.
type codeLayout struct {
	offsetOf   map[*Instruction]int32
	codeLength int
}

// layoutClassFile runs the whole two-pass size computation (§4.A): for every
// Code attribute, assign instruction offsets first (resolving tableswitch/
// lookupswitch padding and ldc-vs-ldc_w sizing along the way), then sum
// every section's exact byte length.
func layoutClassFile(cf *ClassFile) (*classFileLayout, error) {
	fieldsLayout, fieldsSize, err := layoutMembers(cf.Fields)
	if err != nil {
		return nil, err
	}
	methodsLayout, methodsSize, err := layoutMembers(cf.Methods)
	if err != nil {
		return nil, err
	}
	attrsSize, err := sizeAttributeList(cf.Attributes, nil)
	if err != nil {
		return nil, err
	}

	total := 4 + 2 + 2 + // magic, minor, major
		sizeConstPool(cf.Pool) +
		2 + 2 + 2 + // access flags, this, super
		2 + 2*len(cf.Interfaces) +
		2 + fieldsSize +
		2 + methodsSize +
		2 + attrsSize

	return &classFileLayout{
		totalSize: total,
		fields:    fieldsLayout,
		methods:   methodsLayout,
	}, nil
}

func layoutMembers(members []*Member) ([]memberLayout, int, error) {
	out := make([]memberLayout, len(members))
	total := 0
	for i, m := range members {
		total += 2 + 2 + 2 + 2 // access, name, descriptor, attr count
		codeLayouts := make(map[*CodeAttr]*codeLayout)
		for j := range m.Attributes {
			a := &m.Attributes[j]
			if a.Kind == AttrCode {
				cl, err := layoutCode(a.Code)
				if err != nil {
					return nil, 0, err
				}
				codeLayouts[a.Code] = cl
			}
		}
		size, err := sizeAttributeList(m.Attributes, codeLayouts)
		if err != nil {
			return nil, 0, err
		}
		total += size
		out[i] = memberLayout{codeLayouts: codeLayouts}
	}
	return out, total, nil
}

// layoutCode assigns a byte offset to every instruction and label in code's
// instruction list. A label consumes zero bytes; everything else consumes
// the size its shape dictates, ldc choosing between its one-byte and
// two-byte pool-index forms by whether the index fits a u1.
func layoutCode(code *CodeAttr) (*codeLayout, error) {
	cl := &codeLayout{offsetOf: make(map[*Instruction]int32)}
	offset := 0
	for it := code.Instructions.Iterator(); it.HasNext(); {
		ins := it.Next()
		cl.offsetOf[ins] = int32(offset)
		ins.Offset = int32(offset)
		if ins.IsLabel() {
			continue
		}
		offset += instructionSize(ins, offset)
	}
	cl.codeLength = offset
	return cl, nil
}

// instructionSize returns the exact number of bytes ins occupies once placed
// at offset (padding for switches depends on offset mod 4, so this cannot be
// computed context-free).
func instructionSize(ins *Instruction, offset int) int {
	switch ins.Kind {
	case KindZero:
		return 1
	case KindImmediate:
		if ins.Op == OpBipush {
			return 2
		}
		return 3 // sipush
	case KindLdc:
		if ins.Op == OpLdc2W {
			return 3
		}
		if ins.CPIndex <= 0xff {
			return 2
		}
		return 3
	case KindVar:
		if isShortVarOp(ins.Op) {
			return 1
		}
		return 2
	case KindIinc:
		return 3
	case KindWideVar:
		return 4
	case KindWideIinc:
		return 6
	case KindRet:
		if ins.Wide {
			return 4
		}
		return 2
	case KindJump:
		if ins.Op == OpGotoW || ins.Op == OpJsrW {
			return 5
		}
		return 3
	case KindTableSwitch:
		return 1 + padTo4(offset) + 12 + len(ins.Targets)*4
	case KindLookupSwitch:
		return 1 + padTo4(offset) + 8 + len(ins.Keys)*8
	case KindFieldOrMethod:
		if ins.Op == OpInvokeinterface || ins.Op == OpInvokedynamic {
			return 5
		}
		return 3
	case KindType:
		return 3
	case KindNewarray:
		return 2
	case KindMultiANewArray:
		return 4
	default:
		return 1
	}
}

func writeMembers(w *Writer, pool *ConstPool, members []*Member, layouts []memberLayout) error {
	w.WriteU2(uint16(len(members)))
	for i, m := range members {
		w.WriteU2(m.AccessFlags)
		w.WriteU2(uint16(m.NameIndex))
		w.WriteU2(uint16(m.DescriptorIndex))
		w.WriteU2(uint16(len(m.Attributes)))
		codeLayouts := layouts[i].codeLayouts
		for j := range m.Attributes {
			if err := writeAttributeWithLayout(w, pool, &m.Attributes[j], codeLayouts); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeAttributeWithLayout(w *Writer, pool *ConstPool, a *Attribute, codeLayouts map[*CodeAttr]*codeLayout) error {
	nameIdx, err := attributeNameIndex(pool, a)
	if err != nil {
		return err
	}
	w.WriteU2(uint16(nameIdx))

	bodySize, err := sizeOneAttribute(a, codeLayouts)
	if err != nil {
		return err
	}
	body := NewWriter(bodySize)
	if err := encodeAttributeBody(body, pool, a, codeLayouts); err != nil {
		return err
	}
	w.WriteU4(uint32(body.Len()))
	w.WriteBytes(body.Bytes())
	return nil
}

// attributeNameIndex resolves the UTF8 pool index an attribute serializes
// its name under. Every Attribute reaching the write path belongs to some
// ClassFile and so always has a real backing pool to intern its name into.
func attributeNameIndex(pool *ConstPool, a *Attribute) (int, error) {
	name := a.Name()
	if pool == nil {
		return 0, fmt.Errorf("%w: attribute %q written without a constant pool", ErrAttrDecode, name)
	}
	return pool.AddUTF8(name), nil
}

func encodeAttributeBody(body *Writer, pool *ConstPool, a *Attribute, codeLayouts map[*CodeAttr]*codeLayout) error {
	switch a.Kind {
	case AttrUnknown:
		body.WriteBytes(a.Raw)
	case AttrSourceFile:
		body.WriteU2(uint16(a.SourceFileIndex))
	case AttrConstantValue:
		body.WriteU2(uint16(a.ConstantValueIndex))
	case AttrSignature:
		body.WriteU2(uint16(a.SignatureIndex))
	case AttrDeprecated, AttrSynthetic:
		// no payload
	case AttrExceptions:
		body.WriteU2(uint16(len(a.ExceptionIndexTable)))
		for _, idx := range a.ExceptionIndexTable {
			body.WriteU2(uint16(idx))
		}
	case AttrInnerClasses:
		body.WriteU2(uint16(len(a.InnerClasses)))
		for _, e := range a.InnerClasses {
			body.WriteU2(uint16(e.InnerClassIndex))
			body.WriteU2(uint16(e.OuterClassIndex))
			body.WriteU2(uint16(e.InnerNameIndex))
			body.WriteU2(e.InnerAccessFlags)
		}
	case AttrEnclosingMethod:
		body.WriteU2(uint16(a.EnclosingClassIndex))
		body.WriteU2(uint16(a.EnclosingMethodIndex))
	case AttrLineNumberTable:
		body.WriteU2(uint16(len(a.LineNumbers)))
		for _, e := range a.LineNumbers {
			off, err := resolveCodeOffset(e.StartPC, codeLayouts)
			if err != nil {
				return err
			}
			body.WriteU2(uint16(off))
			body.WriteU2(uint16(e.LineNumber))
		}
	case AttrLocalVariableTable:
		body.WriteU2(uint16(len(a.LocalVariables)))
		for _, e := range a.LocalVariables {
			startOff, err := resolveCodeOffset(e.Start, codeLayouts)
			if err != nil {
				return err
			}
			endOff, err := resolveCodeOffset(e.End, codeLayouts)
			if err != nil {
				return err
			}
			body.WriteU2(uint16(startOff))
			body.WriteU2(uint16(endOff - startOff))
			body.WriteU2(uint16(e.NameIndex))
			body.WriteU2(uint16(e.DescriptorIndex))
			body.WriteU2(uint16(e.Index))
		}
	case AttrStackMapTable:
		body.WriteBytes(a.RawFrames)
	case AttrCode:
		return encodeCodeAttr(body, pool, a.Code, codeLayouts)
	}
	return nil
}

// resolveCodeOffset looks up ins's assigned byte offset in whichever
// codeLayout contains it. Since a given LineNumberTable/LocalVariableTable
// entry's label was created while decoding one specific Code attribute, a
// linear scan of the (small, usually single-entry) codeLayouts map is
// simpler than threading the owning CodeAttr through every call site.
func resolveCodeOffset(ins *Instruction, codeLayouts map[*CodeAttr]*codeLayout) (int32, error) {
	for _, cl := range codeLayouts {
		if off, ok := cl.offsetOf[ins]; ok {
			return off, nil
		}
	}
	return 0, fmt.Errorf("%w: label not found in any Code attribute's layout", ErrUnresolvedLabel)
}

func encodeCodeAttr(body *Writer, pool *ConstPool, code *CodeAttr, codeLayouts map[*CodeAttr]*codeLayout) error {
	cl, ok := codeLayouts[code]
	if !ok {
		var err error
		cl, err = layoutCode(code)
		if err != nil {
			return err
		}
	}

	body.WriteU2(uint16(code.MaxStack))
	body.WriteU2(uint16(code.MaxLocals))
	body.WriteU4(uint32(cl.codeLength))

	codeBytes := NewWriter(cl.codeLength)
	for it := code.Instructions.Iterator(); it.HasNext(); {
		ins := it.Next()
		if ins.IsLabel() {
			continue
		}
		if err := encodeInstruction(codeBytes, ins, cl); err != nil {
			return err
		}
	}
	body.WriteBytes(codeBytes.Bytes())

	body.WriteU2(uint16(len(code.ExceptionTable)))
	for _, h := range code.ExceptionTable {
		start, ok1 := cl.offsetOf[h.Start]
		end, ok2 := cl.offsetOf[h.End]
		handler, ok3 := cl.offsetOf[h.Handler]
		if !ok1 || !ok2 || !ok3 {
			return fmt.Errorf("%w: exception handler references a label outside this method", ErrUnresolvedLabel)
		}
		body.WriteU2(uint16(start))
		body.WriteU2(uint16(end))
		body.WriteU2(uint16(handler))
		body.WriteU2(uint16(h.CatchType))
	}

	nestedLayouts := map[*CodeAttr]*codeLayout{code: cl}
	body.WriteU2(uint16(len(code.Attributes)))
	for i := range code.Attributes {
		if err := writeAttributeWithLayout(body, pool, &code.Attributes[i], nestedLayouts); err != nil {
			return err
		}
	}
	return nil
}

func encodeInstruction(w *Writer, ins *Instruction, cl *codeLayout) error {
	offset := int(cl.offsetOf[ins])
	switch ins.Kind {
	case KindZero:
		w.WriteU1(uint8(ins.Op))
	case KindImmediate:
		w.WriteU1(uint8(ins.Op))
		if ins.Op == OpBipush {
			w.WriteU1(uint8(int8(ins.IntOperand)))
		} else {
			w.WriteS2(int16(ins.IntOperand))
		}
	case KindLdc:
		if ins.Op == OpLdc2W {
			// ldc2_w always carries a category-2 (long/double) constant and
			// always takes a 2-byte index: it never narrows to ldc, which
			// can only address a category-1 constant.
			w.WriteU1(uint8(OpLdc2W))
			w.WriteU2(uint16(ins.CPIndex))
		} else if ins.CPIndex <= 0xff {
			w.WriteU1(uint8(OpLdc))
			w.WriteU1(uint8(ins.CPIndex))
		} else {
			w.WriteU1(uint8(OpLdcW))
			w.WriteU2(uint16(ins.CPIndex))
		}
	case KindVar:
		if isShortVarOp(ins.Op) {
			w.WriteU1(uint8(ins.Op))
		} else {
			w.WriteU1(uint8(ins.Op))
			w.WriteU1(uint8(ins.VarIndex))
		}
	case KindIinc:
		w.WriteU1(uint8(ins.Op))
		w.WriteU1(uint8(ins.VarIndex))
		w.WriteU1(uint8(int8(ins.IntOperand)))
	case KindWideVar:
		w.WriteU1(uint8(OpWide))
		w.WriteU1(uint8(ins.Op))
		w.WriteU2(uint16(ins.VarIndex))
	case KindWideIinc:
		w.WriteU1(uint8(OpWide))
		w.WriteU1(uint8(OpIinc))
		w.WriteU2(uint16(ins.VarIndex))
		w.WriteS2(int16(ins.IntOperand))
	case KindRet:
		if ins.Wide {
			w.WriteU1(uint8(OpWide))
			w.WriteU1(uint8(OpRet))
			w.WriteU2(uint16(ins.VarIndex))
		} else {
			w.WriteU1(uint8(OpRet))
			w.WriteU1(uint8(ins.VarIndex))
		}
	case KindJump:
		target, ok := cl.offsetOf[ins.Target]
		if !ok {
			return ErrUnresolvedLabel
		}
		delta := int64(target) - int64(offset)
		w.WriteU1(uint8(ins.Op))
		if ins.Op == OpGotoW || ins.Op == OpJsrW {
			w.WriteS4(int32(delta))
		} else {
			if delta < math.MinInt16 || delta > math.MaxInt16 {
				return fmt.Errorf("%w: branch delta %d overflows 16 bits at offset %d", ErrAttrDecode, delta, offset)
			}
			w.WriteS2(int16(delta))
		}
	case KindTableSwitch:
		w.WriteU1(uint8(OpTableswitch))
		for i := 0; i < padTo4(offset); i++ {
			w.WriteU1(0)
		}
		defTarget, ok := cl.offsetOf[ins.Target]
		if !ok {
			return ErrUnresolvedLabel
		}
		w.WriteS4(defTarget - int32(offset))
		w.WriteS4(ins.Low)
		w.WriteS4(ins.High)
		for _, t := range ins.Targets {
			to, ok := cl.offsetOf[t]
			if !ok {
				return ErrUnresolvedLabel
			}
			w.WriteS4(to - int32(offset))
		}
	case KindLookupSwitch:
		w.WriteU1(uint8(OpLookupswitch))
		for i := 0; i < padTo4(offset); i++ {
			w.WriteU1(0)
		}
		defTarget, ok := cl.offsetOf[ins.Target]
		if !ok {
			return ErrUnresolvedLabel
		}
		w.WriteS4(defTarget - int32(offset))
		w.WriteS4(int32(len(ins.Keys)))
		for i, k := range ins.Keys {
			t, ok := cl.offsetOf[ins.Targets[i]]
			if !ok {
				return ErrUnresolvedLabel
			}
			w.WriteS4(k)
			w.WriteS4(t - int32(offset))
		}
	case KindFieldOrMethod:
		w.WriteU1(uint8(ins.Op))
		w.WriteU2(uint16(ins.CPIndex))
		if ins.Op == OpInvokeinterface {
			w.WriteU1(uint8(ins.ArgCount))
			w.WriteU1(0)
		} else if ins.Op == OpInvokedynamic {
			w.WriteU2(0)
		}
	case KindType:
		w.WriteU1(uint8(ins.Op))
		w.WriteU2(uint16(ins.CPIndex))
	case KindNewarray:
		w.WriteU1(uint8(OpNewarray))
		w.WriteU1(uint8(ins.IntOperand))
	case KindMultiANewArray:
		w.WriteU1(uint8(OpMultianewarray))
		w.WriteU2(uint16(ins.CPIndex))
		w.WriteU1(uint8(ins.Dims))
	}
	return nil
}

func sizeAttributeList(attrs []Attribute, codeLayouts map[*CodeAttr]*codeLayout) (int, error) {
	total := 0
	for i := range attrs {
		size, err := sizeOneAttribute(&attrs[i], codeLayouts)
		if err != nil {
			return 0, err
		}
		total += 2 + 4 + size // name_index, length, payload
	}
	return total, nil
}

func sizeOneAttribute(a *Attribute, codeLayouts map[*CodeAttr]*codeLayout) (int, error) {
	switch a.Kind {
	case AttrUnknown:
		return len(a.Raw), nil
	case AttrSourceFile, AttrConstantValue, AttrSignature:
		return 2, nil
	case AttrDeprecated, AttrSynthetic:
		return 0, nil
	case AttrExceptions:
		return 2 + 2*len(a.ExceptionIndexTable), nil
	case AttrInnerClasses:
		return 2 + 8*len(a.InnerClasses), nil
	case AttrEnclosingMethod:
		return 4, nil
	case AttrLineNumberTable:
		return 2 + 4*len(a.LineNumbers), nil
	case AttrLocalVariableTable:
		return 2 + 10*len(a.LocalVariables), nil
	case AttrStackMapTable:
		return len(a.RawFrames), nil
	case AttrCode:
		cl, ok := codeLayouts[a.Code]
		if !ok {
			var err error
			cl, err = layoutCode(a.Code)
			if err != nil {
				return 0, err
			}
		}
		nestedSize, err := sizeAttributeList(a.Code.Attributes, map[*CodeAttr]*codeLayout{a.Code: cl})
		if err != nil {
			return 0, err
		}
		return 2 + 2 + 4 + cl.codeLength +
			2 + 8*len(a.Code.ExceptionTable) +
			2 + nestedSize, nil
	default:
		return 0, nil
	}
}

func sizeConstPool(p *ConstPool) int {
	total := 2 // constant_pool_count
	p.Each(func(index int, tag CPTag) {
		total += 1 // tag byte
		e := p.rawEntryForWrite(index)
		switch tag {
		case TagUTF8:
			total += 2 + len(e.utf8)
		case TagInteger, TagFloat:
			total += 4
		case TagLong, TagDouble:
			total += 8
		case TagClass, TagString, TagMethodType:
			total += 2
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagInvokeDynamic:
			total += 4
		case TagMethodHandle:
			total += 3
		}
	})
	return total
}

func writeConstPool(w *Writer, p *ConstPool) {
	w.WriteU2(uint16(p.Size() + 1))
	p.Each(func(index int, tag CPTag) {
		e := p.rawEntryForWrite(index)
		w.WriteU1(uint8(tag))
		switch tag {
		case TagUTF8:
			w.WriteU2(uint16(len(e.utf8)))
			w.WriteBytes([]byte(e.utf8))
		case TagInteger:
			w.WriteU4(uint32(e.i32))
		case TagFloat:
			w.WriteU4(math.Float32bits(e.f32))
		case TagLong:
			bits := uint64(e.i64)
			w.WriteU4(uint32(bits >> 32))
			w.WriteU4(uint32(bits))
		case TagDouble:
			bits := math.Float64bits(e.f64)
			w.WriteU4(uint32(bits >> 32))
			w.WriteU4(uint32(bits))
		case TagClass:
			w.WriteU2(uint16(e.nameIndex))
		case TagString:
			w.WriteU2(uint16(e.nameIndex))
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			w.WriteU2(uint16(e.classIndex))
			w.WriteU2(uint16(e.nameAndTypeIdx))
		case TagNameAndType:
			w.WriteU2(uint16(e.nameIndex))
			w.WriteU2(uint16(e.descriptorIndex))
		case TagMethodHandle:
			w.WriteU1(e.refKind)
			w.WriteU2(uint16(e.refIndex))
		case TagMethodType:
			w.WriteU2(uint16(e.descriptorIndex))
		case TagInvokeDynamic:
			w.WriteU2(uint16(e.bootstrapMethodAttrIndex))
			w.WriteU2(uint16(e.nameAndTypeIdx))
		}
	})
}
