// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import "fmt"

// Parse decodes a complete class file image, building a ClassFile whose
// instructions are label-addressed rather than offset-addressed (§3, §4.G).
// opts may be nil, selecting the zero-value defaults (no logger, lenient
// switch padding).
//
// Grounded in the teacher's top-level File.Parse orchestration in file.go:
// a fixed sequence of section reads off one cursor, each delegated to its
// own parseXxx helper, with a soft-failure logger rather than aborting on
// every recoverable oddity. Here the oddities that are recoverable are far
// fewer — an unrecognized attribute name (kept opaque) and, unless
// Options.StrictSwitchPadding is set, non-zero switch padding (logged at
// Warn) — everything else the class file format treats as fatal.
func Parse(data []byte, opts *Options) (*ClassFile, error) {
	if opts == nil {
		opts = &Options{}
	}
	cf := &ClassFile{
		arena: NewArena(),
		opts:  opts,
	}
	cf.logger = opts.logger()

	r := NewReader(data)

	magic, err := r.ReadU4()
	if err != nil {
		return nil, err
	}
	if magic != ClassMagic {
		return nil, fmt.Errorf("%w: got %#08x", ErrBadMagic, magic)
	}

	cf.MinorVersion, err = r.ReadU2()
	if err != nil {
		return nil, err
	}
	cf.MajorVersion, err = r.ReadU2()
	if err != nil {
		return nil, err
	}

	cf.Pool, err = parseConstPool(r)
	if err != nil {
		return nil, err
	}

	cf.AccessFlags, err = r.ReadU2()
	if err != nil {
		return nil, err
	}

	thisClass, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	cf.ThisClass = int(thisClass)
	if _, err := cf.Pool.GetClass(cf.ThisClass); err != nil {
		return nil, err
	}

	superClass, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	cf.SuperClass = int(superClass)
	if cf.SuperClass != 0 {
		if _, err := cf.Pool.GetClass(cf.SuperClass); err != nil {
			return nil, err
		}
	}

	ifaceCount, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	cf.Interfaces = make([]int, ifaceCount)
	for i := range cf.Interfaces {
		idx, err := r.ReadU2()
		if err != nil {
			return nil, err
		}
		if _, err := cf.Pool.GetClass(int(idx)); err != nil {
			return nil, err
		}
		cf.Interfaces[i] = int(idx)
	}

	cf.Fields, err = parseMembers(r, cf)
	if err != nil {
		return nil, err
	}
	cf.Methods, err = parseMembers(r, cf)
	if err != nil {
		return nil, err
	}

	cf.Attributes, err = parseAttributeList(r, cf.Pool, nil)
	if err != nil {
		return nil, err
	}

	return cf, r.Close()
}

// parseConstPool decodes the constant_pool_count/constant_pool pair (§4.C).
// Entries are appended in file order through the pool's low-level append
// path rather than its interning Add<Kind> methods, so two structurally
// identical entries the source file happened to list twice keep two
// distinct indices, exactly as the bytes describe. Add<Kind> calls made
// later (e.g. by instrumentation) still intern against whatever the file
// already contains, because appendParsed registers each entry's lookup key
// the first time it is seen.
func parseConstPool(r *Reader) (*ConstPool, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	p := NewConstPool()
	for i := 1; i < int(count); {
		tagByte, err := r.ReadU1()
		if err != nil {
			return nil, err
		}
		tag := CPTag(tagByte)
		switch tag {
		case TagUTF8:
			length, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			b, err := r.Bytes(int(length))
			if err != nil {
				return nil, err
			}
			p.appendParsed(cpEntry{tag: TagUTF8, utf8: string(b)})
			i++
		case TagInteger:
			v, err := r.ReadS4()
			if err != nil {
				return nil, err
			}
			p.appendParsed(cpEntry{tag: TagInteger, i32: v})
			i++
		case TagFloat:
			v, err := r.ReadU4()
			if err != nil {
				return nil, err
			}
			p.appendParsed(cpEntry{tag: TagFloat, f32: decodeFloat32(v)})
			i++
		case TagLong:
			hi, err := r.ReadU4()
			if err != nil {
				return nil, err
			}
			lo, err := r.ReadU4()
			if err != nil {
				return nil, err
			}
			p.appendParsed(cpEntry{tag: TagLong, i64: int64(uint64(hi)<<32 | uint64(lo))})
			p.appendParsed(cpEntry{tag: tagEmpty})
			i += 2
		case TagDouble:
			hi, err := r.ReadU4()
			if err != nil {
				return nil, err
			}
			lo, err := r.ReadU4()
			if err != nil {
				return nil, err
			}
			p.appendParsed(cpEntry{tag: TagDouble, f64: decodeFloat64(uint64(hi)<<32 | uint64(lo))})
			p.appendParsed(cpEntry{tag: tagEmpty})
			i += 2
		case TagClass:
			nameIdx, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			p.appendParsed(cpEntry{tag: TagClass, nameIndex: int(nameIdx)})
			i++
		case TagString:
			utf8Idx, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			p.appendParsed(cpEntry{tag: TagString, nameIndex: int(utf8Idx)})
			i++
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			classIdx, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			natIdx, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			p.appendParsed(cpEntry{tag: tag, classIndex: int(classIdx), nameAndTypeIdx: int(natIdx)})
			i++
		case TagNameAndType:
			nameIdx, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			descIdx, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			p.appendParsed(cpEntry{tag: TagNameAndType, nameIndex: int(nameIdx), descriptorIndex: int(descIdx)})
			i++
		case TagMethodHandle:
			kind, err := r.ReadU1()
			if err != nil {
				return nil, err
			}
			refIdx, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			p.appendParsed(cpEntry{tag: TagMethodHandle, refKind: kind, refIndex: int(refIdx)})
			i++
		case TagMethodType:
			descIdx, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			p.appendParsed(cpEntry{tag: TagMethodType, descriptorIndex: int(descIdx)})
			i++
		case TagInvokeDynamic:
			bootstrapIdx, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			natIdx, err := r.ReadU2()
			if err != nil {
				return nil, err
			}
			p.appendParsed(cpEntry{tag: TagInvokeDynamic, bootstrapMethodAttrIndex: int(bootstrapIdx), nameAndTypeIdx: int(natIdx)})
			i++
		default:
			return nil, fmt.Errorf("%w: unrecognized constant pool tag %d at entry %d", ErrAttrDecode, tagByte, i)
		}
	}
	return p, nil
}

// parseMembers decodes a fields[] or methods[] table: a u2 count followed by
// that many field_info/method_info structures, which share one shape.
func parseMembers(r *Reader, cf *ClassFile) ([]*Member, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	members := make([]*Member, count)
	for i := range members {
		accessFlags, err := r.ReadU2()
		if err != nil {
			return nil, err
		}
		nameIdx, err := r.ReadU2()
		if err != nil {
			return nil, err
		}
		if _, err := cf.Pool.GetUTF8(int(nameIdx)); err != nil {
			return nil, err
		}
		descIdx, err := r.ReadU2()
		if err != nil {
			return nil, err
		}
		if _, err := cf.Pool.GetUTF8(int(descIdx)); err != nil {
			return nil, err
		}
		attrs, err := parseAttributeList(r, cf.Pool, cf)
		if err != nil {
			return nil, err
		}
		members[i] = &Member{
			AccessFlags:     accessFlags,
			NameIndex:       int(nameIdx),
			DescriptorIndex: int(descIdx),
			Attributes:      attrs,
		}
	}
	return members, nil
}

// parseAttributeList decodes an attributes[] table: a u2 count followed by
// that many (name_index u2, length u4, payload) records. cf is non-nil only
// for a method's own attribute list, where a Code attribute may legally
// appear; a class-level or field-level list passes cf == nil and treats a
// Code attribute name as opaque (it has no business appearing there, but the
// format does not forbid an unrecognized-in-context name, so it is decoded
// as AttrUnknown rather than rejected outright).
func parseAttributeList(r *Reader, pool *ConstPool, cf *ClassFile) ([]Attribute, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	attrs := make([]Attribute, 0, count)
	for i := 0; i < int(count); i++ {
		a, err := parseOneAttribute(r, pool, cf)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

// parseOneAttribute decodes a single attribute_info record, dispatching by
// its name to a structured decoder (§4.F), grounded in the teacher's
// funcMaps attribute dispatch table in pe.go. Anything the dispatch table
// does not recognize, or a name the context does not expect (Code outside a
// method), is preserved verbatim as AttrUnknown.
func parseOneAttribute(r *Reader, pool *ConstPool, cf *ClassFile) (Attribute, error) {
	nameIdx, err := r.ReadU2()
	if err != nil {
		return Attribute{}, err
	}
	name, err := pool.GetUTF8(int(nameIdx))
	if err != nil {
		return Attribute{}, err
	}
	length, err := r.ReadU4()
	if err != nil {
		return Attribute{}, err
	}
	sub, err := r.Sub(int(length))
	if err != nil {
		return Attribute{}, err
	}

	kind, known := attrKindByName[name]
	if kind == AttrCode && cf == nil {
		known = false
	}
	if !known {
		raw, err := sub.Bytes(sub.Len())
		if err != nil {
			return Attribute{}, err
		}
		if err := sub.Close(); err != nil {
			return Attribute{}, err
		}
		return Attribute{Kind: AttrUnknown, UnknownName: name, Raw: raw}, nil
	}

	var a Attribute
	switch kind {
	case AttrSourceFile:
		idx, err := sub.ReadU2()
		if err != nil {
			return Attribute{}, err
		}
		a = Attribute{Kind: AttrSourceFile, SourceFileIndex: int(idx)}
	case AttrConstantValue:
		idx, err := sub.ReadU2()
		if err != nil {
			return Attribute{}, err
		}
		a = Attribute{Kind: AttrConstantValue, ConstantValueIndex: int(idx)}
	case AttrSignature:
		idx, err := sub.ReadU2()
		if err != nil {
			return Attribute{}, err
		}
		a = Attribute{Kind: AttrSignature, SignatureIndex: int(idx)}
	case AttrDeprecated:
		a = Attribute{Kind: AttrDeprecated}
	case AttrSynthetic:
		a = Attribute{Kind: AttrSynthetic}
	case AttrExceptions:
		n, err := sub.ReadU2()
		if err != nil {
			return Attribute{}, err
		}
		table := make([]int, n)
		for i := range table {
			idx, err := sub.ReadU2()
			if err != nil {
				return Attribute{}, err
			}
			table[i] = int(idx)
		}
		a = Attribute{Kind: AttrExceptions, ExceptionIndexTable: table}
	case AttrInnerClasses:
		n, err := sub.ReadU2()
		if err != nil {
			return Attribute{}, err
		}
		entries := make([]InnerClassEntry, n)
		for i := range entries {
			inner, err := sub.ReadU2()
			if err != nil {
				return Attribute{}, err
			}
			outer, err := sub.ReadU2()
			if err != nil {
				return Attribute{}, err
			}
			innerName, err := sub.ReadU2()
			if err != nil {
				return Attribute{}, err
			}
			flags, err := sub.ReadU2()
			if err != nil {
				return Attribute{}, err
			}
			entries[i] = InnerClassEntry{
				InnerClassIndex:  int(inner),
				OuterClassIndex:  int(outer),
				InnerNameIndex:   int(innerName),
				InnerAccessFlags: flags,
			}
		}
		a = Attribute{Kind: AttrInnerClasses, InnerClasses: entries}
	case AttrEnclosingMethod:
		classIdx, err := sub.ReadU2()
		if err != nil {
			return Attribute{}, err
		}
		methodIdx, err := sub.ReadU2()
		if err != nil {
			return Attribute{}, err
		}
		a = Attribute{Kind: AttrEnclosingMethod, EnclosingClassIndex: int(classIdx), EnclosingMethodIndex: int(methodIdx)}
	case AttrCode:
		a, err = parseCodeAttr(sub, pool, cf)
		if err != nil {
			return Attribute{}, err
		}
	case AttrStackMapTable:
		// Preserved opaquely: see the note on Write in writer.go on
		// why StackMapTable is round-tripped byte-for-byte instead of
		// being expanded into per-label Frame values at parse time.
		raw, err := sub.Bytes(sub.Len())
		if err != nil {
			return Attribute{}, err
		}
		a = Attribute{Kind: AttrStackMapTable, RawFrames: raw}
	default:
		// LineNumberTable/LocalVariableTable reference code offsets and
		// are only meaningful nested inside a Code attribute; reaching
		// here means parseCodeAttr's own attribute loop is what should
		// have handled them. Outside that context they are kept opaque.
		raw, err := sub.Bytes(sub.Len())
		if err != nil {
			return Attribute{}, err
		}
		if err := sub.Close(); err != nil {
			return Attribute{}, err
		}
		return Attribute{Kind: AttrUnknown, UnknownName: name, Raw: raw}, nil
	}

	if err := sub.Close(); err != nil {
		return Attribute{}, err
	}
	return a, nil
}

// codeLabels resolves code-offset references to label instructions while a
// Code attribute is being decoded, creating a label on first reference and
// reusing it afterwards. isTarget upgrades (never downgrades) the label's
// IsBranchTarget flag, since a given offset may first be seen as a plain
// exception-table bound and later turn out to also be a jump target, or vice
// versa.
type codeLabels struct {
	list *InstList
	at   map[int]*Instruction
}

func newCodeLabels(list *InstList) *codeLabels {
	return &codeLabels{list: list, at: make(map[int]*Instruction)}
}

func (c *codeLabels) resolve(offset int, isTarget bool) *Instruction {
	lbl, ok := c.at[offset]
	if !ok {
		lbl = c.list.CreateLabel()
		c.at[offset] = lbl
	}
	if isTarget {
		lbl.IsBranchTarget = true
	}
	return lbl
}

// parseCodeAttr decodes a Code attribute (§4.G): max_stack, max_locals, the
// raw instruction bytes (decoded in two passes so every branch target has a
// label before any instruction referencing it is built), the exception
// table, and nested attributes.
func parseCodeAttr(r *Reader, pool *ConstPool, cf *ClassFile) (Attribute, error) {
	maxStack, err := r.ReadU2()
	if err != nil {
		return Attribute{}, err
	}
	maxLocals, err := r.ReadU2()
	if err != nil {
		return Attribute{}, err
	}
	codeLength, err := r.ReadU4()
	if err != nil {
		return Attribute{}, err
	}
	code, err := r.Bytes(int(codeLength))
	if err != nil {
		return Attribute{}, err
	}

	list := cf.NewInstList()
	labels := newCodeLabels(list)

	// Pass 1: discover every branch/switch target so pass 2 can resolve
	// forward references. Exception table bounds are folded in afterward,
	// before pass 2 runs, since they too must exist as labels by then.
	for offset := 0; offset < len(code); {
		d, err := decodeInstructionAt(code, offset)
		if err != nil {
			return Attribute{}, err
		}
		switch d.kind {
		case KindJump:
			labels.resolve(d.jumpTarget, true)
		case KindTableSwitch:
			labels.resolve(d.switchDefault, true)
			for _, t := range d.switchTargets {
				labels.resolve(t, true)
			}
		case KindLookupSwitch:
			labels.resolve(d.switchDefault, true)
			for _, t := range d.switchTargets {
				labels.resolve(t, true)
			}
		}
		if d.kind == KindTableSwitch || d.kind == KindLookupSwitch {
			for _, b := range code[offset+1 : offset+1+padTo4(offset)] {
				if b != 0 {
					if cf.opts != nil && cf.opts.StrictSwitchPadding {
						return Attribute{}, fmt.Errorf("%w: at code offset %d", ErrBadSwitchPadding, offset)
					}
					cf.logger.Warnf("jinif: non-zero switch padding at code offset %d", offset)
					break
				}
			}
		}
		offset += d.size
	}

	excCount, err := r.ReadU2()
	if err != nil {
		return Attribute{}, err
	}
	excTable := make([]ExceptionHandler, excCount)
	for i := range excTable {
		startPC, err := r.ReadU2()
		if err != nil {
			return Attribute{}, err
		}
		endPC, err := r.ReadU2()
		if err != nil {
			return Attribute{}, err
		}
		handlerPC, err := r.ReadU2()
		if err != nil {
			return Attribute{}, err
		}
		catchType, err := r.ReadU2()
		if err != nil {
			return Attribute{}, err
		}
		if int(startPC) > len(code) || int(endPC) > len(code) || int(handlerPC) >= len(code) {
			return Attribute{}, fmt.Errorf("%w: exception table entry out of code bounds", ErrAttrDecode)
		}
		excTable[i] = ExceptionHandler{
			Start:     labels.resolve(int(startPC), false),
			End:       labels.resolve(int(endPC), false),
			Handler:   labels.resolve(int(handlerPC), true),
			CatchType: int(catchType),
		}
	}

	// Pass 2: walk the code again, this time emitting label nodes (in
	// ascending offset order, interleaved with their instruction) and the
	// fully decoded instructions, with every branch operand resolved
	// through the same label map pass 1 and the exception table built.
	for offset := 0; offset < len(code); {
		if lbl, ok := labels.at[offset]; ok {
			if _, err := list.InsertLabel(lbl); err != nil {
				return Attribute{}, err
			}
		}
		d, err := decodeInstructionAt(code, offset)
		if err != nil {
			return Attribute{}, err
		}
		ins := emitInstruction(list, d, labels)
		ins.Offset = int32(offset)
		offset += d.size
	}

	nested, err := parseCodeAttributeList(r, pool, labels)
	if err != nil {
		return Attribute{}, err
	}

	// Labels first referenced by a nested attribute, or by an offset equal
	// to the code length, are not placed by pass 2: place each before the
	// instruction at its offset, or at the end of the list.
	for it := list.Iterator(); it.HasNext(); {
		ins := it.Next()
		if lbl, ok := labels.at[int(ins.Offset)]; ok && !ins.IsLabel() && lbl.list == nil {
			list.InsertLabel(lbl, ins)
		}
	}
	if lbl, ok := labels.at[len(code)]; ok && lbl.list == nil {
		list.InsertLabel(lbl)
	}

	return Attribute{
		Kind: AttrCode,
		Code: &CodeAttr{
			MaxStack:       int(maxStack),
			MaxLocals:      int(maxLocals),
			Instructions:   list,
			ExceptionTable: excTable,
			Attributes:     nested,
		},
	}, nil
}

// parseCodeAttributeList decodes the attributes[] table nested inside a
// Code attribute, where LineNumberTable and LocalVariableTable additionally
// need labels resolves against the enclosing method's code offsets.
func parseCodeAttributeList(r *Reader, pool *ConstPool, labels *codeLabels) ([]Attribute, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	attrs := make([]Attribute, 0, count)
	for i := 0; i < int(count); i++ {
		nameIdx, err := r.ReadU2()
		if err != nil {
			return nil, err
		}
		name, err := pool.GetUTF8(int(nameIdx))
		if err != nil {
			return nil, err
		}
		length, err := r.ReadU4()
		if err != nil {
			return nil, err
		}
		sub, err := r.Sub(int(length))
		if err != nil {
			return nil, err
		}

		switch name {
		case attrNames[AttrLineNumberTable]:
			n, err := sub.ReadU2()
			if err != nil {
				return nil, err
			}
			entries := make([]LineNumberEntry, n)
			for j := range entries {
				startPC, err := sub.ReadU2()
				if err != nil {
					return nil, err
				}
				line, err := sub.ReadU2()
				if err != nil {
					return nil, err
				}
				entries[j] = LineNumberEntry{
					StartPC:    labels.resolve(int(startPC), false),
					LineNumber: int(line),
				}
			}
			if err := sub.Close(); err != nil {
				return nil, err
			}
			attrs = append(attrs, Attribute{Kind: AttrLineNumberTable, LineNumbers: entries})
		case attrNames[AttrLocalVariableTable]:
			n, err := sub.ReadU2()
			if err != nil {
				return nil, err
			}
			entries := make([]LocalVariableEntry, n)
			for j := range entries {
				startPC, err := sub.ReadU2()
				if err != nil {
					return nil, err
				}
				length, err := sub.ReadU2()
				if err != nil {
					return nil, err
				}
				nameIdx, err := sub.ReadU2()
				if err != nil {
					return nil, err
				}
				descIdx, err := sub.ReadU2()
				if err != nil {
					return nil, err
				}
				index, err := sub.ReadU2()
				if err != nil {
					return nil, err
				}
				entries[j] = LocalVariableEntry{
					Start:           labels.resolve(int(startPC), false),
					End:             labels.resolve(int(startPC)+int(length), false),
					NameIndex:       int(nameIdx),
					DescriptorIndex: int(descIdx),
					Index:           int(index),
				}
			}
			if err := sub.Close(); err != nil {
				return nil, err
			}
			attrs = append(attrs, Attribute{Kind: AttrLocalVariableTable, LocalVariables: entries})
		case attrNames[AttrStackMapTable]:
			raw, err := sub.Bytes(sub.Len())
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, Attribute{Kind: AttrStackMapTable, RawFrames: raw})
		default:
			raw, err := sub.Bytes(sub.Len())
			if err != nil {
				return nil, err
			}
			if err := sub.Close(); err != nil {
				return nil, err
			}
			attrs = append(attrs, Attribute{Kind: AttrUnknown, UnknownName: name, Raw: raw})
		}
	}
	return attrs, nil
}

// emitInstruction appends the instruction d describes to list, resolving
// any label references through labels (already fully populated by pass 1).
func emitInstruction(list *InstList, d decodedInstr, labels *codeLabels) *Instruction {
	switch d.kind {
	case KindZero:
		return list.AddZero(d.op)
	case KindImmediate:
		return list.AddImmediate(d.op, d.intOperand)
	case KindLdc:
		return list.AddLdc(d.op, d.cpIndex)
	case KindVar:
		return list.AddVar(d.op, d.varIndex)
	case KindIinc:
		return list.AddIinc(d.varIndex, d.intOperand)
	case KindWideVar:
		return list.AddWideVar(d.op, d.varIndex)
	case KindWideIinc:
		return list.AddWideIinc(d.varIndex, d.intOperand)
	case KindJump:
		return list.AddJump(d.op, labels.resolve(d.jumpTarget, true))
	case KindRet:
		ins := list.AddRet(d.varIndex)
		ins.Wide = d.wide
		return ins
	case KindTableSwitch:
		targets := make([]*Instruction, len(d.switchTargets))
		for i, t := range d.switchTargets {
			targets[i] = labels.resolve(t, true)
		}
		return list.AddTableSwitch(labels.resolve(d.switchDefault, true), d.low, d.high, targets)
	case KindLookupSwitch:
		targets := make([]*Instruction, len(d.switchTargets))
		for i, t := range d.switchTargets {
			targets[i] = labels.resolve(t, true)
		}
		return list.AddLookupSwitch(labels.resolve(d.switchDefault, true), d.keys, targets)
	case KindFieldOrMethod:
		return list.AddFieldOrMethod(d.op, d.cpIndex, d.argCount)
	case KindType:
		return list.AddType(d.op, d.cpIndex)
	case KindNewarray:
		return list.AddNewarray(uint8(d.intOperand))
	case KindMultiANewArray:
		return list.AddMultiANewArray(d.cpIndex, d.dims)
	default:
		// Unreachable: decodeInstructionAt never returns any other kind.
		return list.AddZero(d.op)
	}
}
