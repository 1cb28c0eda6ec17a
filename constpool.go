// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import "fmt"

// CPTag identifies the variant of a constant pool entry, numbered exactly as
// the JVM specification (JVMS §4.4) numbers them.
type CPTag uint8

const (
	TagUTF8               CPTag = 1
	TagInteger            CPTag = 3
	TagFloat              CPTag = 4
	TagLong               CPTag = 5
	TagDouble             CPTag = 6
	TagClass              CPTag = 7
	TagString             CPTag = 8
	TagFieldref           CPTag = 9
	TagMethodref          CPTag = 10
	TagInterfaceMethodref CPTag = 11
	TagNameAndType        CPTag = 12
	TagMethodHandle       CPTag = 15
	TagMethodType         CPTag = 16
	TagInvokeDynamic      CPTag = 18

	// tagEmpty marks the sentinel second slot of a LONG or DOUBLE entry.
	// It is never observed by callers through Tag(): Tag rejects an index
	// that lands on a sentinel slot with ErrBadCpIndex, the same treatment
	// as the reserved index 0.
	tagEmpty CPTag = 0
)

// cpEntry is the tagged-variant payload of one constant pool slot. A single
// struct with a discriminator, per the spec's design note against
// inheritance-based polymorphism: every parser, writer, and printer switches
// on tag rather than dispatching virtually.
type cpEntry struct {
	tag CPTag

	utf8 string

	i32 int32
	f32 float32
	i64 int64
	f64 float64

	// CLASS, STRING: index of the backing UTF8.
	nameIndex int

	// FIELDREF, METHODREF, INTERFACEMETHODREF: class index + name-and-type
	// index. NAMEANDTYPE: name index (reused field above) + descriptor
	// index.
	classIndex      int
	nameAndTypeIdx  int
	descriptorIndex int

	// METHODHANDLE: reference kind (1-9) + index into a ref-capable entry.
	refKind  uint8
	refIndex int

	// INVOKEDYNAMIC: bootstrap method attribute index + name-and-type index
	// (nameAndTypeIdx reused).
	bootstrapMethodAttrIndex int
}

// ConstPool is the interned, index-addressed constant pool table (§4.C).
// Index 0 is reserved and never populated; LONG and DOUBLE entries occupy
// two consecutive indices, the second an empty sentinel slot skipped by
// Each. Grounded in the teacher's flat, tag-discriminated COFF symbol table
// (symbol.go) generalized from a read-only parse result into a
// mutation-capable interning table, since the spec requires Add<Kind> to
// return an existing index for structurally-equal entries.
type ConstPool struct {
	entries []cpEntry

	utf8Index               map[string]int
	integerIndex            map[int32]int
	floatIndex              map[float32]int
	longIndex               map[int64]int
	doubleIndex             map[float64]int
	classIndexByName        map[int]int
	stringIndexByUTF8       map[int]int
	fieldrefIndex           map[[2]int]int
	methodrefIndex          map[[2]int]int
	interfaceMethodrefIndex map[[2]int]int
	nameAndTypeIndex        map[[2]int]int
	methodHandleIndex       map[[2]int]int
	methodTypeIndex         map[int]int
	invokeDynamicIndex      map[[2]int]int
}

// NewConstPool creates an empty pool with the reserved null entry at index
// 0.
func NewConstPool() *ConstPool {
	return &ConstPool{
		entries:                 make([]cpEntry, 1),
		utf8Index:               make(map[string]int),
		integerIndex:            make(map[int32]int),
		floatIndex:              make(map[float32]int),
		longIndex:               make(map[int64]int),
		doubleIndex:             make(map[float64]int),
		classIndexByName:        make(map[int]int),
		stringIndexByUTF8:       make(map[int]int),
		fieldrefIndex:           make(map[[2]int]int),
		methodrefIndex:          make(map[[2]int]int),
		interfaceMethodrefIndex: make(map[[2]int]int),
		nameAndTypeIndex:        make(map[[2]int]int),
		methodHandleIndex:       make(map[[2]int]int),
		methodTypeIndex:         make(map[int]int),
		invokeDynamicIndex:      make(map[[2]int]int),
	}
}

// Size reports the number of index slots in use, including LONG/DOUBLE's
// sentinel second slot (i.e. constant_pool_count - 1 in JVMS terms: the
// count of slots starting at index 1).
func (p *ConstPool) Size() int { return len(p.entries) - 1 }

func (p *ConstPool) push(e cpEntry) int {
	idx := len(p.entries)
	p.entries = append(p.entries, e)
	return idx
}

// Tag returns the tag of the entry at index, or an error if index is out of
// range or is the reserved null / sentinel slot.
func (p *ConstPool) Tag(index int) (CPTag, error) {
	if index <= 0 || index >= len(p.entries) {
		return 0, fmt.Errorf("%w: index %d", ErrBadCpIndex, index)
	}
	if p.entries[index].tag == tagEmpty {
		return 0, fmt.Errorf("%w: index %d is a long/double sentinel slot", ErrBadCpIndex, index)
	}
	return p.entries[index].tag, nil
}

func (p *ConstPool) check(index int, want CPTag) (*cpEntry, error) {
	if index <= 0 || index >= len(p.entries) {
		return nil, fmt.Errorf("%w: index %d", ErrBadCpIndex, index)
	}
	e := &p.entries[index]
	if e.tag != want {
		return nil, fmt.Errorf("%w: %w: index %d has tag %d, want %d", ErrBadCpIndex, ErrWrongTag, index, e.tag, want)
	}
	return e, nil
}

// AddUTF8 interns a UTF8 entry by its byte content.
func (p *ConstPool) AddUTF8(s string) int {
	if idx, ok := p.utf8Index[s]; ok {
		return idx
	}
	idx := p.push(cpEntry{tag: TagUTF8, utf8: s})
	p.utf8Index[s] = idx
	return idx
}

// GetUTF8 returns the string content of a UTF8 entry.
func (p *ConstPool) GetUTF8(index int) (string, error) {
	e, err := p.check(index, TagUTF8)
	if err != nil {
		return "", err
	}
	return e.utf8, nil
}

// AddInteger interns an INTEGER entry by value.
func (p *ConstPool) AddInteger(v int32) int {
	if idx, ok := p.integerIndex[v]; ok {
		return idx
	}
	idx := p.push(cpEntry{tag: TagInteger, i32: v})
	p.integerIndex[v] = idx
	return idx
}

// GetInteger returns the value of an INTEGER entry.
func (p *ConstPool) GetInteger(index int) (int32, error) {
	e, err := p.check(index, TagInteger)
	if err != nil {
		return 0, err
	}
	return e.i32, nil
}

// AddFloat interns a FLOAT entry by value.
func (p *ConstPool) AddFloat(v float32) int {
	if idx, ok := p.floatIndex[v]; ok {
		return idx
	}
	idx := p.push(cpEntry{tag: TagFloat, f32: v})
	p.floatIndex[v] = idx
	return idx
}

// GetFloat returns the value of a FLOAT entry.
func (p *ConstPool) GetFloat(index int) (float32, error) {
	e, err := p.check(index, TagFloat)
	if err != nil {
		return 0, err
	}
	return e.f32, nil
}

// AddLong interns a LONG entry by value. LONG occupies two consecutive
// indices; the returned index is the first.
func (p *ConstPool) AddLong(v int64) int {
	if idx, ok := p.longIndex[v]; ok {
		return idx
	}
	idx := p.push(cpEntry{tag: TagLong, i64: v})
	p.push(cpEntry{tag: tagEmpty})
	p.longIndex[v] = idx
	return idx
}

// GetLong returns the value of a LONG entry.
func (p *ConstPool) GetLong(index int) (int64, error) {
	e, err := p.check(index, TagLong)
	if err != nil {
		return 0, err
	}
	return e.i64, nil
}

// AddDouble interns a DOUBLE entry by value. DOUBLE occupies two consecutive
// indices; the returned index is the first.
func (p *ConstPool) AddDouble(v float64) int {
	if idx, ok := p.doubleIndex[v]; ok {
		return idx
	}
	idx := p.push(cpEntry{tag: TagDouble, f64: v})
	p.push(cpEntry{tag: tagEmpty})
	p.doubleIndex[v] = idx
	return idx
}

// GetDouble returns the value of a DOUBLE entry.
func (p *ConstPool) GetDouble(index int) (float64, error) {
	e, err := p.check(index, TagDouble)
	if err != nil {
		return 0, err
	}
	return e.f64, nil
}

// AddClass interns a CLASS entry referencing the UTF8 at nameIndex.
func (p *ConstPool) AddClass(nameIndex int) int {
	if idx, ok := p.classIndexByName[nameIndex]; ok {
		return idx
	}
	idx := p.push(cpEntry{tag: TagClass, nameIndex: nameIndex})
	p.classIndexByName[nameIndex] = idx
	return idx
}

// GetClass returns the UTF8 name index backing a CLASS entry.
func (p *ConstPool) GetClass(index int) (int, error) {
	e, err := p.check(index, TagClass)
	if err != nil {
		return 0, err
	}
	return e.nameIndex, nil
}

// GetClassName resolves a CLASS entry straight through to its UTF8 bytes.
func (p *ConstPool) GetClassName(index int) (string, error) {
	nameIdx, err := p.GetClass(index)
	if err != nil {
		return "", err
	}
	return p.GetUTF8(nameIdx)
}

// AddString interns a STRING entry referencing the UTF8 at utf8Index.
func (p *ConstPool) AddString(utf8Index int) int {
	if idx, ok := p.stringIndexByUTF8[utf8Index]; ok {
		return idx
	}
	idx := p.push(cpEntry{tag: TagString, nameIndex: utf8Index})
	p.stringIndexByUTF8[utf8Index] = idx
	return idx
}

// GetString returns the UTF8 index backing a STRING entry.
func (p *ConstPool) GetString(index int) (int, error) {
	e, err := p.check(index, TagString)
	if err != nil {
		return 0, err
	}
	return e.nameIndex, nil
}

func (p *ConstPool) addRef(tag CPTag, idx map[[2]int]int, classIndex, natIndex int) int {
	key := [2]int{classIndex, natIndex}
	if i, ok := idx[key]; ok {
		return i
	}
	i := p.push(cpEntry{tag: tag, classIndex: classIndex, nameAndTypeIdx: natIndex})
	idx[key] = i
	return i
}

// AddFieldref interns a FIELDREF entry by (class index, name-and-type
// index).
func (p *ConstPool) AddFieldref(classIndex, natIndex int) int {
	return p.addRef(TagFieldref, p.fieldrefIndex, classIndex, natIndex)
}

// AddMethodref interns a METHODREF entry by (class index, name-and-type
// index).
func (p *ConstPool) AddMethodref(classIndex, natIndex int) int {
	return p.addRef(TagMethodref, p.methodrefIndex, classIndex, natIndex)
}

// AddInterfaceMethodref interns an INTERFACEMETHODREF entry by (class index,
// name-and-type index).
func (p *ConstPool) AddInterfaceMethodref(classIndex, natIndex int) int {
	return p.addRef(TagInterfaceMethodref, p.interfaceMethodrefIndex, classIndex, natIndex)
}

func (p *ConstPool) getRef(tag CPTag, index int) (classIndex, natIndex int, err error) {
	e, err := p.check(index, tag)
	if err != nil {
		return 0, 0, err
	}
	return e.classIndex, e.nameAndTypeIdx, nil
}

// GetFieldref returns the (class index, name-and-type index) of a FIELDREF
// entry.
func (p *ConstPool) GetFieldref(index int) (int, int, error) {
	return p.getRef(TagFieldref, index)
}

// GetMethodref returns the (class index, name-and-type index) of a
// METHODREF entry.
func (p *ConstPool) GetMethodref(index int) (int, int, error) {
	return p.getRef(TagMethodref, index)
}

// GetInterfaceMethodref returns the (class index, name-and-type index) of an
// INTERFACEMETHODREF entry.
func (p *ConstPool) GetInterfaceMethodref(index int) (int, int, error) {
	return p.getRef(TagInterfaceMethodref, index)
}

// AddNameAndType interns a NAMEANDTYPE entry by (name index, descriptor
// index).
func (p *ConstPool) AddNameAndType(nameIndex, descriptorIndex int) int {
	key := [2]int{nameIndex, descriptorIndex}
	if i, ok := p.nameAndTypeIndex[key]; ok {
		return i
	}
	i := p.push(cpEntry{tag: TagNameAndType, nameIndex: nameIndex, descriptorIndex: descriptorIndex})
	p.nameAndTypeIndex[key] = i
	return i
}

// GetNameAndType returns the (name index, descriptor index) of a
// NAMEANDTYPE entry.
func (p *ConstPool) GetNameAndType(index int) (int, int, error) {
	e, err := p.check(index, TagNameAndType)
	if err != nil {
		return 0, 0, err
	}
	return e.nameIndex, e.descriptorIndex, nil
}

// AddMethodHandle interns a METHODHANDLE entry by (reference kind, reference
// index).
func (p *ConstPool) AddMethodHandle(kind uint8, refIndex int) int {
	key := [2]int{int(kind), refIndex}
	if i, ok := p.methodHandleIndex[key]; ok {
		return i
	}
	i := p.push(cpEntry{tag: TagMethodHandle, refKind: kind, refIndex: refIndex})
	p.methodHandleIndex[key] = i
	return i
}

// GetMethodHandle returns the (reference kind, reference index) of a
// METHODHANDLE entry.
func (p *ConstPool) GetMethodHandle(index int) (uint8, int, error) {
	e, err := p.check(index, TagMethodHandle)
	if err != nil {
		return 0, 0, err
	}
	return e.refKind, e.refIndex, nil
}

// AddMethodType interns a METHODTYPE entry by descriptor UTF8 index.
func (p *ConstPool) AddMethodType(descriptorIndex int) int {
	if i, ok := p.methodTypeIndex[descriptorIndex]; ok {
		return i
	}
	i := p.push(cpEntry{tag: TagMethodType, descriptorIndex: descriptorIndex})
	p.methodTypeIndex[descriptorIndex] = i
	return i
}

// GetMethodType returns the descriptor UTF8 index of a METHODTYPE entry.
func (p *ConstPool) GetMethodType(index int) (int, error) {
	e, err := p.check(index, TagMethodType)
	if err != nil {
		return 0, err
	}
	return e.descriptorIndex, nil
}

// AddInvokeDynamic interns an INVOKEDYNAMIC entry by (bootstrap method
// attribute index, name-and-type index).
func (p *ConstPool) AddInvokeDynamic(bootstrapMethodAttrIndex, natIndex int) int {
	key := [2]int{bootstrapMethodAttrIndex, natIndex}
	if i, ok := p.invokeDynamicIndex[key]; ok {
		return i
	}
	i := p.push(cpEntry{tag: TagInvokeDynamic, bootstrapMethodAttrIndex: bootstrapMethodAttrIndex, nameAndTypeIdx: natIndex})
	p.invokeDynamicIndex[key] = i
	return i
}

// GetInvokeDynamic returns the (bootstrap method attribute index,
// name-and-type index) of an INVOKEDYNAMIC entry.
func (p *ConstPool) GetInvokeDynamic(index int) (int, int, error) {
	e, err := p.check(index, TagInvokeDynamic)
	if err != nil {
		return 0, 0, err
	}
	return e.bootstrapMethodAttrIndex, e.nameAndTypeIdx, nil
}

// appendParsed appends e verbatim (no interning: a class file may legally
// repeat a structurally identical entry at two distinct indices) and, if no
// entry with the same lookup key has been registered yet, records this
// index as the one future Add<Kind> calls will intern against. This keeps
// runtime mutation (instrumentation adding a new UTF8 that happens to match
// one already in the file) deduplicating against parsed content, without
// the parser itself collapsing indices the source file kept distinct.
func (p *ConstPool) appendParsed(e cpEntry) int {
	idx := p.push(e)
	switch e.tag {
	case TagUTF8:
		if _, ok := p.utf8Index[e.utf8]; !ok {
			p.utf8Index[e.utf8] = idx
		}
	case TagInteger:
		if _, ok := p.integerIndex[e.i32]; !ok {
			p.integerIndex[e.i32] = idx
		}
	case TagFloat:
		if _, ok := p.floatIndex[e.f32]; !ok {
			p.floatIndex[e.f32] = idx
		}
	case TagLong:
		if _, ok := p.longIndex[e.i64]; !ok {
			p.longIndex[e.i64] = idx
		}
	case TagDouble:
		if _, ok := p.doubleIndex[e.f64]; !ok {
			p.doubleIndex[e.f64] = idx
		}
	case TagClass:
		if _, ok := p.classIndexByName[e.nameIndex]; !ok {
			p.classIndexByName[e.nameIndex] = idx
		}
	case TagString:
		if _, ok := p.stringIndexByUTF8[e.nameIndex]; !ok {
			p.stringIndexByUTF8[e.nameIndex] = idx
		}
	case TagFieldref:
		key := [2]int{e.classIndex, e.nameAndTypeIdx}
		if _, ok := p.fieldrefIndex[key]; !ok {
			p.fieldrefIndex[key] = idx
		}
	case TagMethodref:
		key := [2]int{e.classIndex, e.nameAndTypeIdx}
		if _, ok := p.methodrefIndex[key]; !ok {
			p.methodrefIndex[key] = idx
		}
	case TagInterfaceMethodref:
		key := [2]int{e.classIndex, e.nameAndTypeIdx}
		if _, ok := p.interfaceMethodrefIndex[key]; !ok {
			p.interfaceMethodrefIndex[key] = idx
		}
	case TagNameAndType:
		key := [2]int{e.nameIndex, e.descriptorIndex}
		if _, ok := p.nameAndTypeIndex[key]; !ok {
			p.nameAndTypeIndex[key] = idx
		}
	case TagMethodHandle:
		key := [2]int{int(e.refKind), e.refIndex}
		if _, ok := p.methodHandleIndex[key]; !ok {
			p.methodHandleIndex[key] = idx
		}
	case TagMethodType:
		if _, ok := p.methodTypeIndex[e.descriptorIndex]; !ok {
			p.methodTypeIndex[e.descriptorIndex] = idx
		}
	case TagInvokeDynamic:
		key := [2]int{e.bootstrapMethodAttrIndex, e.nameAndTypeIdx}
		if _, ok := p.invokeDynamicIndex[key]; !ok {
			p.invokeDynamicIndex[key] = idx
		}
	}
	return idx
}

// Each calls fn once per populated index in insertion order, skipping the
// sentinel second slot of every LONG/DOUBLE entry.
func (p *ConstPool) Each(fn func(index int, tag CPTag)) {
	for i := 1; i < len(p.entries); i++ {
		if p.entries[i].tag == tagEmpty {
			continue
		}
		fn(i, p.entries[i].tag)
	}
}

// rawEntryForWrite exposes the entry for the writer, which must serialize
// every field regardless of typed accessors.
func (p *ConstPool) rawEntryForWrite(index int) cpEntry {
	return p.entries[index]
}
