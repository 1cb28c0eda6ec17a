// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

// AttrKind discriminates the variants of Attribute, a tagged sum exactly
// like Instruction: SourceFile, Code, Exceptions, LocalVariableTable,
// LineNumberTable, StackMapTable, the supplemented kinds, and an opaque
// Unknown fallback for anything else (§3, §4.F).
type AttrKind int

const (
	AttrUnknown AttrKind = iota
	AttrSourceFile
	AttrCode
	AttrExceptions
	AttrLocalVariableTable
	AttrLineNumberTable
	AttrStackMapTable
	AttrConstantValue
	AttrDeprecated
	AttrSynthetic
	AttrSignature
	AttrInnerClasses
	AttrEnclosingMethod
)

// attrNames maps each structured kind to the attribute_name_index string the
// class file format uses to select it; attrKindByName is its inverse, the
// name -> decoder dispatch table described in §4.F, grounded directly in the
// teacher's ParseDataDirectories funcMaps table in pe.go (dispatch by a
// string/enum key to one of N structured parsers, default to a passthrough).
var attrNames = map[AttrKind]string{
	AttrSourceFile:         "SourceFile",
	AttrCode:                "Code",
	AttrExceptions:          "Exceptions",
	AttrLocalVariableTable:  "LocalVariableTable",
	AttrLineNumberTable:     "LineNumberTable",
	AttrStackMapTable:       "StackMapTable",
	AttrConstantValue:       "ConstantValue",
	AttrDeprecated:          "Deprecated",
	AttrSynthetic:           "Synthetic",
	AttrSignature:           "Signature",
	AttrInnerClasses:        "InnerClasses",
	AttrEnclosingMethod:     "EnclosingMethod",
}

var attrKindByName map[string]AttrKind

func init() {
	attrKindByName = make(map[string]AttrKind, len(attrNames))
	for k, n := range attrNames {
		attrKindByName[n] = k
	}
}

// InnerClassEntry is one entry of an InnerClasses attribute.
type InnerClassEntry struct {
	InnerClassIndex int
	OuterClassIndex int // 0 if not a member
	InnerNameIndex  int // 0 if anonymous
	InnerAccessFlags uint16
}

// LineNumberEntry is one entry of a LineNumberTable attribute.
type LineNumberEntry struct {
	StartPC    *Instruction // label at the start of the line
	LineNumber int
}

// LocalVariableEntry is one entry of a LocalVariableTable attribute.
type LocalVariableEntry struct {
	Start           *Instruction
	End             *Instruction
	NameIndex       int
	DescriptorIndex int
	Index           int
}

// ExceptionHandler is one entry of a Code attribute's exception table,
// referencing three labels rather than raw offsets (§3, §4.H). Grounded in
// the teacher's runtime-function-table parsing in the PE exception
// directory: a flat array of fixed-shape (start, end, handler) records,
// generalized here from byte offsets to label pointers so the handler
// bounds stay correct across instrumentation.
type ExceptionHandler struct {
	Start, End, Handler *Instruction
	CatchType           int // CLASS pool index, 0 means "any" (finally)
}

// CodeAttr is the structured payload of a Code attribute (§3).
type CodeAttr struct {
	MaxStack       int
	MaxLocals      int
	Instructions   *InstList
	ExceptionTable []ExceptionHandler
	Attributes     []Attribute // nested: StackMapTable, LineNumberTable, LocalVariableTable, ...
}

// Attribute is the tagged-union attribute payload (§3, §4.F). Every
// structured kind populates only the fields relevant to it; an attribute the
// parser did not recognize is retained as AttrUnknown with its name and raw
// bytes so a write-back with no mutation is lossless.
type Attribute struct {
	Kind AttrKind

	// AttrUnknown: the literal attribute_name_index string (since it has no
	// AttrKind of its own) and the raw, un-interpreted payload.
	UnknownName string
	Raw         []byte

	// AttrSourceFile
	SourceFileIndex int

	// AttrExceptions
	ExceptionIndexTable []int

	// AttrConstantValue
	ConstantValueIndex int

	// AttrSignature
	SignatureIndex int

	// AttrInnerClasses
	InnerClasses []InnerClassEntry

	// AttrEnclosingMethod
	EnclosingClassIndex  int
	EnclosingMethodIndex int // name-and-type index, 0 if not enclosed by a method

	// AttrLineNumberTable
	LineNumbers []LineNumberEntry

	// AttrLocalVariableTable
	LocalVariables []LocalVariableEntry

	// AttrStackMapTable: built from label Frame fields by the writer: this
	// slice is only populated when an attribute was parsed but not yet
	// recomputed, to support pass-through of an unmutated method (§4.H).
	RawFrames []byte

	// AttrCode
	Code *CodeAttr
}

// Name returns the attribute_name_index string this attribute serializes
// under.
func (a Attribute) Name() string {
	if a.Kind == AttrUnknown {
		return a.UnknownName
	}
	return attrNames[a.Kind]
}
