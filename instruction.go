// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

// InstrKind discriminates the payload an Instruction carries. Per the
// spec's design note, this is a tagged sum rather than an inheritance
// hierarchy: every consumer (parser, writer, frame computer, disassembler)
// switches on Kind instead of dispatching virtually.
type InstrKind int

const (
	KindZero           InstrKind = iota // no operands: arithmetic, stack ops, returns, ...
	KindImmediate                       // bipush/sipush: a signed immediate int
	KindLdc                             // ldc/ldc_w/ldc2_w: a pool index
	KindVar                             // *load/*store: a local-variable index
	KindIinc                            // iinc: local index + signed delta
	KindWideVar                         // wide *load/*store: 16-bit local index
	KindWideIinc                        // wide iinc: 16-bit local index + 16-bit delta
	KindJump                            // if*/goto/jsr: a target label
	KindTableSwitch                     // tableswitch
	KindLookupSwitch                    // lookupswitch
	KindFieldOrMethod                   // getfield/putfield/invoke*: a pool index (+ arg count for interface)
	KindType                            // new/anewarray/checkcast/instanceof: a class pool index
	KindNewarray                        // newarray: a primitive array-type byte
	KindMultiANewArray                  // multianewarray: class index + dimension count
	KindRet                             // ret: a local-variable index (no wide variant distinction needed beyond VarIndex)
	KindLabel                           // pseudo-instruction: a branch target placeholder
)

// Instruction is one node of the doubly-linked instruction list (§3, §4.D).
// It carries a common header (Kind, Op, Offset, prev/next) plus whichever of
// the payload fields below its Kind uses. A Label is represented as an
// Instruction with Kind == KindLabel; see instlist.go.
type Instruction struct {
	Kind   InstrKind
	Op     Op
	Offset int32 // byte offset, valid after layout (§4.H) or after parsing

	prev, next *Instruction
	list       *InstList // the list this instruction is currently placed in, nil if detached

	// KindImmediate (bipush/sipush), KindIinc/KindWideIinc (delta),
	// KindNewarray (array type code, in the low byte).
	IntOperand int32

	// KindVar, KindWideVar, KindIinc, KindWideIinc, KindRet: local-variable
	// index.
	VarIndex int

	// KindLdc, KindFieldOrMethod, KindType, KindMultiANewArray: constant
	// pool index.
	CPIndex int

	// KindFieldOrMethod (invokeinterface only): declared argument count.
	ArgCount int

	// KindMultiANewArray: number of dimensions.
	Dims int

	// KindJump: branch target. KindTableSwitch/KindLookupSwitch: default
	// target.
	Target *Instruction

	// KindTableSwitch: inclusive [Low, High] range, len(Targets) ==
	// High-Low+1.
	Low, High int32
	Targets   []*Instruction

	// KindLookupSwitch: parallel key/target pairs, same length.
	Keys []int32

	// KindLabel only.
	LabelID        int
	IsBranchTarget bool
	Frame          *Frame

	// KindRet only: true when parsed from (or destined to be written as)
	// the wide-prefixed two-byte-index form rather than the one-byte form.
	Wide bool
}

// Prev returns the previous instruction in list order, or nil at the head.
func (i *Instruction) Prev() *Instruction { return i.prev }

// Next returns the next instruction in list order, or nil at the tail.
func (i *Instruction) Next() *Instruction { return i.next }

// IsLabel reports whether this node is a label pseudo-instruction.
func (i *Instruction) IsLabel() bool { return i.Kind == KindLabel }

// Mnemonic returns the textual opcode mnemonic, or "label" for a label node.
func (i *Instruction) Mnemonic() string {
	if i.Kind == KindLabel {
		return "label"
	}
	return i.Op.String()
}
