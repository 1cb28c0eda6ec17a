// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

// InstList is a doubly-linked, mutable sequence of instructions and label
// pseudo-instructions (§4.D/§4.E). Every node is carved from the owning
// ClassFile's Arena so the whole list is released in one step when the
// ClassFile is dropped. Only append, push-front, and insert-before are
// implemented, matching the spec's "removal is not required by the core
// workflow" note.
//
// Grounded structurally in the ordered, incrementally-built tables the
// teacher walks in section.go and resource.go, generalized to a doubly
// linked list because instrumentation needs O(1) insertion at an arbitrary
// cursor position without shifting a backing slice.
type InstList struct {
	arena        *Arena
	head, tail   *Instruction
	labelCounter int
}

// NewInstList creates an empty instruction list backed by arena.
func NewInstList(arena *Arena) *InstList {
	return &InstList{arena: arena}
}

// Head returns the first instruction, or nil if the list is empty.
func (l *InstList) Head() *Instruction { return l.head }

// Tail returns the last instruction, or nil if the list is empty.
func (l *InstList) Tail() *Instruction { return l.tail }

func (l *InstList) alloc(kind InstrKind, op Op) *Instruction {
	ins := l.arena.allocInstr()
	ins.Kind = kind
	ins.Op = op
	return ins
}

func (l *InstList) linkAtTail(ins *Instruction) {
	ins.list = l
	ins.prev = l.tail
	ins.next = nil
	if l.tail != nil {
		l.tail.next = ins
	} else {
		l.head = ins
	}
	l.tail = ins
}

func (l *InstList) linkAtHead(ins *Instruction) {
	ins.list = l
	ins.prev = nil
	ins.next = l.head
	if l.head != nil {
		l.head.prev = ins
	} else {
		l.tail = ins
	}
	l.head = ins
}

func (l *InstList) linkBefore(ins, before *Instruction) {
	ins.list = l
	ins.prev = before.prev
	ins.next = before
	if before.prev != nil {
		before.prev.next = ins
	} else {
		l.head = ins
	}
	before.prev = ins
}

// place attaches ins to the list at the position described by pos: append
// when pos is empty or its single element is nil, otherwise insert ins
// immediately before pos[0].
func (l *InstList) place(ins *Instruction, pos []*Instruction) *Instruction {
	if len(pos) == 0 || pos[0] == nil {
		l.linkAtTail(ins)
	} else {
		l.linkBefore(ins, pos[0])
	}
	return ins
}

// PushFront attaches an already-allocated instruction at the head of the
// list.
func (l *InstList) PushFront(ins *Instruction) *Instruction {
	l.linkAtHead(ins)
	return ins
}

// CreateLabel allocates a new, unplaced label with a fresh, monotonically
// increasing id. Use InsertLabel to place it in the list.
func (l *InstList) CreateLabel() *Instruction {
	lbl := l.alloc(KindLabel, 0)
	lbl.LabelID = l.labelCounter
	l.labelCounter++
	return lbl
}

// InsertLabel places an already-created label into the list, appending by
// default or inserting before pos[0] when given. Returns ErrDuplicateLabel
// if lbl is already attached to a list.
func (l *InstList) InsertLabel(lbl *Instruction, pos ...*Instruction) (*Instruction, error) {
	if lbl.list != nil {
		return nil, ErrDuplicateLabel
	}
	return l.place(lbl, pos), nil
}

// AddZero appends (or inserts before pos[0]) a no-operand instruction.
func (l *InstList) AddZero(op Op, pos ...*Instruction) *Instruction {
	return l.place(l.alloc(KindZero, op), pos)
}

// AddImmediate appends a bipush/sipush instruction carrying a signed
// immediate.
func (l *InstList) AddImmediate(op Op, value int32, pos ...*Instruction) *Instruction {
	ins := l.alloc(KindImmediate, op)
	ins.IntOperand = value
	return l.place(ins, pos)
}

// AddLdc appends an ldc/ldc_w/ldc2_w instruction referencing a pool index.
// op distinguishes the category-2 form (OpLdc2W, always 3 bytes, never
// narrowed) from the category-1 forms (OpLdc/OpLdcW): the writer narrows
// OpLdc to a 1-byte index and widens to OpLdcW only between those two.
func (l *InstList) AddLdc(op Op, cpIndex int, pos ...*Instruction) *Instruction {
	ins := l.alloc(KindLdc, op)
	ins.CPIndex = cpIndex
	return l.place(ins, pos)
}

// AddVar appends a *load/*store instruction referencing a local-variable
// index.
func (l *InstList) AddVar(op Op, index int, pos ...*Instruction) *Instruction {
	ins := l.alloc(KindVar, op)
	ins.VarIndex = index
	return l.place(ins, pos)
}

// AddIinc appends an iinc instruction.
func (l *InstList) AddIinc(index int, delta int32, pos ...*Instruction) *Instruction {
	ins := l.alloc(KindIinc, OpIinc)
	ins.VarIndex = index
	ins.IntOperand = delta
	return l.place(ins, pos)
}

// AddWideVar appends a wide *load/*store instruction with a 16-bit local
// index.
func (l *InstList) AddWideVar(op Op, index int, pos ...*Instruction) *Instruction {
	ins := l.alloc(KindWideVar, op)
	ins.VarIndex = index
	return l.place(ins, pos)
}

// AddWideIinc appends a wide iinc instruction with 16-bit index and delta.
func (l *InstList) AddWideIinc(index int, delta int32, pos ...*Instruction) *Instruction {
	ins := l.alloc(KindWideIinc, OpIinc)
	ins.VarIndex = index
	ins.IntOperand = delta
	return l.place(ins, pos)
}

// AddJump appends a branch instruction (if*/goto/jsr) targeting target.
func (l *InstList) AddJump(op Op, target *Instruction, pos ...*Instruction) *Instruction {
	ins := l.alloc(KindJump, op)
	ins.Target = target
	target.IsBranchTarget = true
	return l.place(ins, pos)
}

// AddRet appends a ret instruction.
func (l *InstList) AddRet(index int, pos ...*Instruction) *Instruction {
	ins := l.alloc(KindRet, OpRet)
	ins.VarIndex = index
	return l.place(ins, pos)
}

// AddTableSwitch appends a tableswitch instruction. len(targets) must equal
// high-low+1.
func (l *InstList) AddTableSwitch(def *Instruction, low, high int32, targets []*Instruction, pos ...*Instruction) *Instruction {
	ins := l.alloc(KindTableSwitch, OpTableswitch)
	ins.Target = def
	ins.Low, ins.High = low, high
	ins.Targets = targets
	def.IsBranchTarget = true
	for _, t := range targets {
		t.IsBranchTarget = true
	}
	return l.place(ins, pos)
}

// AddLookupSwitch appends a lookupswitch instruction. len(keys) must equal
// len(targets).
func (l *InstList) AddLookupSwitch(def *Instruction, keys []int32, targets []*Instruction, pos ...*Instruction) *Instruction {
	ins := l.alloc(KindLookupSwitch, OpLookupswitch)
	ins.Target = def
	ins.Keys = keys
	ins.Targets = targets
	def.IsBranchTarget = true
	for _, t := range targets {
		t.IsBranchTarget = true
	}
	return l.place(ins, pos)
}

// AddFieldOrMethod appends a getfield/putfield/invoke* instruction. argCount
// is only meaningful (and required by the class file format) for
// invokeinterface.
func (l *InstList) AddFieldOrMethod(op Op, cpIndex, argCount int, pos ...*Instruction) *Instruction {
	ins := l.alloc(KindFieldOrMethod, op)
	ins.CPIndex = cpIndex
	ins.ArgCount = argCount
	return l.place(ins, pos)
}

// AddType appends a new/anewarray/checkcast/instanceof instruction
// referencing a CLASS pool index.
func (l *InstList) AddType(op Op, cpIndex int, pos ...*Instruction) *Instruction {
	ins := l.alloc(KindType, op)
	ins.CPIndex = cpIndex
	return l.place(ins, pos)
}

// AddNewarray appends a newarray instruction with a primitive array-type
// code (one of the AT* constants).
func (l *InstList) AddNewarray(atype uint8, pos ...*Instruction) *Instruction {
	ins := l.alloc(KindNewarray, OpNewarray)
	ins.IntOperand = int32(atype)
	return l.place(ins, pos)
}

// AddMultiANewArray appends a multianewarray instruction.
func (l *InstList) AddMultiANewArray(cpIndex, dims int, pos ...*Instruction) *Instruction {
	ins := l.alloc(KindMultiANewArray, OpMultianewarray)
	ins.CPIndex = cpIndex
	ins.Dims = dims
	return l.place(ins, pos)
}

// Iterator is a forward cursor over an InstList that tolerates mutation: it
// captures the next pointer before returning the current node, so inserting
// before or after the just-returned node never corrupts traversal (§4.D).
type Iterator struct {
	cur *Instruction
}

// Iterator returns a fresh forward cursor starting at the list head.
func (l *InstList) Iterator() *Iterator {
	return &Iterator{cur: l.head}
}

// HasNext reports whether another instruction remains.
func (it *Iterator) HasNext() bool { return it.cur != nil }

// Next returns the current instruction and advances the cursor.
func (it *Iterator) Next() *Instruction {
	cur := it.cur
	if cur == nil {
		return nil
	}
	it.cur = cur.next
	return cur
}
