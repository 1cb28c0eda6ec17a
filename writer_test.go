// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLdcChoosesNarrowestEncoding(t *testing.T) {
	arena := NewArena()
	list := NewInstList(arena)
	narrow := list.AddLdc(OpLdc, 10)
	wide := list.AddLdc(OpLdc, 300)

	assert.Equal(t, 2, instructionSize(narrow, 0))
	assert.Equal(t, 3, instructionSize(wide, 0))
}

func TestLdc2WNeverNarrowsEvenAtLowIndex(t *testing.T) {
	arena := NewArena()
	list := NewInstList(arena)
	ins := list.AddLdc(OpLdc2W, 1)

	assert.Equal(t, 3, instructionSize(ins, 0))

	w := NewWriter(3)
	require.NoError(t, encodeInstruction(w, ins, &codeLayout{offsetOf: map[*Instruction]int32{ins: 0}}))
	out := w.Bytes()
	require.Len(t, out, 3)
	assert.Equal(t, uint8(OpLdc2W), out[0], "a category-2 constant must never be narrowed to ldc")
}

func TestTableSwitchPadding(t *testing.T) {
	arena := NewArena()
	list := NewInstList(arena)
	list.AddZero(OpNop) // offset 0, pushes tableswitch to offset 1
	def := list.CreateLabel()
	t0 := list.CreateLabel()
	sw := list.AddTableSwitch(def, 0, 0, []*Instruction{t0})
	list.InsertLabel(def)
	list.InsertLabel(t0)
	list.AddZero(OpReturn)

	cl, err := layoutCode(&CodeAttr{Instructions: list})
	require.NoError(t, err)

	// tableswitch opcode at offset 1 occupies one byte; the operand block
	// must start on the next 4-byte boundary, which is offset 4, so 2
	// bytes of padding precede the default/low/high/jump-table block.
	assert.Equal(t, int32(1), cl.offsetOf[sw])
	assert.Equal(t, 2, padTo4(1))
}

func TestNopPaddingGrowsSizeByFourPerMethod(t *testing.T) {
	cf := buildEmptyClass()
	addBranchingMethod(t, cf)

	before, err := Write(cf, nil)
	require.NoError(t, err)

	code := cf.Methods[0].CodeAttribute()
	head := code.Instructions.Head()
	for i := 0; i < 4; i++ {
		code.Instructions.AddZero(OpNop, head)
	}

	after, err := Write(cf, nil)
	require.NoError(t, err)

	assert.Equal(t, len(before)+4, len(after))
}

func TestWriteNilAllocatorDefaultsToMake(t *testing.T) {
	cf := buildEmptyClass()
	out, err := Write(cf, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestWriteAllocatorNilBufferIsOutOfMemory(t *testing.T) {
	cf := buildEmptyClass()
	_, err := Write(cf, func(size int) []byte { return nil })
	assert.ErrorIs(t, err, ErrOutOfMemory)
}
