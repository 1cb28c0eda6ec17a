// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinEqualAndPrimitiveMismatch(t *testing.T) {
	same, err := Join(TInt, TInt, nil)
	require.NoError(t, err)
	assert.Equal(t, TInt, same)

	mismatch, err := Join(TInt, TFloat, nil)
	require.NoError(t, err)
	assert.Equal(t, TTop, mismatch)
}

// stubClassPath is a minimal, map-driven ClassPath used only to exercise
// Join's reference-type branch without a real hierarchy cache.
type stubClassPath struct {
	super map[string]string
}

func (s *stubClassPath) CommonSuperClass(a, b string) (string, error) {
	if a == b {
		return a, nil
	}
	chain := func(n string) []string {
		out := []string{n}
		for {
			sup, ok := s.super[n]
			if !ok {
				break
			}
			out = append(out, sup)
			n = sup
		}
		return out
	}
	chainA := chain(a)
	set := make(map[string]bool, len(chainA))
	for _, n := range chainA {
		set[n] = true
	}
	for _, n := range chain(b) {
		if set[n] {
			return n, nil
		}
	}
	return "java/lang/Object", nil
}

func (s *stubClassPath) IsAssignableFrom(sub, sup string) (bool, error) {
	common, err := s.CommonSuperClass(sub, sup)
	return common == sup, err
}

func TestJoinReferenceCommonSuperclass(t *testing.T) {
	cp := &stubClassPath{super: map[string]string{
		"pkg/A": "pkg/Base",
		"pkg/B": "pkg/Base",
	}}
	got, err := Join(TObject("pkg/A"), TObject("pkg/B"), cp)
	require.NoError(t, err)
	assert.Equal(t, TObject("pkg/Base"), got)
}

// buildBranchingMethod assembles:
//
//	iload_0
//	ifeq L1
//	iconst_1
//	goto L2
//	L1: iconst_0
//	L2: ireturn
//
// a static int(boolean) method whose two paths to L2 both leave TInt on the
// stack, exercising ComputeFrames's merge at a join point reached by both a
// taken branch and a fall-through.
func buildBranchingMethod() *CodeAttr {
	arena := NewArena()
	list := NewInstList(arena)

	l1 := list.CreateLabel()
	l2 := list.CreateLabel()

	list.AddVar(OpIload0, 0)
	list.AddJump(OpIfeq, l1)
	list.AddZero(OpIconst1)
	list.AddJump(OpGoto, l2)
	list.InsertLabel(l1)
	list.AddZero(OpIconst0)
	list.InsertLabel(l2)
	list.AddZero(OpIreturn)

	return &CodeAttr{MaxStack: 1, MaxLocals: 1, Instructions: list}
}

func TestComputeFramesMergesAtJoinPoint(t *testing.T) {
	code := buildBranchingMethod()
	seed := &Frame{Locals: []Type{TInt}}

	err := ComputeFrames(code, seed, FrameComputerConfig{})
	require.NoError(t, err)

	var l2 *Instruction
	for it := code.Instructions.Iterator(); it.HasNext(); {
		ins := it.Next()
		if ins.IsLabel() && ins.LabelID == 1 {
			l2 = ins
		}
	}
	require.NotNil(t, l2)
	require.NotNil(t, l2.Frame)
	assert.Equal(t, []Type{TInt}, l2.Frame.Stack)
}

// TestEncodeStackMapTableCollapsesCategory2Local pins JVMS §4.7.4: a
// long/double local is one verification_type_info entry, never followed by
// a Top_variable_info pad byte, even though this package's own internal
// Frame.Locals slot numbering carries that pad to line up with LVT indices.
func TestEncodeStackMapTableCollapsesCategory2Local(t *testing.T) {
	arena := NewArena()
	list := NewInstList(arena)
	lbl := list.CreateLabel()
	list.AddJump(OpGoto, lbl)
	list.InsertLabel(lbl)
	list.AddZero(OpReturn)

	lbl.IsBranchTarget = true
	lbl.Frame = &Frame{Locals: []Type{TLong, TTop}}

	code := &CodeAttr{Instructions: list}
	layout, err := layoutCode(code)
	require.NoError(t, err)

	raw, err := EncodeStackMapTable(code, layout.offsetOf, &Frame{})
	require.NoError(t, err)

	r := NewReader(raw)
	numEntries, err := r.ReadU2()
	require.NoError(t, err)
	require.Equal(t, uint16(1), numEntries)

	frameType, err := r.ReadU1()
	require.NoError(t, err)
	assert.Equal(t, uint8(252), frameType, "append_frame adding exactly one local")

	_, err = r.ReadU2() // offset_delta
	require.NoError(t, err)

	vtag, err := r.ReadU1()
	require.NoError(t, err)
	assert.Equal(t, uint8(4), vtag, "Long_variable_info, with no following Top_variable_info pad")

	assert.Equal(t, 0, r.Remaining(), "no trailing pad byte for the long local's second slot")
}

func TestComputeFramesRefusesSubroutinesByDefault(t *testing.T) {
	arena := NewArena()
	list := NewInstList(arena)
	target := list.CreateLabel()
	list.AddJump(OpJsr, target)
	list.InsertLabel(target)
	list.AddZero(OpReturn)

	code := &CodeAttr{MaxStack: 1, MaxLocals: 1, Instructions: list}
	err := ComputeFrames(code, &Frame{}, FrameComputerConfig{})
	assert.ErrorIs(t, err, ErrUnsupportedSubroutines)
}
