// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectMnemonics(l *InstList) []string {
	var out []string
	for it := l.Iterator(); it.HasNext(); {
		out = append(out, it.Next().Mnemonic())
	}
	return out
}

func TestInstListAppendOrder(t *testing.T) {
	l := NewInstList(NewArena())
	l.AddZero(OpNop)
	l.AddZero(OpIadd)
	l.AddZero(OpReturn)

	assert.Equal(t, []string{"nop", "iadd", "return"}, collectMnemonics(l))
	assert.Equal(t, OpNop, l.Head().Op)
	assert.Equal(t, OpReturn, l.Tail().Op)
}

func TestInstListInsertBefore(t *testing.T) {
	l := NewInstList(NewArena())
	ret := l.AddZero(OpReturn)
	l.AddVar(OpAload0, 0, ret)
	l.AddZero(OpPop, ret)

	assert.Equal(t, []string{"aload_0", "pop", "return"}, collectMnemonics(l))
}

func TestInstListLabelAndJump(t *testing.T) {
	l := NewInstList(NewArena())
	target := l.CreateLabel()
	l.AddJump(OpGoto, target)
	l.InsertLabel(target)
	l.AddZero(OpReturn)

	head := l.Head()
	require.Equal(t, KindJump, head.Kind)
	assert.Same(t, target, head.Target)

	lbl := head.Next()
	assert.True(t, lbl.IsLabel())
	assert.Same(t, target, lbl)
}

func TestInstListDuplicateLabelPlacement(t *testing.T) {
	l := NewInstList(NewArena())
	lbl := l.CreateLabel()
	_, err := l.InsertLabel(lbl)
	require.NoError(t, err)

	_, err = l.InsertLabel(lbl)
	assert.ErrorIs(t, err, ErrDuplicateLabel)
}
