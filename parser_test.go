// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsBadMagic(t *testing.T) {
	_, err := Parse([]byte{0x00, 0x00, 0x00, 0x00}, nil)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestParseRejectsTruncatedInput(t *testing.T) {
	_, err := Parse([]byte{0xCA, 0xFE, 0xBA}, nil)
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestParseEmptyClassRoundTrip(t *testing.T) {
	cf := buildEmptyClass()
	out, err := Write(cf, nil)
	require.NoError(t, err)

	reparsed, err := Parse(out, nil)
	require.NoError(t, err)

	name, err := reparsed.ThisClassName()
	require.NoError(t, err)
	assert.Equal(t, "jnif/test/generated/Class1", name)

	super, err := reparsed.SuperClassName()
	require.NoError(t, err)
	assert.Equal(t, "java/lang/Object", super)

	assert.Equal(t, cf.AccessFlags, reparsed.AccessFlags)
	assert.Empty(t, reparsed.Fields)
	assert.Empty(t, reparsed.Methods)
}

func TestParseTrailingGarbageRejected(t *testing.T) {
	cf := buildEmptyClass()
	out, err := Write(cf, nil)
	require.NoError(t, err)

	_, err = Parse(append(out, 0xFF), nil)
	assert.ErrorIs(t, err, ErrTrailingGarbage)
}

func TestParseMethodWithCodeRoundTrip(t *testing.T) {
	cf := buildEmptyClass()
	addBranchingMethod(t, cf)

	out, err := Write(cf, nil)
	require.NoError(t, err)

	reparsed, err := Parse(out, nil)
	require.NoError(t, err)

	require.Len(t, reparsed.Methods, 1)
	code := reparsed.Methods[0].CodeAttribute()
	require.NotNil(t, code)

	var mnemonics []string
	for it := code.Instructions.Iterator(); it.HasNext(); {
		ins := it.Next()
		if !ins.IsLabel() {
			mnemonics = append(mnemonics, ins.Mnemonic())
		}
	}
	assert.Equal(t, []string{"iload_0", "ifeq", "iconst_1", "goto", "iconst_0", "ireturn"}, mnemonics)

	out2, err := Write(reparsed, nil)
	require.NoError(t, err)
	assert.Equal(t, out, out2, "a second round trip of an unmodified method must byte-for-byte match the first")
}

func TestParseLdc2WRoundTripPreservesVariant(t *testing.T) {
	cf := buildEmptyClass()
	longIdx := cf.Pool.AddLong(1)

	arena := NewArena()
	list := NewInstList(arena)
	list.AddLdc(OpLdc2W, longIdx)
	list.AddZero(OpLreturn)
	code := &CodeAttr{MaxStack: 2, MaxLocals: 0, Instructions: list}
	m := &Member{
		AccessFlags:     AccStatic,
		NameIndex:       cf.Pool.AddUTF8("k"),
		DescriptorIndex: cf.Pool.AddUTF8("()J"),
		Attributes:      []Attribute{{Kind: AttrCode, Code: code}},
	}
	cf.Methods = append(cf.Methods, m)

	out, err := Write(cf, nil)
	require.NoError(t, err)

	reparsed, err := Parse(out, nil)
	require.NoError(t, err)

	reCode := reparsed.Methods[0].CodeAttribute()
	require.NotNil(t, reCode)

	it := reCode.Instructions.Iterator()
	require.True(t, it.HasNext())
	ldc := it.Next()
	assert.Equal(t, OpLdc2W, ldc.Op, "a low pool index must not narrow a category-2 constant to ldc")
	assert.Equal(t, "ldc2_w", ldc.Mnemonic())
	assert.Equal(t, longIdx, ldc.CPIndex)
}

// addBranchingMethod attaches a static int m(boolean) method implementing
// the branching shape from buildBranchingMethod to cf, returning nothing:
// callers inspect cf.Methods afterward.
func addBranchingMethod(t *testing.T, cf *ClassFile) {
	t.Helper()
	code := buildBranchingMethod()
	m := &Member{
		AccessFlags:     AccStatic,
		NameIndex:       cf.Pool.AddUTF8("m"),
		DescriptorIndex: cf.Pool.AddUTF8("(Z)I"),
		Attributes:      []Attribute{{Kind: AttrCode, Code: code}},
	}
	cf.Methods = append(cf.Methods, m)
}
