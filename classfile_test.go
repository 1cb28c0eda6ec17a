// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildEmptyClass synthesizes a minimal class file for
// jnif/test/generated/Class1 extending java/lang/Object: zero fields, zero
// methods, zero interfaces, ACC_PUBLIC — the scenario 1 fixture from the
// testable-properties scenario list.
func buildEmptyClass() *ClassFile {
	cf := New()
	cf.MinorVersion = 0
	cf.MajorVersion = 52
	cf.AccessFlags = AccPublic | AccSuper
	cf.ThisClass = cf.Pool.AddClass(cf.Pool.AddUTF8("jnif/test/generated/Class1"))
	cf.SuperClass = cf.Pool.AddClass(cf.Pool.AddUTF8("java/lang/Object"))
	return cf
}

func TestEmptyClassShape(t *testing.T) {
	cf := buildEmptyClass()

	assert.GreaterOrEqual(t, cf.Pool.Size(), 2)
	assert.Empty(t, cf.Fields)
	assert.Empty(t, cf.Methods)
	assert.Empty(t, cf.Interfaces)
	assert.Equal(t, AccPublic, cf.AccessFlags&AccPublic)

	name, err := cf.ThisClassName()
	require.NoError(t, err)
	assert.Equal(t, "jnif/test/generated/Class1", name)

	super, err := cf.SuperClassName()
	require.NoError(t, err)
	assert.Equal(t, "java/lang/Object", super)
}

func TestMemberCodeAttributeLookup(t *testing.T) {
	m := &Member{
		Attributes: []Attribute{
			{Kind: AttrSynthetic},
			{Kind: AttrCode, Code: &CodeAttr{MaxStack: 1}},
		},
	}
	code := m.CodeAttribute()
	require.NotNil(t, code)
	assert.Equal(t, 1, code.MaxStack)

	empty := &Member{}
	assert.Nil(t, empty.CodeAttribute())
}

func TestOptionsLoggerDefaultsToNop(t *testing.T) {
	var opts *Options
	h := opts.logger()
	require.NotNil(t, h)
	// A nop logger must not panic when used; there is nothing else
	// externally observable about it.
	h.Debugf("unreachable sink, must not panic: %d", 1)
}
