// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstPoolInterning(t *testing.T) {
	p := NewConstPool()

	a := p.AddUTF8("java/lang/Object")
	b := p.AddUTF8("java/lang/Object")
	assert.Equal(t, a, b, "equal UTF8 content must intern to the same index")

	c := p.AddUTF8("java/lang/String")
	assert.NotEqual(t, a, c)

	cls1 := p.AddClass(a)
	cls2 := p.AddClass(a)
	assert.Equal(t, cls1, cls2)

	nat := p.AddNameAndType(p.AddUTF8("<init>"), p.AddUTF8("()V"))
	m1 := p.AddMethodref(cls1, nat)
	m2 := p.AddMethodref(cls1, nat)
	assert.Equal(t, m1, m2)
}

func TestConstPoolLongDoubleWideSlots(t *testing.T) {
	p := NewConstPool()
	idx := p.AddLong(42)
	tag, err := p.Tag(idx)
	require.NoError(t, err)
	assert.Equal(t, TagLong, tag)

	_, err = p.Tag(idx + 1)
	assert.ErrorIs(t, err, ErrBadCpIndex, "the sentinel second slot is not independently addressable")

	v, err := p.GetLong(idx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestConstPoolGetWrongTag(t *testing.T) {
	p := NewConstPool()
	idx := p.AddUTF8("x")
	_, err := p.GetInteger(idx)
	assert.ErrorIs(t, err, ErrWrongTag)
}

func TestConstPoolEachSkipsSentinels(t *testing.T) {
	p := NewConstPool()
	p.AddDouble(1.5)
	p.AddUTF8("tail")

	var tags []CPTag
	p.Each(func(index int, tag CPTag) {
		tags = append(tags, tag)
	})
	assert.Equal(t, []CPTag{TagDouble, TagUTF8}, tags)
}

func TestConstPoolAppendParsedPreservesDuplicates(t *testing.T) {
	p := NewConstPool()
	i1 := p.appendParsed(cpEntry{tag: TagUTF8, utf8: "dup"})
	i2 := p.appendParsed(cpEntry{tag: TagUTF8, utf8: "dup"})
	assert.NotEqual(t, i1, i2, "a parsed class file may legally repeat a structurally identical entry")

	assert.Equal(t, i1, p.AddUTF8("dup"), "a later Add call must intern against the first parsed occurrence")
}
