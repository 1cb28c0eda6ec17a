// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisassembleEmptyClassHeader(t *testing.T) {
	cf := buildEmptyClass()

	var buf bytes.Buffer
	require.NoError(t, Disassemble(cf, &buf))

	out := buf.String()
	assert.Contains(t, out, "jnif/test/generated/Class1")
	assert.Contains(t, out, "java/lang/Object")
	assert.Contains(t, out, "52")
}

func TestDisassembleMethodListsInstructionsAndLabels(t *testing.T) {
	cf := buildEmptyClass()
	addBranchingMethod(t, cf)

	var buf bytes.Buffer
	require.NoError(t, Disassemble(cf, &buf))

	out := buf.String()
	assert.Contains(t, out, "m (Z)I")
	assert.Contains(t, out, "iload_0")
	assert.Contains(t, out, "ifeq")
	assert.Contains(t, out, "goto")
	assert.Contains(t, out, "ireturn")
	assert.Contains(t, out, "L0:")
	assert.Contains(t, out, "L1:")
}

func TestDisassembleUnresolvableThisClassErrors(t *testing.T) {
	cf := New()
	cf.ThisClass = 0

	var buf bytes.Buffer
	assert.Error(t, Disassemble(cf, &buf))
}
