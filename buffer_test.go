// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderBigEndian(t *testing.T) {
	r := NewReader([]byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00, 0x2F, 0xFF})

	u4, err := r.ReadU4()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFEBABE), u4)

	u2, err := r.ReadU2()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x002F), u2)

	s1, err := r.ReadS1()
	require.NoError(t, err)
	assert.Equal(t, int8(-1), s1)

	assert.True(t, r.AtEnd())
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.ReadU2()
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestReaderSubAndClose(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04})
	sub, err := r.Sub(2)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Offset())

	_, err = sub.ReadU1()
	require.NoError(t, err)
	assert.Error(t, sub.Close(), "one unread byte must be reported as trailing garbage")

	_, err = sub.ReadU1()
	require.NoError(t, err)
	assert.NoError(t, sub.Close())
}

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter(0)
	w.WriteU4(0xCAFEBABE)
	w.WriteU2(52)
	w.WriteS2(-1)

	r := NewReader(w.Bytes())
	u4, err := r.ReadU4()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFEBABE), u4)

	u2, err := r.ReadU2()
	require.NoError(t, err)
	assert.Equal(t, uint16(52), u2)

	s2, err := r.ReadS2()
	require.NoError(t, err)
	assert.Equal(t, int16(-1), s2)
}
