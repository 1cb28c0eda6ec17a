// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import "errors"

// Errors returned while reading, resolving, or rewriting a class file. Each
// is a distinct sentinel so callers can branch on the failure with errors.Is,
// and most are wrapped with fmt.Errorf at the call site to carry the offset
// or index that triggered them.
var (
	// ErrBadMagic is returned when the first four bytes of a class file are
	// not 0xCAFEBABE.
	ErrBadMagic = errors.New("jinif: bad magic, not a class file")

	// ErrTruncatedInput is returned when a reader runs out of bytes before
	// satisfying a read.
	ErrTruncatedInput = errors.New("jinif: truncated input")

	// ErrTrailingGarbage is returned when a reader is closed before
	// consuming the whole of its borrowed range.
	ErrTrailingGarbage = errors.New("jinif: trailing garbage after parse")

	// ErrBadCpIndex is returned when a constant pool index is zero, out of
	// range, or refers to an entry of the wrong tag.
	ErrBadCpIndex = errors.New("jinif: invalid constant pool index")

	// ErrWrongTag is returned by a typed pool accessor when the entry at the
	// requested index exists but carries a different tag.
	ErrWrongTag = errors.New("jinif: constant pool entry has the wrong tag")

	// ErrUnknownOpcode is returned when an instruction byte is not in the
	// JVM opcode table.
	ErrUnknownOpcode = errors.New("jinif: unknown opcode")

	// ErrBadSwitchPadding is returned when tableswitch/lookupswitch padding
	// bytes are non-zero.
	ErrBadSwitchPadding = errors.New("jinif: non-zero switch padding")

	// ErrFrameMerge is returned when a stack-map merge produces a type that
	// violates a structural invariant, such as a category-2 value landing on
	// an operand stack slot a category-1 value also reaches.
	ErrFrameMerge = errors.New("jinif: incompatible frame merge")

	// ErrUnsupportedSubroutines is returned by the frame computer when a
	// method contains jsr/ret and is configured to refuse them.
	ErrUnsupportedSubroutines = errors.New("jinif: jsr/ret subroutines not supported")

	// ErrAttrDecode is returned when a structured attribute's inner bytes
	// are malformed.
	ErrAttrDecode = errors.New("jinif: malformed attribute")

	// ErrOutOfMemory is returned when the caller's allocator callback
	// returns nil.
	ErrOutOfMemory = errors.New("jinif: allocator returned no buffer")

	// ErrDuplicateLabel is returned when a label already attached to an
	// instruction list is inserted a second time.
	ErrDuplicateLabel = errors.New("jinif: label already placed in instruction list")

	// ErrUnresolvedLabel is returned by the writer when an instruction
	// references a label that was never placed in the instruction list.
	ErrUnresolvedLabel = errors.New("jinif: branch target label was never placed")
)
