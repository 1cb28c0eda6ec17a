// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

// instrBlockSize is the number of Instruction values (labels included)
// carved out of one backing block before the arena grows a new one. Sized
// the way the teacher pre-sizes its section/symbol slices in one shot
// (section.go allocates make([]Section, numberOfSections) up front); here
// the final count isn't known ahead of a parse, so blocks grow instead of
// one single slice, but each block is itself a single contiguous
// pre-reserved allocation.
const (
	instrBlockSize = 256
)

// Arena is a bump allocator for everything owned by one ClassFile:
// instructions and labels (both need pointer stability because branches and
// the doubly-linked list hold direct pointers into it). Every Instruction
// handed out by an Arena lives in one of its blocks; dropping the Arena (by
// dropping the ClassFile that owns it) drops every block at once, releasing
// the whole tree of instructions, labels, attributes, and pool entries in
// one O(1) step from the caller's point of view — Go's garbage collector
// performs the actual reclamation, but the caller never walks the structure
// to free it piece by piece.
type Arena struct {
	blocks [][]Instruction
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// allocInstr carves a new, zeroed Instruction out of the arena and returns a
// stable pointer to it. The pointer stays valid for the arena's lifetime
// because a block's backing array is never reallocated once created: append
// only ever grows within the block's pre-reserved capacity.
func (a *Arena) allocInstr() *Instruction {
	if len(a.blocks) == 0 || len(a.blocks[len(a.blocks)-1]) == cap(a.blocks[len(a.blocks)-1]) {
		a.blocks = append(a.blocks, make([]Instruction, 0, instrBlockSize))
	}
	i := len(a.blocks) - 1
	a.blocks[i] = append(a.blocks[i], Instruction{})
	return &a.blocks[i][len(a.blocks[i])-1]
}

// Reset releases every block. Any Instruction pointers the caller retained
// past this point are a use-after-free in spirit, exactly as a dropped
// ClassFile would be in the source language; Go's GC merely delays the
// physical reclamation until the last such pointer is gone.
func (a *Arena) Reset() {
	a.blocks = nil
}
