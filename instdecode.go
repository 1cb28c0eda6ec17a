// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import (
	"fmt"
	"math"
)

// decodeFloat32 and decodeFloat64 reinterpret the constant pool's raw
// IEEE-754 bit patterns (JVMS §4.4.4/§4.4.5 special-case NaN canonicalization
// is a verifier concern, not a storage concern, so the bits are kept as-is).
func decodeFloat32(bits uint32) float32 { return math.Float32frombits(bits) }
func decodeFloat64(bits uint64) float64 { return math.Float64frombits(bits) }

// decodedInstr is the size-and-operand summary decodeInstructionAt produces
// for one instruction at a known code offset. It exists only to let both
// passes of the Code decode (parser.go) share one opcode table instead of
// duplicating operand-shape knowledge.
type decodedInstr struct {
	op   Op
	kind InstrKind
	size int // total bytes this instruction occupies, including its opcode byte

	intOperand int32
	varIndex   int
	cpIndex    int
	argCount   int
	dims       int
	wide       bool

	jumpTarget int // absolute code offset, KindJump only

	switchDefault int   // absolute code offset, KindTableSwitch/KindLookupSwitch
	low, high     int32 // KindTableSwitch
	switchTargets []int // absolute code offsets, parallel to keys for lookupswitch
	keys          []int32
}

// isShortVarOp reports whether op is one of the *load_N/*store_N opcodes
// that carry their local-variable index in the opcode itself rather than a
// trailing operand byte.
func isShortVarOp(op Op) bool {
	switch {
	case op >= OpIload0 && op <= OpAload3:
		return true
	case op >= OpIstore0 && op <= OpAstore3:
		return true
	default:
		return false
	}
}

// shortVarIndex returns the implied local-variable index of a short *load_N/
// *store_N opcode.
func shortVarIndex(op Op) int {
	switch {
	case op >= OpIload0 && op <= OpIload3:
		return int(op - OpIload0)
	case op >= OpLload0 && op <= OpLload3:
		return int(op - OpLload0)
	case op >= OpFload0 && op <= OpFload3:
		return int(op - OpFload0)
	case op >= OpDload0 && op <= OpDload3:
		return int(op - OpDload0)
	case op >= OpAload0 && op <= OpAload3:
		return int(op - OpAload0)
	case op >= OpIstore0 && op <= OpIstore3:
		return int(op - OpIstore0)
	case op >= OpLstore0 && op <= OpLstore3:
		return int(op - OpLstore0)
	case op >= OpFstore0 && op <= OpFstore3:
		return int(op - OpFstore0)
	case op >= OpDstore0 && op <= OpDstore3:
		return int(op - OpDstore0)
	case op >= OpAstore0 && op <= OpAstore3:
		return int(op - OpAstore0)
	default:
		return 0
	}
}

// padTo4 returns the number of zero-padding bytes between offset+1 (the
// byte right after a tableswitch/lookupswitch opcode) and the next 4-byte
// boundary measured from the start of the method's code array, per JVMS
// §6.5 tableswitch/lookupswitch.
func padTo4(offset int) int {
	return (4 - (offset+1)%4) % 4
}

// decodeInstructionAt decodes exactly one instruction from code starting at
// offset, returning its shape and size without resolving any branch target
// to a label — that is the caller's job, using the absolute offsets this
// function computes. Switch padding bytes are not checked here;
// parseCodeAttr checks them.
func decodeInstructionAt(code []byte, offset int) (decodedInstr, error) {
	if offset >= len(code) {
		return decodedInstr{}, fmt.Errorf("%w: instruction offset %d past code end %d", ErrTruncatedInput, offset, len(code))
	}
	op := Op(code[offset])
	need := func(n int) error {
		if offset+n > len(code) {
			return fmt.Errorf("%w: opcode %s at %d needs %d bytes, code ends at %d", ErrTruncatedInput, op, offset, n, len(code))
		}
		return nil
	}
	u1 := func(i int) uint8 { return code[offset+i] }
	s1 := func(i int) int8 { return int8(code[offset+i]) }
	u2 := func(i int) uint16 { return uint16(code[offset+i])<<8 | uint16(code[offset+i+1]) }
	s2 := func(i int) int16 { return int16(u2(i)) }
	s4 := func(i int) int32 {
		return int32(code[offset+i])<<24 | int32(code[offset+i+1])<<16 | int32(code[offset+i+2])<<8 | int32(code[offset+i+3])
	}

	switch op {
	case OpBipush:
		if err := need(2); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindImmediate, size: 2, intOperand: int32(s1(1))}, nil

	case OpSipush:
		if err := need(3); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindImmediate, size: 3, intOperand: int32(s2(1))}, nil

	case OpLdc:
		if err := need(2); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindLdc, size: 2, cpIndex: int(u1(1))}, nil

	case OpLdcW, OpLdc2W:
		if err := need(3); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindLdc, size: 3, cpIndex: int(u2(1))}, nil

	case OpIload, OpLload, OpFload, OpDload, OpAload,
		OpIstore, OpLstore, OpFstore, OpDstore, OpAstore:
		if err := need(2); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindVar, size: 2, varIndex: int(u1(1))}, nil

	case OpIinc:
		if err := need(3); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindIinc, size: 3, varIndex: int(u1(1)), intOperand: int32(s1(2))}, nil

	case OpRet:
		if err := need(2); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindRet, size: 2, varIndex: int(u1(1))}, nil

	case OpGoto, OpJsr,
		OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle,
		OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple,
		OpIfAcmpeq, OpIfAcmpne, OpIfnull, OpIfnonnull:
		if err := need(3); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindJump, size: 3, jumpTarget: offset + int(s2(1))}, nil

	case OpGotoW, OpJsrW:
		if err := need(5); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindJump, size: 5, jumpTarget: offset + int(s4(1))}, nil

	case OpTableswitch:
		pad := padTo4(offset)
		base := offset + 1 + pad
		if err := need(1 + pad + 12); err != nil {
			return decodedInstr{}, err
		}
		defOff := offset + int(s4At(code, base))
		low := s4At(code, base+4)
		high := s4At(code, base+8)
		n := int(high - low + 1)
		if n < 0 {
			return decodedInstr{}, fmt.Errorf("%w: tableswitch high %d < low %d", ErrAttrDecode, high, low)
		}
		size := 1 + pad + 12 + n*4
		if err := need(size); err != nil {
			return decodedInstr{}, err
		}
		targets := make([]int, n)
		for i := 0; i < n; i++ {
			targets[i] = offset + int(s4At(code, base+12+i*4))
		}
		return decodedInstr{
			op: op, kind: KindTableSwitch, size: size,
			switchDefault: defOff, low: low, high: high, switchTargets: targets,
		}, nil

	case OpLookupswitch:
		pad := padTo4(offset)
		base := offset + 1 + pad
		if err := need(1 + pad + 8); err != nil {
			return decodedInstr{}, err
		}
		defOff := offset + int(s4At(code, base))
		npairs := int(s4At(code, base+4))
		if npairs < 0 {
			return decodedInstr{}, fmt.Errorf("%w: lookupswitch negative npairs %d", ErrAttrDecode, npairs)
		}
		size := 1 + pad + 8 + npairs*8
		if err := need(size); err != nil {
			return decodedInstr{}, err
		}
		keys := make([]int32, npairs)
		targets := make([]int, npairs)
		for i := 0; i < npairs; i++ {
			pairBase := base + 8 + i*8
			keys[i] = s4At(code, pairBase)
			targets[i] = offset + int(s4At(code, pairBase+4))
		}
		return decodedInstr{
			op: op, kind: KindLookupSwitch, size: size,
			switchDefault: defOff, keys: keys, switchTargets: targets,
		}, nil

	case OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
		OpInvokevirtual, OpInvokespecial, OpInvokestatic:
		if err := need(3); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindFieldOrMethod, size: 3, cpIndex: int(u2(1))}, nil

	case OpInvokeinterface:
		if err := need(5); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindFieldOrMethod, size: 5, cpIndex: int(u2(1)), argCount: int(u1(3))}, nil

	case OpInvokedynamic:
		if err := need(5); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindFieldOrMethod, size: 5, cpIndex: int(u2(1))}, nil

	case OpNew, OpAnewarray, OpCheckcast, OpInstanceof:
		if err := need(3); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindType, size: 3, cpIndex: int(u2(1))}, nil

	case OpNewarray:
		if err := need(2); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindNewarray, size: 2, intOperand: int32(u1(1))}, nil

	case OpMultianewarray:
		if err := need(4); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: op, kind: KindMultiANewArray, size: 4, cpIndex: int(u2(1)), dims: int(u1(3))}, nil

	case OpWide:
		if err := need(2); err != nil {
			return decodedInstr{}, err
		}
		widened := Op(u1(1))
		if widened == OpIinc {
			if err := need(6); err != nil {
				return decodedInstr{}, err
			}
			return decodedInstr{
				op: widened, kind: KindWideIinc, size: 6,
				varIndex: int(u2(2)), intOperand: int32(s2(4)),
			}, nil
		}
		if widened == OpRet {
			if err := need(4); err != nil {
				return decodedInstr{}, err
			}
			return decodedInstr{op: widened, kind: KindRet, size: 4, varIndex: int(u2(2)), wide: true}, nil
		}
		if err := need(4); err != nil {
			return decodedInstr{}, err
		}
		return decodedInstr{op: widened, kind: KindWideVar, size: 4, varIndex: int(u2(2))}, nil

	default:
		if isShortVarOp(op) {
			return decodedInstr{op: op, kind: KindVar, size: 1, varIndex: shortVarIndex(op)}, nil
		}
		if _, ok := opMnemonics[op]; !ok {
			return decodedInstr{}, fmt.Errorf("%w: %#02x at offset %d", ErrUnknownOpcode, byte(op), offset)
		}
		return decodedInstr{op: op, kind: KindZero, size: 1}, nil
	}
}

// s4At reads a big-endian signed 32-bit integer from code at byte index i,
// used by the tableswitch/lookupswitch decoder where the natural 4-byte
// stride doesn't line up with Reader's cursor-based API.
func s4At(code []byte, i int) int32 {
	return int32(code[i])<<24 | int32(code[i+1])<<16 | int32(code[i+2])<<8 | int32(code[i+3])
}
