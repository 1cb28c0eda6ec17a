// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import "fmt"

// InstrumentObjectInit prepends `aload_0; invokestatic
// frproxy/FrInstrProxy.alloc(Ljava/lang/Object;)V` to the start of every
// `<init>` method found directly on cf, the allocation-tracking hook this
// package ships as its one built-in instrumentation. It is a no-op, not an
// error, on a class with no constructors (an interface, for instance).
//
// The rewritten method still verifies: prepending aload_0 followed by a
// void-returning static call touches neither the stack depth nor the local
// variable array the rest of the constructor's body depends on, so any
// stack-map frame already attached to a later label remains valid and only
// needs its code offsets recomputed by ComputeMethodFrames after rewriting.
func (cf *ClassFile) InstrumentObjectInit() error {
	for _, m := range cf.Methods {
		name, err := cf.Pool.GetUTF8(m.NameIndex)
		if err != nil {
			return fmt.Errorf("jinif: resolving method name: %w", err)
		}
		if name != "<init>" {
			continue
		}
		code := m.CodeAttribute()
		if code == nil {
			continue
		}
		if err := prependAllocProxyCall(cf, code); err != nil {
			return fmt.Errorf("jinif: instrumenting <init>: %w", err)
		}
	}
	return nil
}

func prependAllocProxyCall(cf *ClassFile, code *CodeAttr) error {
	list := code.Instructions
	head := list.Head()
	if head == nil {
		return fmt.Errorf("%w: <init> has an empty instruction list", ErrAttrDecode)
	}

	pool := cf.Pool
	classIdx := pool.AddClass(pool.AddUTF8("frproxy/FrInstrProxy"))
	natIdx := pool.AddNameAndType(
		pool.AddUTF8("alloc"),
		pool.AddUTF8("(Ljava/lang/Object;)V"),
	)
	methodIdx := pool.AddMethodref(classIdx, natIdx)

	list.AddVar(OpAload0, 0, head)
	list.AddFieldOrMethod(OpInvokestatic, methodIdx, 0, head)
	return nil
}
