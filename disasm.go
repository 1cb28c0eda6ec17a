// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Disassemble writes a human-readable listing of cf to w: the class header,
// then every field and method, with each method's Code attribute rendered
// as one tab-aligned line per instruction or label.
//
// Grounded in the teacher's pretty-printing style in cmd/dump.go and
// cmd/pedumper.go, which run every parsed directory through a
// tabwriter-backed printer rather than hand-padding columns with Sprintf.
func Disassemble(cf *ClassFile, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	thisName, err := cf.ThisClassName()
	if err != nil {
		return err
	}
	superName, _ := cf.SuperClassName()
	fmt.Fprintf(tw, "class\t%s\n", thisName)
	if superName != "" {
		fmt.Fprintf(tw, "  extends\t%s\n", superName)
	}
	fmt.Fprintf(tw, "  minor/major\t%d/%d\n", cf.MinorVersion, cf.MajorVersion)
	fmt.Fprintf(tw, "  access\t%#04x\n", cf.AccessFlags)

	for _, idx := range cf.Interfaces {
		name, err := cf.Pool.GetClassName(idx)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "  implements\t%s\n", name)
	}

	for _, f := range cf.Fields {
		if err := disasmMember(tw, cf, f, "field"); err != nil {
			return err
		}
	}
	for _, m := range cf.Methods {
		if err := disasmMember(tw, cf, m, "method"); err != nil {
			return err
		}
	}

	return tw.Flush()
}

func disasmMember(tw *tabwriter.Writer, cf *ClassFile, m *Member, kind string) error {
	name, err := cf.Pool.GetUTF8(m.NameIndex)
	if err != nil {
		return err
	}
	desc, err := cf.Pool.GetUTF8(m.DescriptorIndex)
	if err != nil {
		return err
	}
	fmt.Fprintf(tw, "%s\t%s %s\t(access %#04x)\n", kind, name, desc, m.AccessFlags)

	code := m.CodeAttribute()
	if code == nil {
		return nil
	}
	fmt.Fprintf(tw, "  code\tmax_stack=%d max_locals=%d\n", code.MaxStack, code.MaxLocals)

	labelNames := make(map[*Instruction]string)
	for it := code.Instructions.Iterator(); it.HasNext(); {
		ins := it.Next()
		if ins.IsLabel() {
			labelNames[ins] = fmt.Sprintf("L%d", ins.LabelID)
		}
	}

	for it := code.Instructions.Iterator(); it.HasNext(); {
		ins := it.Next()
		if ins.IsLabel() {
			fmt.Fprintf(tw, "%s:\t\n", labelNames[ins])
			continue
		}
		fmt.Fprintf(tw, "    %s\t%s\n", ins.Mnemonic(), disasmOperand(ins, labelNames))
	}

	for _, h := range code.ExceptionTable {
		fmt.Fprintf(tw, "  handler\t%s-%s -> %s (catch %d)\n",
			labelNames[h.Start], labelNames[h.End], labelNames[h.Handler], h.CatchType)
	}

	for i := range code.Attributes {
		disasmNestedAttr(tw, &code.Attributes[i], labelNames)
	}

	return nil
}

func disasmOperand(ins *Instruction, labelNames map[*Instruction]string) string {
	switch ins.Kind {
	case KindImmediate:
		return fmt.Sprintf("%d", ins.IntOperand)
	case KindLdc:
		return fmt.Sprintf("#%d", ins.CPIndex)
	case KindVar, KindWideVar:
		return fmt.Sprintf("%d", ins.VarIndex)
	case KindIinc, KindWideIinc:
		return fmt.Sprintf("%d, %d", ins.VarIndex, ins.IntOperand)
	case KindJump:
		return labelNames[ins.Target]
	case KindRet:
		return fmt.Sprintf("%d", ins.VarIndex)
	case KindTableSwitch:
		return fmt.Sprintf("[%d..%d] default=%s", ins.Low, ins.High, labelNames[ins.Target])
	case KindLookupSwitch:
		return fmt.Sprintf("%d keys, default=%s", len(ins.Keys), labelNames[ins.Target])
	case KindFieldOrMethod:
		return fmt.Sprintf("#%d", ins.CPIndex)
	case KindType:
		return fmt.Sprintf("#%d", ins.CPIndex)
	case KindNewarray:
		return fmt.Sprintf("atype=%d", ins.IntOperand)
	case KindMultiANewArray:
		return fmt.Sprintf("#%d dims=%d", ins.CPIndex, ins.Dims)
	default:
		return ""
	}
}

func disasmNestedAttr(tw *tabwriter.Writer, a *Attribute, labelNames map[*Instruction]string) {
	switch a.Kind {
	case AttrLineNumberTable:
		for _, e := range a.LineNumbers {
			fmt.Fprintf(tw, "  line\t%s -> %d\n", labelNames[e.StartPC], e.LineNumber)
		}
	case AttrLocalVariableTable:
		for _, e := range a.LocalVariables {
			fmt.Fprintf(tw, "  local\tslot %d, %s-%s\n", e.Index, labelNames[e.Start], labelNames[e.End])
		}
	case AttrStackMapTable:
		// The raw delta encoding is preserved opaquely (see the note on
		// RawFrames); printing its full structural contents would
		// require re-deriving the seed frame this package intentionally
		// doesn't track outside ComputeFrames, so only its size is
		// reported here.
		fmt.Fprintf(tw, "  stack_map_table\t%d bytes\n", len(a.RawFrames))
	}
}
