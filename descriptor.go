// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import (
	"fmt"
	"strings"
)

// parseFieldType decodes one JVM field descriptor element starting at s[i]
// and returns the Type it denotes plus the index just past it. Used both for
// a field's own descriptor and for one parameter of a method descriptor.
func parseFieldType(s string, i int) (Type, int, error) {
	if i >= len(s) {
		return Type{}, i, fmt.Errorf("%w: truncated descriptor %q", ErrAttrDecode, s)
	}
	switch s[i] {
	case 'B', 'C', 'I', 'S', 'Z':
		return TInt, i + 1, nil
	case 'F':
		return TFloat, i + 1, nil
	case 'J':
		return TLong, i + 1, nil
	case 'D':
		return TDouble, i + 1, nil
	case 'L':
		j := strings.IndexByte(s[i:], ';')
		if j < 0 {
			return Type{}, i, fmt.Errorf("%w: unterminated class descriptor %q", ErrAttrDecode, s)
		}
		return TObject(s[i+1 : i+j]), i + j + 1, nil
	case '[':
		// Arrays are modeled as reference types named by their descriptor;
		// the frame computer does not need to distinguish array element
		// types beyond treating the whole array as an object reference.
		_, next, err := parseFieldType(s, i+1)
		if err != nil {
			return Type{}, i, err
		}
		return TObject(s[i:next]), next, nil
	default:
		return Type{}, i, fmt.Errorf("%w: unrecognized descriptor byte %q in %q", ErrAttrDecode, s[i], s)
	}
}

// parseMethodDescriptor splits a method descriptor "(args)ret" into the
// argument types, in order, and the return type. For a void method ret is
// the zero Type{} and isVoid is true.
func parseMethodDescriptor(desc string) (args []Type, ret Type, isVoid bool, err error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, Type{}, false, fmt.Errorf("%w: method descriptor %q missing '('", ErrAttrDecode, desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		var t Type
		t, i, err = parseFieldType(desc, i)
		if err != nil {
			return nil, Type{}, false, err
		}
		args = append(args, t)
	}
	if i >= len(desc) {
		return nil, Type{}, false, fmt.Errorf("%w: method descriptor %q missing ')'", ErrAttrDecode, desc)
	}
	i++ // skip ')'
	if i >= len(desc) {
		return nil, Type{}, false, fmt.Errorf("%w: method descriptor %q missing return type", ErrAttrDecode, desc)
	}
	if desc[i] == 'V' {
		return args, Type{}, true, nil
	}
	ret, _, err = parseFieldType(desc, i)
	if err != nil {
		return nil, Type{}, false, err
	}
	return args, ret, false, nil
}
