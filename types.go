// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

// VKind discriminates the variants of the stack-map type lattice (§4.I).
type VKind int

const (
	VTop VKind = iota
	VInteger
	VFloat
	VLong
	VDouble
	VNull
	VUninitializedThis
	VObject
	VUninitialized
)

// Type is a value in the stack-map type lattice: a tagged union of the
// primitive verification types plus the two reference-type variants the JVM
// verifier distinguishes (a resolved object reference, and the not-yet-
// initialized result of a bare "new").
type Type struct {
	Kind       VKind
	ClassName  string       // set when Kind == VObject
	CPIndex    int          // optional constant-pool Class index backing ClassName
	AllocLabel *Instruction // set when Kind == VUninitialized: the "new" site
}

// Singleton primitive and special types. Composite ones (VObject,
// VUninitialized) are built with the constructors below.
var (
	TTop               = Type{Kind: VTop}
	TInt               = Type{Kind: VInteger}
	TFloat             = Type{Kind: VFloat}
	TLong              = Type{Kind: VLong}
	TDouble            = Type{Kind: VDouble}
	TNull              = Type{Kind: VNull}
	TUninitializedThis = Type{Kind: VUninitializedThis}
)

// TObject builds a reference type naming the given class (internal form,
// slashes not dots, e.g. "java/lang/String").
func TObject(className string) Type {
	return Type{Kind: VObject, ClassName: className}
}

// TUninitialized builds the type of a value produced by "new" but not yet
// passed to <init>, identified by the label at the allocation site.
func TUninitialized(allocSite *Instruction) Type {
	return Type{Kind: VUninitialized, AllocLabel: allocSite}
}

// IsCategory2 reports whether the type occupies two local-variable/operand-
// stack slots, with the second slot carrying TTop.
func (t Type) IsCategory2() bool {
	return t.Kind == VLong || t.Kind == VDouble
}

// isReference reports whether t belongs to the reference family the JVM
// verifier tracks (object, uninitialized, uninitialized-this, or null).
func (t Type) isReference() bool {
	switch t.Kind {
	case VObject, VUninitialized, VUninitializedThis, VNull:
		return true
	default:
		return false
	}
}

// Equal reports structural equality, comparing allocation sites by identity
// for VUninitialized.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case VObject:
		return t.ClassName == o.ClassName
	case VUninitialized:
		return t.AllocLabel == o.AllocLabel
	default:
		return true
	}
}

func (t Type) String() string {
	switch t.Kind {
	case VTop:
		return "top"
	case VInteger:
		return "int"
	case VFloat:
		return "float"
	case VLong:
		return "long"
	case VDouble:
		return "double"
	case VNull:
		return "null"
	case VUninitializedThis:
		return "uninitializedThis"
	case VObject:
		return t.ClassName
	case VUninitialized:
		return "uninitialized"
	default:
		return "?"
	}
}

// Join computes the least upper bound of a and b in the stack-map type
// lattice, per §4.I:
//   - equal types join to themselves
//   - null joins with any reference to that reference
//   - any reference x any reference joins to their least common superclass
//     per cp, falling back to java/lang/Object
//   - any other mismatch (including a primitive/category mismatch, or two
//     differently-sited uninitialized values) joins to TOP
func Join(a, b Type, cp ClassPath) (Type, error) {
	if a.Equal(b) {
		return a, nil
	}
	if a.Kind == VNull && b.isReference() {
		return b, nil
	}
	if b.Kind == VNull && a.isReference() {
		return a, nil
	}
	if a.isReference() && b.isReference() {
		nameA, nameB := refClassName(a), refClassName(b)
		if nameA == "" || nameB == "" {
			// One side is an uninitialized(-this) value with no resolvable
			// class name and the sites/kinds didn't match Equal above: the
			// verifier has no common type to offer besides java/lang/Object.
			return TObject("java/lang/Object"), nil
		}
		if cp == nil {
			return TObject("java/lang/Object"), nil
		}
		common, err := cp.CommonSuperClass(nameA, nameB)
		if err != nil || common == "" {
			return TObject("java/lang/Object"), nil
		}
		return TObject(common), nil
	}
	return TTop, nil
}

// refClassName returns the JVM internal class name backing a reference type,
// or "" when the type has no resolvable class name of its own (a bare
// uninitialized or uninitialized-this value).
func refClassName(t Type) string {
	switch t.Kind {
	case VObject:
		return t.ClassName
	case VUninitialized, VUninitializedThis:
		return ""
	default:
		return ""
	}
}
