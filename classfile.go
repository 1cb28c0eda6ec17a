// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import (
	"github.com/binlab/jinif/internal/log"
)

// ClassMagic is the fixed four-byte signature every class file begins with.
const ClassMagic uint32 = 0xCAFEBABE

// Access and modifier flags (JVMS §4.1, §4.5, §4.6), named the way the
// teacher spells out every PE Characteristics/DllCharacteristics bit in
// pe.go.
const (
	AccPublic     uint16 = 0x0001
	AccPrivate    uint16 = 0x0002
	AccProtected  uint16 = 0x0004
	AccStatic     uint16 = 0x0008
	AccFinal      uint16 = 0x0010
	AccSuper      uint16 = 0x0020
	AccSynchronized uint16 = 0x0020
	AccVolatile   uint16 = 0x0040
	AccBridge     uint16 = 0x0040
	AccTransient  uint16 = 0x0080
	AccVarargs    uint16 = 0x0080
	AccNative     uint16 = 0x0100
	AccInterface  uint16 = 0x0200
	AccAbstract   uint16 = 0x0400
	AccStrict     uint16 = 0x0800
	AccSynthetic  uint16 = 0x1000
	AccAnnotation uint16 = 0x2000
	AccEnum       uint16 = 0x4000
)

// Member is a field or method: access flags, name/descriptor pool indices,
// and an attribute sequence (§3). A method with a Code attribute exposes it
// through CodeAttribute for convenience.
type Member struct {
	AccessFlags     uint16
	NameIndex       int
	DescriptorIndex int
	Attributes      []Attribute
}

// CodeAttribute returns the member's Code attribute, or nil if it has none
// (e.g. an abstract or native method, or a field).
func (m *Member) CodeAttribute() *CodeAttr {
	for i := range m.Attributes {
		if m.Attributes[i].Kind == AttrCode {
			return m.Attributes[i].Code
		}
	}
	return nil
}

// Options configures parsing and writing, mirroring the teacher's
// *pe.Options pattern in file.go: a small struct of knobs plus an injectable
// logger, rather than a long positional-argument list.
type Options struct {
	// Logger receives Parse's soft-failure diagnostics (non-zero switch
	// padding when StrictSwitchPadding is false). Defaults to a no-op
	// logger.
	Logger log.Logger

	// StrictSwitchPadding rejects non-zero tableswitch/lookupswitch padding
	// bytes instead of merely logging them (§7's BadSwitchPadding is
	// "warn or fail per configuration").
	StrictSwitchPadding bool
}

func (o *Options) logger() *log.Helper {
	if o == nil || o.Logger == nil {
		return log.NewHelper(log.NewNopLogger())
	}
	return log.NewHelper(o.Logger)
}

// ClassFile is the root aggregate (§3): an arena owning every interior
// instruction, label, and attribute, the constant pool, access flags,
// this/super indices, interfaces, fields, methods, and class-level
// attributes. Dropping a ClassFile (letting it become unreachable) releases
// the arena and everything in it.
type ClassFile struct {
	arena *Arena

	MinorVersion uint16
	MajorVersion uint16
	Pool         *ConstPool
	AccessFlags  uint16
	ThisClass    int
	SuperClass   int
	Interfaces   []int
	Fields       []*Member
	Methods      []*Member
	Attributes   []Attribute

	opts   *Options
	logger *log.Helper
}

// New creates an empty ClassFile for explicit, from-scratch construction
// (synthesis), pre-populated with a fresh arena and constant pool.
func New() *ClassFile {
	return &ClassFile{
		arena: NewArena(),
		Pool:  NewConstPool(),
		opts:  &Options{},
		logger: (&Options{}).logger(),
	}
}

// NewInstList creates an instruction list backed by this class file's arena,
// for use in a newly synthesized method's Code attribute.
func (cf *ClassFile) NewInstList() *InstList {
	return NewInstList(cf.arena)
}

// ThisClassName resolves ThisClass to its JVM internal name.
func (cf *ClassFile) ThisClassName() (string, error) {
	return cf.Pool.GetClassName(cf.ThisClass)
}

// SuperClassName resolves SuperClass to its JVM internal name, or "" if the
// class has no superclass (true only for java/lang/Object).
func (cf *ClassFile) SuperClassName() (string, error) {
	if cf.SuperClass == 0 {
		return "", nil
	}
	return cf.Pool.GetClassName(cf.SuperClass)
}

// IsInterface reports whether ACC_INTERFACE is set.
func (cf *ClassFile) IsInterface() bool { return cf.AccessFlags&AccInterface != 0 }
