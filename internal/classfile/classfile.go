// Package classfile reads the type header of JVM class files: the class and
// superclass names, implemented interfaces, access flags and the attributes
// that describe nesting and generic signatures. Method bodies and constant
// values are skipped.
package classfile

import (
	"encoding/binary"
	"io"
	"strings"

	"go.trai.ch/zerr"
)

// ErrMalformed is returned for input that is not a well-formed class file.
var ErrMalformed = zerr.New("malformed class file")

const magic = 0xCAFEBABE

// Class access flags.
const (
	AccPublic     = 0x0001
	AccPrivate    = 0x0002
	AccProtected  = 0x0004
	AccStatic     = 0x0008
	AccFinal      = 0x0010
	AccSuper      = 0x0020
	AccInterface  = 0x0200
	AccAbstract   = 0x0400
	AccSynthetic  = 0x1000
	AccAnnotation = 0x2000
	AccEnum       = 0x4000
	AccModule     = 0x8000
)

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// Class is the type header of one class file. Names are internal names such
// as com/acme/Outer$Inner.
type Class struct {
	MajorVersion uint16
	Access       int
	Name         string
	SuperName    string // empty for java/lang/Object
	Interfaces   []string
	Signature    string // generic signature, if any

	// From the InnerClasses entry describing this class.
	OuterName  string
	InnerName  string // empty for anonymous classes
	IsNested   bool
	IsLocal    bool // local or anonymous
	IsRecord   bool
	innerFlags int
}

// Read parses a class file from r.
func Read(r io.Reader) (*Class, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, zerr.Wrap(err, "read class file")
	}
	return Parse(data)
}

// Parse parses a class file held in memory.
func Parse(data []byte) (*Class, error) {
	p := &parser{data: data}
	if p.u4() != magic {
		return nil, p.fail("bad magic")
	}
	p.u2() // minor
	c := &Class{MajorVersion: p.u2()}

	pool, err := p.constantPool()
	if err != nil {
		return nil, err
	}

	c.Access = int(p.u2())
	thisIdx, superIdx := p.u2(), p.u2()
	if p.err != nil {
		return nil, p.err
	}
	if c.Name, err = pool.className(thisIdx); err != nil {
		return nil, err
	}
	if superIdx != 0 {
		if c.SuperName, err = pool.className(superIdx); err != nil {
			return nil, err
		}
	}
	n := int(p.u2())
	for range n {
		name, err := pool.className(p.u2())
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, name)
	}

	// Fields and methods carry nothing we need.
	for range 2 {
		members := int(p.u2())
		for range members {
			p.skip(6)
			p.skipAttributes()
		}
	}

	attrs := int(p.u2())
	for range attrs {
		nameIdx := p.u2()
		length := int(p.u4())
		body := p.take(length)
		if p.err != nil {
			return nil, p.err
		}
		name, err := pool.utf8(nameIdx)
		if err != nil {
			return nil, err
		}
		if err := c.attribute(name, body, pool); err != nil {
			return nil, err
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	if c.IsNested {
		c.Access = c.innerFlags | c.Access&AccSynthetic
	}
	return c, nil
}

func (c *Class) attribute(name string, body []byte, pool constantPool) error {
	a := &parser{data: body}
	switch name {
	case "Signature":
		sig, err := pool.utf8(a.u2())
		if err != nil {
			return err
		}
		c.Signature = sig
	case "EnclosingMethod":
		c.IsLocal = true
	case "Record":
		c.IsRecord = true
	case "InnerClasses":
		n := int(a.u2())
		for range n {
			inner, outer, innerName, flags := a.u2(), a.u2(), a.u2(), a.u2()
			if a.err != nil {
				return a.err
			}
			innerClass, err := pool.className(inner)
			if err != nil {
				return err
			}
			if innerClass != c.Name {
				continue
			}
			c.IsNested = true
			c.innerFlags = int(flags)
			if outer != 0 {
				if c.OuterName, err = pool.className(outer); err != nil {
					return err
				}
			} else {
				c.IsLocal = true
			}
			if innerName != 0 {
				if c.InnerName, err = pool.utf8(innerName); err != nil {
					return err
				}
			}
		}
	}
	return a.err
}

// Package returns the dotted package name.
func (c *Class) Package() string {
	i := strings.LastIndexByte(c.Name, '/')
	if i < 0 {
		return ""
	}
	return strings.ReplaceAll(c.Name[:i], "/", ".")
}

// BinaryName returns the class name within its package, e.g. Outer$Inner.
func (c *Class) BinaryName() string {
	return c.Name[strings.LastIndexByte(c.Name, '/')+1:]
}

// SimpleName returns the source-level simple name. Anonymous classes have
// none.
func (c *Class) SimpleName() string {
	if c.IsNested {
		return c.InnerName
	}
	return c.BinaryName()
}

// IsInterface reports whether the class file declares an interface or an
// annotation type.
func (c *Class) IsInterface() bool {
	return c.Access&AccInterface != 0
}

// IsModuleInfo reports whether this is a module descriptor rather than a type.
func (c *Class) IsModuleInfo() bool {
	return c.Access&AccModule != 0
}

// DottedName converts an internal name to a qualified source name, with
// nested types separated by dots.
func DottedName(internal string) string {
	return strings.NewReplacer("/", ".", "$", ".").Replace(internal)
}

// TypeParameters renders the formal type parameters of the generic signature
// as written in source, e.g. "<K, V>". It returns "" for non-generic classes.
func (c *Class) TypeParameters() string {
	s := c.Signature
	if !strings.HasPrefix(s, "<") {
		return ""
	}
	var names []string
	i := 1
	for i < len(s) && s[i] != '>' {
		colon := strings.IndexByte(s[i:], ':')
		if colon < 0 {
			return ""
		}
		names = append(names, s[i:i+colon])
		i += colon
		// Class bound (possibly empty) followed by interface bounds.
		for i < len(s) && s[i] == ':' {
			i++
			if i < len(s) && s[i] != ':' {
				i = skipReferenceSignature(s, i)
			}
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "<" + strings.Join(names, ", ") + ">"
}

// skipReferenceSignature returns the index just past the reference type
// signature starting at i.
func skipReferenceSignature(s string, i int) int {
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return i
	}
	switch s[i] {
	case 'L', 'T':
		depth := 0
		for ; i < len(s); i++ {
			switch s[i] {
			case '<':
				depth++
			case '>':
				depth--
			case ';':
				if depth == 0 {
					return i + 1
				}
			}
		}
		return i
	default:
		return i + 1
	}
}

// --- low-level reading ---

type parser struct {
	data []byte
	pos  int
	err  error
}

func (p *parser) fail(msg string) error {
	if p.err == nil {
		p.err = zerr.With(zerr.Wrap(ErrMalformed, msg), "offset", p.pos)
	}
	return p.err
}

func (p *parser) take(n int) []byte {
	if p.err != nil {
		return nil
	}
	if n < 0 || p.pos+n > len(p.data) {
		p.fail("truncated")
		return nil
	}
	b := p.data[p.pos : p.pos+n]
	p.pos += n
	return b
}

func (p *parser) skip(n int) { p.take(n) }

func (p *parser) u1() byte {
	b := p.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (p *parser) u2() uint16 {
	b := p.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (p *parser) u4() uint32 {
	b := p.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (p *parser) skipAttributes() {
	n := int(p.u2())
	for range n {
		p.skip(2)
		p.skip(int(p.u4()))
	}
}

type constant struct {
	tag   byte
	ref   uint16
	bytes []byte
}

type constantPool []constant

func (p *parser) constantPool() (constantPool, error) {
	count := int(p.u2())
	if count == 0 && p.err == nil {
		return nil, p.fail("empty constant pool")
	}
	pool := make(constantPool, count)
	for i := 1; i < count; i++ {
		tag := p.u1()
		c := constant{tag: tag}
		switch tag {
		case tagUtf8:
			c.bytes = p.take(int(p.u2()))
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			c.ref = p.u2()
		case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref,
			tagNameAndType, tagDynamic, tagInvokeDynamic:
			p.skip(4)
		case tagLong, tagDouble:
			p.skip(8)
			pool[i] = c
			i++ // eight-byte constants take two slots
			continue
		case tagMethodHandle:
			p.skip(3)
		default:
			return nil, p.fail("unknown constant tag")
		}
		if p.err != nil {
			return nil, p.err
		}
		pool[i] = c
	}
	return pool, p.err
}

func (cp constantPool) utf8(i uint16) (string, error) {
	if int(i) <= 0 || int(i) >= len(cp) || cp[i].tag != tagUtf8 {
		return "", zerr.With(zerr.Wrap(ErrMalformed, "bad utf8 constant index"), "index", i)
	}
	return string(cp[i].bytes), nil
}

func (cp constantPool) className(i uint16) (string, error) {
	if int(i) <= 0 || int(i) >= len(cp) || cp[i].tag != tagClass {
		return "", zerr.With(zerr.Wrap(ErrMalformed, "bad class constant index"), "index", i)
	}
	return cp.utf8(cp[i].ref)
}
