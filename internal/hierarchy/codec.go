package hierarchy

import (
	"bufio"
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"go.trai.ch/zerr"
)

// Format constants for persisted hierarchies.
const (
	FormatVersion byte = 0x00

	sep1 byte = '\n' // ends a section or record
	sep2 byte = ','  // separates list items
	sep3 byte = '>'  // separates a subtype index from its supertypes
	sep4 byte = '\r' // separates fields of a type record

	generalComputeSubtypes byte = 0x01

	infoClass       byte = 0x00
	infoInterface   byte = 0x01
	infoComputedFor byte = 0x02
	infoRoot        byte = 0x04
	infoMask             = infoInterface | infoComputedFor | infoRoot
)

// HandleResolver maps a persisted handle back to a TypeRef.
type HandleResolver func(handle string) (TypeRef, error)

// IdentityResolver resolves handles by parsing them.
func IdentityResolver(handle string) (TypeRef, error) { return ParseHandle(handle) }

// Encode writes g in the persisted hierarchy format.
func Encode(w io.Writer, g *Graph) error {
	index := map[TypeRef]int{}
	var table []TypeRef
	see := func(t TypeRef) {
		if _, ok := index[t]; ok {
			return
		}
		index[t] = len(table)
		table = append(table, t)
	}

	if focus, ok := g.Focus(); ok {
		see(focus)
	}
	classes := slices.SortedFunc(maps.Keys(g.classToSuperclass), byHandle)
	for _, t := range classes {
		see(t)
		see(g.classToSuperclass[t])
	}
	withInterfaces := slices.SortedFunc(maps.Keys(g.typeToSuperInterfaces), byHandle)
	for _, t := range withInterfaces {
		see(t)
		for _, s := range g.typeToSuperInterfaces[t] {
			see(s)
		}
	}
	// Types that carry no edge still carry markers and flags.
	for _, t := range g.rootClasses.order {
		see(t)
	}
	for _, t := range g.interfaces.order {
		see(t)
	}
	for _, t := range slices.SortedFunc(maps.Keys(g.typeFlags), byHandle) {
		see(t)
	}

	if err := checkIdentifier("project", g.project); err != nil {
		return err
	}
	for _, m := range g.missingTypes {
		if err := checkIdentifier("missing type", m); err != nil {
			return err
		}
	}
	for _, t := range table {
		if err := checkIdentifier("handle", t.Handle()); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	buf.WriteByte(FormatVersion)
	var general byte
	if g.computeSubtypes {
		general |= generalComputeSubtypes
	}
	buf.WriteByte(general)

	buf.WriteString(g.project)
	buf.WriteByte(sep1)

	for i, m := range g.missingTypes {
		if i != 0 {
			buf.WriteByte(sep2)
		}
		buf.WriteString(m)
	}
	buf.WriteByte(sep1)

	for _, t := range table {
		buf.WriteString(t.Handle())
		buf.WriteByte(sep4)
		if f, ok := g.typeFlags[t]; ok {
			buf.WriteString(strconv.Itoa(int(f)))
		}
		buf.WriteByte(sep4)
		info := infoClass
		if t == g.focus {
			info |= infoComputedFor
		}
		if g.interfaces.has(t) {
			info |= infoInterface
		}
		if g.rootClasses.has(t) {
			info |= infoRoot
		}
		buf.WriteByte(info)
	}
	buf.WriteByte(sep1)

	for _, t := range classes {
		buf.WriteString(strconv.Itoa(index[t]))
		buf.WriteByte(sep3)
		buf.WriteString(strconv.Itoa(index[g.classToSuperclass[t]]))
		buf.WriteByte(sep1)
	}
	buf.WriteByte(sep1)

	for _, t := range withInterfaces {
		ifaces := g.typeToSuperInterfaces[t]
		if len(ifaces) == 0 {
			continue
		}
		buf.WriteString(strconv.Itoa(index[t]))
		buf.WriteByte(sep3)
		for i, s := range ifaces {
			if i != 0 {
				buf.WriteByte(sep2)
			}
			buf.WriteString(strconv.Itoa(index[s]))
		}
		buf.WriteByte(sep1)
	}
	buf.WriteByte(sep1)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return zerr.Wrap(err, "write hierarchy")
	}
	return nil
}

// Decode reads a hierarchy written by Encode. focusHint must equal the type
// marked as the focus, if any. The returned graph is complete or nil.
func Decode(r io.Reader, focusHint *TypeRef, resolve HandleResolver) (*Graph, error) {
	if resolve == nil {
		resolve = IdentityResolver
	}
	d := decoder{r: bufio.NewReader(r)}
	g := New()

	version, err := d.byte("version")
	if err != nil {
		return nil, err
	}
	if version != FormatVersion {
		return nil, zerr.With(zerr.Wrap(ErrCorruptFormat, "unsupported version"), "version", version)
	}
	general, err := d.byte("general flags")
	if err != nil {
		return nil, err
	}
	g.computeSubtypes = general&generalComputeSubtypes != 0

	project, err := d.until(sep1, "project")
	if err != nil {
		return nil, err
	}
	if err := d.identifier("project", project); err != nil {
		return nil, err
	}
	g.project = string(project)

	missing, err := d.until(sep1, "missing types")
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		for _, m := range bytes.Split(missing, []byte{sep2}) {
			if len(m) == 0 {
				continue
			}
			if err := d.identifier("missing type", m); err != nil {
				return nil, err
			}
			g.AddMissingType(string(m))
		}
	}

	var table []TypeRef
	for {
		done, err := d.sectionEnd("types")
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		handle, err := d.until(sep4, "type handle")
		if err != nil {
			return nil, err
		}
		if err := d.identifier("handle", handle); err != nil {
			return nil, err
		}
		flagBytes, err := d.until(sep4, "type flags")
		if err != nil {
			return nil, err
		}
		info, err := d.byte("type info")
		if err != nil {
			return nil, err
		}
		if info&^infoMask != 0 {
			return nil, zerr.With(zerr.Wrap(ErrCorruptFormat, "unknown type info bits"), "info", info)
		}

		t, err := resolve(string(handle))
		if err != nil {
			return nil, zerr.With(zerr.Wrap(fmt.Errorf("%w: %w", ErrModelAccess, err), "resolve handle"), "handle", string(handle))
		}
		table = append(table, t)

		if len(flagBytes) > 0 {
			f, err := d.decimal(flagBytes, true, "type flags")
			if err != nil {
				return nil, err
			}
			g.CacheFlags(t, Flags(f))
		}
		if info&infoInterface != 0 {
			g.AddInterface(t)
		}
		if info&infoComputedFor != 0 {
			if focusHint == nil || *focusHint != t {
				return nil, zerr.With(zerr.Wrap(ErrCorruptFormat, "focus type does not match"), "handle", string(handle))
			}
			g.focus = t
		}
		if info&infoRoot != 0 {
			g.AddRootClass(t)
		}
	}

	for {
		done, err := d.sectionEnd("superclasses")
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		sub, err := d.index(sep3, len(table), "superclass edge")
		if err != nil {
			return nil, err
		}
		super, err := d.index(sep1, len(table), "superclass edge")
		if err != nil {
			return nil, err
		}
		if !g.CacheSuperclass(table[sub], table[super]) {
			return nil, zerr.With(zerr.Wrap(ErrCorruptFormat, "superclass cycle"), "type", table[sub].Handle())
		}
	}

	for {
		done, err := d.sectionEnd("superinterfaces")
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		sub, err := d.index(sep3, len(table), "superinterface edge")
		if err != nil {
			return nil, err
		}
		list, err := d.until(sep1, "superinterface edge")
		if err != nil {
			return nil, err
		}
		parts := bytes.Split(list, []byte{sep2})
		ifaces := make([]TypeRef, 0, len(parts))
		for _, p := range parts {
			i, err := d.decimal(p, false, "superinterface edge")
			if err != nil {
				return nil, err
			}
			if i >= len(table) {
				return nil, zerr.With(zerr.Wrap(ErrCorruptFormat, "type index out of range"), "index", i)
			}
			ifaces = append(ifaces, table[i])
		}
		g.CacheSuperInterfaces(table[sub], ifaces)
	}
	if _, err := d.r.ReadByte(); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, zerr.Wrap(fmt.Errorf("%w: %w", ErrCorruptFormat, err), "reading past end")
		}
		return nil, zerr.Wrap(ErrCorruptFormat, "trailing data")
	}
	return g, nil
}

type decoder struct {
	r *bufio.Reader
}

func (d *decoder) byte(what string) (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, truncated(err, what)
	}
	return b, nil
}

// sectionEnd consumes a section terminator if one is next.
func (d *decoder) sectionEnd(what string) (bool, error) {
	b, err := d.byte(what)
	if err != nil {
		return false, err
	}
	if b == sep1 {
		return true, nil
	}
	return false, d.r.UnreadByte()
}

func (d *decoder) until(sep byte, what string) ([]byte, error) {
	line, err := d.r.ReadBytes(sep)
	if err != nil {
		return nil, truncated(err, what)
	}
	return line[:len(line)-1], nil
}

func (d *decoder) index(sep byte, n int, what string) (int, error) {
	raw, err := d.until(sep, what)
	if err != nil {
		return 0, err
	}
	i, err := d.decimal(raw, false, what)
	if err != nil {
		return 0, err
	}
	if i >= n {
		return 0, zerr.With(zerr.Wrap(ErrCorruptFormat, "type index out of range"), "index", i)
	}
	return i, nil
}

// decimal parses an unsigned decimal, or a signed one when signed is set.
func (d *decoder) decimal(raw []byte, signed bool, what string) (int, error) {
	digits := raw
	if signed && len(digits) > 0 && digits[0] == '-' {
		digits = digits[1:]
	}
	if len(digits) == 0 || bytes.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, zerr.With(zerr.Wrap(ErrCorruptFormat, "malformed decimal in "+what), "value", string(raw))
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, zerr.With(zerr.Wrap(ErrCorruptFormat, "malformed decimal in "+what), "value", string(raw))
	}
	return v, nil
}

func (d *decoder) identifier(what string, raw []byte) error {
	if bytes.ContainsAny(raw, separators) {
		return zerr.With(zerr.Wrap(ErrCorruptFormat, what+" contains a reserved separator"), "value", string(raw))
	}
	return nil
}

func truncated(err error, what string) error {
	if errors.Is(err, io.EOF) {
		return zerr.With(zerr.Wrap(ErrCorruptFormat, "unexpected end of stream"), "reading", what)
	}
	return zerr.Wrap(err, "read "+what)
}

const separators = "\n,>\r"

func checkIdentifier(what, s string) error {
	if bytes.ContainsAny([]byte(s), separators) {
		return zerr.With(zerr.Wrap(ErrInvalidIdentifier, what), "value", s)
	}
	return nil
}

func byHandle(a, b TypeRef) int { return cmp.Compare(a.Handle(), b.Handle()) }
