// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type fieldKind int

const (
	kindInt fieldKind = iota
	kindUint
	kindFloat
	kindComplex
	kindString
	kindChar
)

// formatField is one conversion of a row format string. A complex field
// is a float conversion followed by a signed float conversion and a
// literal "j", as in "%g%+gj".
type formatField struct {
	spec      string // the C conversion as written, e.g. "%5.2lf"
	goVerb    string // equivalent fmt verb, e.g. "%5.2f"
	verb      byte
	width     int
	kind      fieldKind
	precision int
	imag      *formatField
}

type formatToken struct {
	literal string
	field   *formatField
}

// RowFormat is a parsed printf-style row format string.
type RowFormat struct {
	source string
	tokens []formatToken
	fields []*formatField
}

// ParseFormat parses a C printf format string such as "%d\t%5.2f\n".
// Supported conversions are d, i, u, o, x, X, f, F, e, E, g, G, s and c
// with flags, width, precision and the hh, h, l, ll, L, q, j, z and t
// length modifiers.
func ParseFormat(format string) (*RowFormat, error) {
	rf := &RowFormat{source: format}
	var lit strings.Builder
	flushLiteral := func() {
		if lit.Len() > 0 {
			rf.tokens = append(rf.tokens, formatToken{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(format); {
		c := format[i]
		if c != '%' {
			lit.WriteByte(c)
			i++
			continue
		}
		if i+1 < len(format) && format[i+1] == '%' {
			lit.WriteByte('%')
			i += 2
			continue
		}
		f, n, err := parseConversion(format[i:])
		if err != nil {
			return nil, err
		}
		flushLiteral()
		rf.tokens = append(rf.tokens, formatToken{field: f})
		i += n
	}
	flushLiteral()

	rf.mergeComplex()
	for _, tok := range rf.tokens {
		if tok.field != nil {
			rf.fields = append(rf.fields, tok.field)
		}
	}
	if len(rf.fields) == 0 {
		return nil, newError(ValueError, "format %q has no conversions", format)
	}
	return rf, nil
}

func parseConversion(s string) (*formatField, int, error) {
	i := 1
	var flags strings.Builder
	for i < len(s) && strings.IndexByte("-+ #0", s[i]) >= 0 {
		flags.WriteByte(s[i])
		i++
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	width := s[start:i]
	prec := ""
	if i < len(s) && s[i] == '.' {
		start = i
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		prec = s[start:i]
	}
	start = i
	for i < len(s) && strings.IndexByte("hlLqjzt", s[i]) >= 0 {
		i++
	}
	length := s[start:i]
	if i >= len(s) {
		return nil, 0, newError(ValueError, "format conversion %q is incomplete", s)
	}
	verb := s[i]
	i++

	f := &formatField{spec: s[:i], verb: verb}
	if width != "" {
		f.width, _ = strconv.Atoi(width)
	}
	goVerb := verb
	switch verb {
	case 'd', 'i':
		f.kind, f.precision, goVerb = kindInt, intWidth(length), 'd'
	case 'u':
		f.kind, f.precision, goVerb = kindUint, intWidth(length), 'd'
	case 'o', 'x', 'X':
		f.kind, f.precision = kindUint, intWidth(length)
	case 'f', 'F':
		f.kind, f.precision, goVerb = kindFloat, 64, 'f'
	case 'e', 'E', 'g', 'G':
		f.kind, f.precision = kindFloat, 64
	case 's':
		f.kind = kindString
	case 'c':
		f.kind = kindChar
	default:
		return nil, 0, newError(ValueError, "unsupported format conversion %q", s[:i])
	}
	f.goVerb = "%" + flags.String() + width + prec + string(goVerb)
	return f, i, nil
}

func intWidth(length string) int {
	switch length {
	case "hh":
		return 8
	case "h":
		return 16
	case "l", "ll", "q", "j", "z", "t", "L":
		return 64
	default:
		return 32
	}
}

func (rf *RowFormat) mergeComplex() {
	var out []formatToken
	toks := rf.tokens
	for i := 0; i < len(toks); i++ {
		re := toks[i].field
		if re != nil && re.kind == kindFloat && i+2 < len(toks) {
			im := toks[i+1].field
			suffix := toks[i+2].literal
			if im != nil && im.kind == kindFloat && strings.Contains(im.goVerb, "+") && strings.HasPrefix(suffix, "j") {
				re.kind = kindComplex
				re.precision = 128
				re.imag = im
				re.spec += im.spec + "j"
				out = append(out, formatToken{field: re})
				if rest := suffix[1:]; rest != "" {
					out = append(out, formatToken{literal: rest})
				}
				i += 2
				continue
			}
		}
		out = append(out, toks[i])
	}
	rf.tokens = out
}

// String returns the source format string.
func (rf *RowFormat) String() string { return rf.source }

// NumFields returns the number of values in one row.
func (rf *RowFormat) NumFields() int { return len(rf.fields) }

// Items returns one definition per field, as used for the items property
// of table definitions.
func (rf *RowFormat) Items() []any {
	items := make([]any, len(rf.fields))
	for i, f := range rf.fields {
		items[i] = f.definition()
	}
	return items
}

func (f *formatField) definition() Definition {
	switch f.kind {
	case kindInt:
		return Definition{PropType: TypeInt, PropPrecision: f.precision}
	case kindUint:
		return Definition{PropType: TypeUint, PropPrecision: f.precision}
	case kindFloat:
		return Definition{PropType: TypeFloat, PropPrecision: 64}
	case kindComplex:
		return Definition{PropType: TypeComplex, PropPrecision: 128}
	default:
		return Definition{PropType: TypeUnicode}
	}
}

// checkItems verifies that declared items agree with the conversions.
func (rf *RowFormat) checkItems(r *Registry, items any) error {
	list, ok := items.([]any)
	if !ok {
		if items == nil {
			return nil
		}
		return newError(RuntimeError, "table items must be a list, got %T", items)
	}
	if len(list) != len(rf.fields) {
		return newError(RuntimeError, "format %q has %d fields, definition has %d items",
			rf.source, len(rf.fields), len(list))
	}
	for i, it := range list {
		d, ok := asDefinition(it)
		if !ok {
			return newError(RuntimeError, "item %d definition is %T", i, it)
		}
		n := r.normalize(d)
		got, _ := n[PropSubtype].(string)
		want := r.normalize(rf.fields[i].definition())[PropSubtype].(string)
		if got == TypeBytes {
			got = TypeUnicode
		}
		if n.Type() != TypeScalar || got != want {
			return newError(RuntimeError, "format field %d (%s) does not match item type %s",
				i, rf.fields[i].spec, d.String())
		}
	}
	return nil
}

// Render formats one row. Values are converted to the field kinds; a
// value that cannot be converted is a RuntimeError.
func (rf *RowFormat) Render(row []any) (string, error) {
	if len(row) != len(rf.fields) {
		return "", newError(RuntimeError, "format %q has %d fields, row has %d values",
			rf.source, len(rf.fields), len(row))
	}
	var b strings.Builder
	fi := 0
	for _, tok := range rf.tokens {
		if tok.field == nil {
			b.WriteString(tok.literal)
			continue
		}
		if err := tok.field.render(&b, row[fi]); err != nil {
			return "", fmt.Errorf("field %d: %w", fi, err)
		}
		fi++
	}
	return b.String(), nil
}

func (f *formatField) render(b *strings.Builder, v any) error {
	switch f.kind {
	case kindInt:
		n, ok := toInt64(v)
		if !ok {
			return newError(RuntimeError, "%s cannot render %T", f.spec, v)
		}
		fmt.Fprintf(b, f.goVerb, n)
	case kindUint:
		n, ok := toUint64(v)
		if !ok {
			return newError(RuntimeError, "%s cannot render %v (%T)", f.spec, v, v)
		}
		fmt.Fprintf(b, f.goVerb, n)
	case kindFloat:
		x, ok := toFloat64(v)
		if !ok {
			return newError(RuntimeError, "%s cannot render %T", f.spec, v)
		}
		fmt.Fprintf(b, f.goVerb, x)
	case kindComplex:
		z, ok := toComplex128(v)
		if !ok {
			return newError(RuntimeError, "%s cannot render %T", f.spec, v)
		}
		fmt.Fprintf(b, f.goVerb, real(z))
		fmt.Fprintf(b, f.imag.goVerb, imag(z))
		b.WriteByte('j')
	case kindString, kindChar:
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case []byte:
			s = string(x)
		default:
			return newError(RuntimeError, "%s cannot render %T", f.spec, v)
		}
		if f.kind == kindChar && utf8.RuneCountInString(s) != 1 {
			return newError(RuntimeError, "%s needs a single character, got %q", f.spec, s)
		}
		if f.kind == kindString && s == "" {
			return newError(RuntimeError, "%s cannot render an empty string", f.spec)
		}
		if f.kind == kindString && strings.IndexFunc(s, unicode.IsSpace) >= 0 {
			return newError(RuntimeError, "%s cannot render %q: whitespace would not scan back", f.spec, s)
		}
		if f.kind == kindChar {
			fmt.Fprintf(b, f.goVerb, []rune(s)[0])
		} else {
			fmt.Fprintf(b, f.goVerb, s)
		}
	}
	return nil
}

// Scan parses one row from the start of s and returns the values and the
// number of bytes consumed. Whitespace in the format matches any run of
// whitespace in the input, including none.
func (rf *RowFormat) Scan(s string) ([]any, int, error) {
	sc := &rowScanner{s: s}
	row := make([]any, 0, len(rf.fields))
	for _, tok := range rf.tokens {
		if tok.field == nil {
			if err := sc.literal(tok.literal); err != nil {
				return nil, 0, err
			}
			continue
		}
		v, err := sc.field(tok.field)
		if err != nil {
			return nil, 0, err
		}
		row = append(row, v)
	}
	return row, sc.pos, nil
}

type rowScanner struct {
	s   string
	pos int
}

func (sc *rowScanner) skipSpace() {
	for sc.pos < len(sc.s) {
		r, size := utf8.DecodeRuneInString(sc.s[sc.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		sc.pos += size
	}
}

func (sc *rowScanner) literal(lit string) error {
	for _, want := range lit {
		if unicode.IsSpace(want) {
			sc.skipSpace()
			continue
		}
		got, size := utf8.DecodeRuneInString(sc.s[sc.pos:])
		if sc.pos >= len(sc.s) || got != want {
			return newError(ValueError, "row does not match format: expected %q at offset %d", want, sc.pos)
		}
		sc.pos += size
	}
	return nil
}

func (sc *rowScanner) take(accept func(i int, c byte) bool) string {
	start := sc.pos
	for sc.pos < len(sc.s) && accept(sc.pos-start, sc.s[sc.pos]) {
		sc.pos++
	}
	return sc.s[start:sc.pos]
}

func (sc *rowScanner) integer(base int) string {
	sc.skipSpace()
	start := sc.pos
	if sc.pos < len(sc.s) && (sc.s[sc.pos] == '-' || sc.s[sc.pos] == '+') {
		sc.pos++
	}
	if base == 16 && strings.HasPrefix(strings.ToLower(sc.s[sc.pos:]), "0x") {
		sc.pos += 2
	}
	sc.take(func(_ int, c byte) bool {
		switch base {
		case 8:
			return c >= '0' && c <= '7'
		case 16:
			return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
		default:
			return c >= '0' && c <= '9'
		}
	})
	return sc.s[start:sc.pos]
}

func (sc *rowScanner) float() string {
	sc.skipSpace()
	start := sc.pos
	if sc.pos < len(sc.s) && (sc.s[sc.pos] == '-' || sc.s[sc.pos] == '+') {
		sc.pos++
	}
	rest := strings.ToLower(sc.s[sc.pos:])
	for _, word := range []string{"infinity", "inf", "nan"} {
		if strings.HasPrefix(rest, word) {
			sc.pos += len(word)
			return sc.s[start:sc.pos]
		}
	}
	sc.take(func(_ int, c byte) bool { return c >= '0' && c <= '9' })
	if sc.pos < len(sc.s) && sc.s[sc.pos] == '.' {
		sc.pos++
		sc.take(func(_ int, c byte) bool { return c >= '0' && c <= '9' })
	}
	if sc.pos < len(sc.s) && (sc.s[sc.pos] == 'e' || sc.s[sc.pos] == 'E') {
		mark := sc.pos
		sc.pos++
		if sc.pos < len(sc.s) && (sc.s[sc.pos] == '-' || sc.s[sc.pos] == '+') {
			sc.pos++
		}
		if digits := sc.take(func(_ int, c byte) bool { return c >= '0' && c <= '9' }); digits == "" {
			sc.pos = mark
		}
	}
	return sc.s[start:sc.pos]
}

func (sc *rowScanner) field(f *formatField) (any, error) {
	switch f.kind {
	case kindInt:
		tok := sc.integer(10)
		n, err := strconv.ParseInt(tok, 10, f.precision)
		if err != nil {
			return nil, newError(ValueError, "%s cannot scan %q", f.spec, tok)
		}
		return signedOf(uint64(n), f.precision), nil
	case kindUint:
		base := 10
		switch f.verb {
		case 'o':
			base = 8
		case 'x', 'X':
			base = 16
		}
		tok := sc.integer(base)
		digits := strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(tok, "+"), "0x"), "0X")
		n, err := strconv.ParseUint(digits, base, f.precision)
		if err != nil {
			return nil, newError(ValueError, "%s cannot scan %q", f.spec, tok)
		}
		return unsignedOf(n, f.precision), nil
	case kindFloat:
		tok := sc.float()
		x, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, newError(ValueError, "%s cannot scan %q", f.spec, tok)
		}
		return x, nil
	case kindComplex:
		reTok := sc.float()
		imTok := sc.float()
		re, err1 := strconv.ParseFloat(reTok, 64)
		im, err2 := strconv.ParseFloat(imTok, 64)
		if err1 != nil || err2 != nil || sc.pos >= len(sc.s) || sc.s[sc.pos] != 'j' {
			return nil, newError(ValueError, "%s cannot scan %q", f.spec, reTok+imTok)
		}
		sc.pos++
		return complex(re, im), nil
	case kindChar:
		if sc.pos >= len(sc.s) {
			return nil, newError(ValueError, "%s: unexpected end of row", f.spec)
		}
		r, size := utf8.DecodeRuneInString(sc.s[sc.pos:])
		sc.pos += size
		return string(r), nil
	default:
		sc.skipSpace()
		tok := sc.take(func(_ int, c byte) bool { return c != ' ' && c != '\t' && c != '\n' && c != '\r' && c != '\v' && c != '\f' })
		if tok == "" {
			return nil, newError(ValueError, "%s: unexpected end of row", f.spec)
		}
		return tok, nil
	}
}

// ScanRow parses a single row of text with the given format string.
func ScanRow(format, line string) ([]any, error) {
	rf, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	row, _, err := rf.Scan(line)
	return row, err
}
