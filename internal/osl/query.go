package osl

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedBytecode = errors.New("osl: malformed bytecode")

// Param is one declared shader parameter.
type Param struct {
	Name string `msgpack:"name"`
	// Type is the declared base type: "float", "color", "closure color",
	// "struct Name" and so on, without array brackets.
	Type        string `msgpack:"type"`
	IsOutput    bool   `msgpack:"out,omitempty"`
	IsClosure   bool   `msgpack:"closure,omitempty"`
	IsStruct    bool   `msgpack:"struct,omitempty"`
	VarLenArray bool   `msgpack:"varlen,omitempty"`
	// ArrayLen is 0 for scalars.
	ArrayLen     int       `msgpack:"arraylen,omitempty"`
	ValidDefault bool      `msgpack:"valid,omitempty"`
	Floats       []float32 `msgpack:"f,omitempty"`
	Ints         []int32   `msgpack:"i,omitempty"`
	Strings      []string  `msgpack:"s,omitempty"`
}

// Query is the interface of a compiled shader program as declared in its
// bytecode header.
type Query struct {
	ShaderType string  `msgpack:"type"`
	ShaderName string  `msgpack:"name"`
	Params     []Param `msgpack:"params"`
	// Skipped holds parameter lines that could not be parsed.
	Skipped []string `msgpack:"skipped,omitempty"`
}

var shaderTypes = map[string]bool{
	"surface": true, "displacement": true, "volume": true, "shader": true, "light": true,
}

// ParseQuery reads the parameter declarations of textual shader bytecode.
// Parsing stops at the first code section.
func ParseQuery(src string) (*Query, error) {
	sc := bufio.NewScanner(strings.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	q := &Query{}
	sawHeader := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch {
		case !sawHeader:
			if fields[0] != "OpenShadingLanguage" {
				return nil, fmt.Errorf("%w: missing header", ErrMalformedBytecode)
			}
			sawHeader = true
		case shaderTypes[fields[0]] && q.ShaderType == "":
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: shader declaration without name", ErrMalformedBytecode)
			}
			q.ShaderType, q.ShaderName = fields[0], fields[1]
		case fields[0] == "param" || fields[0] == "oparam":
			p, err := parseParam(fields)
			if err != nil {
				q.Skipped = append(q.Skipped, line)
				continue
			}
			q.Params = append(q.Params, p)
		case fields[0] == "code":
			return q.checked()
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return q.checked()
}

func (q *Query) checked() (*Query, error) {
	if q.ShaderType == "" {
		return nil, fmt.Errorf("%w: no shader declaration", ErrMalformedBytecode)
	}
	return q, nil
}

// Param finds a parameter by name.
func (q *Query) Param(name string) (Param, bool) {
	for _, p := range q.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

func parseParam(fields []string) (Param, error) {
	p := Param{IsOutput: fields[0] == "oparam"}
	rest := fields[1:]
	if len(rest) < 2 {
		return p, fmt.Errorf("%w: short parameter", ErrMalformedBytecode)
	}
	typ := rest[0]
	rest = rest[1:]
	switch typ {
	case "closure":
		p.IsClosure = true
		typ += " " + rest[0]
		rest = rest[1:]
	case "struct":
		p.IsStruct = true
		typ += " " + rest[0]
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return p, fmt.Errorf("%w: parameter without name", ErrMalformedBytecode)
	}
	if i := strings.IndexByte(typ, '['); i >= 0 {
		dim := strings.TrimSuffix(typ[i+1:], "]")
		typ = typ[:i]
		if dim == "" {
			p.VarLenArray = true
			p.ArrayLen = -1
		} else {
			n, err := strconv.Atoi(dim)
			if err != nil || n <= 0 {
				return p, fmt.Errorf("%w: bad array length %q", ErrMalformedBytecode, dim)
			}
			p.ArrayLen = n
		}
	}
	p.Type = typ
	p.Name = rest[0]

	var values []string
	for _, tok := range joinQuoted(rest[1:]) {
		if strings.HasPrefix(tok, "%") {
			break
		}
		values = append(values, tok)
	}
	if len(values) == 0 || p.IsClosure || p.IsStruct {
		return p, nil
	}
	switch typ {
	case "int":
		for _, v := range values {
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return p, fmt.Errorf("%w: int default %q", ErrMalformedBytecode, v)
			}
			p.Ints = append(p.Ints, int32(n))
		}
	case "string":
		for _, v := range values {
			s, err := strconv.Unquote(v)
			if err != nil {
				return p, fmt.Errorf("%w: string default %s", ErrMalformedBytecode, v)
			}
			p.Strings = append(p.Strings, s)
		}
	default:
		for _, v := range values {
			f, err := strconv.ParseFloat(v, 32)
			if err != nil {
				return p, fmt.Errorf("%w: float default %q", ErrMalformedBytecode, v)
			}
			p.Floats = append(p.Floats, float32(f))
		}
	}
	p.ValidDefault = true
	return p, nil
}

// joinQuoted reassembles string literals split on whitespace.
func joinQuoted(toks []string) []string {
	var out []string
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		if strings.HasPrefix(tok, `"`) {
			for !closedQuote(tok) && i+1 < len(toks) {
				i++
				tok += " " + toks[i]
			}
		}
		out = append(out, tok)
	}
	return out
}

func closedQuote(s string) bool {
	return len(s) >= 2 && strings.HasSuffix(s, `"`) && !strings.HasSuffix(s, `\"`)
}
