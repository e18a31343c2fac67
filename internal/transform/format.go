package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"
)

var (
	ErrMissingKey = errors.New("missing key")
	ErrBadFormat  = errors.New("malformed format string")
)

// [[fill]align][sign][0][width][,][.precision][type]
var specPattern = regexp.MustCompile(`^(?:(.)?([<>^=]))?([+\- ])?(0)?(\d+)?(,)?(?:\.(\d+))?([bcdeEfFgGnosxX%])?$`)

// Format renders a brace template such as "{device}: {payload}" against
// data. Fields support attribute paths ({payload.Time} or {payload[Time]}),
// the conversions !s, !r and !j (JSON), and a format spec after ":".
// A literal "\n" sequence in the output becomes a newline.
func Format(tmpl string, data map[string]any) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed '{' at %d", ErrBadFormat, i)
			}
			field := tmpl[i+1 : i+1+end]
			s, err := renderField(field, data)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single '}' at %d", ErrBadFormat, i)
		default:
			b.WriteByte(c)
		}
	}
	return strings.ReplaceAll(b.String(), `\n`, "\n"), nil
}

func renderField(field string, data map[string]any) (string, error) {
	name, conv, spec := field, "", ""
	if idx := strings.IndexAny(field, "!:"); idx >= 0 {
		name = field[:idx]
		rest := field[idx:]
		if rest[0] == '!' {
			conv = rest[1:]
			if c := strings.IndexByte(conv, ':'); c >= 0 {
				spec = conv[c+1:]
				conv = conv[:c]
			}
		} else {
			spec = rest[1:]
		}
	}
	if name == "" {
		return "", fmt.Errorf("%w: positional fields are not supported", ErrBadFormat)
	}

	v, err := lookup(name, data)
	if err != nil {
		return "", err
	}

	switch conv {
	case "":
	case "s":
		v = str(v)
	case "r":
		v = repr(v)
	case "j":
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("cannot serialise %s: %w", name, err)
		}
		v = string(raw)
	default:
		return "", fmt.Errorf("%w: unknown conversion !%s", ErrBadFormat, conv)
	}

	if spec == "" {
		return str(v), nil
	}
	return applySpec(v, spec)
}

// lookup resolves a.b and a[b] paths inside nested mappings and lists.
func lookup(path string, data map[string]any) (any, error) {
	keys := splitPath(path)
	var cur any = data
	for _, k := range keys {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[k]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrMissingKey, path)
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(k)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("%w: %s", ErrMissingKey, path)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("%w: %s", ErrMissingKey, path)
		}
	}
	return cur, nil
}

func splitPath(path string) []string {
	var keys []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			keys = append(keys, cur.String())
			cur.Reset()
		}
	}
	for _, r := range path {
		switch r {
		case '.', '[':
			flush()
		case ']':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return keys
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		if t {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case map[string]any, []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	default:
		return fmt.Sprint(t)
	}
}

func repr(v any) string {
	if s, ok := v.(string); ok {
		return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
	}
	return str(v)
}

func applySpec(v any, spec string) (string, error) {
	m := specPattern.FindStringSubmatch(spec)
	if m == nil {
		return "", fmt.Errorf("%w: invalid format spec %q", ErrBadFormat, spec)
	}
	fill, align, sign, zero, width, comma, prec, typ := m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8]

	var (
		body    string
		numeric = true
		err     error
	)

	switch typ {
	case "d", "n":
		var n int64
		if n, err = cast.ToInt64E(v); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		body = strconv.FormatInt(abs64(n), 10)
		if comma != "" {
			body = groupThousands(body)
		}
		body = signed(n < 0, sign, body)
	case "b", "o", "x", "X":
		var n int64
		if n, err = cast.ToInt64E(v); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		base := map[string]int{"b": 2, "o": 8, "x": 16, "X": 16}[typ]
		body = strconv.FormatInt(abs64(n), base)
		if typ == "X" {
			body = strings.ToUpper(body)
		}
		body = signed(n < 0, sign, body)
	case "c":
		var n int64
		if n, err = cast.ToInt64E(v); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		body = string(rune(n))
		numeric = false
	case "e", "E", "f", "F", "g", "G", "%":
		var f float64
		if f, err = cast.ToFloat64E(v); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		p := 6
		if prec != "" {
			p, _ = strconv.Atoi(prec)
		}
		neg := math.Signbit(f)
		f = math.Abs(f)
		switch typ {
		case "%":
			body = strconv.FormatFloat(f*100, 'f', p, 64) + "%"
		case "F":
			body = strings.ToUpper(strconv.FormatFloat(f, 'f', p, 64))
		default:
			body = strconv.FormatFloat(f, typ[0], p, 64)
		}
		if comma != "" {
			intPart, frac, _ := strings.Cut(body, ".")
			body = groupThousands(intPart)
			if frac != "" {
				body += "." + frac
			}
		}
		body = signed(neg, sign, body)
	default:
		if f, ok := asFloat(v); ok && typ == "" && prec != "" {
			p, _ := strconv.Atoi(prec)
			body = signed(math.Signbit(f), sign, strconv.FormatFloat(math.Abs(f), 'g', p, 64))
			break
		}
		numeric = isNumber(v)
		body = str(v)
		if prec != "" && !numeric {
			p, _ := strconv.Atoi(prec)
			if utf8.RuneCountInString(body) > p {
				body = string([]rune(body)[:p])
			}
		}
	}

	w, _ := strconv.Atoi(width)
	if zero != "" && align == "" {
		fill, align = "0", "="
	}
	if fill == "" {
		fill = " "
	}
	if align == "" {
		align = "<"
		if numeric {
			align = ">"
		}
	}
	return pad(body, fill, align, w), nil
}

func pad(body, fill, align string, width int) string {
	n := width - utf8.RuneCountInString(body)
	if n <= 0 {
		return body
	}
	switch align {
	case ">":
		return strings.Repeat(fill, n) + body
	case "^":
		left := n / 2
		return strings.Repeat(fill, left) + body + strings.Repeat(fill, n-left)
	case "=":
		if len(body) > 0 && (body[0] == '-' || body[0] == '+' || body[0] == ' ') {
			return body[:1] + strings.Repeat(fill, n) + body[1:]
		}
		return strings.Repeat(fill, n) + body
	default:
		return body + strings.Repeat(fill, n)
	}
}

func signed(neg bool, sign, body string) string {
	switch {
	case neg:
		return "-" + body
	case sign == "+":
		return "+" + body
	case sign == " ":
		return " " + body
	}
	return body
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	pre := len(digits) % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
	}
	for i := pre; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func asFloat(v any) (float64, bool) {
	if !isNumber(v) {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}
