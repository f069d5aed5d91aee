// Package canonical serializes passport and anchor payloads as RFC 8785
// canonical JSON, so identical input state always hashes to the same content
// address.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Marshal encodes v deterministically: object keys sorted, numbers in ES6
// shortest form, no insignificant whitespace.
func Marshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encode(buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SHA256Hex returns the lowercase hex sha256 of the canonical encoding of v.
func SHA256Hex(v any) (string, []byte, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}

func encode(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case string:
		encodeString(buf, v)
	case json.Number:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return fmt.Errorf("invalid JSON number: %w", err)
		}
		return encodeFloat(buf, f)
	case float64:
		return encodeFloat(buf, v)
	case float32:
		return encodeFloat(buf, float64(v))
	case int:
		return encodeFloat(buf, float64(v))
	case int64:
		return encodeFloat(buf, float64(v))
	case map[string]any:
		return encodeObject(buf, v)
	case []any:
		return encodeArray(buf, v)
	case []string:
		arr := make([]any, len(v))
		for i, s := range v {
			arr[i] = s
		}
		return encodeArray(buf, arr)
	case map[string]string:
		obj := make(map[string]any, len(v))
		for k, s := range v {
			obj[k] = s
		}
		return encodeObject(buf, obj)
	default:
		// Reduce structs and other composites through encoding/json first.
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var generic any
		if err := dec.Decode(&generic); err != nil {
			return err
		}
		return encode(buf, generic)
	}
	return nil
}

func encodeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		if err := encode(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

var hexLower = []byte("0123456789abcdef")

func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexLower[r>>4])
				buf.WriteByte(hexLower[r&0x0f])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// encodeFloat writes the ES6 "shortest round-trip" representation required
// by RFC 8785.
func encodeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New("non-finite number")
	}
	if f == 0 {
		buf.WriteString("0")
		return nil
	}
	sign := ""
	if f < 0 {
		sign = "-"
		f = math.Abs(f)
	}
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	parts := strings.SplitN(sci, "e", 2)
	exp, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("invalid float exponent: %w", err)
	}
	digits := strings.ReplaceAll(parts[0], ".", "")

	switch {
	case exp <= -7 || exp >= 21:
		expStr := strconv.Itoa(exp)
		if exp >= 0 {
			expStr = "+" + expStr
		}
		if len(digits) == 1 {
			buf.WriteString(sign + digits + "e" + expStr)
		} else {
			buf.WriteString(sign + digits[:1] + "." + digits[1:] + "e" + expStr)
		}
	default:
		point := exp + 1
		switch {
		case point >= len(digits):
			buf.WriteString(sign + digits + strings.Repeat("0", point-len(digits)))
		case point <= 0:
			buf.WriteString(sign + "0." + strings.Repeat("0", -point) + digits)
		default:
			buf.WriteString(sign + digits[:point] + "." + digits[point:])
		}
	}
	return nil
}
