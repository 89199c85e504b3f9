package podium

import (
	"encoding/json"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// WireLayout is the layout Podium uses for timestamps on the wire (UTC, no zone suffix)
const WireLayout = "2006-01-02 15:04:05"

// wireTimestamp matches the API's timestamp strings. Month, day and hour may
// arrive without zero padding; minutes and seconds always have two digits.
var wireTimestamp = regexp.MustCompile(`^(\d{4})-(0?[1-9]|1[0-2])-(0?[1-9]|[12]\d|3[0-1]) ([0-1]?\d|2[0-3]):([0-5]\d):([0-5]\d)$`)

// direction selects which leaves a conversion pass rewrites
type direction int

const (
	toNative direction = iota
	toWire
)

// ToNative walks a decoded JSON payload and replaces every wire timestamp
// string with the matching UTC time.Time. Non-container input is returned as
// is. The input is never modified; containers are rebuilt.
func ToNative(payload any) any {
	if !isContainer(payload) {
		return payload
	}
	return convert(payload, toNative)
}

// ToWire is the inverse of ToNative: every time.Time leaf is formatted with
// WireLayout in UTC. Structs are turned into maps keyed by their json tags so
// their time fields are formatted too; types with their own MarshalJSON are
// left to it. Non-container input is returned as is.
func ToWire(payload any) any {
	if !isContainer(payload) {
		return payload
	}
	return convert(payload, toWire)
}

// ParseWireTime parses a wire timestamp. The second return value is false when
// s does not match the wire pattern or names a day the month does not have.
func ParseWireTime(s string) (time.Time, bool) {
	m := wireTimestamp.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	fields := make([]int, 6)
	for i := range fields {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return time.Time{}, false
		}
		fields[i] = n
	}

	t := time.Date(fields[0], time.Month(fields[1]), fields[2], fields[3], fields[4], fields[5], 0, time.UTC)
	// time.Date normalizes Feb 30 into March; treat that as not a timestamp
	if t.Month() != time.Month(fields[1]) || t.Day() != fields[2] {
		return time.Time{}, false
	}
	return t, true
}

// FormatWireTime renders t in the canonical zero-padded wire form
func FormatWireTime(t time.Time) string {
	return t.UTC().Format(WireLayout)
}

// isContainer reports whether v is something the codec walks into.
// time.Time is a struct and must never be treated as one.
func isContainer(v any) bool {
	switch v.(type) {
	case nil, time.Time, *time.Time:
		return false
	case map[string]any, []any:
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		return rv.Type().Key().Kind() == reflect.String
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	case reflect.Struct, reflect.Pointer:
		return isPlainStruct(rv)
	}
	return false
}

var jsonMarshaler = reflect.TypeOf((*json.Marshaler)(nil)).Elem()

// isPlainStruct reports whether rv is a struct, or a non-nil pointer to one,
// that encoding/json would encode field by field
func isPlainStruct(rv reflect.Value) bool {
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return false
	}
	t := rv.Type()
	return !t.Implements(jsonMarshaler) && !reflect.PointerTo(t).Implements(jsonMarshaler)
}

func convert(v any, dir direction) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		if dir == toWire {
			return FormatWireTime(val)
		}
		return val
	case *time.Time:
		if dir == toWire && val != nil {
			return FormatWireTime(*val)
		}
		return val
	case string:
		if dir == toNative {
			if t, ok := ParseWireTime(val); ok {
				return t
			}
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = convert(child, dir)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = convert(child, dir)
		}
		return out
	}

	if !isContainer(v) {
		return v
	}
	return convertReflect(reflect.ValueOf(v), dir)
}

// convertReflect handles typed maps, slices and structs (map[string]string,
// []time.Time, ...). The result is always the generic JSON shape. Structs are
// only rewritten on the way out.
func convertReflect(rv reflect.Value, dir direction) any {
	switch rv.Kind() {
	case reflect.Pointer:
		if dir == toNative {
			return rv.Interface()
		}
		return convertReflect(rv.Elem(), dir)
	case reflect.Struct:
		if dir == toNative {
			return rv.Interface()
		}
		return structFields(rv, dir)
	case reflect.Map:
		if rv.IsNil() {
			return map[string]any(nil)
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = convert(iface(iter.Value()), dir)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any(nil)
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = convert(iface(rv.Index(i)), dir)
		}
		return out
	}
	return rv.Interface()
}

// structFields flattens a struct the way encoding/json would name it: json
// tag names, "-" skipped, omitempty/omitzero honoured, embedded structs
// promoted unless a direct field has the same name.
func structFields(rv reflect.Value, dir direction) map[string]any {
	out := make(map[string]any, rv.NumField())
	promoted := map[string]any{}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		fv := rv.Field(i)

		name, opts, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "-" && opts == "" {
			continue
		}

		// unexported embedded structs are skipped: their fields cannot be read
		if sf.Anonymous && name == "" && sf.IsExported() {
			inner := fv
			for inner.Kind() == reflect.Pointer && !inner.IsNil() {
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct && isPlainStruct(inner) {
				for k, v := range structFields(inner, dir) {
					promoted[k] = v
				}
				continue
			}
			if inner.Kind() == reflect.Pointer {
				// nil embedded pointer contributes nothing
				continue
			}
		}

		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if hasTagOption(opts, "omitempty") && isEmptyValue(fv) {
			continue
		}
		if hasTagOption(opts, "omitzero") && fv.IsZero() {
			continue
		}

		out[name] = convert(iface(fv), dir)
	}

	for k, v := range promoted {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

func hasTagOption(opts, option string) bool {
	for opts != "" {
		var o string
		o, opts, _ = strings.Cut(opts, ",")
		if o == option {
			return true
		}
	}
	return false
}

// isEmptyValue mirrors encoding/json's omitempty rule
func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Interface, reflect.Pointer:
		return v.IsZero()
	}
	return false
}

func iface(v reflect.Value) any {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}
