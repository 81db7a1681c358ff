package cloud

import (
	"reflect"
	"strings"
	"time"
	"unicode"
)

// AttributeMapper is implemented by SDK records that know their own
// attribute-map form.
type AttributeMapper interface {
	ToMap() map[string]any
}

// ToMap converts an opaque record into an attribute map. It accepts
// attribute maps as-is, honors AttributeMapper, and falls back to
// reflecting exported struct fields into snake_case keys. The second
// return is false for primitives and other non-record values.
func ToMap(obj any) (map[string]any, bool) {
	switch v := obj.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return v, true
	case AttributeMapper:
		return v.ToMap(), true
	}

	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	if _, ok := rv.Interface().(time.Time); ok {
		return nil, false
	}

	rt := rv.Type()
	out := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("json")
		if comma := strings.IndexByte(key, ','); comma >= 0 {
			key = key[:comma]
		}
		if key == "-" {
			continue
		}
		if key == "" {
			key = snakeCase(f.Name)
		}
		out[key] = rv.Field(i).Interface()
	}
	return out, true
}

// snakeCase converts an exported Go field name into the attribute-map key
// convention (DisplayName → display_name, OCID → ocid).
func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			lowerNext := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (lowerNext || !unicode.IsUpper(runes[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
