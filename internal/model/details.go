package model

import "strings"

// Details содержит данные, собранные по одной выбранной услуге.
// Набор полей зависит от раздела каталога; вложенные записи хранятся как Details
// или map[string]any.
type Details map[string]any

// Lookup возвращает значение по пути из ключей, разделённых точкой.
func (d Details) Lookup(path string) (any, bool) {
	var cur any = map[string]any(d)
	for _, key := range strings.Split(path, ".") {
		var (
			v  any
			ok bool
		)
		switch m := cur.(type) {
		case map[string]any:
			v, ok = m[key]
		case Details:
			v, ok = m[key]
		default:
			return nil, false
		}
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// String возвращает строковое значение поля или пустую строку.
func (d Details) String(path string) string {
	v, ok := d.Lookup(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Flag возвращает true, только если поле содержит булево true.
func (d Details) Flag(path string) bool {
	v, ok := d.Lookup(path)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Clone возвращает глубокую копию записи, включая вложенные объекты и списки.
func (d Details) Clone() Details {
	if d == nil {
		return nil
	}
	out := make(Details, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Details:
		return t.Clone()
	case map[string]any:
		if t == nil {
			return t
		}
		return map[string]any(Details(t).Clone())
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
