package graph

// Value is the tagged union C3 config entries store: exactly one field is
// meaningful, selected by Kind. Modeled as a struct rather than
// interface{} so ConfigNode round-trips through JSON without a custom
// unmarshaler guessing numeric types.
type Value struct {
	Kind ValueKind `json:"kind"`

	Str  string            `json:"str,omitempty"`
	Int  int64             `json:"int,omitempty"`
	Flt  float64           `json:"flt,omitempty"`
	Bool bool              `json:"bool,omitempty"`
	List []string          `json:"list,omitempty"`
	Dict map[string]string `json:"dict,omitempty"`
}

type ValueKind string

const (
	KindString ValueKind = "string"
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindBool   ValueKind = "bool"
	KindList   ValueKind = "list"
	KindDict   ValueKind = "dict"
)

func StringValue(s string) Value             { return Value{Kind: KindString, Str: s} }
func IntValue(i int64) Value                 { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value             { return Value{Kind: KindFloat, Flt: f} }
func BoolValue(b bool) Value                 { return Value{Kind: KindBool, Bool: b} }
func ListValue(l []string) Value             { return Value{Kind: KindList, List: l} }
func DictValue(d map[string]string) Value    { return Value{Kind: KindDict, Dict: d} }

// Equal compares two Values by kind and payload, used by the config
// service to detect the no-op-on-identical-value case.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == other.Str
	case KindInt:
		return v.Int == other.Int
	case KindFloat:
		return v.Flt == other.Flt
	case KindBool:
		return v.Bool == other.Bool
	case KindList:
		return stringSlicesEqual(v.List, other.List)
	case KindDict:
		return stringMapsEqual(v.Dict, other.Dict)
	default:
		return false
	}
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringMapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// toAttr converts a Value to the plain-map form stored in a Node's
// Attributes, so it serializes the same as any other attribute.
func (v Value) toAttr() map[string]interface{} {
	m := map[string]interface{}{"kind": string(v.Kind)}
	switch v.Kind {
	case KindString:
		m["str"] = v.Str
	case KindInt:
		m["int"] = v.Int
	case KindFloat:
		m["flt"] = v.Flt
	case KindBool:
		m["bool"] = v.Bool
	case KindList:
		m["list"] = v.List
	case KindDict:
		m["dict"] = v.Dict
	}
	return m
}

func valueFromAttr(raw interface{}) Value {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return Value{}
	}
	kind := ValueKind(getString(m, "kind"))
	switch kind {
	case KindString:
		return StringValue(getString(m, "str"))
	case KindInt:
		switch n := m["int"].(type) {
		case int64:
			return IntValue(n)
		case float64:
			return IntValue(int64(n))
		}
		return Value{Kind: KindInt}
	case KindFloat:
		f, _ := m["flt"].(float64)
		return FloatValue(f)
	case KindBool:
		b, _ := m["bool"].(bool)
		return BoolValue(b)
	case KindList:
		return ListValue(getStringSlice(m, "list"))
	case KindDict:
		dict := make(map[string]string)
		if raw, ok := m["dict"].(map[string]interface{}); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					dict[k] = s
				}
			}
		}
		return DictValue(dict)
	default:
		return Value{}
	}
}
