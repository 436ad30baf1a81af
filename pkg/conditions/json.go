package conditions

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strings"

	"github.com/gowebpki/jcs"
)

// ConditionFromJSON builds a condition tree from its JSON object form.
// An object carrying "fingerprint" is read as a bare commitment (Anon)
// of the named kind.
func ConditionFromJSON(v any) (Condition, error) {
	return conditionFromJSON(v, 0)
}

func conditionFromJSON(v any, depth int) (Condition, error) {
	if depth > maxDepth {
		return nil, validationError("condition nested deeper than %d", maxDepth)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, validationError("Condition params must be an object")
	}
	name, ok := obj["type"].(string)
	if !ok {
		return nil, validationError("\"type\" must be a string")
	}
	t, err := LookupName(name)
	if err != nil {
		return nil, validationError("cannot detect type of condition")
	}
	if _, ok := obj["fingerprint"]; ok {
		return anonFromJSON(t, obj)
	}
	return t.fromJSON(obj, depth)
}

// ConditionFromJSONString parses JSON text into a condition tree.
func ConditionFromJSONString(data []byte) (Condition, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, validationError("invalid JSON: %v", err)
	}
	return ConditionFromJSON(v)
}

// ConditionToJSON returns {"type": kind, ...kind fields}.
func ConditionToJSON(c Condition) map[string]any {
	obj := map[string]any{"type": c.Type().Name}
	c.toJSON(obj)
	return obj
}

// ConditionToJSONString renders ConditionToJSON as RFC 8785 canonical JSON,
// so equal trees always produce equal text.
func ConditionToJSONString(c Condition) (string, error) {
	out, err := json.Marshal(ConditionToJSON(c))
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(out)
	if err != nil {
		return "", err
	}
	return string(canonical), nil
}

// ConditionToPublishableJSON returns the forms of c that may be shared without
// revealing a fulfillment: its URI and base64 binary.
func ConditionToPublishableJSON(c Condition) map[string]any {
	return map[string]any{
		"uri": URI(c),
		"bin": EncodeBase64(EncodeCondition(c)),
	}
}

// EncodeBase64 is the encoding of binary fields in JSON forms: URL
// alphabet, no padding.
func EncodeBase64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeBase64 accepts standard and URL alphabets, padded or not.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if strings.ContainsAny(s, "+/") {
		return base64.RawStdEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}

func jsonBase64(obj map[string]any, key string) ([]byte, error) {
	s, ok := obj[key].(string)
	if !ok {
		return nil, validationError("%q must be a string", key)
	}
	b, err := DecodeBase64(s)
	if err != nil {
		return nil, validationError("%q must be valid base64", key)
	}
	return b, nil
}

// jsonUint reads a non-negative integer no greater than max. Numbers from
// encoding/json arrive as float64 or json.Number; in-process objects may
// carry Go integers.
func jsonUint(obj map[string]any, key string, max uint64) (uint64, error) {
	bad := validationError("%q must be an integer between 0 and %d", key, max)
	var n uint64
	switch v := obj[key].(type) {
	case float64:
		if v < 0 || v != math.Trunc(v) || v > float64(max) {
			return 0, bad
		}
		n = uint64(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil || i < 0 {
			return 0, bad
		}
		n = uint64(i)
	case int:
		if v < 0 {
			return 0, bad
		}
		n = uint64(v)
	case int64:
		if v < 0 {
			return 0, bad
		}
		n = uint64(v)
	case uint16:
		n = uint64(v)
	case uint32:
		n = uint64(v)
	case uint64:
		n = v
	case nil:
		return 0, validationError("%q is required", key)
	default:
		return 0, bad
	}
	if n > max {
		return 0, bad
	}
	return n, nil
}

func jsonStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
