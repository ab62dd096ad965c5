package memory

import (
	"encoding/json"
	"strconv"
	"strings"
)

// lookupPath resolves a dotted path against a document. Traversal
// through an array fans out over its elements, so "friends.username"
// against a document with an array of friend objects yields the slice
// of usernames.
func lookupPath(doc map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	return lookupSegments(doc, segments)
}

func lookupSegments(value any, segments []string) (any, bool) {
	if len(segments) == 0 {
		return value, true
	}

	switch v := value.(type) {
	case map[string]any:
		child, ok := v[segments[0]]
		if !ok {
			return nil, false
		}
		return lookupSegments(child, segments[1:])
	case []any:
		// Fan out over array elements; the path matched if it
		// resolved in at least one element.
		var out []any
		found := false
		for _, elem := range v {
			if child, ok := lookupSegments(elem, segments); ok {
				found = true
				if arr, isArr := child.([]any); isArr {
					out = append(out, arr...)
				} else {
					out = append(out, child)
				}
			}
		}
		return out, found
	default:
		return nil, false
	}
}

// setPath sets a value at a dotted path, creating intermediate
// documents as needed.
func setPath(doc map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	current := doc
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// toFloat64 converts a value to float64 for cross-type numeric
// comparison.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// compareValues orders two values for sorting: nil first, then
// numbers, then strings, then booleans, everything else equal.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	aNum, aOk := toFloat64(a)
	bNum, bOk := toFloat64(b)
	if aOk && bOk {
		switch {
		case aNum < bNum:
			return -1
		case aNum > bNum:
			return 1
		default:
			return 0
		}
	}
	if aOk {
		return -1
	}
	if bOk {
		return 1
	}

	aStr, aIsStr := a.(string)
	bStr, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return strings.Compare(aStr, bStr)
	}
	if aIsStr {
		return -1
	}
	if bIsStr {
		return 1
	}

	aBool, aIsBool := a.(bool)
	bBool, bIsBool := b.(bool)
	if aIsBool && bIsBool {
		switch {
		case aBool == bBool:
			return 0
		case bBool:
			return -1
		default:
			return 1
		}
	}

	return 0
}

// canonicalKey renders a value as a typed, ordered string key for the
// btree index structures.
func canonicalKey(v any) (string, bool) {
	if num, ok := toFloat64(v); ok {
		return "n:" + strconv.FormatFloat(num, 'f', 6, 64), true
	}
	switch val := v.(type) {
	case string:
		return "s:" + val, true
	case bool:
		return "b:" + strconv.FormatBool(val), true
	default:
		return "", false
	}
}
