package memory

import (
	"fmt"
)

// applyUpdate applies an update document ({operator: {path: value}})
// to a document in place. The operator vocabulary is the DSL's fixed
// set: $set $inc $mul $push $pop $pull $addToSet.
func applyUpdate(doc map[string]any, update map[string]any) error {
	for operator, value := range update {
		fields, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%s requires an object of field updates", operator)
		}

		switch operator {
		case "$set":
			for path, v := range fields {
				setPath(doc, path, v)
			}
		case "$inc":
			for path, v := range fields {
				delta, ok := toFloat64(v)
				if !ok {
					return fmt.Errorf("$inc requires a numeric value for %s", path)
				}
				current := 0.0
				if cur, exists := lookupPath(doc, path); exists {
					if num, ok := toFloat64(cur); ok {
						current = num
					}
				}
				setPath(doc, path, current+delta)
			}
		case "$mul":
			for path, v := range fields {
				factor, ok := toFloat64(v)
				if !ok {
					return fmt.Errorf("$mul requires a numeric value for %s", path)
				}
				// A missing field multiplies to zero.
				current := 0.0
				if cur, exists := lookupPath(doc, path); exists {
					if num, ok := toFloat64(cur); ok {
						current = num
					}
				}
				setPath(doc, path, current*factor)
			}
		case "$push":
			for path, v := range fields {
				arr := currentArray(doc, path)
				setPath(doc, path, append(arr, v))
			}
		case "$pop":
			for path, v := range fields {
				direction, ok := toFloat64(v)
				if !ok {
					return fmt.Errorf("$pop requires 1 or -1 for %s", path)
				}
				arr := currentArray(doc, path)
				if len(arr) == 0 {
					continue
				}
				if direction < 0 {
					setPath(doc, path, arr[1:])
				} else {
					setPath(doc, path, arr[:len(arr)-1])
				}
			}
		case "$pull":
			for path, v := range fields {
				arr := currentArray(doc, path)
				kept := make([]any, 0, len(arr))
				for _, elem := range arr {
					if !valuesEqual(elem, v) {
						kept = append(kept, elem)
					}
				}
				setPath(doc, path, kept)
			}
		case "$addToSet":
			for path, v := range fields {
				arr := currentArray(doc, path)
				present := false
				for _, elem := range arr {
					if valuesEqual(elem, v) {
						present = true
						break
					}
				}
				if !present {
					arr = append(arr, v)
				}
				setPath(doc, path, arr)
			}
		default:
			return fmt.Errorf("unsupported update operator: %s", operator)
		}
	}
	return nil
}

func currentArray(doc map[string]any, path string) []any {
	if cur, exists := lookupPath(doc, path); exists {
		if arr, ok := cur.([]any); ok {
			return arr
		}
	}
	return nil
}
