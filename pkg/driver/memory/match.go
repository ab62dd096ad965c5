package memory

import (
	"fmt"
	"reflect"
	"strings"
)

// matchDocument evaluates a filter against a document. The supported
// vocabulary is the fixed operator set of the expression DSL:
// $eq $ne $gt $gte $lt $lte $in $nin $all $and $or $not $expr $size.
func matchDocument(doc map[string]any, filter map[string]any) (bool, error) {
	for key, value := range filter {
		switch key {
		case "$and":
			ok, err := matchAll(doc, value)
			if err != nil || !ok {
				return false, err
			}
		case "$or":
			ok, err := matchAny(doc, value)
			if err != nil || !ok {
				return false, err
			}
		case "$not":
			inner, ok := value.(map[string]any)
			if !ok {
				return false, fmt.Errorf("$not requires a filter object")
			}
			matched, err := matchDocument(doc, inner)
			if err != nil {
				return false, err
			}
			if matched {
				return false, nil
			}
		case "$expr":
			ok, err := evaluateExpr(doc, value)
			if err != nil || !ok {
				return false, err
			}
		default:
			ok, err := matchField(doc, key, value)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

func matchField(doc map[string]any, path string, condition any) (bool, error) {
	fieldValue, exists := lookupPath(doc, path)

	if operators, ok := operatorMap(condition); ok {
		for op, operand := range operators {
			matched, err := evaluateOperator(op, fieldValue, exists, operand)
			if err != nil {
				return false, err
			}
			if !matched {
				return false, nil
			}
		}
		return true, nil
	}

	// Direct equality
	if !exists {
		return false, nil
	}
	return equalOrContains(fieldValue, condition), nil
}

// operatorMap reports whether a condition is an operator expression
// (every key starts with "$").
func operatorMap(condition any) (map[string]any, bool) {
	m, ok := condition.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for key := range m {
		if !strings.HasPrefix(key, "$") {
			return nil, false
		}
	}
	return m, true
}

func evaluateOperator(op string, fieldValue any, exists bool, operand any) (bool, error) {
	switch op {
	case "$eq":
		return exists && equalOrContains(fieldValue, operand), nil
	case "$ne":
		return !exists || !equalOrContains(fieldValue, operand), nil
	case "$gt":
		return exists && compareAny(fieldValue, operand, func(c int) bool { return c > 0 }), nil
	case "$gte":
		return exists && compareAny(fieldValue, operand, func(c int) bool { return c >= 0 }), nil
	case "$lt":
		return exists && compareAny(fieldValue, operand, func(c int) bool { return c < 0 }), nil
	case "$lte":
		return exists && compareAny(fieldValue, operand, func(c int) bool { return c <= 0 }), nil
	case "$in":
		return exists && evaluateIn(fieldValue, operand), nil
	case "$nin":
		return !exists || !evaluateIn(fieldValue, operand), nil
	case "$all":
		return exists && evaluateAllOf(fieldValue, operand), nil
	case "$size":
		return exists && evaluateSize(fieldValue, operand), nil
	case "$not":
		inner, ok := operand.(map[string]any)
		if !ok {
			return false, fmt.Errorf("$not requires an operator object")
		}
		for innerOp, innerOperand := range inner {
			matched, err := evaluateOperator(innerOp, fieldValue, exists, innerOperand)
			if err != nil {
				return false, err
			}
			if matched {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("unsupported operator: %s", op)
	}
}

// equalOrContains reports whether the field value equals the operand,
// or, for array field values, whether any element does.
func equalOrContains(fieldValue, operand any) bool {
	if valuesEqual(fieldValue, operand) {
		return true
	}
	if arr, ok := fieldValue.([]any); ok {
		for _, elem := range arr {
			if valuesEqual(elem, operand) {
				return true
			}
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	aNum, aOk := toFloat64(a)
	bNum, bOk := toFloat64(b)
	if aOk && bOk {
		return aNum == bNum
	}
	aArr, aIsArr := a.([]any)
	bArr, bIsArr := b.([]any)
	if aIsArr && bIsArr {
		if len(aArr) != len(bArr) {
			return false
		}
		for i := range aArr {
			if !valuesEqual(aArr[i], bArr[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// compareAny applies an ordering predicate to the field value, or to
// any element of an array field value.
func compareAny(fieldValue, operand any, pred func(int) bool) bool {
	if arr, ok := fieldValue.([]any); ok {
		for _, elem := range arr {
			if comparable2(elem, operand) && pred(compareValues(elem, operand)) {
				return true
			}
		}
		return false
	}
	return comparable2(fieldValue, operand) && pred(compareValues(fieldValue, operand))
}

// comparable2 reports whether two values share an ordered domain
// (both numeric or both strings).
func comparable2(a, b any) bool {
	_, aNum := toFloat64(a)
	_, bNum := toFloat64(b)
	if aNum && bNum {
		return true
	}
	_, aStr := a.(string)
	_, bStr := b.(string)
	return aStr && bStr
}

func evaluateIn(fieldValue, operand any) bool {
	list, ok := asList(operand)
	if !ok {
		// A scalar operand behaves like a single-element list, which
		// is what the DSL's Contains produces for scalar values.
		list = []any{operand}
	}
	for _, candidate := range list {
		if equalOrContains(fieldValue, candidate) {
			return true
		}
	}
	return false
}

func evaluateAllOf(fieldValue, operand any) bool {
	required, ok := asList(operand)
	if !ok {
		return false
	}
	arr, ok := fieldValue.([]any)
	if !ok {
		return false
	}
	for _, want := range required {
		found := false
		for _, elem := range arr {
			if valuesEqual(elem, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func evaluateSize(fieldValue, operand any) bool {
	arr, ok := fieldValue.([]any)
	if !ok {
		return false
	}
	want, ok := toFloat64(operand)
	if !ok {
		return false
	}
	return float64(len(arr)) == want
}

// evaluateExpr evaluates an aggregation expression of the form
// {op: [operandA, operandB]} where operands are literals, "$path"
// references, or {"$size": "$path"}.
func evaluateExpr(doc map[string]any, expr any) (bool, error) {
	exprMap, ok := expr.(map[string]any)
	if !ok {
		return false, fmt.Errorf("$expr requires an expression object")
	}

	for op, operands := range exprMap {
		pair, ok := asList(operands)
		if !ok || len(pair) != 2 {
			return false, fmt.Errorf("%s inside $expr requires two operands", op)
		}

		left, err := resolveOperand(doc, pair[0])
		if err != nil {
			return false, err
		}
		right, err := resolveOperand(doc, pair[1])
		if err != nil {
			return false, err
		}

		var matched bool
		switch op {
		case "$eq":
			matched = valuesEqual(left, right)
		case "$ne":
			matched = !valuesEqual(left, right)
		case "$gt":
			matched = comparable2(left, right) && compareValues(left, right) > 0
		case "$gte":
			matched = comparable2(left, right) && compareValues(left, right) >= 0
		case "$lt":
			matched = comparable2(left, right) && compareValues(left, right) < 0
		case "$lte":
			matched = comparable2(left, right) && compareValues(left, right) <= 0
		default:
			return false, fmt.Errorf("unsupported operator inside $expr: %s", op)
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

func resolveOperand(doc map[string]any, operand any) (any, error) {
	switch v := operand.(type) {
	case string:
		if strings.HasPrefix(v, "$") {
			value, _ := lookupPath(doc, strings.TrimPrefix(v, "$"))
			return value, nil
		}
		return v, nil
	case map[string]any:
		if ref, ok := v["$size"]; ok {
			path, ok := ref.(string)
			if !ok || !strings.HasPrefix(path, "$") {
				return nil, fmt.Errorf("$size requires a field reference")
			}
			value, exists := lookupPath(doc, strings.TrimPrefix(path, "$"))
			if !exists {
				return nil, nil
			}
			arr, ok := value.([]any)
			if !ok {
				return nil, nil
			}
			return len(arr), nil
		}
		return nil, fmt.Errorf("unsupported expression operand: %v", v)
	default:
		return operand, nil
	}
}

func matchAll(doc map[string]any, value any) (bool, error) {
	conditions, ok := asFilterList(value)
	if !ok {
		return false, fmt.Errorf("$and requires an array of conditions")
	}
	for _, condition := range conditions {
		matched, err := matchDocument(doc, condition)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

func matchAny(doc map[string]any, value any) (bool, error) {
	conditions, ok := asFilterList(value)
	if !ok {
		return false, fmt.Errorf("$or requires an array of conditions")
	}
	for _, condition := range conditions {
		matched, err := matchDocument(doc, condition)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

func asList(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(val))
		for i, m := range val {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}

func asFilterList(v any) ([]map[string]any, bool) {
	switch val := v.(type) {
	case []map[string]any:
		return val, true
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, elem := range val {
			m, ok := elem.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	default:
		return nil, false
	}
}
