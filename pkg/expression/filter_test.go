package expression

import (
	"reflect"
	"testing"
)

type testUser struct {
	Username string       `json:"username"`
	Age      int          `json:"age"`
	Hometown testCity     `json:"hometown"`
	Friends  []testFriend `json:"friends"`
	Tags     []string     `json:"tags"`
}

type testCity struct {
	Name    string   `json:"name"`
	Country testLand `json:"country"`
}

type testLand struct {
	Code string `json:"code"`
}

type testFriend struct {
	Username string `json:"username"`
	Age      int    `json:"age"`
}

func userField(t *testing.T, path string) *FieldExpression {
	t.Helper()
	return NewField(path, fieldType(t, path))
}

func fieldType(t *testing.T, path string) reflect.Type {
	t.Helper()
	switch path {
	case "username":
		return reflect.TypeOf("")
	case "age":
		return reflect.TypeOf(0)
	case "tags":
		return reflect.TypeOf([]string{})
	case "friends":
		return reflect.TypeOf([]testFriend{})
	case "hometown":
		return reflect.TypeOf(testCity{})
	default:
		t.Fatalf("unknown test path %s", path)
		return nil
	}
}

func TestFilter_Comparison(t *testing.T) {
	f := userField(t, "age").Gt(18)

	want := map[string]any{"age": map[string]any{"$gt": 18}}
	if !reflect.DeepEqual(f.Serialize(), want) {
		t.Errorf("expected %v, got %v", want, f.Serialize())
	}
}

func TestFilter_AllComparisonOperators(t *testing.T) {
	age := userField(t, "age")

	tests := []struct {
		filter *FilterExpression
		op     string
	}{
		{age.Eq(5), "$eq"},
		{age.Ne(5), "$ne"},
		{age.Gt(5), "$gt"},
		{age.Gte(5), "$gte"},
		{age.Lt(5), "$lt"},
		{age.Lte(5), "$lte"},
	}

	for _, tt := range tests {
		cond, ok := tt.filter.Serialize()["age"].(map[string]any)
		if !ok {
			t.Fatalf("expected condition map for %s", tt.op)
		}
		if cond[tt.op] != 5 {
			t.Errorf("expected {%s: 5}, got %v", tt.op, cond)
		}
	}
}

func TestFilter_And(t *testing.T) {
	a := userField(t, "age").Gt(18)
	b := userField(t, "username").Eq("sam")

	combined := a.And(b)

	want := map[string]any{
		"$and": []any{
			map[string]any{"age": map[string]any{"$gt": 18}},
			map[string]any{"username": map[string]any{"$eq": "sam"}},
		},
	}
	if !reflect.DeepEqual(combined.Serialize(), want) {
		t.Errorf("expected %v, got %v", want, combined.Serialize())
	}
}

func TestFilter_Or(t *testing.T) {
	a := userField(t, "age").Lt(13)
	b := userField(t, "age").Gt(65)

	combined := a.Or(b)

	serialized := combined.Serialize()
	clauses, ok := serialized["$or"].([]any)
	if !ok || len(clauses) != 2 {
		t.Fatalf("expected 2-clause $or, got %v", serialized)
	}
}

func TestFilter_Not(t *testing.T) {
	f := userField(t, "username").Eq("sam").Not()

	want := map[string]any{
		"$not": map[string]any{"username": map[string]any{"$eq": "sam"}},
	}
	if !reflect.DeepEqual(f.Serialize(), want) {
		t.Errorf("expected %v, got %v", want, f.Serialize())
	}
}

func TestFilter_CombinatorsDoNotMutateOperands(t *testing.T) {
	a := userField(t, "age").Gt(18)
	b := userField(t, "username").Eq("sam")

	beforeA := len(a.Serialize())
	beforeB := len(b.Serialize())

	_ = a.And(b)
	_ = a.Or(b)
	_ = a.Not()

	if len(a.Serialize()) != beforeA || len(b.Serialize()) != beforeB {
		t.Error("combinators mutated their operands")
	}

	if _, ok := a.Serialize()["$and"]; ok {
		t.Error("And leaked into operand")
	}
}

func TestFilter_RepeatedCombinationIdempotent(t *testing.T) {
	a := userField(t, "age").Gt(18)
	b := userField(t, "username").Eq("sam")

	first := a.And(b).Serialize()
	second := a.And(b).Serialize()

	if !reflect.DeepEqual(first, second) {
		t.Error("repeated And produced different results")
	}
}

func TestFilter_NestedCombination(t *testing.T) {
	adult := userField(t, "age").Gte(18)
	named := userField(t, "username").Eq("sam")
	local := userField(t, "username").Eq("kim")

	f := adult.And(named.Or(local))

	serialized := f.Serialize()
	and, ok := serialized["$and"].([]any)
	if !ok || len(and) != 2 {
		t.Fatalf("expected $and with 2 clauses, got %v", serialized)
	}

	inner, ok := and[1].(map[string]any)
	if !ok {
		t.Fatalf("expected map clause, got %T", and[1])
	}
	if _, ok := inner["$or"]; !ok {
		t.Errorf("expected nested $or, got %v", inner)
	}
}

func TestFilter_EmptyMatchesAll(t *testing.T) {
	f := NewFilter()
	if len(f.Serialize()) != 0 {
		t.Errorf("expected empty expression, got %v", f.Serialize())
	}
}
