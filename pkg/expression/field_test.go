package expression

import (
	"errors"
	"reflect"
	"testing"

	"github.com/mnohosten/laura-odm/pkg/schema"
)

func TestNewField_VariantFromType(t *testing.T) {
	if userField(t, "username").Kind() != KindScalar {
		t.Error("expected scalar variant for string field")
	}
	if userField(t, "tags").Kind() != KindArray {
		t.Error("expected array variant for slice field")
	}
	if userField(t, "hometown").Kind() != KindScalar {
		t.Error("expected scalar variant for object field")
	}
}

func TestField_Child_Nested(t *testing.T) {
	hometown := userField(t, "hometown")

	name, err := hometown.Child("name")
	if err != nil {
		t.Fatalf("Child failed: %v", err)
	}
	if name.Path() != "hometown.name" {
		t.Errorf("expected path 'hometown.name', got '%s'", name.Path())
	}

	country, err := hometown.Child("country")
	if err != nil {
		t.Fatalf("Child failed: %v", err)
	}
	code, err := country.Child("code")
	if err != nil {
		t.Fatalf("Child failed: %v", err)
	}

	f := code.Eq("CZ")
	want := map[string]any{
		"hometown.country.code": map[string]any{"$eq": "CZ"},
	}
	if !reflect.DeepEqual(f.Serialize(), want) {
		t.Errorf("expected %v, got %v", want, f.Serialize())
	}
}

func TestField_Child_ThroughArray(t *testing.T) {
	friends := userField(t, "friends")

	username, err := friends.Child("username")
	if err != nil {
		t.Fatalf("Child failed: %v", err)
	}
	if username.Path() != "friends.username" {
		t.Errorf("expected 'friends.username', got '%s'", username.Path())
	}
	if username.Kind() != KindScalar {
		t.Error("expected scalar variant for element field")
	}
}

func TestField_Child_Unknown(t *testing.T) {
	_, err := userField(t, "hometown").Child("zipcode")
	if !errors.Is(err, schema.ErrNoSuchField) {
		t.Errorf("expected ErrNoSuchField, got %v", err)
	}
}

func TestField_Child_ScalarElementArray(t *testing.T) {
	_, err := userField(t, "tags").Child("anything")
	if err == nil {
		t.Error("expected error descending into []string")
	}
}

func TestField_SizeComparison(t *testing.T) {
	f := userField(t, "tags").Size().Gte(3)

	want := map[string]any{
		"$expr": map[string]any{
			"$gte": []any{map[string]any{"$size": "$tags"}, 3},
		},
	}
	if !reflect.DeepEqual(f.Serialize(), want) {
		t.Errorf("expected %v, got %v", want, f.Serialize())
	}
}

func TestField_SizeOnScalarPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for Size on scalar field")
		}
	}()
	userField(t, "age").Size()
}

func TestField_ContainsOnScalarPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for Contains on scalar field")
		}
	}()
	userField(t, "username").Contains("x")
}

func TestField_Contains(t *testing.T) {
	f := userField(t, "tags").Contains("go")

	want := map[string]any{"tags": map[string]any{"$in": "go"}}
	if !reflect.DeepEqual(f.Serialize(), want) {
		t.Errorf("expected %v, got %v", want, f.Serialize())
	}
}

func TestField_ContainsList(t *testing.T) {
	f := userField(t, "tags").Contains([]string{"go", "db"})

	cond := f.Serialize()["tags"].(map[string]any)
	list, ok := cond["$in"].([]any)
	if !ok || len(list) != 2 {
		t.Errorf("expected normalized 2-element list, got %v", cond["$in"])
	}
}

func TestField_Excludes(t *testing.T) {
	f := userField(t, "tags").Excludes("spam")

	want := map[string]any{"tags": map[string]any{"$nin": "spam"}}
	if !reflect.DeepEqual(f.Serialize(), want) {
		t.Errorf("expected %v, got %v", want, f.Serialize())
	}
}

func TestField_MatchesUnordered(t *testing.T) {
	f := userField(t, "tags").Matches([]any{"go", "db"}, false)

	want := map[string]any{"tags": map[string]any{"$all": []any{"go", "db"}}}
	if !reflect.DeepEqual(f.Serialize(), want) {
		t.Errorf("expected %v, got %v", want, f.Serialize())
	}
}

func TestField_MatchesOrdered(t *testing.T) {
	f := userField(t, "tags").Matches([]any{"go", "db"}, true)

	want := map[string]any{"tags": []any{"go", "db"}}
	if !reflect.DeepEqual(f.Serialize(), want) {
		t.Errorf("expected %v, got %v", want, f.Serialize())
	}
}

func TestField_SortDirection(t *testing.T) {
	age := userField(t, "age")
	if !age.Ascending() {
		t.Error("expected ascending by default")
	}

	desc := age.Desc()
	if desc.Ascending() {
		t.Error("expected descending after Desc")
	}
	if !age.Ascending() {
		t.Error("Desc mutated the original expression")
	}

	if !desc.Asc().Ascending() {
		t.Error("expected ascending after Asc")
	}
}

func TestField_AsIndex_TextForStrings(t *testing.T) {
	idx := userField(t, "username").ToIndex()

	want := map[string]any{"username": string(IndexTypeText)}
	if !reflect.DeepEqual(idx.Serialize(), want) {
		t.Errorf("expected text index key, got %v", idx.Serialize())
	}
}

func TestField_AsIndex_OrderForNonStrings(t *testing.T) {
	idx := userField(t, "age").Desc().ToIndex()

	want := map[string]any{"age": int(Descending)}
	if !reflect.DeepEqual(idx.Serialize(), want) {
		t.Errorf("expected descending order key, got %v", idx.Serialize())
	}
}
