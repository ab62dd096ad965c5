package schema

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

type city struct {
	Name    string `json:"name"`
	Country string `json:"country"`
}

type friend struct {
	Username string `json:"username"`
	Age      int    `json:"age"`
}

type user struct {
	Username string     `json:"username"`
	Age      *int       `json:"age"`
	Hometown city       `json:"hometown"`
	Friends  []friend   `json:"friends"`
	Tags     []string   `json:"tags"`
	Avatar   []byte     `json:"avatar"`
	Joined   time.Time  `bson:"joined_at" json:"joined"`
	Internal string     `json:"-"`
	Scores   [3]float64 `json:"scores"`
}

func TestResolve_StripsPointers(t *testing.T) {
	var p **string
	resolved := Resolve(reflect.TypeOf(p))
	if resolved.Kind() != reflect.String {
		t.Errorf("expected string, got %v", resolved.Kind())
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		want Kind
	}{
		{"string", reflect.TypeOf(""), KindScalar},
		{"int pointer", reflect.TypeOf((*int)(nil)), KindScalar},
		{"byte slice", reflect.TypeOf([]byte{}), KindScalar},
		{"string slice", reflect.TypeOf([]string{}), KindArray},
		{"fixed array", reflect.TypeOf([3]float64{}), KindArray},
		{"struct", reflect.TypeOf(city{}), KindObject},
		{"struct slice", reflect.TypeOf([]friend{}), KindArray},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.typ); got != tt.want {
				t.Errorf("KindOf(%v) = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestFieldByName(t *testing.T) {
	f, err := FieldByName(reflect.TypeOf(user{}), "username")
	if err != nil {
		t.Fatalf("FieldByName failed: %v", err)
	}

	if f.Name != "username" {
		t.Errorf("expected name 'username', got '%s'", f.Name)
	}
	if f.Kind != KindScalar {
		t.Errorf("expected scalar kind, got %v", f.Kind)
	}
}

func TestFieldByName_BsonTagWins(t *testing.T) {
	f, err := FieldByName(reflect.TypeOf(user{}), "joined_at")
	if err != nil {
		t.Fatalf("FieldByName failed: %v", err)
	}

	if f.Name != "joined_at" {
		t.Errorf("expected bson tag name, got '%s'", f.Name)
	}

	if _, err := FieldByName(reflect.TypeOf(user{}), "joined"); err == nil {
		t.Error("json tag should be shadowed by bson tag")
	}
}

func TestFieldByName_OptionalUnwrapped(t *testing.T) {
	f, err := FieldByName(reflect.TypeOf(user{}), "age")
	if err != nil {
		t.Fatalf("FieldByName failed: %v", err)
	}

	if f.Type.Kind() != reflect.Int {
		t.Errorf("expected *int resolved to int, got %v", f.Type.Kind())
	}
}

func TestFieldByName_Excluded(t *testing.T) {
	_, err := FieldByName(reflect.TypeOf(user{}), "-")
	if !errors.Is(err, ErrNoSuchField) {
		t.Errorf("expected ErrNoSuchField for excluded field, got %v", err)
	}
}

func TestFieldByName_Unknown(t *testing.T) {
	_, err := FieldByName(reflect.TypeOf(user{}), "nope")
	if !errors.Is(err, ErrNoSuchField) {
		t.Errorf("expected ErrNoSuchField, got %v", err)
	}
}

func TestFieldByPath_Nested(t *testing.T) {
	f, err := FieldByPath(reflect.TypeOf(user{}), "hometown.country")
	if err != nil {
		t.Fatalf("FieldByPath failed: %v", err)
	}

	if f.Name != "country" || f.Type.Kind() != reflect.String {
		t.Errorf("unexpected field: %+v", f)
	}
}

func TestFieldByPath_ThroughArray(t *testing.T) {
	f, err := FieldByPath(reflect.TypeOf(user{}), "friends.age")
	if err != nil {
		t.Fatalf("FieldByPath failed: %v", err)
	}

	if f.Type.Kind() != reflect.Int {
		t.Errorf("expected int through []friend, got %v", f.Type.Kind())
	}
}

func TestFieldByPath_ScalarDescent(t *testing.T) {
	_, err := FieldByPath(reflect.TypeOf(user{}), "username.x")
	if !errors.Is(err, ErrNotTraversable) {
		t.Errorf("expected ErrNotTraversable, got %v", err)
	}
}

func TestElementType(t *testing.T) {
	et := ElementType(reflect.TypeOf([]friend{}))
	if et == nil || et.Kind() != reflect.Struct {
		t.Errorf("expected friend struct element type, got %v", et)
	}

	if ElementType(reflect.TypeOf("")) != nil {
		t.Error("expected nil element type for scalar")
	}
}

type invoice struct{}

func (invoice) CollectionName() string { return "billing_invoices" }

func TestCollectionName_Derived(t *testing.T) {
	name := CollectionName(reflect.TypeOf(user{}), "")
	if name != "users" {
		t.Errorf("expected 'users', got '%s'", name)
	}
}

func TestCollectionName_AlreadyPlural(t *testing.T) {
	type messages struct{}
	name := CollectionName(reflect.TypeOf(messages{}), "")
	if name != "messages" {
		t.Errorf("expected 'messages', got '%s'", name)
	}
}

func TestCollectionName_Override(t *testing.T) {
	name := CollectionName(reflect.TypeOf(user{}), "members")
	if name != "members" {
		t.Errorf("expected override 'members', got '%s'", name)
	}
}

func TestCollectionName_Namer(t *testing.T) {
	name := CollectionName(reflect.TypeOf(invoice{}), "")
	if name != "billing_invoices" {
		t.Errorf("expected namer result, got '%s'", name)
	}
}

func TestCollectionName_Registry(t *testing.T) {
	type order struct{}
	SetCollectionName(order{}, "sales_orders")

	name := CollectionName(reflect.TypeOf(order{}), "")
	if name != "sales_orders" {
		t.Errorf("expected registered name, got '%s'", name)
	}
}
