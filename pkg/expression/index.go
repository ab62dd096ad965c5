package expression

import (
	"encoding/json"
	"reflect"
)

// SortOrder is the direction of a regular index.
type SortOrder int

const (
	Ascending  SortOrder = 1
	Descending SortOrder = -1
)

// IndexType selects how a field is indexed when plain sort-order
// indexing is not enough.
type IndexType string

const (
	IndexTypeText     IndexType = "text"
	IndexTypeHashed   IndexType = "hashed"
	IndexType2D       IndexType = "2d"
	IndexType2DSphere IndexType = "2dsphere"
)

// CollationStrength is the comparison sensitivity of a collation,
// from base characters only up to full code-point comparison.
type CollationStrength int

const (
	// CollationPrimary compares base characters only ("a" == "A", "é" == "e")
	CollationPrimary CollationStrength = 1
	// CollationSecondary is accent-sensitive but case-insensitive
	CollationSecondary CollationStrength = 2
	// CollationTertiary is case- and accent-sensitive
	CollationTertiary CollationStrength = 3
	// CollationQuaternary also considers punctuation
	CollationQuaternary CollationStrength = 4
	// CollationIdentical compares everything down to code points
	CollationIdentical CollationStrength = 5
)

// Description returns a human-readable explanation of the strength.
func (s CollationStrength) Description() string {
	switch s {
	case CollationPrimary:
		return "Base characters only (case-insensitive, accent-insensitive)"
	case CollationSecondary:
		return "Accent-sensitive, case-insensitive"
	case CollationTertiary:
		return "Case- and accent-sensitive (default)"
	case CollationQuaternary:
		return "Includes case, accent, and punctuation"
	case CollationIdentical:
		return "Full Unicode comparison, includes code points"
	default:
		return "Unknown collation strength"
	}
}

// IndexExpression describes one field's participation in an index:
// its type or sort order plus the optional modifiers LauraDB accepts
// at index creation. Expressions with identical configuration compare
// equal and share a key, so duplicate declarations collapse in a set.
type IndexExpression struct {
	fieldName          string
	indexType          IndexType
	sortOrder          SortOrder
	expireAfterSeconds *float64
	sparse             *bool
	unique             *bool
	hidden             *bool
	collationLocale    string
	collationStrength  *CollationStrength
	partialExpression  *FilterExpression
	indexName          string
}

// FieldName returns the indexed field's path.
func (e *IndexExpression) FieldName() string { return e.fieldName }

// Serialize returns the index key mapping: {field: type} when an index
// type is set, otherwise {field: sort order}. The two representations
// are mutually exclusive.
func (e *IndexExpression) Serialize() map[string]any {
	if e.indexType != "" {
		return map[string]any{e.fieldName: string(e.indexType)}
	}
	return map[string]any{e.fieldName: int(e.sortOrder)}
}

// BuildOptions assembles the non-default index modifiers. TTL seconds
// are dropped for TEXT and HASHED indexes, which are not time-based.
func (e *IndexExpression) BuildOptions() map[string]any {
	options := make(map[string]any)

	if e.indexName != "" {
		options["name"] = e.indexName
	}

	if e.expireAfterSeconds != nil {
		if e.indexType != IndexTypeText && e.indexType != IndexTypeHashed {
			options["expireAfterSeconds"] = *e.expireAfterSeconds
		}
	}

	if e.sparse != nil {
		options["sparse"] = *e.sparse
	}
	if e.unique != nil {
		options["unique"] = *e.unique
	}
	if e.hidden != nil {
		options["hidden"] = *e.hidden
	}

	if e.collationStrength != nil || e.collationLocale != "" {
		collation := map[string]any{"locale": e.collationLocale}
		if e.collationStrength != nil {
			collation["strength"] = int(*e.collationStrength)
		}
		options["collation"] = collation
	}

	if e.partialExpression != nil {
		options["partialFilterExpression"] = e.partialExpression.Serialize()
	}

	return options
}

// Equal reports whether two index expressions serialize identically.
func (e *IndexExpression) Equal(other *IndexExpression) bool {
	if other == nil {
		return false
	}
	return reflect.DeepEqual(e.Serialize(), other.Serialize()) &&
		reflect.DeepEqual(e.BuildOptions(), other.BuildOptions())
}

// Key returns a canonical string of the full serialized state, usable
// as a map key for deduplication. Equal expressions share a key.
func (e *IndexExpression) Key() string {
	payload := struct {
		Keys    map[string]any `json:"keys"`
		Options map[string]any `json:"options"`
	}{Keys: e.Serialize(), Options: e.BuildOptions()}

	data, err := json.Marshal(payload)
	if err != nil {
		// Serialized state is built from plain maps and scalars and
		// always marshals; an error here means a corrupted expression.
		panic("expression: failed to build index key: " + err.Error())
	}
	return string(data)
}

// IndexExpressionBuilder assembles an IndexExpression fluently. All
// setters return the builder for chaining.
type IndexExpressionBuilder struct {
	expr IndexExpression
}

// NewIndexBuilder creates an index builder for a field path with the
// default ascending sort order and locale.
func NewIndexBuilder(fieldName string) *IndexExpressionBuilder {
	return &IndexExpressionBuilder{
		expr: IndexExpression{
			fieldName:       fieldName,
			sortOrder:       Ascending,
			collationLocale: "en",
		},
	}
}

// UseSortOrder sets the index sort order.
func (b *IndexExpressionBuilder) UseSortOrder(order SortOrder) *IndexExpressionBuilder {
	b.expr.sortOrder = order
	return b
}

// UseIndexType sets the index type.
func (b *IndexExpressionBuilder) UseIndexType(indexType IndexType) *IndexExpressionBuilder {
	b.expr.indexType = indexType
	return b
}

// UseCollation sets the collation locale and strength.
func (b *IndexExpressionBuilder) UseCollation(locale string, strength CollationStrength) *IndexExpressionBuilder {
	b.expr.collationLocale = locale
	b.expr.collationStrength = &strength
	return b
}

// UsePartialExpression attaches a partial filter expression; only
// documents matching it are indexed.
func (b *IndexExpressionBuilder) UsePartialExpression(filter *FilterExpression) *IndexExpressionBuilder {
	b.expr.partialExpression = filter
	return b
}

// UseIndexName sets a custom index name.
func (b *IndexExpressionBuilder) UseIndexName(name string) *IndexExpressionBuilder {
	b.expr.indexName = name
	return b
}

// UseSparse marks the index sparse.
func (b *IndexExpressionBuilder) UseSparse(sparse ...bool) *IndexExpressionBuilder {
	b.expr.sparse = optionalBool(sparse)
	return b
}

// UseUnique marks the index unique.
func (b *IndexExpressionBuilder) UseUnique(unique ...bool) *IndexExpressionBuilder {
	b.expr.unique = optionalBool(unique)
	return b
}

// UseHidden hides the index from the query planner.
func (b *IndexExpressionBuilder) UseHidden(hidden ...bool) *IndexExpressionBuilder {
	b.expr.hidden = optionalBool(hidden)
	return b
}

// UseTTL sets the number of seconds after which indexed documents
// expire. Ignored at build time for TEXT and HASHED indexes.
func (b *IndexExpressionBuilder) UseTTL(seconds float64) *IndexExpressionBuilder {
	b.expr.expireAfterSeconds = &seconds
	return b
}

// Build produces the immutable index expression.
func (b *IndexExpressionBuilder) Build() *IndexExpression {
	expr := b.expr
	return &expr
}

func optionalBool(values []bool) *bool {
	v := true
	if len(values) > 0 {
		v = values[0]
	}
	return &v
}
