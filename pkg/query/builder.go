// Package query provides the expression builder handed to repository query functions.
//
// A Builder is scoped to one collection. Filters, ordering and paging accumulate on
// the builder; exactly one terminal (Get, First, Find, List, Count, Sum, Avg,
// Insert, Replace, DeleteByID, DeleteAll) selects what the executor returns.
// Drivers consume the finished Query, either interpreting it in memory (Match,
// Compare) or rendering it to SQL through a Dialect.
//
// Field names are validated as plain identifiers when the query is built; values
// are always passed as bound arguments.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// IDField is the document key holding an entity's identity
const IDField = "id"

// Operator represents comparison operators
type Operator string

const (
	Equal              Operator = "="
	NotEqual           Operator = "!="
	GreaterThan        Operator = ">"
	GreaterThanOrEqual Operator = ">="
	LessThan           Operator = "<"
	LessThanOrEqual    Operator = "<="
	Like               Operator = "LIKE"
	NotLike            Operator = "NOT LIKE"
	In                 Operator = "IN"
	NotIn              Operator = "NOT IN"
	IsNull             Operator = "IS NULL"
	IsNotNull          Operator = "IS NOT NULL"
	Between            Operator = "BETWEEN"
	NotBetween         Operator = "NOT BETWEEN"
)

// LogicalOperator for combining conditions
type LogicalOperator string

const (
	And LogicalOperator = "AND"
	Or  LogicalOperator = "OR"
)

// Op is the terminal operation of a query
type Op string

const (
	OpFind      Op = "find"       // stream of documents
	OpList      Op = "list"       // finite list of documents
	OpGet       Op = "get"        // single document by id
	OpFirst     Op = "first"      // single document, first in order
	OpCount     Op = "count"      // scalar cardinality
	OpSum       Op = "sum"        // scalar sum of a field
	OpAvg       Op = "avg"        // scalar average of a field
	OpInsert    Op = "insert"     // insert one document
	OpReplace   Op = "replace"    // replace one document by id
	OpDelete    Op = "delete"     // delete one document by id
	OpDeleteAll Op = "delete_all" // delete every matching document
)

// IsWrite reports whether the op modifies the collection
func (o Op) IsWrite() bool {
	switch o {
	case OpInsert, OpReplace, OpDelete, OpDeleteAll:
		return true
	}
	return false
}

// Durability levels accepted by Builder.Durability
const (
	DurabilityHard = "hard"
	DurabilitySoft = "soft"
)

// Sentinel errors for query construction
var (
	// ErrInvalidField is returned when a field name is not a plain identifier
	ErrInvalidField = errors.New("invalid field name")

	// ErrInvalidQuery is returned when a terminal is missing its arguments
	ErrInvalidQuery = errors.New("invalid query")
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidField reports whether name can be used as a document field in a query
func ValidField(name string) bool {
	return fieldPattern.MatchString(name)
}

// Condition represents a single field comparison
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// ConditionGroup represents grouped conditions with logical operators
type ConditionGroup struct {
	Conditions []interface{} // Condition or nested *ConditionGroup
	Operator   LogicalOperator
}

// Order is one ordering rule
type Order struct {
	Field string
	Desc  bool
}

// Filter is a set of field equality constraints
type Filter map[string]interface{}

// Query is a finished expression ready for a driver
type Query struct {
	Collection string
	Op         Op
	ID         string
	Document   map[string]interface{}
	Field      string // aggregate field for Sum/Avg
	Where      *ConditionGroup
	Orders     []Order
	Limit      int
	Offset     int
	Pluck      []string
	Durability string // per-query override, empty means adapter default
}

// HasWhere reports whether the query carries any filter
func (q *Query) HasWhere() bool {
	return q.Where != nil && len(q.Where.Conditions) > 0
}

// Builder accumulates a query against one collection
type Builder struct {
	collection string
	where      *ConditionGroup
	orders     []Order
	limit      int
	offset     int
	pluck      []string
	op         Op
	id         string
	doc        map[string]interface{}
	field      string
	durability string
}

// NewBuilder creates a builder scoped to collection
func NewBuilder(collection string) *Builder {
	return &Builder{
		collection: collection,
		where:      &ConditionGroup{Operator: And},
	}
}

// Collection returns the collection the builder is scoped to
func (b *Builder) Collection() string {
	return b.collection
}

// Where adds a condition
func (b *Builder) Where(field string, operator Operator, value interface{}) *Builder {
	b.where.Conditions = append(b.where.Conditions, Condition{
		Field:    field,
		Operator: operator,
		Value:    value,
	})
	return b
}

// Eq adds an equality condition
func (b *Builder) Eq(field string, value interface{}) *Builder {
	return b.Where(field, Equal, value)
}

// Match adds one equality condition per filter entry, in key order
func (b *Builder) Match(filter Filter) *Builder {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Eq(k, filter[k])
	}
	return b
}

// WhereGroup adds a grouped condition
func (b *Builder) WhereGroup(operator LogicalOperator, fn func(*ConditionGroup)) *Builder {
	group := &ConditionGroup{Operator: operator}
	fn(group)
	b.where.Conditions = append(b.where.Conditions, group)
	return b
}

// OrWhere adds an OR condition.
// Existing conditions are wrapped in an AND group under a new OR root.
func (b *Builder) OrWhere(field string, operator Operator, value interface{}) *Builder {
	if len(b.where.Conditions) == 0 {
		return b.Where(field, operator, value)
	}

	newCondition := Condition{
		Field:    field,
		Operator: operator,
		Value:    value,
	}

	if b.where.Operator == Or {
		b.where.Conditions = append(b.where.Conditions, newCondition)
		return b
	}

	existingGroup := &ConditionGroup{
		Conditions: b.where.Conditions,
		Operator:   And,
	}

	b.where = &ConditionGroup{
		Conditions: []interface{}{existingGroup, newCondition},
		Operator:   Or,
	}

	return b
}

// OrderBy adds an ordering rule
func (b *Builder) OrderBy(field string, desc bool) *Builder {
	b.orders = append(b.orders, Order{Field: field, Desc: desc})
	return b
}

// Asc orders ascending by field
func (b *Builder) Asc(field string) *Builder {
	return b.OrderBy(field, false)
}

// Desc orders descending by field
func (b *Builder) Desc(field string) *Builder {
	return b.OrderBy(field, true)
}

// Limit sets the maximum number of documents.
// Negative values are normalized to 0 (no limit).
func (b *Builder) Limit(limit int) *Builder {
	if limit < 0 {
		limit = 0
	}
	b.limit = limit
	return b
}

// Offset sets the number of documents to skip.
// Negative values are normalized to 0.
func (b *Builder) Offset(offset int) *Builder {
	if offset < 0 {
		offset = 0
	}
	b.offset = offset
	return b
}

// Pluck restricts returned documents to the given fields; id is always kept
func (b *Builder) Pluck(fields ...string) *Builder {
	b.pluck = append(b.pluck, fields...)
	return b
}

// Durability overrides the adapter's default durability for this query: hard or soft
func (b *Builder) Durability(durability string) *Builder {
	b.durability = durability
	return b
}

// Get selects the document with the given id
func (b *Builder) Get(id string) *Builder {
	b.op = OpGet
	b.id = id
	return b
}

// First selects the first matching document in order
func (b *Builder) First() *Builder {
	b.op = OpFirst
	return b
}

// Find selects matching documents as a stream
func (b *Builder) Find() *Builder {
	b.op = OpFind
	return b
}

// List selects matching documents as a finite list
func (b *Builder) List() *Builder {
	b.op = OpList
	return b
}

// Count selects the number of matching documents
func (b *Builder) Count() *Builder {
	b.op = OpCount
	return b
}

// Sum selects the sum of field over matching documents
func (b *Builder) Sum(field string) *Builder {
	b.op = OpSum
	b.field = field
	return b
}

// Avg selects the average of field over matching documents
func (b *Builder) Avg(field string) *Builder {
	b.op = OpAvg
	b.field = field
	return b
}

// Insert stores doc as a new document
func (b *Builder) Insert(doc map[string]interface{}) *Builder {
	b.op = OpInsert
	b.doc = doc
	return b
}

// Replace overwrites the document with the given id
func (b *Builder) Replace(id string, doc map[string]interface{}) *Builder {
	b.op = OpReplace
	b.id = id
	b.doc = doc
	return b
}

// DeleteByID removes the document with the given id
func (b *Builder) DeleteByID(id string) *Builder {
	b.op = OpDelete
	b.id = id
	return b
}

// DeleteAll removes every matching document
func (b *Builder) DeleteAll() *Builder {
	b.op = OpDeleteAll
	return b
}

// Helper method to add conditions to a condition group
func (g *ConditionGroup) Where(field string, operator Operator, value interface{}) *ConditionGroup {
	g.Conditions = append(g.Conditions, Condition{
		Field:    field,
		Operator: operator,
		Value:    value,
	})
	return g
}

// Helper method to add nested condition groups
func (g *ConditionGroup) Group(operator LogicalOperator, fn func(*ConditionGroup)) *ConditionGroup {
	group := &ConditionGroup{Operator: operator}
	fn(group)
	g.Conditions = append(g.Conditions, group)
	return g
}

// Build validates the accumulated state and returns the finished query.
// A builder with no terminal builds a Find.
func (b *Builder) Build() (*Query, error) {
	if b.collection == "" {
		return nil, fmt.Errorf("%w: collection is required", ErrInvalidQuery)
	}

	op := b.op
	if op == "" {
		op = OpFind
	}

	switch op {
	case OpGet, OpDelete:
		if b.id == "" {
			return nil, fmt.Errorf("%w: %s requires an id", ErrInvalidQuery, op)
		}
	case OpReplace:
		if b.id == "" || b.doc == nil {
			return nil, fmt.Errorf("%w: replace requires an id and a document", ErrInvalidQuery)
		}
	case OpInsert:
		if b.doc == nil {
			return nil, fmt.Errorf("%w: insert requires a document", ErrInvalidQuery)
		}
	case OpSum, OpAvg:
		if !ValidField(b.field) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidField, b.field)
		}
	}

	switch b.durability {
	case "", DurabilityHard, DurabilitySoft:
	default:
		return nil, fmt.Errorf("%w: unknown durability %q", ErrInvalidQuery, b.durability)
	}

	if err := validateGroup(b.where); err != nil {
		return nil, err
	}
	for _, o := range b.orders {
		if !ValidField(o.Field) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidField, o.Field)
		}
	}
	for _, f := range b.pluck {
		if !ValidField(f) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidField, f)
		}
	}

	return &Query{
		Collection: b.collection,
		Op:         op,
		ID:         b.id,
		Document:   b.doc,
		Field:      b.field,
		Where:      b.where,
		Orders:     append([]Order(nil), b.orders...),
		Limit:      b.limit,
		Offset:     b.offset,
		Pluck:      append([]string(nil), b.pluck...),
		Durability: b.durability,
	}, nil
}

func validateGroup(g *ConditionGroup) error {
	if g == nil {
		return nil
	}
	for _, item := range g.Conditions {
		switch cond := item.(type) {
		case Condition:
			if !ValidField(cond.Field) {
				return fmt.Errorf("%w: %q", ErrInvalidField, cond.Field)
			}
		case *ConditionGroup:
			if err := validateGroup(cond); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unsupported condition %T", ErrInvalidQuery, item)
		}
	}
	return nil
}

// Project returns a copy of doc restricted to fields plus id; nil fields keeps everything
func Project(doc map[string]interface{}, fields []string) map[string]interface{} {
	if len(fields) == 0 || doc == nil {
		return doc
	}
	out := make(map[string]interface{}, len(fields)+1)
	if id, ok := doc[IDField]; ok {
		out[IDField] = id
	}
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}
