package mapper

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Internal attribute names the server adds to stored documents.
const (
	AttrID   = "_id"
	AttrKey  = "_key"
	AttrRev  = "_rev"
	AttrFrom = "_from"
	AttrTo   = "_to"
)

// RowShape classifies a decoded result row.
type RowShape int

const (
	// ShapeValue is anything that is not a stored document: scalars, arrays,
	// projections without a _key.
	ShapeValue RowShape = iota
	// ShapeDocument is an object carrying _key.
	ShapeDocument
	// ShapeEdge is a document that also carries _from and _to.
	ShapeEdge
)

// String returns the string representation of the shape.
func (s RowShape) String() string {
	switch s {
	case ShapeValue:
		return "value"
	case ShapeDocument:
		return "document"
	case ShapeEdge:
		return "edge"
	default:
		return "unknown"
	}
}

// ResponseMapper handles type coercion for decoded response values.
// JSON numbers arrive as float64; cursor ids may arrive as string or number
// depending on server version.
type ResponseMapper struct{}

// NewResponseMapper creates a new response mapper.
func NewResponseMapper() *ResponseMapper {
	return &ResponseMapper{}
}

// ToString converts any value to a string. Integral floats are rendered
// without a fraction so numeric ids round-trip.
func (m *ResponseMapper) ToString(value interface{}) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ToInt converts a value to an integer.
func (m *ResponseMapper) ToInt(value interface{}) (int64, error) {
	if value == nil {
		return 0, fmt.Errorf("cannot convert nil to int")
	}

	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert '%s' to int: %w", v, err)
		}
		return i, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", value)
	}
}

// ToBool converts a value to a boolean.
func (m *ResponseMapper) ToBool(value interface{}) (bool, error) {
	if value == nil {
		return false, nil
	}

	switch v := value.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case string:
		switch v {
		case "true", "1":
			return true, nil
		case "false", "0", "":
			return false, nil
		default:
			return false, fmt.Errorf("cannot convert '%s' to boolean", v)
		}
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", value)
	}
}

// ToBoolDefault converts a value to a boolean, returning def when the value is
// missing or not convertible.
func (m *ResponseMapper) ToBoolDefault(value interface{}, def bool) bool {
	if value == nil {
		return def
	}
	b, err := m.ToBool(value)
	if err != nil {
		return def
	}
	return b
}

// Shape classifies a decoded row using the _key/_from/_to heuristic. Only
// string attributes count, so computed rows such as {_key: 1} stay values.
func (m *ResponseMapper) Shape(row interface{}) RowShape {
	obj, ok := row.(map[string]interface{})
	if !ok {
		return ShapeValue
	}
	if !isString(obj[AttrKey]) {
		return ShapeValue
	}
	if isString(obj[AttrFrom]) && isString(obj[AttrTo]) {
		return ShapeEdge
	}
	return ShapeDocument
}

func isString(v interface{}) bool {
	_, ok := v.(string)
	return ok
}

// Sanitize removes _id and _rev from an object row in place and returns it.
// Non-object rows are returned unchanged.
func (m *ResponseMapper) Sanitize(row interface{}) interface{} {
	obj, ok := row.(map[string]interface{})
	if !ok {
		return row
	}
	delete(obj, AttrID)
	delete(obj, AttrRev)
	return obj
}

// SanitizeRows applies Sanitize to every row.
func (m *ResponseMapper) SanitizeRows(rows []interface{}) []interface{} {
	for i, row := range rows {
		rows[i] = m.Sanitize(row)
	}
	return rows
}

// Lookup walks a path of object keys, returning the value and whether every
// step existed. Used for nested envelope fields such as extra.stats.fullCount.
func (m *ResponseMapper) Lookup(obj map[string]interface{}, path ...string) (interface{}, bool) {
	var current interface{} = obj
	for _, key := range path {
		next, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = next[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
