package repositories

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindBool
	kindTime
	kindID
)

type fieldSpec struct {
	column string
	kind   fieldKind
}

var taskFields = map[string]fieldSpec{
	"_id":              {"id", kindID},
	"name":             {"name", kindString},
	"description":      {"description", kindString},
	"deadline":         {"deadline", kindTime},
	"completed":        {"completed", kindBool},
	"assignedUser":     {"assigned_user", kindString},
	"assignedUserName": {"assigned_user_name", kindString},
	"dateCreated":      {"date_created", kindTime},
}

var userFields = map[string]fieldSpec{
	"_id":         {"id", kindID},
	"name":        {"name", kindString},
	"email":       {"email", kindString},
	"dateCreated": {"date_created", kindTime},
}

var comparisonOperators = map[string]string{
	"$ne":  "<>",
	"$gt":  ">",
	"$gte": ">=",
	"$lt":  "<",
	"$lte": "<=",
}

type SortField struct {
	Field string
	Desc  bool
}

// ListQuery describes a filtered, ordered window over one collection. Where values are
// either a literal (equality) or an operator object such as {"$in": [...]}.
type ListQuery struct {
	Where map[string]interface{}
	Sort  []SortField
	Skip  int
	Limit int
}

// ParseWhere decodes a JSON filter object. An empty string yields no filter.
func ParseWhere(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var where map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &where); err != nil {
		return nil, fmt.Errorf("%w: where: %v", ErrInvalidQuery, err)
	}
	return where, nil
}

// ParseSort decodes a JSON object of field to 1 or -1, keeping key order.
func ParseSort(raw string) ([]SortField, error) {
	if raw == "" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("%w: sort must be an object", ErrInvalidQuery)
	}

	var fields []SortField
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: sort: %v", ErrInvalidQuery, err)
		}
		key, _ := keyTok.(string)

		var direction json.Number
		if err := dec.Decode(&direction); err != nil {
			return nil, fmt.Errorf("%w: sort direction for %s", ErrInvalidQuery, key)
		}
		n, err := direction.Int64()
		if err != nil || (n != 1 && n != -1) {
			return nil, fmt.Errorf("%w: sort direction for %s must be 1 or -1", ErrInvalidQuery, key)
		}
		fields = append(fields, SortField{Field: key, Desc: n == -1})
	}
	return fields, nil
}

func (q ListQuery) apply(db *gorm.DB, fields map[string]fieldSpec, paginate bool) (*gorm.DB, error) {
	for name, raw := range q.Where {
		spec, ok := fields[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidQuery, name)
		}

		var err error
		db, err = applyCondition(db, spec, name, raw)
		if err != nil {
			return nil, err
		}
	}

	if !paginate {
		return db, nil
	}

	for _, s := range q.Sort {
		spec, ok := fields[s.Field]
		if !ok {
			return nil, fmt.Errorf("%w: unknown sort field %q", ErrInvalidQuery, s.Field)
		}
		direction := "asc"
		if s.Desc {
			direction = "desc"
		}
		db = db.Order(spec.column + " " + direction)
	}
	if q.Skip > 0 {
		db = db.Offset(q.Skip)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	return db, nil
}

// window applies skip and limit to a total count, the way a count over a paged query behaves.
func (q ListQuery) window(total int64) int64 {
	total -= int64(q.Skip)
	if total < 0 {
		total = 0
	}
	if q.Limit > 0 && total > int64(q.Limit) {
		total = int64(q.Limit)
	}
	return total
}

func applyCondition(db *gorm.DB, spec fieldSpec, name string, raw interface{}) (*gorm.DB, error) {
	ops, isObject := raw.(map[string]interface{})
	if !isObject {
		value, err := convertValue(spec, name, raw)
		if err != nil {
			return nil, err
		}
		return db.Where(spec.column+" = ?", value), nil
	}

	for op, operand := range ops {
		switch op {
		case "$in", "$nin":
			list, ok := operand.([]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: %s on %s expects an array", ErrInvalidQuery, op, name)
			}
			values := make([]interface{}, 0, len(list))
			for _, item := range list {
				value, err := convertValue(spec, name, item)
				if err != nil {
					return nil, err
				}
				values = append(values, value)
			}
			if len(values) == 0 {
				if op == "$in" {
					db = db.Where("1 = 0")
				}
				continue
			}
			if op == "$in" {
				db = db.Where(spec.column+" IN ?", values)
			} else {
				db = db.Where(spec.column+" NOT IN ?", values)
			}
		default:
			sqlOp, ok := comparisonOperators[op]
			if !ok {
				return nil, fmt.Errorf("%w: unsupported operator %s", ErrInvalidQuery, op)
			}
			value, err := convertValue(spec, name, operand)
			if err != nil {
				return nil, err
			}
			db = db.Where(spec.column+" "+sqlOp+" ?", value)
		}
	}
	return db, nil
}

func convertValue(spec fieldSpec, name string, raw interface{}) (interface{}, error) {
	switch spec.kind {
	case kindBool:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	case kindString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
	case kindID:
		if s, ok := raw.(string); ok {
			if id, err := uuid.FromString(s); err == nil {
				return id, nil
			}
		}
	case kindTime:
		switch v := raw.(type) {
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t, nil
			}
		case float64:
			return time.UnixMilli(int64(v)).UTC(), nil
		}
	}
	return nil, fmt.Errorf("%w: invalid value for %s", ErrInvalidQuery, name)
}
