package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"

	"task-assign/backend/internal/repositories"

	"github.com/gin-gonic/gin"
)

// listParams is a decoded list request: where, sort, select, skip, limit and count, each
// JSON encoded in the query string.
type listParams struct {
	query  repositories.ListQuery
	fields projection
	count  bool
}

func parseListParams(c *gin.Context, defaultLimit int) (listParams, error) {
	var params listParams
	var err error

	if params.query.Where, err = repositories.ParseWhere(c.Query("where")); err != nil {
		return params, err
	}
	if params.query.Sort, err = repositories.ParseSort(c.Query("sort")); err != nil {
		return params, err
	}
	if params.fields, err = parseProjection(c.Query("select")); err != nil {
		return params, err
	}
	if params.query.Skip, err = parseNonNegative(c.Query("skip"), "skip", 0); err != nil {
		return params, err
	}
	if params.query.Limit, err = parseNonNegative(c.Query("limit"), "limit", defaultLimit); err != nil {
		return params, err
	}
	if raw := c.Query("count"); raw != "" {
		if params.count, err = strconv.ParseBool(raw); err != nil {
			return params, fmt.Errorf("count must be true or false")
		}
	}
	return params, nil
}

func parseNonNegative(raw, name string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// projection keeps (include) or drops (exclude) top-level JSON fields. _id is kept in
// include mode unless explicitly excluded.
type projection struct {
	fields  map[string]bool
	include bool
}

func parseProjection(raw string) (projection, error) {
	if raw == "" {
		return projection{}, nil
	}
	var requested map[string]int
	if err := json.Unmarshal([]byte(raw), &requested); err != nil {
		return projection{}, fmt.Errorf("select must be an object of field to 1 or 0")
	}

	p := projection{fields: make(map[string]bool, len(requested))}
	includes, excludes := 0, 0
	for field, flag := range requested {
		switch flag {
		case 1:
			includes++
		case 0:
			excludes++
		default:
			return projection{}, fmt.Errorf("select value for %s must be 1 or 0", field)
		}
		p.fields[field] = flag == 1
	}
	if includes > 0 {
		idExcluded := false
		if keep, ok := p.fields["_id"]; ok && !keep {
			idExcluded = true
			excludes--
		}
		if excludes > 0 {
			return projection{}, fmt.Errorf("select cannot mix inclusion and exclusion")
		}
		if !idExcluded {
			p.fields["_id"] = true
		}
		p.include = true
	}
	return p, nil
}

func (p projection) empty() bool {
	return len(p.fields) == 0
}

// apply projects every document of a slice. Documents go through JSON so the field names
// match the response.
func (p projection) apply(docs interface{}) (interface{}, error) {
	if p.empty() {
		return docs, nil
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return nil, err
	}
	var items []map[string]interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	for _, item := range items {
		for key := range item {
			keep, listed := p.fields[key]
			if p.include && !(listed && keep) || !p.include && listed {
				delete(item, key)
			}
		}
	}
	return items, nil
}
