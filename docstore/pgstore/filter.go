package pgstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
)

// compiler turns a docstore.Filter into a jsonb WHERE clause over the data
// column, collecting positional arguments as it goes.
type compiler struct {
	args []any
}

func (c *compiler) arg(v any) string {
	c.args = append(c.args, v)
	return fmt.Sprintf("$%d", len(c.args))
}

func (c *compiler) compile(f docstore.Filter) (string, error) {
	switch f.Op {
	case docstore.OpAll:
		return "TRUE", nil

	case docstore.OpAnd, docstore.OpOr:
		if len(f.Filters) == 0 {
			if f.Op == docstore.OpAnd {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		parts := make([]string, 0, len(f.Filters))
		for _, sub := range f.Filters {
			sql, err := c.compile(sub)
			if err != nil {
				return "", err
			}
			parts = append(parts, sql)
		}
		sep := " AND "
		if f.Op == docstore.OpOr {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")", nil

	case docstore.OpEq:
		value, err := json.Marshal(f.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("data #> %s::text[] = %s::text::jsonb", c.arg(f.Path()), c.arg(string(value))), nil

	case docstore.OpIn:
		if len(f.Values) == 0 {
			return "FALSE", nil
		}
		values, err := json.Marshal(f.Values)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("data #> %s::text[] IN (SELECT jsonb_array_elements(%s::text::jsonb))",
			c.arg(f.Path()), c.arg(string(values))), nil

	case docstore.OpGt, docstore.OpLt:
		op := ">"
		if f.Op == docstore.OpLt {
			op = "<"
		}
		path := c.arg(f.Path())
		if n, ok := number(f.Value); ok {
			return fmt.Sprintf(
				"CASE WHEN jsonb_typeof(data #> %[1]s::text[]) = 'number' THEN (data #>> %[1]s::text[])::numeric %[2]s %[3]s::numeric ELSE FALSE END",
				path, op, c.arg(n)), nil
		}
		if s, ok := f.Value.(string); ok {
			return fmt.Sprintf(
				`CASE WHEN jsonb_typeof(data #> %[1]s::text[]) = 'string' THEN (data #>> %[1]s::text[]) COLLATE "C" %[2]s %[3]s::text ELSE FALSE END`,
				path, op, c.arg(s)), nil
		}
		return "", fmt.Errorf("pgstore: unsupported range value %T", f.Value)
	}
	return "", fmt.Errorf("pgstore: unsupported filter op %d", f.Op)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
