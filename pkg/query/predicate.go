package query

import (
	"encoding/json"
	"strings"

	"github.com/quilldb/quilldb/pkg/codec"
	"github.com/quilldb/quilldb/pkg/qerr"
	"github.com/quilldb/quilldb/pkg/types"
)

// Predicate evaluates a where-clause against one row.
type Predicate interface {
	Match(row types.Row) (bool, error)
}

// Eq matches rows whose column equals value.
type Eq struct {
	Column string
	Value  types.Value
}

func (p Eq) Match(row types.Row) (bool, error) {
	v, ok := row[p.Column]
	if !ok {
		return false, nil
	}
	return v.Equal(p.Value), nil
}

// CmpOp is one of $lt, $lte, $gt, $gte.
type CmpOp string

const (
	Lt  CmpOp = "$lt"
	Lte CmpOp = "$lte"
	Gt  CmpOp = "$gt"
	Gte CmpOp = "$gte"
)

// Cmp matches rows whose column compares to value per Op.
type Cmp struct {
	Column string
	Op     CmpOp
	Value  types.Value
}

func (p Cmp) Match(row types.Row) (bool, error) {
	v, ok := row[p.Column]
	if !ok {
		return false, nil
	}
	switch p.Op {
	case Lt:
		return v.Less(p.Value), nil
	case Lte:
		return v.Less(p.Value) || v.Equal(p.Value), nil
	case Gt:
		return p.Value.Less(v), nil
	case Gte:
		return p.Value.Less(v) || v.Equal(p.Value), nil
	default:
		return false, qerr.New(qerr.InvalidOperator, "query.Cmp", "unknown comparison operator "+string(p.Op)).WithColumn(p.Column)
	}
}

// In matches rows whose column equals any of Values.
type In struct {
	Column string
	Values []types.Value
}

func (p In) Match(row types.Row) (bool, error) {
	v, ok := row[p.Column]
	if !ok {
		return false, nil
	}
	for _, candidate := range p.Values {
		if v.Equal(candidate) {
			return true, nil
		}
	}
	return false, nil
}

// Contains implements $contains: substring match for string columns,
// element membership for json-array columns. Any other column type is an
// InvalidOperator.
type Contains struct {
	Column string
	Value  types.Value
}

func (p Contains) Match(row types.Row) (bool, error) {
	v, ok := row[p.Column]
	if !ok {
		return false, nil
	}
	switch v.Type {
	case types.ColString:
		haystack, _ := v.AsString()
		needle, ok := p.Value.AsString()
		if !ok {
			return false, qerr.New(qerr.InvalidOperator, "query.Contains", "needle must be a string for a string column").WithColumn(p.Column)
		}
		return strings.Contains(haystack, needle), nil
	case types.ColJSON:
		raw, _ := v.AsJSON()
		var arr []any
		if err := json.Unmarshal(raw, &arr); err != nil {
			return false, qerr.New(qerr.InvalidOperator, "query.Contains", "$contains on a json column requires a json array").WithColumn(p.Column)
		}
		target, err := jsonOf(p.Value)
		if err != nil {
			return false, err
		}
		for _, el := range arr {
			if jsonEqual(el, target) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, qerr.New(qerr.InvalidOperator, "query.Contains", "$contains is not supported on this column type").WithColumn(p.Column)
	}
}

func jsonOf(v types.Value) (any, error) {
	raw, err := codec.EncodeValue(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func jsonEqual(a, b any) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && string(ab) == string(bb)
}

// And matches when every sub-predicate matches.
type And struct{ Preds []Predicate }

func (p And) Match(row types.Row) (bool, error) {
	for _, sub := range p.Preds {
		ok, err := sub.Match(row)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Or matches when any sub-predicate matches.
type Or struct{ Preds []Predicate }

func (p Or) Match(row types.Row) (bool, error) {
	for _, sub := range p.Preds {
		ok, err := sub.Match(row)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
