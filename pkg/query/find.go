package query

import (
	"context"
	"sort"

	"github.com/quilldb/quilldb/pkg/codec"
	"github.com/quilldb/quilldb/pkg/types"
)

// Find scans table applying opts.Where, then orders, offsets, and limits
// the result. Scans are full-table; there is no secondary-index query
// planner beyond the documented where-operators.
func (e *Engine) Find(ctx context.Context, table string, opts FindOptions) ([]types.Row, error) {
	t, err := e.table(table)
	if err != nil {
		return nil, err
	}
	txn, err := e.store.Begin(ctx, []string{t.Name}, false)
	if err != nil {
		return nil, err
	}
	defer txn.Abort()
	cur, err := txn.Cursor(t.Name)
	if err != nil {
		return nil, err
	}

	var out []types.Row
	for k, v := cur.First(); k != nil; k, v = cur.Next() {
		row, err := codec.DecodeRow(t, v, e.open(t))
		if err != nil {
			return nil, err
		}
		if opts.Where != nil {
			ok, err := opts.Where.Match(row)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, row)
	}

	if opts.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			vi, vj := out[i][opts.OrderBy], out[j][opts.OrderBy]
			if opts.Desc {
				return vj.Less(vi)
			}
			return vi.Less(vj)
		})
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}
