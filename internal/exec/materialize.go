package exec

import (
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/plan"
	"github.com/icydb/icydb/internal/row"
	"github.com/icydb/icydb/internal/store"

	icyerrors "github.com/icydb/icydb/errors"
)

// RowsFromOrderedKeyStream drains stream and loads each row from ds under
// consistency (spec.md §4.13). Strict surfaces a missing row as Corruption
// (an index entry pointed at a row that no longer exists is a consistency
// break); MissingOk silently skips it.
func RowsFromOrderedKeyStream(ds *store.DataStore, stream OrderedKeyStream, consistency plan.Consistency) ([]row.Row, error) {
	var out []row.Row
	for {
		k, ok, err := stream.NextKey()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		r, found, err := ds.Get(k)
		if err != nil {
			return nil, err
		}
		if !found {
			if consistency == plan.Strict {
				return nil, icyerrors.Newf(icyerrors.ClassCorruption, icyerrors.OriginExecutor,
					"index stream yielded primary key %+v for entity %q but no row is stored there", k, ds.Model.Name)
			}
			continue
		}
		out = append(out, r)
	}
}

// DrainKeys exhausts stream into a plain slice, materializing every
// candidate key.
func DrainKeys(stream OrderedKeyStream) ([]key.Value, error) {
	var out []key.Value
	for {
		k, ok, err := stream.NextKey()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, k)
	}
}
