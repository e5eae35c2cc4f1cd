package testutil

import (
	"fmt"

	"github.com/roach88/graft/internal/model"
)

// MakeUnits builds n units with ids "u0".."u<n-1>". Unit i touches
// "file<i>.go" and has subject "change <i>".
func MakeUnits(n int) []model.Unit {
	units := make([]model.Unit, n)
	for i := range units {
		units[i] = model.Unit{
			ID:      fmt.Sprintf("u%d", i),
			Content: fmt.Sprintf("change %d\n", i),
			Metadata: model.Object{
				model.MetaSubject:      model.String(fmt.Sprintf("change %d", i)),
				model.MetaChangedFiles: model.Strings(fmt.Sprintf("file%d.go", i)),
			},
		}
	}
	return units
}

// IDs returns the ids of units at the given indices.
func IDs(units []model.Unit, indices ...int) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = units[idx].ID
	}
	return out
}
