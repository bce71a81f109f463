package dataset

import (
	"fmt"

	"vlmeval/pkg/core"
)

// Subset is an index view over another dataset.
type Subset struct {
	base    core.Dataset
	indices []int
}

func NewSubset(base core.Dataset, indices []int) *Subset {
	return &Subset{base: base, indices: indices}
}

func (s *Subset) Name() string { return s.base.Name() }

func (s *Subset) Len() int { return len(s.indices) }

func (s *Subset) At(i int) (core.Sample, error) {
	if i < 0 || i >= len(s.indices) {
		return core.Sample{}, fmt.Errorf("dataset: subset index %d out of range [0,%d)", i, len(s.indices))
	}
	return s.base.At(s.indices[i])
}

// Gather materializes the samples at the given indices. Query pools are
// gathered up front so demonstration draws do not repeat dataset reads.
func Gather(ds core.Dataset, indices []int) ([]core.Sample, error) {
	out := make([]core.Sample, 0, len(indices))
	for _, i := range indices {
		s, err := ds.At(i)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Slice is an in-memory dataset, mostly useful in tests.
type Slice struct {
	NameHint string
	Items    []core.Sample
}

func (d *Slice) Name() string { return d.NameHint }

func (d *Slice) Len() int { return len(d.Items) }

func (d *Slice) At(i int) (core.Sample, error) {
	if i < 0 || i >= len(d.Items) {
		return core.Sample{}, fmt.Errorf("dataset: index %d out of range [0,%d)", i, len(d.Items))
	}
	return d.Items[i], nil
}
