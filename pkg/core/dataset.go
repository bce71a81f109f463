package core

// Dataset provides random access to samples. The train/test partition is
// resolved when the dataset is constructed, not per call.
type Dataset interface {
	Name() string
	Len() int
	At(i int) (Sample, error)
}
