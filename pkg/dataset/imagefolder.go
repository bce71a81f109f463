package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"vlmeval/pkg/core"
)

// ImageFolderDataset reads a directory-per-class layout: each
// subdirectory of root is one class, its files are that class's images.
// The class name is the directory name with underscores replaced by
// spaces. Ordering is deterministic (sorted directories, sorted files).
type ImageFolderDataset struct {
	name    string
	classes []string
	samples []core.Sample
}

func NewImageFolderDataset(root, name string) (*ImageFolderDataset, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}

	ds := &ImageFolderDataset{name: name}
	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		className := strings.ReplaceAll(dir, "_", " ")
		ds.classes = append(ds.classes, className)

		files, err := os.ReadDir(filepath.Join(root, dir))
		if err != nil {
			return nil, fmt.Errorf("dataset: %w", err)
		}
		names := make([]string, 0, len(files))
		for _, f := range files {
			if !f.IsDir() {
				names = append(names, f.Name())
			}
		}
		sort.Strings(names)

		for _, file := range names {
			ds.samples = append(ds.samples, core.Sample{
				ID:        filepath.Join(dir, file),
				Image:     core.Image{Path: filepath.Join(root, dir, file)},
				ClassName: className,
			})
		}
	}
	return ds, nil
}

// Classes returns the label vocabulary in sorted directory order.
func (d *ImageFolderDataset) Classes() []string { return d.classes }

func (d *ImageFolderDataset) Name() string { return d.name }

func (d *ImageFolderDataset) Len() int { return len(d.samples) }

func (d *ImageFolderDataset) At(i int) (core.Sample, error) {
	if i < 0 || i >= len(d.samples) {
		return core.Sample{}, fmt.Errorf("dataset: index %d out of range [0,%d)", i, len(d.samples))
	}
	return d.samples[i], nil
}
