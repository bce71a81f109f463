package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"vlmeval/pkg/core"
)

// CaptionDataset loads a Karpathy-split captioning annotation file
// (COCO or Flickr30k layout). The train/test partition is fixed at
// construction; train keeps the train and restval splits, eval keeps
// the test split.
type CaptionDataset struct {
	name    string
	samples []core.Sample
}

type karpathyFile struct {
	Images []karpathyImage `json:"images"`
}

type karpathyImage struct {
	FileName  string             `json:"filename"`
	FilePath  string             `json:"filepath"`
	Split     string             `json:"split"`
	CocoID    *int               `json:"cocoid"`
	ImgID     *int               `json:"imgid"`
	Sentences []karpathySentence `json:"sentences"`
}

type karpathySentence struct {
	Raw string `json:"raw"`
}

func NewCaptionDataset(trainImageDir, valImageDir, annotationsPath, name string, train bool) (*CaptionDataset, error) {
	file, err := os.Open(annotationsPath)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer file.Close()

	var raw karpathyFile
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return nil, fmt.Errorf("dataset: decode %s: %w", annotationsPath, err)
	}

	ds := &CaptionDataset{name: name}
	for _, img := range raw.Images {
		keep := img.Split == "train" || img.Split == "restval"
		if !train {
			keep = img.Split == "test"
		}
		if !keep || len(img.Sentences) == 0 {
			continue
		}

		dir := trainImageDir
		if strings.Contains(img.FilePath, "val") && valImageDir != "" {
			dir = valImageDir
		}

		id := ""
		switch {
		case img.CocoID != nil:
			id = strconv.Itoa(*img.CocoID)
		case img.ImgID != nil:
			id = strconv.Itoa(*img.ImgID)
		default:
			id = img.FileName
		}

		ds.samples = append(ds.samples, core.Sample{
			ID:      id,
			Image:   core.Image{Path: filepath.Join(dir, img.FileName)},
			Caption: img.Sentences[0].Raw,
		})
	}
	return ds, nil
}

func (d *CaptionDataset) Name() string { return d.name }

func (d *CaptionDataset) Len() int { return len(d.samples) }

func (d *CaptionDataset) At(i int) (core.Sample, error) {
	if i < 0 || i >= len(d.samples) {
		return core.Sample{}, fmt.Errorf("dataset: index %d out of range [0,%d)", i, len(d.samples))
	}
	return d.samples[i], nil
}
