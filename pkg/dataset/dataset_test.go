package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"vlmeval/pkg/core"

	"github.com/stretchr/testify/require"
)

func TestCaptionDatasetSplits(t *testing.T) {
	dir := t.TempDir()
	annotations := filepath.Join(dir, "karpathy.json")
	content := `{"images":[
		{"filename":"a.jpg","filepath":"train2014","split":"train","cocoid":1,"sentences":[{"raw":"a dog"}]},
		{"filename":"b.jpg","filepath":"val2014","split":"restval","cocoid":2,"sentences":[{"raw":"a cat"}]},
		{"filename":"c.jpg","filepath":"val2014","split":"test","cocoid":3,"sentences":[{"raw":"a bird"}]}
	]}`
	require.NoError(t, os.WriteFile(annotations, []byte(content), 0o600))

	train, err := NewCaptionDataset("train", "val", annotations, "coco", true)
	require.NoError(t, err)
	require.Equal(t, 2, train.Len())

	test, err := NewCaptionDataset("train", "val", annotations, "coco", false)
	require.NoError(t, err)
	require.Equal(t, 1, test.Len())

	s, err := test.At(0)
	require.NoError(t, err)
	require.Equal(t, "3", s.ID)
	require.Equal(t, "a bird", s.Caption)
	require.Equal(t, filepath.Join("val", "c.jpg"), s.Image.Path)

	_, err = test.At(5)
	require.Error(t, err)
}

func TestVQADataset(t *testing.T) {
	dir := t.TempDir()
	questions := filepath.Join(dir, "questions.json")
	annotations := filepath.Join(dir, "annotations.json")
	require.NoError(t, os.WriteFile(questions, []byte(`{"questions":[
		{"question_id":10,"image_id":7,"question":"what color?"}
	]}`), 0o600))
	require.NoError(t, os.WriteFile(annotations, []byte(`{"annotations":[
		{"question_id":10,"answers":[{"answer":"red"},{"answer":"maroon"}]}
	]}`), 0o600))

	ds, err := NewVQADataset("images", questions, annotations, "COCO_train2014_", "vqav2")
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())

	s, err := ds.At(0)
	require.NoError(t, err)
	require.Equal(t, "10", s.ID)
	require.Equal(t, "what color?", s.Question)
	require.Equal(t, []string{"red", "maroon"}, s.Answers)
	require.Equal(t, filepath.Join("images", "COCO_train2014_000000000007.jpg"), s.Image.Path)
}

func TestImageFolderDataset(t *testing.T) {
	root := t.TempDir()
	for _, class := range []string{"tabby_cat", "beagle"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, class), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, class, "0.jpg"), []byte("x"), 0o600))
	}

	ds, err := NewImageFolderDataset(root, "imagenet")
	require.NoError(t, err)
	require.Equal(t, []string{"beagle", "tabby cat"}, ds.Classes())
	require.Equal(t, 2, ds.Len())

	s, err := ds.At(1)
	require.NoError(t, err)
	require.Equal(t, "tabby cat", s.ClassName)
}

func TestSubsetAndGather(t *testing.T) {
	base := &Slice{NameHint: "toy", Items: []core.Sample{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	}}
	sub := NewSubset(base, []int{2, 0})
	require.Equal(t, 2, sub.Len())

	s, err := sub.At(0)
	require.NoError(t, err)
	require.Equal(t, "c", s.ID)

	pool, err := Gather(base, []int{1, 2})
	require.NoError(t, err)
	require.Equal(t, "b", pool[0].ID)
	require.Equal(t, "c", pool[1].ID)
}
