package prompt

import (
	"strings"
	"testing"

	"vlmeval/pkg/core"

	"github.com/stretchr/testify/require"
)

func TestAssembleFewShot(t *testing.T) {
	sp := CaptionSpec("coco")
	demos := []core.Sample{
		{ID: "d1", Image: core.Image{Path: "d1.jpg"}, Caption: "a dog"},
		{ID: "d2", Image: core.Image{Path: "d2.jpg"}, Caption: "a cat"},
	}
	query := core.Sample{ID: "q", Image: core.Image{Path: "q.jpg"}}

	p := Assemble(query, demos, 2, sp)
	require.Len(t, p.Images, 3)
	require.Equal(t, "q.jpg", p.Images[2].Path)
	require.Equal(t, 3, strings.Count(p.Text, ImageToken))
	require.Equal(t, 2, strings.Count(p.Text, EndMarker))
	require.True(t, strings.HasSuffix(p.Text, "Output:"))
	require.Contains(t, p.Text, "a dog")
}

func TestAssembleZeroShot(t *testing.T) {
	sp := CaptionSpec("coco")
	demos := []core.Sample{
		{ID: "d1", Image: core.Image{Path: "d1.jpg"}, Caption: "a dog"},
		{ID: "d2", Image: core.Image{Path: "d2.jpg"}, Caption: "a cat"},
	}
	query := core.Sample{ID: "q", Image: core.Image{Path: "q.jpg"}}

	p := Assemble(query, demos, 0, sp)
	// Query image only, and only the query's image token survives.
	require.Len(t, p.Images, 1)
	require.Equal(t, "q.jpg", p.Images[0].Path)
	require.Equal(t, 1, strings.Count(p.Text, ImageToken))
	require.True(t, strings.HasSuffix(p.Text, ImageToken+"Output:"))
	// Demonstration text and markers remain for style conditioning.
	require.Contains(t, p.Text, "a dog")
	require.Contains(t, p.Text, "a cat")
	require.Equal(t, 2, strings.Count(p.Text, EndMarker))
}

func TestVQATemplates(t *testing.T) {
	sp := VQASpec("vqav2")
	demo := core.Sample{Question: "what color?", Answers: []string{"red", "maroon"}}
	require.Equal(t, "<image>Question:what color? Short answer:red<|endofchunk|>", sp.Context(demo))
	require.Equal(t, "<image>Question:what color? Short answer:", sp.Query(demo))
}

func TestPostprocess(t *testing.T) {
	caption := CaptionSpec("coco")
	require.Equal(t, "a dog on grass", caption.Postprocess(` a dog on grass Output:`))
	require.Equal(t, "a dog", caption.Postprocess(`"a dog"`))

	vqa := VQASpec("vqav2")
	require.Equal(t, "red", vqa.Postprocess("red Question:what"))
	require.Equal(t, "two", vqa.Postprocess("two Answer"))
}

func TestOKVQASpec(t *testing.T) {
	sp := OKVQASpec("ok-vqa")
	require.Equal(t, "ok-vqa", sp.Name)
	require.Equal(t, VQA, sp.Kind)

	// Same prompt format as VQA, plus lowercasing.
	demo := core.Sample{Question: "what sport?", Answers: []string{"surfing"}}
	require.Equal(t, VQASpec("ok-vqa").Context(demo), sp.Context(demo))
	require.Equal(t, "surfing", sp.Postprocess("Surfing Question:next"))
}
