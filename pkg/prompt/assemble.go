package prompt

import (
	"strings"

	"vlmeval/pkg/core"
)

// Assemble builds one model input from a query sample and its
// demonstration set.
//
// When the originally requested shot count is 0, the demonstrations
// keep their reference text and end-of-example markers, but their image
// placeholder tokens are stripped and their images are excluded from
// the image sequence. The query image is always present. This preserves
// text-only style conditioning at zero shots.
func Assemble(query core.Sample, demos []core.Sample, requestedShots int, sp Spec) core.Prompt {
	var images []core.Image
	if requestedShots > 0 {
		images = make([]core.Image, 0, len(demos)+1)
		for _, d := range demos {
			images = append(images, d.Image)
		}
	}
	images = append(images, query.Image)

	var b strings.Builder
	for _, d := range demos {
		b.WriteString(sp.Context(d))
	}
	context := b.String()
	if requestedShots == 0 {
		context = strings.ReplaceAll(context, ImageToken, "")
	}

	return core.Prompt{
		Images: images,
		Text:   context + sp.Query(query),
	}
}
