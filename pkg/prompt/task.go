package prompt

import (
	"fmt"
	"strings"

	"vlmeval/pkg/core"
)

// Kind identifies a task family.
type Kind int

const (
	Caption Kind = iota
	VQA
	Classification
)

const (
	// ImageToken marks where an image is interleaved into the text.
	ImageToken = "<image>"
	// EndMarker terminates one in-context example.
	EndMarker = "<|endofchunk|>"
)

// Spec describes how one task family formats prompts and normalizes
// model output. Tasks are selected through this table rather than by
// dispatching on name strings at each call site.
type Spec struct {
	Name string
	Kind Kind

	// Context formats a demonstration including its reference text.
	Context func(s core.Sample) string
	// Query formats the evaluation item with the answer portion omitted.
	Query func(s core.Sample) string

	// Stop patterns truncate a raw generation; Postprocess applies them
	// plus whitespace and quote trimming.
	Stop []string

	// Normalize, when set, runs last in Postprocess for task-specific
	// cleanup beyond the shared trimming.
	Normalize func(string) string

	// ScoreScale converts the metric's native scalar to the reported
	// range (CIDEr is reported x100).
	ScoreScale float64
}

// ClassPrompt is the literal query prefix used by the likelihood path.
const ClassPrompt = ImageToken + "A photo of a"

func CaptionSpec(name string) Spec {
	return Spec{
		Name: name,
		Kind: Caption,
		Context: func(s core.Sample) string {
			return fmt.Sprintf("%sOutput:%s%s", ImageToken, strings.TrimSpace(s.Caption), EndMarker)
		},
		Query: func(core.Sample) string {
			return ImageToken + "Output:"
		},
		Stop:       []string{"Output", ImageToken},
		ScoreScale: 100,
	}
}

func VQASpec(name string) Spec {
	return Spec{
		Name: name,
		Kind: VQA,
		Context: func(s core.Sample) string {
			answer := ""
			if len(s.Answers) > 0 {
				answer = s.Answers[0]
			}
			return fmt.Sprintf("%sQuestion:%s Short answer:%s%s", ImageToken, s.Question, answer, EndMarker)
		},
		Query: func(s core.Sample) string {
			return fmt.Sprintf("%sQuestion:%s Short answer:", ImageToken, s.Question)
		},
		Stop:       []string{"Question", "Answer", ImageToken},
		ScoreScale: 1,
	}
}

// OKVQASpec shares the VQA prompt format but keeps its own table entry:
// OK-VQA answers are lowercase single words, so predictions are
// lowercased here, and stem-level normalization is left to the external
// scorer.
func OKVQASpec(name string) Spec {
	sp := VQASpec(name)
	sp.Normalize = strings.ToLower
	return sp
}

func ClassificationSpec(name string) Spec {
	return Spec{
		Name: name,
		Kind: Classification,
		Context: func(s core.Sample) string {
			return fmt.Sprintf("%s %s%s", ClassPrompt, s.ClassName, EndMarker)
		},
		Query: func(core.Sample) string {
			return ClassPrompt
		},
		ScoreScale: 1,
	}
}

// Postprocess normalizes one raw generation: cut at the first stop
// pattern, then trim whitespace and strip double quotes.
func (sp Spec) Postprocess(raw string) string {
	out := raw
	for _, stop := range sp.Stop {
		if i := strings.Index(out, stop); i >= 0 {
			out = out[:i]
		}
	}
	out = strings.TrimSpace(out)
	out = strings.ReplaceAll(out, `"`, "")
	if sp.Normalize != nil {
		out = sp.Normalize(out)
	}
	return out
}
