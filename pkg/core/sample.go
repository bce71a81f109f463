package core

// Image is an opaque reference to an image on disk. Model adapters load
// the bytes when they need them; the harness never decodes pixels.
type Image struct {
	Path string `json:"path" yaml:"path"`
}

// Sample is a single dataset record. Exactly one of the task-specific
// field groups is populated depending on the task family: Caption for
// captioning, Question/Answers for VQA, ClassName for classification.
type Sample struct {
	ID        string   `json:"id" yaml:"id"`
	Image     Image    `json:"image" yaml:"image"`
	Caption   string   `json:"caption,omitempty" yaml:"caption,omitempty"`
	Question  string   `json:"question,omitempty" yaml:"question,omitempty"`
	Answers   []string `json:"answers,omitempty" yaml:"answers,omitempty"`
	ClassName string   `json:"class_name,omitempty" yaml:"class_name,omitempty"`
}
