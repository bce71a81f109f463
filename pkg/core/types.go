package core

// Prompt is one fully assembled model input: the demonstration images in
// order followed by the query image, and the concatenated demonstration
// text followed by the query's answer-less text.
type Prompt struct {
	Images []Image `json:"images" yaml:"images"`
	Text   string  `json:"text" yaml:"text"`
}

// GenerateOptions controls constrained decoding.
type GenerateOptions struct {
	MaxNewTokens  int     `json:"max_new_tokens" yaml:"max_new_tokens"`
	NumBeams      int     `json:"num_beams" yaml:"num_beams"`
	LengthPenalty float64 `json:"length_penalty" yaml:"length_penalty"`
}

// Prediction is one produced output keyed by its sample identifier.
// Transient prediction files are JSON arrays of these records.
type Prediction struct {
	ID     string `json:"id"`
	Output string `json:"output"`
}

// ShotResult holds the trial scores for one shot count.
type ShotResult struct {
	Shots  int       `json:"shots" yaml:"shots"`
	Trials []float64 `json:"trials" yaml:"trials"`
	Mean   float64   `json:"mean" yaml:"mean"`
}

// Results maps task name to its per-shot results, in configured shot order.
type Results map[string][]ShotResult
