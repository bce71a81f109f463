package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"vlmeval/pkg/core"
)

// VQADataset joins a VQA-style questions file with its annotations
// file. One constructed instance covers one partition; the caller
// points train and test instances at the matching file pairs.
type VQADataset struct {
	name    string
	samples []core.Sample
}

type vqaQuestionsFile struct {
	Questions []vqaQuestion `json:"questions"`
}

type vqaQuestion struct {
	QuestionID int    `json:"question_id"`
	ImageID    int    `json:"image_id"`
	Question   string `json:"question"`
}

type vqaAnnotationsFile struct {
	Annotations []vqaAnnotation `json:"annotations"`
}

type vqaAnnotation struct {
	QuestionID int         `json:"question_id"`
	Answers    []vqaAnswer `json:"answers"`
}

type vqaAnswer struct {
	Answer string `json:"answer"`
}

// NewVQADataset loads questions and annotations. imagePrefix is the
// dataset's image file naming prefix (for COCO-derived sets, something
// like "COCO_train2014_"); image ids are zero-padded to 12 digits.
func NewVQADataset(imageDir, questionsPath, annotationsPath, imagePrefix, name string) (*VQADataset, error) {
	var questions vqaQuestionsFile
	if err := decodeFile(questionsPath, &questions); err != nil {
		return nil, err
	}
	var annotations vqaAnnotationsFile
	if err := decodeFile(annotationsPath, &annotations); err != nil {
		return nil, err
	}

	answersByQuestion := make(map[int][]string, len(annotations.Annotations))
	for _, ann := range annotations.Annotations {
		answers := make([]string, 0, len(ann.Answers))
		for _, a := range ann.Answers {
			answers = append(answers, a.Answer)
		}
		answersByQuestion[ann.QuestionID] = answers
	}

	ds := &VQADataset{name: name}
	for _, q := range questions.Questions {
		file := fmt.Sprintf("%s%012d.jpg", imagePrefix, q.ImageID)
		ds.samples = append(ds.samples, core.Sample{
			ID:       strconv.Itoa(q.QuestionID),
			Image:    core.Image{Path: filepath.Join(imageDir, file)},
			Question: q.Question,
			Answers:  answersByQuestion[q.QuestionID],
		})
	}
	return ds, nil
}

func decodeFile(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	defer file.Close()
	if err := json.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("dataset: decode %s: %w", path, err)
	}
	return nil
}

func (d *VQADataset) Name() string { return d.name }

func (d *VQADataset) Len() int { return len(d.samples) }

func (d *VQADataset) At(i int) (core.Sample, error) {
	if i < 0 || i >= len(d.samples) {
		return core.Sample{}, fmt.Errorf("dataset: index %d out of range [0,%d)", i, len(d.samples))
	}
	return d.samples[i], nil
}
