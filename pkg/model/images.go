package model

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vlmeval/pkg/core"
	"vlmeval/pkg/prompt"
)

func loadImage(img core.Image) ([]byte, string, error) {
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return nil, "", fmt.Errorf("model: read image: %w", err)
	}
	return data, mimeType(img.Path), nil
}

func mimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func encodeImages(images []core.Image) ([]string, error) {
	out := make([]string, 0, len(images))
	for _, img := range images {
		data, _, err := loadImage(img)
		if err != nil {
			return nil, err
		}
		out = append(out, base64.StdEncoding.EncodeToString(data))
	}
	return out, nil
}

// stripImageTokens removes the interleaving placeholder for adapters
// whose APIs carry images separately from text.
func stripImageTokens(text string) string {
	return strings.ReplaceAll(text, prompt.ImageToken, "")
}
