package runner

import (
	"errors"
	"math/rand"
	"strings"
)

// ContentGenerator produces the text of an action. The runner treats the
// output as an opaque string.
type ContentGenerator interface {
	Generate(targetID string) (string, error)
}

// TemplateGenerator picks one of a fixed set of texts at random. "{target}"
// in a text is replaced with the target id.
type TemplateGenerator struct {
	texts []string
	intn  func(n int) int
}

// NewTemplateGenerator creates a generator over the given texts.
func NewTemplateGenerator(texts []string) *TemplateGenerator {
	return &TemplateGenerator{texts: texts, intn: rand.Intn}
}

// Generate returns one of the configured texts.
func (g *TemplateGenerator) Generate(targetID string) (string, error) {
	if len(g.texts) == 0 {
		return "", errors.New("no comment texts configured")
	}
	text := g.texts[g.intn(len(g.texts))]
	return strings.ReplaceAll(text, "{target}", targetID), nil
}
