package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/classifier.txt
	classifierRaw string

	//go:embed template/sqlgen.txt
	sqlgenRaw string

	//go:embed template/graphgen.txt
	graphgenRaw string

	//go:embed template/answer.txt
	answerRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Classifier string
	SQLGen     string
	GraphGen   string
	Answer     string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Classifier: strings.TrimSpace(classifierRaw),
		SQLGen:     strings.TrimSpace(sqlgenRaw),
		GraphGen:   strings.TrimSpace(graphgenRaw),
		Answer:     strings.TrimSpace(answerRaw),
	}
}
