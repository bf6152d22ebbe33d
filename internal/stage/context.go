package stage

import (
	"strings"

	"github.com/xxxsen/newsdesk/internal/model"
)

const previewSuffix = "..."

// formatContext renders the context articles as a prompt block, each text
// cut to maxChars characters. An empty set renders nothing.
func formatContext(header string, docs model.ContextSet, maxChars int) string {
	if len(docs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(docs)+1)
	parts = append(parts, header+"\n")
	for _, doc := range docs {
		parts = append(parts, "\n--- Source: "+doc.SourceID+" ---\n"+preview(doc.Text, maxChars)+"\n")
	}
	return strings.Join(parts, "\n")
}

func preview(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + previewSuffix
}

func withContext(system string, block string) string {
	if block == "" {
		return system
	}
	return system + "\n\n" + block
}
