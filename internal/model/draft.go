package model

import (
	"regexp"
	"strings"
)

type SegmentKind string

const (
	SegmentTitle     SegmentKind = "title"
	SegmentSubtitle  SegmentKind = "subtitle"
	SegmentParagraph SegmentKind = "paragraph"
)

type Segment struct {
	Kind SegmentKind
	Text string
}

var (
	segmentTagRegex = regexp.MustCompile(`(?i)^\[(title|subtitle|paragraph)\]\s*`)
	citationRegex   = regexp.MustCompile(`\[source:\s*([^\]]+?)\s*\]`)
)

// ParseDraft splits tagged draft text into segments. Lines without a
// recognized tag are paragraphs.
func ParseDraft(text string) []Segment {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	segments := make([]Segment, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kind := SegmentParagraph
		if loc := segmentTagRegex.FindStringSubmatchIndex(line); loc != nil {
			kind = SegmentKind(strings.ToLower(line[loc[2]:loc[3]]))
			line = strings.TrimSpace(line[loc[1]:])
			if line == "" {
				continue
			}
		}
		segments = append(segments, Segment{Kind: kind, Text: line})
	}
	return segments
}

// Citations returns the distinct source identifiers referenced with
// [source: <id>] in order of first appearance.
func Citations(text string) []string {
	matches := citationRegex.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		id := strings.TrimSpace(m[1])
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
