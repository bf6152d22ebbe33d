package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/newsdesk/internal/ai"
	"github.com/xxxsen/newsdesk/internal/model"
	"github.com/xxxsen/newsdesk/internal/prompt"
)

var braceSpanRegex = regexp.MustCompile(`(?s)\{.*\}`)

// CriticStage scores a draft. Responses that cannot be parsed produce an
// unscored review rather than an error.
type CriticStage struct {
	gen ai.IGenerator
	tpl prompt.CriticPrompts
}

func NewCriticStage(gen ai.IGenerator, tpl prompt.CriticPrompts) *CriticStage {
	return &CriticStage{gen: gen, tpl: tpl}
}

func (s *CriticStage) Review(ctx context.Context, draft string) (*model.Review, error) {
	user := prompt.Render(s.tpl.ReviewTemplate, map[string]string{
		"draft":           draft,
		"response_format": s.tpl.ResponseFormat,
	})
	resp, err := s.gen.Complete(ctx, s.tpl.System, user)
	if err != nil {
		return nil, fmt.Errorf("review draft: %w", err)
	}
	review, perr := ParseReview(resp)
	if perr != nil {
		logutil.GetLogger(ctx).Warn("critique not parsable, iteration left unscored", zap.Error(perr))
		return &model.Review{Raw: resp}, nil
	}
	return review, nil
}

type rawReview struct {
	Comments *struct {
		Strengths    flexText `json:"strengths"`
		Improvements flexText `json:"improvements"`
	} `json:"comments"`
	Note json.RawMessage `json:"note"`
}

// ParseReview reads the first brace delimited span of resp as a review.
func ParseReview(resp string) (*model.Review, error) {
	span := braceSpanRegex.FindString(resp)
	if span == "" {
		return nil, fmt.Errorf("no json object in response")
	}
	var raw rawReview
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return nil, fmt.Errorf("decode review: %w", err)
	}
	score, err := parseNote(raw.Note)
	if err != nil {
		return nil, err
	}
	review := &model.Review{Score: &score}
	if raw.Comments != nil {
		review.Comments.Strengths = string(raw.Comments.Strengths)
		review.Comments.Improvements = string(raw.Comments.Improvements)
	}
	return review, nil
}

func parseNote(data json.RawMessage) (float64, error) {
	if len(data) == 0 || string(data) == "null" {
		return 0, fmt.Errorf("note missing")
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		return checkFinite(num)
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return 0, fmt.Errorf("note is not numeric: %s", string(data))
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		return 0, fmt.Errorf("note is not numeric: %q", str)
	}
	return checkFinite(num)
}

func checkFinite(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("note is not finite")
	}
	return v, nil
}

// flexText accepts a JSON string, a list of strings or any other value,
// kept as its JSON text.
type flexText string

func (f *flexText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexText(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = flexText(strings.Join(list, "\n"))
		return nil
	}
	*f = flexText(strings.TrimSpace(string(data)))
	return nil
}
