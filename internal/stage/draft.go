package stage

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/newsdesk/internal/ai"
	"github.com/xxxsen/newsdesk/internal/model"
	"github.com/xxxsen/newsdesk/internal/prompt"
)

// DraftStage writes a tagged article body from the outline, optionally
// folding in feedback from the previous round.
type DraftStage struct {
	gen      ai.IGenerator
	tpl      prompt.DrafterPrompts
	maxChars int
}

func NewDraftStage(gen ai.IGenerator, tpl prompt.DrafterPrompts, maxChars int) *DraftStage {
	return &DraftStage{gen: gen, tpl: tpl, maxChars: maxChars}
}

func (s *DraftStage) Write(ctx context.Context, request string, outline string, docs model.ContextSet, feedback string) (string, error) {
	system, user := s.buildPrompt(request, outline, docs, feedback)
	logutil.GetLogger(ctx).Debug("writing draft",
		zap.Int("context_docs", len(docs)),
		zap.Bool("with_feedback", feedback != ""),
	)
	draft, err := s.gen.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("write draft: %w", err)
	}
	return draft, nil
}

func (s *DraftStage) buildPrompt(request string, outline string, docs model.ContextSet, feedback string) (string, string) {
	system := withContext(s.tpl.System, formatContext(s.tpl.ContextHeader, docs, s.maxChars))
	vars := map[string]string{
		"request":              request,
		"outline":              outline,
		"feedback":             "",
		"feedback_instruction": "",
	}
	if feedback != "" {
		vars["feedback"] = "\n\n" + s.tpl.FeedbackHeader + "\n" + feedback + "\n"
		vars["feedback_instruction"] = s.tpl.FeedbackInstruction
	}
	return system, prompt.Render(s.tpl.User, vars)
}
