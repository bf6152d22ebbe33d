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

// PlanStage writes the article outline once per request.
type PlanStage struct {
	gen      ai.IGenerator
	tpl      prompt.PlannerPrompts
	maxChars int
}

func NewPlanStage(gen ai.IGenerator, tpl prompt.PlannerPrompts, maxChars int) *PlanStage {
	return &PlanStage{gen: gen, tpl: tpl, maxChars: maxChars}
}

func (s *PlanStage) Write(ctx context.Context, request string, docs model.ContextSet) (string, error) {
	system, user := s.buildPrompt(request, docs)
	logutil.GetLogger(ctx).Debug("writing outline", zap.Int("context_docs", len(docs)))
	outline, err := s.gen.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("write outline: %w", err)
	}
	return outline, nil
}

func (s *PlanStage) buildPrompt(request string, docs model.ContextSet) (string, string) {
	vars := map[string]string{"request": request}
	if len(docs) == 0 {
		return s.tpl.System, prompt.Render(s.tpl.User, vars)
	}
	system := withContext(s.tpl.System, formatContext(s.tpl.ContextHeader, docs, s.maxChars))
	return system, prompt.Render(s.tpl.UserWithContext, vars)
}
