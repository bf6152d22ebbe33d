package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/newsdesk/internal/model"
	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

const (
	DefaultMaxIter       = 5
	DefaultNoteThreshold = 8.0
)

type Retriever interface {
	Collect(ctx context.Context, request string) (model.ContextSet, error)
}

type Planner interface {
	Write(ctx context.Context, request string, docs model.ContextSet) (string, error)
}

type Drafter interface {
	Write(ctx context.Context, request string, outline string, docs model.ContextSet, feedback string) (string, error)
}

type Critic interface {
	Review(ctx context.Context, draft string) (*model.Review, error)
}

type Options struct {
	MaxIter       int
	// NoteThreshold nil means DefaultNoteThreshold. Zero stops after the
	// first round.
	NoteThreshold *float64
}

// Controller sequences retrieval, planning and the draft/critique loop.
// It keeps no per request state; every request owns its Session.
type Controller struct {
	retriever Retriever
	planner   Planner
	drafter   Drafter
	critic    Critic
	opts      Options
	threshold float64
}

func NewController(retriever Retriever, planner Planner, drafter Drafter, critic Critic, opts Options) *Controller {
	if opts.MaxIter <= 0 {
		opts.MaxIter = DefaultMaxIter
	}
	threshold := DefaultNoteThreshold
	if opts.NoteThreshold != nil {
		threshold = *opts.NoteThreshold
	}
	return &Controller{
		retriever: retriever,
		planner:   planner,
		drafter:   drafter,
		critic:    critic,
		opts:      opts,
		threshold: threshold,
	}
}

// Run iterates until the critic score reaches the threshold or the
// iteration budget is spent. An unscored review counts as zero.
func (c *Controller) Run(ctx context.Context, request string) (*Result, error) {
	s, err := c.begin(ctx, request)
	if err != nil {
		return nil, err
	}
	for {
		if err := c.iterate(ctx, s); err != nil {
			return nil, err
		}
		if s.Phase == PhaseTerminal {
			break
		}
		score := s.State.Review.Scored()
		if score >= c.threshold || s.State.Iteration >= c.opts.MaxIter {
			s.logger.Info("refinement finished",
				zap.Int("iterations", s.State.Iteration),
				zap.Float64("score", score),
			)
			s.Phase = PhaseTerminal
			break
		}
		s.Phase = PhaseLooping
		s.State.CombinedFeedback = ComposeFeedback(s.State.Review, "")
	}
	return s.Result(), nil
}

// Start runs retrieval, planning and the first draft/critique round, then
// suspends the session for a human verdict.
func (c *Controller) Start(ctx context.Context, request string) (*Session, error) {
	s, err := c.begin(ctx, request)
	if err != nil {
		return nil, err
	}
	if err := c.iterate(ctx, s); err != nil {
		return nil, err
	}
	c.suspend(s)
	return s, nil
}

// Resume applies a human verdict to a suspended session. Approval ends the
// session whatever the score; otherwise another round runs while budget
// remains.
func (c *Controller) Resume(ctx context.Context, s *Session, answer Answer) error {
	if s == nil || s.Phase != PhaseAwaitingHuman {
		return fmt.Errorf("session is not awaiting input: %w", appErr.ErrInvalid)
	}
	if answer.Satisfied {
		s.State.HumanSatisfied = true
		s.Phase = PhaseTerminal
		s.logger.Info("draft approved", zap.Int("iterations", s.State.Iteration))
		return nil
	}
	if s.State.Iteration >= c.opts.MaxIter {
		s.Phase = PhaseTerminal
		s.logger.Info("iteration budget spent without approval", zap.Int("iterations", s.State.Iteration))
		return nil
	}
	s.Phase = PhaseLooping
	s.State.CombinedFeedback = ComposeFeedback(s.State.Review, answer.Feedback)
	if err := c.iterate(ctx, s); err != nil {
		return err
	}
	c.suspend(s)
	return nil
}

func (c *Controller) suspend(s *Session) {
	if s.Phase == PhaseTerminal {
		return
	}
	s.Phase = PhaseAwaitingHuman
}

func (c *Controller) begin(ctx context.Context, request string) (*Session, error) {
	id := uuid.NewString()
	logger := logutil.GetLogger(ctx).With(zap.String("request_id", id))
	s := &Session{ID: id, Request: request, Phase: PhasePlanning, logger: logger}

	docs, err := c.retriever.Collect(ctx, request)
	if err != nil {
		if isFatal(ctx, err) {
			return nil, fmt.Errorf("collect context: %w", err)
		}
		logger.Warn("retrieval failed, continuing without context", zap.Error(err))
		docs = model.ContextSet{}
	}
	s.Docs = docs
	logger.Info("context collected", zap.Strings("sources", docs.SourceIDs()))

	outline, err := c.planner.Write(ctx, request, docs)
	if err != nil {
		return nil, err
	}
	s.Outline = outline
	s.Phase = PhaseDrafting
	return s, nil
}

// iterate runs one draft/critique round. A failure after a draft exists
// ends the session with that draft instead of failing the request.
func (c *Controller) iterate(ctx context.Context, s *Session) error {
	s.Phase = PhaseDrafting
	draft, err := c.drafter.Write(ctx, s.Request, s.Outline, s.Docs, s.State.CombinedFeedback)
	if err != nil {
		if s.State.Draft == "" || isFatal(ctx, err) {
			return err
		}
		s.logger.Warn("drafting failed, keeping previous draft", zap.Int("iteration", s.State.Iteration), zap.Error(err))
		s.Interrupted = err
		s.Phase = PhaseTerminal
		return nil
	}
	s.State.Iteration++
	s.State.Draft = draft

	s.Phase = PhaseCritiquing
	review, err := c.critic.Review(ctx, draft)
	if err != nil {
		if isFatal(ctx, err) {
			return err
		}
		s.logger.Warn("critique failed, iteration left unscored", zap.Int("iteration", s.State.Iteration), zap.Error(err))
		review = &model.Review{Raw: err.Error()}
	}
	s.State.Review = review
	fields := []zap.Field{zap.Int("iteration", s.State.Iteration)}
	if review.Score != nil {
		fields = append(fields, zap.Float64("score", *review.Score))
	}
	s.logger.Info("draft reviewed", fields...)
	return nil
}

func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return true
	}
	return appErr.IsConfiguration(err) || appErr.IsAggregate(err)
}

// ComposeFeedback merges critic comments and optional human notes into the
// feedback block of the next draft.
func ComposeFeedback(review *model.Review, human string) string {
	var comments model.Comments
	if review != nil {
		comments = review.Comments
	}
	out := "Strengths:\n" + comments.Strengths + "\n\nAreas for improvement:\n" + comments.Improvements
	if h := strings.TrimSpace(human); h != "" {
		out += "\n\nUser feedback:\n" + h
	}
	return out
}
