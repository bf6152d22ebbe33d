package refine

import (
	"go.uber.org/zap"

	"github.com/xxxsen/newsdesk/internal/model"
)

type Phase string

const (
	PhasePlanning      Phase = "planning"
	PhaseDrafting      Phase = "drafting"
	PhaseCritiquing    Phase = "critiquing"
	PhaseAwaitingHuman Phase = "awaiting_human"
	PhaseLooping       Phase = "looping"
	PhaseTerminal      Phase = "terminal"
)

type State struct {
	Iteration        int
	Draft            string
	Review           *model.Review
	CombinedFeedback string
	HumanSatisfied   bool
}

// Session is the state of one request. Only its owner may touch it.
type Session struct {
	ID      string
	Request string
	Phase   Phase
	Docs    model.ContextSet
	Outline string
	State   State
	// Interrupted is set when a later round failed and the session ended
	// on the previous draft.
	Interrupted error

	logger *zap.Logger
}

type Answer struct {
	Satisfied bool
	Feedback  string
}

type Checkpoint struct {
	Iteration int
	Draft     string
	Review    *model.Review
}

func (s *Session) Checkpoint() Checkpoint {
	return Checkpoint{Iteration: s.State.Iteration, Draft: s.State.Draft, Review: s.State.Review}
}

func (s *Session) Done() bool {
	return s.Phase == PhaseTerminal
}

type Result struct {
	RequestID   string
	Draft       string
	Comments    model.Comments
	Score       *float64
	Iterations  int
	Approved    bool
	Sources     []string
	Citations   []string
	Interrupted error
}

func (s *Session) Result() *Result {
	res := &Result{
		RequestID:   s.ID,
		Draft:       s.State.Draft,
		Iterations:  s.State.Iteration,
		Approved:    s.State.HumanSatisfied,
		Sources:     s.Docs.SourceIDs(),
		Citations:   model.Citations(s.State.Draft),
		Interrupted: s.Interrupted,
	}
	if s.State.Review != nil {
		res.Comments = s.State.Review.Comments
		res.Score = s.State.Review.Score
	}
	return res
}
