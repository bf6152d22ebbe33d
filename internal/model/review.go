package model

type Comments struct {
	Strengths    string `json:"strengths"`
	Improvements string `json:"improvements"`
}

// Review is the critic verdict on a draft. Score is nil when the backend
// response could not be parsed; Raw then holds the response verbatim.
type Review struct {
	Comments Comments `json:"comments"`
	Score    *float64 `json:"note"`
	Raw      string   `json:"raw,omitempty"`
}

// Scored reports the score used for threshold comparison, treating an
// unscored review as zero.
func (r *Review) Scored() float64 {
	if r == nil || r.Score == nil {
		return 0
	}
	return *r.Score
}
