// Package model contains domain records passed between layers.
package model

import "time"

// Phase numbers as recorded on votes.
const (
	PhaseGeneration = 1
	PhaseSelection  = 2
)

// Positions a chosen option was rendered at.
const (
	PositionLeft  = "left"
	PositionRight = "right"
)

// Vote is one append-only judgement by a session.
//
// A "neither" answer in the generation phase is stored as one vote per
// rejected side with ChosenID == 0.
type Vote struct {
	ID         int64     `json:"id" yaml:"id"`
	SessionID  string    `json:"session_id" yaml:"session_id"`
	// Token is the continuation token the vote resolved.
	Token      string    `json:"token,omitempty" yaml:"token,omitempty"`
	Phase      int       `json:"phase" yaml:"phase"`
	Round      int       `json:"round" yaml:"round"`
	ChosenID   int64     `json:"chosen_id" yaml:"chosen_id"`
	RejectedID int64     `json:"rejected_id" yaml:"rejected_id"`
	Position   string    `json:"position,omitempty" yaml:"position,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// Neither reports whether the vote rejected both sides.
func (v Vote) Neither() bool { return v.ChosenID == 0 }

// Involves reports whether id took part in the vote.
func (v Vote) Involves(id int64) bool {
	return id != 0 && (v.ChosenID == id || v.RejectedID == id)
}

// Repoint replaces every reference to from with to.
func (v *Vote) Repoint(from, to int64) {
	if v.ChosenID == from {
		v.ChosenID = to
	}
	if v.RejectedID == from {
		v.RejectedID = to
	}
}
