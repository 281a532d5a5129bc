package story

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// SceneKind discriminates the two structural variants of a scene card.
type SceneKind string

const (
	// SceneKindGoal marks a goal-driven scene (goal / conflict / outcome).
	SceneKindGoal SceneKind = "goal"
	// SceneKindReaction marks a reaction-driven scene (reaction / dilemma / decision).
	SceneKindReaction SceneKind = "reaction"
)

// ScenePlan is the tagged structural payload of a scene card. Exactly one
// concrete variant exists per card, and it must agree with the card's Kind.
type ScenePlan interface {
	PlanKind() SceneKind
}

// GoalPlan is the payload of a goal-driven scene.
type GoalPlan struct {
	Goal     string `json:"goal"`
	Conflict string `json:"conflict"`
	Outcome  string `json:"outcome"`
}

// PlanKind implements ScenePlan.
func (GoalPlan) PlanKind() SceneKind { return SceneKindGoal }

// ReactionPlan is the payload of a reaction-driven scene.
type ReactionPlan struct {
	Reaction string `json:"reaction"`
	Dilemma  string `json:"dilemma"`
	Decision string `json:"decision"`
}

// PlanKind implements ScenePlan.
func (ReactionPlan) PlanKind() SceneKind { return SceneKindReaction }

// PlanColumn persists a ScenePlan as a tagged JSON TEXT column.
type PlanColumn struct {
	Plan ScenePlan
}

type planEnvelope struct {
	Kind     SceneKind     `json:"kind"`
	Goal     *GoalPlan     `json:"goal,omitempty"`
	Reaction *ReactionPlan `json:"reaction,omitempty"`
}

// MarshalJSON encodes the plan with its kind tag.
func (c PlanColumn) MarshalJSON() ([]byte, error) {
	if c.Plan == nil {
		return []byte("null"), nil
	}
	envelope := planEnvelope{Kind: c.Plan.PlanKind()}
	switch plan := c.Plan.(type) {
	case GoalPlan:
		envelope.Goal = &plan
	case *GoalPlan:
		envelope.Goal = plan
	case ReactionPlan:
		envelope.Reaction = &plan
	case *ReactionPlan:
		envelope.Reaction = plan
	default:
		return nil, fmt.Errorf("story: unknown scene plan type %T", c.Plan)
	}
	return json.Marshal(envelope)
}

// UnmarshalJSON decodes a tagged plan, rejecting envelopes whose tag and
// payload disagree.
func (c *PlanColumn) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		c.Plan = nil
		return nil
	}
	var envelope planEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("story: decode scene plan: %w", err)
	}
	switch envelope.Kind {
	case SceneKindGoal:
		if envelope.Goal == nil || envelope.Reaction != nil {
			return fmt.Errorf("%w: goal plan envelope carries wrong variant", ErrConstraintViolation)
		}
		c.Plan = *envelope.Goal
	case SceneKindReaction:
		if envelope.Reaction == nil || envelope.Goal != nil {
			return fmt.Errorf("%w: reaction plan envelope carries wrong variant", ErrConstraintViolation)
		}
		c.Plan = *envelope.Reaction
	default:
		return fmt.Errorf("%w: unknown scene plan kind %q", ErrConstraintViolation, envelope.Kind)
	}
	return nil
}

// Value implements driver.Valuer.
func (c PlanColumn) Value() (driver.Value, error) {
	data, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (c *PlanColumn) Scan(src any) error {
	raw, err := jsonColumnBytes(src)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		c.Plan = nil
		return nil
	}
	return c.UnmarshalJSON(raw)
}
