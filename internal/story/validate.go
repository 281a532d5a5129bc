package story

import (
	"fmt"
	"strings"
)

const (
	crucibleMinSentences = 1
	crucibleMaxSentences = 3
)

// allowedLinkTypes maps a source scene kind to the edge types it may
// originate. Bridges and chapter breaks are structural and may start from
// either kind.
var allowedLinkTypes = map[SceneKind]map[LinkType]bool{
	SceneKindGoal: {
		LinkSetbackReaction: true,
		LinkVictoryGoal:     true,
		LinkMixedReaction:   true,
		LinkMixedGoal:       true,
		LinkBridge:          true,
		LinkChapterBreak:    true,
	},
	SceneKindReaction: {
		LinkDecisionGoal: true,
		LinkBridge:       true,
		LinkChapterBreak: true,
	},
}

// ValidateSceneCard checks the structural invariants of a scene card:
// known kind, matching plan variant, and a crucible of 1-3 sentences.
func ValidateSceneCard(card *SceneCard) error {
	if card.ID == "" {
		return fmt.Errorf("%w: scene card id is required", ErrConstraintViolation)
	}
	if card.ProjectID == "" {
		return fmt.Errorf("%w: scene card project id is required", ErrConstraintViolation)
	}
	if card.Kind != SceneKindGoal && card.Kind != SceneKindReaction {
		return fmt.Errorf("%w: unknown scene kind %q", ErrConstraintViolation, card.Kind)
	}
	if card.Plan.Plan == nil {
		return fmt.Errorf("%w: scene card %q has no plan payload", ErrConstraintViolation, card.ID)
	}
	if card.Plan.Plan.PlanKind() != card.Kind {
		return fmt.Errorf("%w: scene card %q is %s-kind but carries a %s plan",
			ErrConstraintViolation, card.ID, card.Kind, card.Plan.Plan.PlanKind())
	}
	if err := validateCrucible(card.Crucible); err != nil {
		return fmt.Errorf("%w: scene card %q: %v", ErrConstraintViolation, card.ID, err)
	}
	return nil
}

func validateCrucible(crucible string) error {
	trimmed := strings.TrimSpace(crucible)
	if trimmed == "" {
		return fmt.Errorf("crucible is required")
	}
	sentences := countSentences(trimmed)
	if sentences < crucibleMinSentences || sentences > crucibleMaxSentences {
		return fmt.Errorf("crucible must be %d-%d sentences, found %d",
			crucibleMinSentences, crucibleMaxSentences, sentences)
	}
	return nil
}

// countSentences counts sentence-terminal punctuation, collapsing runs such
// as "?!" or "..." into a single boundary.
func countSentences(text string) int {
	count := 0
	inRun := false
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if !inRun {
				count++
				inRun = true
			}
		default:
			inRun = false
		}
	}
	if count == 0 && strings.TrimSpace(text) != "" {
		return 1
	}
	return count
}

// ValidateChainLink checks the structural invariants of a chain link: known
// edge type, present source reference, score bounds, and edge-type
// consistency with the source scene's kind.
func ValidateChainLink(link *ChainLink) error {
	if link.ID == "" {
		return fmt.Errorf("%w: chain link id is required", ErrConstraintViolation)
	}
	if link.ProjectID == "" {
		return fmt.Errorf("%w: chain link project id is required", ErrConstraintViolation)
	}
	if link.SourceSceneID == "" {
		return fmt.Errorf("%w: chain link %q has no source scene", ErrConstraintViolation, link.ID)
	}
	if link.Score < 0 || link.Score > 1 {
		return fmt.Errorf("%w: chain link %q score %v outside [0,1]", ErrConstraintViolation, link.ID, link.Score)
	}
	allowed, known := allowedLinkTypes[link.SourceKind]
	if !known {
		return fmt.Errorf("%w: chain link %q has unknown source kind %q", ErrConstraintViolation, link.ID, link.SourceKind)
	}
	if !allowed[link.LinkType] {
		return fmt.Errorf("%w: chain link %q: %s scenes cannot originate %s edges",
			ErrConstraintViolation, link.ID, link.SourceKind, link.LinkType)
	}
	return nil
}
