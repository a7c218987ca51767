package core

import (
	"context"
	"fmt"

	"headerswitch/logger"
	"headerswitch/models"
)

// RuleEngine is the network engine holding the installed dynamic rules.
type RuleEngine interface {
	DynamicRuleIDs(ctx context.Context) ([]int, error)
	UpdateDynamicRules(ctx context.Context, update models.RuleUpdate) error
}

// Synchronizer swaps the engine's rule set for a freshly compiled one.
type Synchronizer struct {
	engine RuleEngine
}

func NewSynchronizer(engine RuleEngine) *Synchronizer {
	return &Synchronizer{engine: engine}
}

// Sync removes every installed rule id and adds directives in one update. The installed ids
// are re-read each time, so rules added by anyone else are replaced too.
func (s *Synchronizer) Sync(ctx context.Context, directives []models.Directive) error {
	oldIDs, err := s.engine.DynamicRuleIDs(ctx)
	if err != nil {
		return fmt.Errorf("reading installed rule ids: %w", err)
	}

	update := models.RuleUpdate{
		RemoveRuleIDs: oldIDs,
		AddRules:      directives,
	}
	if err := s.engine.UpdateDynamicRules(ctx, update); err != nil {
		return fmt.Errorf("replacing %d installed rules with %d directives: %w", len(oldIDs), len(directives), err)
	}
	logger.Debug("Synchronizer: replaced %d installed rules with %d directives", len(oldIDs), len(directives))
	return nil
}
