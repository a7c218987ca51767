package core

import (
	"fmt"

	"headerswitch/logger"
	"headerswitch/models"
)

// ValidateRule reports why a rule would not be compiled.
func ValidateRule(rule models.HeaderRule) error {
	if !rule.Enabled {
		return fmt.Errorf("%w: rule is disabled", ErrMalformedRule)
	}
	if rule.TrimmedName() == "" {
		return fmt.Errorf("%w: header name is empty", ErrMalformedRule)
	}
	return nil
}

// CompileDirectives turns a profile's rule list into declarative directives: one per enabled
// rule with a non-empty name, ids dense from 1 in list order, universal scope, header value
// percent-encoded for non-ASCII characters.
func CompileDirectives(rules []models.HeaderRule) []models.Directive {
	directives := make([]models.Directive, 0, len(rules))
	nextID := 1
	for i, rule := range rules {
		if err := ValidateRule(rule); err != nil {
			logger.Debug("CompileDirectives: skipping rule %d: %v", i, err)
			continue
		}
		directives = append(directives, models.Directive{
			ID:       nextID,
			Priority: models.DirectivePriority,
			Action: models.Action{
				Type: models.ActionModifyHeaders,
				RequestHeaders: []models.RequestHeader{{
					Header:    rule.TrimmedName(),
					Operation: models.HeaderOperationSet,
					Value:     EncodeNonASCII(rule.Value),
				}},
			},
			Condition: models.Condition{
				URLFilter:     models.URLFilterAll,
				ResourceTypes: models.AllResourceTypes(),
			},
		})
		nextID++
	}
	return directives
}
