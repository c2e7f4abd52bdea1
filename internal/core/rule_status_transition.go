package core

import (
	"batchledger/pkg/domain"
	"context"
	"fmt"
)

// StatusTransitionRule blocks status values outside the lifecycle table. The
// service validates transitions up front; this rule is the commit-time guard
// that keeps any future write path honest.
func StatusTransitionRule() domain.Rule {
	return statusTransitionRule{}
}

type statusTransitionRule struct{}

func (statusTransitionRule) Name() string { return "status_transition" }

func (statusTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.After == nil {
			continue
		}
		after := change.After
		if !after.Status.Valid() {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "status_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("batch %s is set to unknown status %q", after.ID, after.Status),
				BatchID:  after.ID,
			})
			continue
		}
		switch change.Action {
		case domain.ActionCreate:
			if after.Status != domain.StatusCreated {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "status_transition",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("batch %s created in non-initial status %s", after.ID, after.Status),
					BatchID:  after.ID,
				})
			}
		case domain.ActionUpdate:
			if change.Before == nil || change.Before.Status == after.Status {
				continue
			}
			before := change.Before
			if before.Status.Terminal() {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "status_transition",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("cannot move batch %s out of terminal status %s", after.ID, before.Status),
					BatchID:  after.ID,
				})
				continue
			}
			if _, ok := domain.LookupTransition(before.Status, after.Status); !ok {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "status_transition",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("batch %s has no transition from %s to %s", after.ID, before.Status, after.Status),
					BatchID:  after.ID,
				})
			}
		}
	}
	return res, nil
}
