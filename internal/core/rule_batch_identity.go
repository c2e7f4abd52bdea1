package core

import (
	"batchledger/pkg/domain"
	"context"
	"fmt"
)

// BatchIdentityRule blocks commits that alter the immutable identity of a
// batch after creation or admit a batch with a non-positive quantity.
func BatchIdentityRule() domain.Rule {
	return batchIdentityRule{}
}

type batchIdentityRule struct{}

func (batchIdentityRule) Name() string { return "batch_identity" }

func (batchIdentityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.After == nil {
			continue
		}
		after := change.After
		if after.Quantity <= 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "batch_identity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("batch %s has non-positive quantity %d", after.ID, after.Quantity),
				BatchID:  after.ID,
			})
		}
		if change.Action != domain.ActionUpdate || change.Before == nil {
			continue
		}
		before := change.Before
		if after.Quantity != before.Quantity {
			res.Violations = append(res.Violations, identityViolation(after.ID, "quantity"))
		}
		if after.OwnerRef != before.OwnerRef {
			res.Violations = append(res.Violations, identityViolation(after.ID, "owner_ref"))
		}
		if after.Label != before.Label {
			res.Violations = append(res.Violations, identityViolation(after.ID, "label"))
		}
		if !after.CreatedAt.Equal(before.CreatedAt) {
			res.Violations = append(res.Violations, identityViolation(after.ID, "created_at"))
		}
	}
	return res, nil
}

func identityViolation(batchID, field string) domain.Violation {
	return domain.Violation{
		Rule:     "batch_identity",
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf("batch %s field %s is immutable after creation", batchID, field),
		BatchID:  batchID,
	}
}
