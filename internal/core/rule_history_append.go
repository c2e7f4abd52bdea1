package core

import (
	"batchledger/pkg/domain"
	"context"
	"fmt"
)

// HistoryAppendRule blocks commits that shrink, rewrite, or over-append a
// batch history. Every mutation must grow the audit trail by exactly one
// entry and leave earlier entries untouched.
func HistoryAppendRule() domain.Rule {
	return historyAppendRule{}
}

type historyAppendRule struct{}

func (historyAppendRule) Name() string { return "history_append" }

func (historyAppendRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.After == nil {
			continue
		}
		after := change.After
		switch change.Action {
		case domain.ActionCreate:
			if len(after.History) != 1 {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "history_append",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("batch %s created with %d history entries, want 1", after.ID, len(after.History)),
					BatchID:  after.ID,
				})
			}
		case domain.ActionUpdate:
			if change.Before == nil {
				continue
			}
			before := change.Before
			if len(after.History) != len(before.History)+1 {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "history_append",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("batch %s history grew from %d to %d entries, want exactly one append", after.ID, len(before.History), len(after.History)),
					BatchID:  after.ID,
				})
				continue
			}
			for i, entry := range before.History {
				if after.History[i] != entry {
					res.Violations = append(res.Violations, domain.Violation{
						Rule:     "history_append",
						Severity: domain.SeverityBlock,
						Message:  fmt.Sprintf("batch %s history entry %d was rewritten", after.ID, i),
						BatchID:  after.ID,
					})
					break
				}
			}
		}
	}
	return res, nil
}
