package service

import (
	"context"
	"fmt"

	"github.com/castlemilk/pfinance/spending/internal/model"
	"go.uber.org/zap"
)

// Report steps used in ReconcileFailure.Step.
const (
	stepLegacy = "legacy_sentinel"
	stepOrphan = "orphaned"
	stepMerge  = "merge"
	stepDelete = "delete"
)

// ReconcileCategories repairs the owner's category references in one pass:
//
//  1. ensure an "Uncategorized" category exists
//  2. point "misc" transactions at the owner's Misc category
//  3. point transactions with unknown category ids at Uncategorized
//  4. merge categories whose names differ only by case or spacing
//
// A failed write is recorded in the report and the pass moves on, so the
// pass never returns a partial error; re-running it is safe. Read failures
// abort the pass.
func (s *SpendingService) ReconcileCategories(ctx context.Context, ownerID string) (*model.ReconciliationReport, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	report := &model.ReconciliationReport{
		OwnerID:   ownerID,
		StartedAt: s.clock(),
		Actions:   make([]model.MergeAction, 0),
	}
	log := s.logger.With(zap.String("owner_id", ownerID))

	categories, err := s.store.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	uncategorized, err := s.ensureUncategorized(ctx, ownerID, categories)
	if err != nil {
		return nil, err
	}
	if !containsCategory(categories, uncategorized.ID) {
		categories = append(categories, uncategorized)
	}

	txs, err := s.store.ListTransactions(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	s.fixLegacyRefs(ctx, log, report, txs, categories, uncategorized)
	s.fixOrphans(ctx, log, report, txs, categories, uncategorized)
	s.mergeDuplicates(ctx, log, report, ownerID, categories)

	report.CompletedAt = s.clock()
	log.Info("Reconciliation pass complete",
		zap.Int("actions", len(report.Actions)),
		zap.Int("failures", len(report.Failures)),
	)

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, report); err != nil {
			log.Warn("Failed to record reconciliation report", zap.Error(err))
		}
	}
	return report, nil
}

// ensureUncategorized returns the owner's first category named
// Uncategorized, creating it if there is none.
func (s *SpendingService) ensureUncategorized(ctx context.Context, ownerID string, categories []*model.Category) (*model.Category, error) {
	if c := firstNamed(categories, model.UncategorizedName); c != nil {
		return c, nil
	}
	c, created, err := s.store.FindOrCreateCategory(ctx, ownerID,
		model.UncategorizedName, model.CategoryTypeExpense, model.UncategorizedColor)
	if err != nil {
		return nil, fmt.Errorf("failed to create uncategorized category: %w", err)
	}
	if created {
		s.logger.Info("Created uncategorized category",
			zap.String("owner_id", ownerID), zap.String("category_id", c.ID))
	}
	return c, nil
}

func (s *SpendingService) fixLegacyRefs(ctx context.Context, log *zap.Logger, report *model.ReconciliationReport, txs []*model.Transaction, categories []*model.Category, uncategorized *model.Category) {
	var legacy []*model.Transaction
	for _, tx := range txs {
		if tx.CategoryRef().IsLegacy() {
			legacy = append(legacy, tx)
		}
	}
	if len(legacy) == 0 {
		return
	}

	target := firstNamed(categories, model.MiscName)
	if target == nil && s.legacyToUncategorized {
		target = uncategorized
	}
	if target == nil {
		log.Debug("Leaving legacy misc transactions without a Misc category",
			zap.Int("count", len(legacy)))
		return
	}

	moved := s.reassignEach(ctx, log, report, stepLegacy, legacy, target.ID)
	if moved > 0 {
		report.Actions = append(report.Actions, model.MergeAction{
			Kind:      model.ActionLegacySentinel,
			KeepID:    target.ID,
			RemovedID: model.LegacyMiscRef,
			Moved:     moved,
		})
	}
}

func (s *SpendingService) fixOrphans(ctx context.Context, log *zap.Logger, report *model.ReconciliationReport, txs []*model.Transaction, categories []*model.Category, uncategorized *model.Category) {
	known := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		known[c.ID] = struct{}{}
	}

	var orphans []*model.Transaction
	for _, tx := range txs {
		ref := tx.CategoryRef()
		if !ref.IsID() {
			continue
		}
		if _, ok := known[ref.Value]; !ok {
			orphans = append(orphans, tx)
		}
	}

	moved := s.reassignEach(ctx, log, report, stepOrphan, orphans, uncategorized.ID)
	if moved > 0 {
		report.Actions = append(report.Actions, model.MergeAction{
			Kind:      model.ActionOrphaned,
			KeepID:    uncategorized.ID,
			RemovedID: model.OrphanedMarker,
			Moved:     moved,
		})
	}
}

// reassignEach moves each transaction to categoryID and returns how many
// moved. Failures go into the report.
func (s *SpendingService) reassignEach(ctx context.Context, log *zap.Logger, report *model.ReconciliationReport, step string, txs []*model.Transaction, categoryID string) int {
	moved := 0
	for _, tx := range txs {
		if err := s.store.UpdateTransaction(ctx, tx.ID, model.SetCategory(categoryID)); err != nil {
			log.Warn("Failed to reassign transaction",
				zap.String("step", step),
				zap.String("transaction_id", tx.ID),
				zap.Stringer("ref_kind", tx.CategoryRef().Kind),
				zap.Error(err),
			)
			report.Failures = append(report.Failures, model.ReconcileFailure{Step: step, ID: tx.ID, Error: err.Error()})
			continue
		}
		tx.CategoryID = categoryID
		moved++
	}
	return moved
}

// mergeDuplicates folds every category into the first category sharing its
// name key. A failure stops work on that name only.
func (s *SpendingService) mergeDuplicates(ctx context.Context, log *zap.Logger, report *model.ReconciliationReport, ownerID string, categories []*model.Category) {
	var keys []string
	groups := make(map[string][]*model.Category)
	for _, c := range categories {
		key := c.Key()
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], c)
	}

	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		canonical := group[0]
		for _, dup := range group[1:] {
			moved, err := s.store.ReassignCategory(ctx, ownerID, dup.ID, canonical.ID)
			if err != nil {
				log.Warn("Failed to merge duplicate category",
					zap.String("keep_id", canonical.ID),
					zap.String("removed_id", dup.ID),
					zap.Error(err),
				)
				report.Failures = append(report.Failures, model.ReconcileFailure{Step: stepMerge, ID: dup.ID, Error: err.Error()})
				break
			}
			if _, err := s.store.DeleteCategory(ctx, dup.ID); err != nil {
				log.Warn("Failed to delete merged category",
					zap.String("removed_id", dup.ID),
					zap.Error(err),
				)
				report.Failures = append(report.Failures, model.ReconcileFailure{Step: stepDelete, ID: dup.ID, Error: err.Error()})
				break
			}
			report.Actions = append(report.Actions, model.MergeAction{
				Kind:      model.ActionMerge,
				KeepID:    canonical.ID,
				RemovedID: dup.ID,
				Moved:     moved,
			})
		}
	}
}

func firstNamed(categories []*model.Category, name string) *model.Category {
	key := model.NameKey(name)
	for _, c := range categories {
		if c.Key() == key {
			return c
		}
	}
	return nil
}

func containsCategory(categories []*model.Category, id string) bool {
	for _, c := range categories {
		if c.ID == id {
			return true
		}
	}
	return false
}
