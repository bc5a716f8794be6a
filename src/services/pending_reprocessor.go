package services

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/username/ahorrito/src/database"
	"github.com/username/ahorrito/src/logger"
	"github.com/username/ahorrito/src/models"
)

type reprocessOutcome int

const (
	outcomeCompleted reprocessOutcome = iota
	outcomeStillPending
	outcomeAlreadyFinal
)

// ProcessPendingForUser sweeps one user's PENDING transactions.
func (s *transactionServiceImpl) ProcessPendingForUser(userID int64) (*SweepReport, error) {
	report, err := s.sweepPending(
		`SELECT `+transactionColumns+` FROM transactions WHERE status = ? AND user_id = ? ORDER BY id ASC`,
		string(models.StatusPending), userID,
	)
	if report != nil {
		report.UserID = userID
	}
	return report, err
}

// ProcessAllPending sweeps every PENDING transaction; used by the
// scheduled sweep.
func (s *transactionServiceImpl) ProcessAllPending() (*SweepReport, error) {
	return s.sweepPending(
		`SELECT `+transactionColumns+` FROM transactions WHERE status = ? ORDER BY id ASC`,
		string(models.StatusPending),
	)
}

// sweepPending revisits PENDING rows one by one. A failure marks only
// that row FAILED and the sweep continues with the rest.
func (s *transactionServiceImpl) sweepPending(query string, args ...interface{}) (*SweepReport, error) {
	rows, err := database.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying pending transactions: %w", err)
	}
	defer rows.Close()

	var pending []models.Transaction
	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("error scanning pending transaction: %w", scanErr)
		}
		pending = append(pending, *tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over pending transactions: %w", err)
	}

	report := &SweepReport{
		Scanned:      len(pending),
		Completed:    []int64{},
		StillPending: []int64{},
		Skipped:      []int64{},
		Failed:       []int64{},
	}

	for i := range pending {
		tx := &pending[i]
		outcome, err := s.reprocessPending(tx)
		if err != nil {
			logger.L.Error("Reprocessing pending transaction failed",
				"transactionID", tx.ID, "userID", tx.UserID, "error", err)
			s.markFailed(tx.ID)
			report.Failed = append(report.Failed, tx.ID)
			continue
		}
		switch outcome {
		case outcomeCompleted:
			report.Completed = append(report.Completed, tx.ID)
		case outcomeStillPending:
			report.StillPending = append(report.StillPending, tx.ID)
		case outcomeAlreadyFinal:
			report.Skipped = append(report.Skipped, tx.ID)
		}
	}

	logger.L.Info("Pending sweep finished",
		"scanned", report.Scanned,
		"completed", len(report.Completed),
		"stillPending", len(report.StillPending),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed))
	return report, nil
}

// reprocessPending re-attempts the balance decision for one PENDING
// transaction. In "grant" mode the deferred saving is applied in full;
// in "recheck" mode the balance policy runs again against the current
// configuration and may defer once more.
func (s *transactionServiceImpl) reprocessPending(tx *models.Transaction) (reprocessOutcome, error) {
	saving := tx.RealizedSaving()

	if s.reprocessMode == "recheck" {
		cfg, err := s.getSavingsConfig(tx.UserID)
		if err != nil {
			return 0, err
		}
		candidate := *tx
		s.policyResolver.Resolve(&candidate, cfg)
		if candidate.Status == models.StatusPending {
			return outcomeStillPending, nil
		}
		saving = candidate.RealizedSaving()
	}

	return s.finalizePending(tx, saving)
}

// finalizePending flips PENDING to COMPLETED and applies the saving in
// one database transaction. The status check in the UPDATE's WHERE
// clause is the idempotence guard: a row already finalized by a
// concurrent request (or cancelled externally) affects zero rows and
// the ledger total is left alone.
func (s *transactionServiceImpl) finalizePending(tx *models.Transaction, saving decimal.Decimal) (reprocessOutcome, error) {
	dbTx, err := database.DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	res, err := dbTx.Exec(
		`UPDATE transactions SET status = ?, saving_amount_cents = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
		string(models.StatusCompleted), models.ToCents(saving), tx.ID, string(models.StatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("error completing pending transaction %d: %w", tx.ID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rowsAffected == 0 {
		// Lost the race with a concurrent finalize or cancel; nothing to apply.
		return outcomeAlreadyFinal, nil
	}

	if saving.IsPositive() {
		if err := applySavingIncrement(dbTx, tx.UserID, models.ToCents(saving)); err != nil {
			return 0, err
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing reprocessed transaction %d: %w", tx.ID, err)
	}

	tx.Status = models.StatusCompleted
	tx.SavingAmount = &saving
	return outcomeCompleted, nil
}

// markFailed records a sweep failure on the row itself; the status
// guard keeps already-terminal rows intact.
func (s *transactionServiceImpl) markFailed(transactionID int64) {
	_, err := database.DB.Exec(
		`UPDATE transactions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
		string(models.StatusFailed), transactionID, string(models.StatusPending),
	)
	if err != nil {
		logger.L.Error("Could not mark transaction FAILED", "transactionID", transactionID, "error", err)
	}
}
