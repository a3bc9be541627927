package orders

import (
	"fmt"
	"time"

	"github.com/jinzhu/gorm"

	"taproom/internal/apperr"
	"taproom/internal/broadcast"
	"taproom/internal/models"
	"taproom/internal/monitoring"
)

// resolveSession returns the table's open session, creating one (and
// occupying the table) when the table has none.
func (s *Service) resolveSession(tx *gorm.DB, table int, patron string) (*models.TabSession, error) {
	var session models.TabSession
	err := tx.Where("table_number = ? AND status = ?", table, models.SessionStatusOpen).
		First(&session).Error
	if err == nil {
		return &session, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, apperr.Persistence(err)
	}

	number, err := s.nextSessionNumber(tx)
	if err != nil {
		return nil, err
	}
	session = models.TabSession{
		Number:      number,
		Status:      models.SessionStatusOpen,
		TableNumber: table,
		PatronName:  patron,
	}
	if err := tx.Create(&session).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	if err := s.setTableOccupied(tx, table, true); err != nil {
		return nil, err
	}
	monitoring.OpenSessions.Inc()
	return &session, nil
}

// nextSessionNumber produces a human-readable, daily-sequenced identifier
// such as TAB-20250114-003.
func (s *Service) nextSessionNumber(tx *gorm.DB) (string, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	today := time.Now().Format("20060102")
	var count int
	err := tx.Model(&models.TabSession{}).
		Where("number LIKE ?", fmt.Sprintf("TAB-%s-%%", today)).
		Count(&count).Error
	if err != nil {
		return "", apperr.Persistence(err)
	}
	return fmt.Sprintf("TAB-%s-%03d", today, count+1), nil
}

// setTableOccupied flips a table's occupancy, creating the row on first use
func (s *Service) setTableOccupied(tx *gorm.DB, number int, occupied bool) error {
	var table models.Table
	err := tx.Where("number = ?", number).First(&table).Error
	if gorm.IsRecordNotFoundError(err) {
		table = models.Table{Number: number, Occupied: occupied}
		if err := tx.Create(&table).Error; err != nil {
			return apperr.Persistence(err)
		}
		return nil
	}
	if err != nil {
		return apperr.Persistence(err)
	}
	if err := tx.Model(&table).Update("occupied", occupied).Error; err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

// GetSession fetches a session with its orders
func (s *Service) GetSession(sessionID uint) (*models.TabSession, error) {
	var session models.TabSession
	if err := s.db.Preload("Orders").First(&session, sessionID).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, apperr.NotFound("session", sessionID)
		}
		return nil, apperr.Persistence(err)
	}
	return &session, nil
}

// recomputeSessionTotals rebuilds the session aggregates from its non-voided
// orders. Recomputing from source rows instead of patching increments is
// what keeps the session total from drifting.
func (s *Service) recomputeSessionTotals(tx *gorm.DB, sessionID uint) error {
	var orders []models.Order
	err := tx.Where("session_id = ? AND status <> ?", sessionID, models.OrderStatusVoided).
		Find(&orders).Error
	if err != nil {
		return apperr.Persistence(err)
	}
	var subtotal, total float64
	for _, o := range orders {
		subtotal += o.Subtotal
		total += o.Total
	}
	err = tx.Model(&models.TabSession{}).Where("id = ?", sessionID).
		Updates(map[string]interface{}{"subtotal": subtotal, "total": total}).Error
	if err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

// CloseSession terminally closes an open session and frees its table
func (s *Service) CloseSession(sessionID uint) (*models.TabSession, error) {
	return s.endSession(sessionID, models.SessionStatusClosed)
}

// AbandonSession terminally abandons an open session (walk-out) and frees
// its table
func (s *Service) AbandonSession(sessionID uint) (*models.TabSession, error) {
	return s.endSession(sessionID, models.SessionStatusAbandoned)
}

func (s *Service) endSession(sessionID uint, terminal models.SessionStatus) (*models.TabSession, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusOpen {
		return nil, apperr.InvalidTransition("session", string(session.Status), string(terminal))
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.recomputeSessionTotals(tx, sessionID); err != nil {
			return err
		}
		res := tx.Model(&models.TabSession{}).
			Where("id = ? AND status = ?", sessionID, models.SessionStatusOpen).
			Update("status", terminal)
		if res.Error != nil {
			return apperr.Persistence(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidTransition("session", string(session.Status), string(terminal))
		}
		return s.setTableOccupied(tx, session.TableNumber, false)
	})
	if err != nil {
		return nil, err
	}
	monitoring.OpenSessions.Dec()
	s.publish(broadcast.SessionTopic(sessionID), "session", session.Number, string(terminal))
	return s.GetSession(sessionID)
}

// TransferSession moves an open session to a different table. The whole
// sequence runs in one transaction: validation, the session's table
// reference, both tables' occupancy and every order's table reference either
// all apply or none do.
func (s *Service) TransferSession(sessionID uint, targetTable int) (*models.TabSession, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusOpen {
		return nil, apperr.InvalidTransition("session", string(session.Status), "transferred")
	}
	if targetTable <= 0 {
		return nil, apperr.Validationf("a target table number is required")
	}
	if targetTable == session.TableNumber {
		return nil, apperr.Validationf("session is already at table %d", targetTable)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var target models.Table
		if err := tx.Where("number = ?", targetTable).First(&target).Error; err != nil {
			if gorm.IsRecordNotFoundError(err) {
				return apperr.NotFound("table", targetTable)
			}
			return apperr.Persistence(err)
		}
		if target.Occupied {
			return apperr.Conflictf("table %d is occupied", targetTable)
		}
		var open int
		err := tx.Model(&models.TabSession{}).
			Where("table_number = ? AND status = ?", targetTable, models.SessionStatusOpen).
			Count(&open).Error
		if err != nil {
			return apperr.Persistence(err)
		}
		if open > 0 {
			return apperr.Conflictf("table %d already has an open session", targetTable)
		}

		if err := tx.Model(&models.TabSession{}).Where("id = ?", sessionID).
			Update("table_number", targetTable).Error; err != nil {
			return apperr.Persistence(err)
		}
		if err := s.setTableOccupied(tx, session.TableNumber, false); err != nil {
			return err
		}
		if err := s.setTableOccupied(tx, targetTable, true); err != nil {
			return err
		}
		if err := tx.Model(&models.Order{}).Where("session_id = ?", sessionID).
			Update("table_number", targetTable).Error; err != nil {
			return apperr.Persistence(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(broadcast.SessionTopic(sessionID), "session", session.Number, "transferred")
	return s.GetSession(sessionID)
}
