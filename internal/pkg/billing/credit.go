package billing

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bothive/bothive/app/models"
	"github.com/bothive/bothive/internal/pkg/apperr"
)

// Credit tops up a user's balance. The user row is locked so a credit can
// never interleave with a concurrent sweep's check-and-deduct.
func Credit(db *gorm.DB, userID uint, amount int64) error {
	if amount <= 0 {
		return apperr.New(apperr.KindValidation, "credit amount must be positive")
	}
	return db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
			return apperr.Wrap(apperr.KindNotFound, "user", err)
		}
		user.Balance += amount
		if err := tx.Save(&user).Error; err != nil {
			return apperr.Wrap(apperr.KindPersistence, "save balance", err)
		}
		return nil
	})
}
