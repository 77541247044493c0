package lib

import "gorm.io/gorm"

// GormTransaction performs a function on a gorm database transaction
// instance and commits only if the function succeeds. Any error rolls
// the whole transaction back, on sqlite as well as mysql and psql.
func GormTransaction(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
