package m20250812

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

//
// Initial migration. Types are snapshot here so that the schema state for
// this point in time is preserved and can be rolled back to from later
// migrations, in case there's a need.
//

const ID = "20250812"

type Preference struct {
	Key       string         `gorm:"column:key;primaryKey"`
	Value     datatypes.JSON `gorm:"column:value"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

func (Preference) TableName() string {
	return "app_preferences"
}

type IdempotencyStoreGormItem struct {
	Key        string    `gorm:"column:key;primary_key"`
	ExpiryDate time.Time `gorm:"column:expiry_date"`
}

func (IdempotencyStoreGormItem) TableName() string {
	return "idempotency_keys"
}

func Migrate(tx *gorm.DB) error {
	return tx.AutoMigrate(&Preference{}, &IdempotencyStoreGormItem{})
}

func Rollback(tx *gorm.DB) error {
	if err := tx.Migrator().DropTable(&IdempotencyStoreGormItem{}); err != nil {
		return err
	}
	return tx.Migrator().DropTable(&Preference{})
}
