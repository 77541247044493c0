package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/halcyon-mobile/message-settings-api/migrations/internal/m20250812"
	"gorm.io/gorm"
)

func List() []*gormigrate.Migration {
	ms := []*gormigrate.Migration{
		{
			ID:       m20250812.ID,
			Migrate:  m20250812.Migrate,
			Rollback: m20250812.Rollback,
		},
	}
	return ms
}

// Migrate runs all pending migrations.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, List())
	return m.Migrate()
}
