package lib

import (
	"fmt"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type entry struct {
	ID    uint
	Value string
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.AutoMigrate(&entry{}); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

func TestGormTransactionCommits(t *testing.T) {
	db := testDB(t)

	err := GormTransaction(db, func(tx *gorm.DB) error {
		return tx.Create(&entry{Value: "kept"}).Error
	})
	if err != nil {
		t.Fatal(err)
	}

	var count int64
	if err := db.Model(&entry{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 row after commit, got %d", count)
	}
}

func TestGormTransactionRollsBackOnSqlite(t *testing.T) {
	db := testDB(t)

	err := GormTransaction(db, func(tx *gorm.DB) error {
		if err := tx.Create(&entry{Value: "discarded"}).Error; err != nil {
			return err
		}
		return fmt.Errorf("late failure")
	})
	if err == nil {
		t.Fatal("expected the function error to surface")
	}

	var count int64
	if err := db.Model(&entry{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected rows written before the failure to be rolled back, found %d", count)
	}
}
