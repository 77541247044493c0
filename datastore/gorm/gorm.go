package gorm

import (
	"time"

	"github.com/halcyon-mobile/message-settings-api/configs"
	"github.com/halcyon-mobile/message-settings-api/migrations"
	"github.com/jpillora/backoff"
	"gorm.io/gorm"
)

const connectMaxAttempts = 5

// New opens a database connection per the application config, retrying
// with a backoff as the database may still be starting up, and runs the
// pending schema migrations.
func New(cfg *configs.Config) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	b := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var db *gorm.DB
	for {
		db, err = gorm.Open(d, options())
		if err == nil {
			break
		}
		if int(b.Attempt()) >= connectMaxAttempts-1 {
			return nil, err
		}
		time.Sleep(b.Duration())
	}

	if err := migrations.Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		panic("unable to close database")
	}
	err = sqlDB.Close()
	if err != nil {
		panic("unable to close database")
	}
}
