package prefstore

import (
	"context"
	"sync"
	"time"

	"github.com/halcyon-mobile/message-settings-api/datastore/lib"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Preference struct {
	Key       string         `gorm:"column:key;primaryKey"`
	Value     datatypes.JSON `gorm:"column:value"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

func (Preference) TableName() string {
	return StoreName
}

type subscriber struct {
	ch chan Snapshot
}

// push delivers a snapshot without blocking. A pending undelivered
// snapshot is replaced so the consumer always gets the latest.
func (s *subscriber) push(snap Snapshot) {
	select {
	case s.ch <- snap:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- snap:
		default:
		}
	}
}

type GormStore struct {
	db *gorm.DB

	// Serializes Mutate calls within this process and orders new
	// subscriptions against them, so a subscriber's first snapshot is
	// never older than the latest in-process commit. Cross-process
	// serialization comes from the SQL transaction and row locks.
	mutateMutex sync.Mutex

	subsMutex     sync.Mutex
	subs          map[uint64]*subscriber
	nextSubID     uint64
	lastPublished Snapshot
	closed        bool
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, subs: make(map[uint64]*subscriber)}
}

func snapshotFromRows(rows []Preference) Snapshot {
	snap := make(Snapshot, len(rows))
	for _, row := range rows {
		snap[row.Key] = append([]byte(nil), row.Value...)
	}
	return snap
}

func (s *GormStore) Read(ctx context.Context) (Snapshot, error) {
	var rows []Preference
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return snapshotFromRows(rows), nil
}

func (s *GormStore) Mutate(ctx context.Context, fn Transform) (Snapshot, error) {
	s.mutateMutex.Lock()
	defer s.mutateMutex.Unlock()

	var next Snapshot

	err := lib.GormTransaction(s.db, func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)

		q := tx
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var rows []Preference
		if err := q.Find(&rows).Error; err != nil {
			return err // rollback
		}

		current := snapshotFromRows(rows)

		var err error
		next, err = fn(current.Clone())
		if err != nil {
			return err // rollback
		}

		// Upsert added and changed keys
		for key, value := range next {
			if prev, ok := current[key]; ok && s.equalRaw(prev, value) {
				continue
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&Preference{Key: key, Value: datatypes.JSON(value)}).Error
			if err != nil {
				return err // rollback
			}
		}

		// Delete removed keys
		for key := range current {
			if _, ok := next[key]; ok {
				continue
			}
			if err := tx.Delete(&Preference{}, "key = ?", key).Error; err != nil {
				return err // rollback
			}
		}

		return nil // commit
	})

	if err != nil {
		return nil, err
	}

	s.publish(next)

	return next, nil
}

func (s *GormStore) equalRaw(a, b []byte) bool {
	return string(a) == string(b)
}

func (s *GormStore) Subscribe(ctx context.Context) (<-chan Snapshot, func(), error) {
	// Hold the mutate lock while reading and registering. Without it a
	// commit could land between the two and its publish would miss the
	// subscriber, leaving its initial snapshot stale until the next
	// write.
	s.mutateMutex.Lock()
	defer s.mutateMutex.Unlock()

	snap, err := s.Read(ctx)
	if err != nil {
		return nil, nil, err
	}

	s.subsMutex.Lock()
	defer s.subsMutex.Unlock()

	if s.closed {
		return nil, nil, ErrStoreClosed
	}

	id := s.nextSubID
	s.nextSubID++

	sub := &subscriber{ch: make(chan Snapshot, 1)}
	s.subs[id] = sub
	sub.push(snap)
	s.lastPublished = snap

	cancel := func() {
		s.subsMutex.Lock()
		defer s.subsMutex.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub.ch)
		}
	}

	return sub.ch, cancel, nil
}

// publish fans a committed snapshot out to all subscribers.
func (s *GormStore) publish(snap Snapshot) {
	s.subsMutex.Lock()
	defer s.subsMutex.Unlock()
	if s.closed {
		return
	}
	s.lastPublished = snap
	for _, sub := range s.subs {
		sub.push(snap)
	}
}

// publishIfChanged is used by the poller to surface commits made by
// external writers. Snapshots identical to the last published one are
// dropped.
func (s *GormStore) publishIfChanged(snap Snapshot) {
	s.subsMutex.Lock()
	defer s.subsMutex.Unlock()
	if s.closed {
		return
	}
	if s.lastPublished.Equal(snap) {
		return
	}
	s.lastPublished = snap
	for _, sub := range s.subs {
		sub.push(snap)
	}
}

// Close terminates all subscriptions. Further Subscribe calls fail with
// ErrStoreClosed; Read and Mutate keep working until the database
// connection is closed.
func (s *GormStore) Close() {
	s.subsMutex.Lock()
	defer s.subsMutex.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub.ch)
	}
}
