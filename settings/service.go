package settings

import (
	"context"
	"encoding/json"

	"github.com/halcyon-mobile/message-settings-api/prefstore"
	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
)

// Service is the typed accessor over the preference store. It owns no
// goroutines and no locks of its own; serialization of writers and
// fan-out of change notifications are the store's concern.
type Service struct {
	store        prefstore.Store
	writeLimiter ratelimit.Limiter
}

func NewService(store prefstore.Store, opts ...ServiceOption) *Service {
	svc := &Service{store: store}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// GetBool returns the current persisted value of a boolean setting, or
// its default when the key has never been written.
func (svc *Service) GetBool(ctx context.Context, setting BoolSetting) (bool, error) {
	snap, err := svc.store.Read(ctx)
	if err != nil {
		return false, err
	}
	return setting.fromSnapshot(snap)
}

// SetBool transactionally writes a boolean setting. Other keys are left
// untouched. The call returns once the write is durably applied.
func (svc *Service) SetBool(ctx context.Context, setting BoolSetting, value bool) error {
	if svc.writeLimiter != nil {
		svc.writeLimiter.Take()
	}

	log.WithFields(log.Fields{"key": setting.Key, "value": value}).Trace("Set setting")

	_, err := svc.store.Mutate(ctx, func(snap prefstore.Snapshot) (prefstore.Snapshot, error) {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		snap[setting.Key] = raw
		return snap, nil
	})
	return err
}

func (svc *Service) GetFloat(ctx context.Context, setting FloatSetting) (float32, error) {
	snap, err := svc.store.Read(ctx)
	if err != nil {
		return 0, err
	}
	return setting.fromSnapshot(snap)
}

// SetFloat transactionally writes a numeric setting, clamped to the
// setting's range before persisting.
func (svc *Service) SetFloat(ctx context.Context, setting FloatSetting, value float32) error {
	if svc.writeLimiter != nil {
		svc.writeLimiter.Take()
	}

	clamped := setting.Clamp(value)

	log.WithFields(log.Fields{"key": setting.Key, "value": clamped}).Trace("Set setting")

	_, err := svc.store.Mutate(ctx, func(snap prefstore.Snapshot) (prefstore.Snapshot, error) {
		raw, err := json.Marshal(clamped)
		if err != nil {
			return nil, err
		}
		snap[setting.Key] = raw
		return snap, nil
	})
	return err
}

// WatchBool streams the value of a boolean setting. The current value
// is delivered immediately; afterwards a value is delivered whenever
// the key changes, conflated to the latest when the consumer is slow.
// Writes to unrelated keys do not emit. The stream ends when the cancel
// func is called, the context is done or the store shuts down. A stored
// value that no longer decodes ends the stream as an unrecoverable
// fault.
func (svc *Service) WatchBool(ctx context.Context, setting BoolSetting) (<-chan bool, func(), error) {
	snaps, cancel, err := svc.store.Subscribe(ctx)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan bool, 1)

	go func() {
		defer close(out)
		defer cancel()

		var last *bool

		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snaps:
				if !ok {
					return
				}
				v, err := setting.fromSnapshot(snap)
				if err != nil {
					log.WithFields(log.Fields{"key": setting.Key, "error": err}).Error("Watch terminated")
					return
				}
				if last != nil && *last == v {
					continue
				}
				last = &v
				pushBool(out, v)
			}
		}
	}()

	return out, cancel, nil
}

// WatchFloat is WatchBool for numeric settings.
func (svc *Service) WatchFloat(ctx context.Context, setting FloatSetting) (<-chan float32, func(), error) {
	snaps, cancel, err := svc.store.Subscribe(ctx)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan float32, 1)

	go func() {
		defer close(out)
		defer cancel()

		var last *float32

		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snaps:
				if !ok {
					return
				}
				v, err := setting.fromSnapshot(snap)
				if err != nil {
					log.WithFields(log.Fields{"key": setting.Key, "error": err}).Error("Watch terminated")
					return
				}
				if last != nil && *last == v {
					continue
				}
				last = &v
				pushFloat(out, v)
			}
		}
	}()

	return out, cancel, nil
}

// GetSettings reads all settings from a single snapshot.
func (svc *Service) GetSettings(ctx context.Context) (*Settings, error) {
	snap, err := svc.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	return settingsFromSnapshot(snap)
}

// SaveSettings persists an aggregate in one transaction. Only fields
// that differ from the currently persisted state are written, so an
// unchanged field neither materializes its default in storage nor wakes
// its watchers.
func (svc *Service) SaveSettings(ctx context.Context, settings *Settings) error {
	if svc.writeLimiter != nil {
		svc.writeLimiter.Take()
	}

	log.WithFields(log.Fields{"settings": settings}).Trace("Save settings")

	_, err := svc.store.Mutate(ctx, func(snap prefstore.Snapshot) (prefstore.Snapshot, error) {
		current, err := settingsFromSnapshot(snap)
		if err != nil {
			return nil, err
		}

		bools := []struct {
			setting BoolSetting
			current bool
			next    bool
		}{
			{DeliveryReportsEnabled, current.DeliveryReportsEnabled, settings.DeliveryReportsEnabled},
			{MMSAutoDownloadWifi, current.MMSAutoDownloadWifi, settings.MMSAutoDownloadWifi},
			{MMSAutoDownloadCellular, current.MMSAutoDownloadCellular, settings.MMSAutoDownloadCellular},
			{BypassDND, current.BypassDND, settings.BypassDND},
		}

		for _, b := range bools {
			if b.current == b.next {
				continue
			}
			raw, err := json.Marshal(b.next)
			if err != nil {
				return nil, err
			}
			snap[b.setting.Key] = raw
		}

		if scale := TextSizeScale.Clamp(settings.TextSizeScale); scale != current.TextSizeScale {
			raw, err := json.Marshal(scale)
			if err != nil {
				return nil, err
			}
			snap[TextSizeScale.Key] = raw
		}

		return snap, nil
	})
	return err
}

// WatchSettings streams the aggregate, re-emitting whenever any setting
// changes.
func (svc *Service) WatchSettings(ctx context.Context) (<-chan Settings, func(), error) {
	snaps, cancel, err := svc.store.Subscribe(ctx)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan Settings, 1)

	go func() {
		defer close(out)
		defer cancel()

		var last *Settings

		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snaps:
				if !ok {
					return
				}
				s, err := settingsFromSnapshot(snap)
				if err != nil {
					log.WithFields(log.Fields{"error": err}).Error("Watch terminated")
					return
				}
				if last != nil && *last == *s {
					continue
				}
				last = s
				pushSettings(out, *s)
			}
		}
	}()

	return out, cancel, nil
}

// Non-blocking sends replacing any pending value, so a slow consumer
// always receives the latest one.

func pushBool(ch chan bool, v bool) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

func pushFloat(ch chan float32, v float32) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

func pushSettings(ch chan Settings, v Settings) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}
