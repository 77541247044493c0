// Package settings exposes the typed user settings of the messaging
// application on top of the durable preference store. Each setting has a
// unique key, a default and, for numeric settings, a write-time clamp
// range. A key absent from the store always reads as the default.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/halcyon-mobile/message-settings-api/prefstore"
)

// ErrTypeMismatch is returned when a stored value does not decode into
// the setting's declared type. Values are never silently coerced.
var ErrTypeMismatch = errors.New("stored preference has unexpected type")

type BoolSetting struct {
	Key     string
	Default bool
}

type FloatSetting struct {
	Key     string
	Default float32
	Min     float32
	Max     float32
}

var (
	DeliveryReportsEnabled  = BoolSetting{Key: "delivery_reports_enabled", Default: false}
	MMSAutoDownloadWifi     = BoolSetting{Key: "mms_auto_download_wifi", Default: true}
	MMSAutoDownloadCellular = BoolSetting{Key: "mms_auto_download_cellular", Default: false}
	BypassDND               = BoolSetting{Key: "bypass_dnd", Default: false}
	TextSizeScale           = FloatSetting{Key: "text_size_scale", Default: 1.0, Min: 0.7, Max: 1.6}
)

// Clamp saturates a value at the setting's bounds. Applied on write
// only; values already persisted outside the range read back as-is.
func (s FloatSetting) Clamp(v float32) float32 {
	if v < s.Min {
		return s.Min
	}
	if v > s.Max {
		return s.Max
	}
	return v
}

func (s BoolSetting) fromSnapshot(snap prefstore.Snapshot) (bool, error) {
	raw, ok := snap[s.Key]
	if !ok {
		return s.Default, nil
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, fmt.Errorf("%w: %s", ErrTypeMismatch, s.Key)
	}
	return v, nil
}

func (s FloatSetting) fromSnapshot(snap prefstore.Snapshot) (float32, error) {
	raw, ok := snap[s.Key]
	if !ok {
		return s.Default, nil
	}
	var v float32
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrTypeMismatch, s.Key)
	}
	return v, nil
}

// Settings is the aggregate of all user settings, used by the HTTP
// surface. The accessor itself operates per key.
type Settings struct {
	DeliveryReportsEnabled  bool
	MMSAutoDownloadWifi     bool
	MMSAutoDownloadCellular bool
	BypassDND               bool
	TextSizeScale           float32
}

func (s *Settings) String() string {
	return fmt.Sprintf(
		"DeliveryReports: %t, MMSWifi: %t, MMSCellular: %t, BypassDND: %t, TextSize: %v",
		s.DeliveryReportsEnabled, s.MMSAutoDownloadWifi, s.MMSAutoDownloadCellular,
		s.BypassDND, s.TextSizeScale,
	)
}

// Convert to JSON version
func (s *Settings) ToJSON() SettingsJSON {
	return SettingsJSON{
		DeliveryReportsEnabled:  s.DeliveryReportsEnabled,
		MMSAutoDownloadWifi:     s.MMSAutoDownloadWifi,
		MMSAutoDownloadCellular: s.MMSAutoDownloadCellular,
		BypassDND:               s.BypassDND,
		TextSizeScale:           s.TextSizeScale,
	}
}

// Update fields according to JSON version
func (s *Settings) FromJSON(j SettingsJSON) {
	s.DeliveryReportsEnabled = j.DeliveryReportsEnabled
	s.MMSAutoDownloadWifi = j.MMSAutoDownloadWifi
	s.MMSAutoDownloadCellular = j.MMSAutoDownloadCellular
	s.BypassDND = j.BypassDND
	s.TextSizeScale = j.TextSizeScale
}

type SettingsJSON struct {
	DeliveryReportsEnabled  bool    `json:"deliveryReportsEnabled"`
	MMSAutoDownloadWifi     bool    `json:"mmsAutoDownloadWifi"`
	MMSAutoDownloadCellular bool    `json:"mmsAutoDownloadCellular"`
	BypassDND               bool    `json:"bypassDnd"`
	TextSizeScale           float32 `json:"textSizeScale"`
}

func settingsFromSnapshot(snap prefstore.Snapshot) (*Settings, error) {
	s := Settings{}
	var err error

	if s.DeliveryReportsEnabled, err = DeliveryReportsEnabled.fromSnapshot(snap); err != nil {
		return nil, err
	}
	if s.MMSAutoDownloadWifi, err = MMSAutoDownloadWifi.fromSnapshot(snap); err != nil {
		return nil, err
	}
	if s.MMSAutoDownloadCellular, err = MMSAutoDownloadCellular.fromSnapshot(snap); err != nil {
		return nil, err
	}
	if s.BypassDND, err = BypassDND.fromSnapshot(snap); err != nil {
		return nil, err
	}
	if s.TextSizeScale, err = TextSizeScale.fromSnapshot(snap); err != nil {
		return nil, err
	}

	return &s, nil
}
