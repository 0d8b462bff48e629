package testutil

import (
	"time"

	"github.com/udisondev/playersync/internal/model"
)

// StrPtr returns a pointer to s.
func StrPtr(s string) *string { return &s }

// DocOption mutates a fixture document.
type DocOption func(*model.Document)

// WithSyncSeq sets the document sequence number.
func WithSyncSeq(seq int64) DocOption {
	return func(d *model.Document) { d.SyncSeq = seq }
}

// WithStats replaces the stats section.
func WithStats(s model.DocStats) DocOption {
	return func(d *model.Document) { d.Stats = s }
}

// WithCurrency sets currency and currencyTotal together.
func WithCurrency(currency, total int64) DocOption {
	return func(d *model.Document) {
		d.Stats.Currency = currency
		d.Stats.CurrencyTotal = total
	}
}

// WithTracking attaches tracking counters.
func WithTracking(t *model.Tracking) DocOption {
	return func(d *model.Document) { d.Tracking = t }
}

// WithLoadout replaces the loadout section.
func WithLoadout(slots ...model.DocLoadout) DocOption {
	return func(d *model.Document) { d.Loadout = slots }
}

// WithPerks replaces the perk list.
func WithPerks(perks ...string) DocOption {
	return func(d *model.Document) { d.Perks = perks }
}

// WithUnlocks replaces the permanent unlock list.
func WithUnlocks(weapons ...string) DocOption {
	return func(d *model.Document) { d.PermaUnlocks = weapons }
}

// Doc builds a valid v2 document for steamID with syncSeq 1 and modest stats.
// Options override individual sections.
func Doc(steamID string, opts ...DocOption) model.Document {
	d := model.Document{
		V:        model.DocumentVersion,
		SteamID:  steamID,
		Name:     StrPtr("TestPlayer"),
		LastSync: time.Now().UTC().Format(time.RFC3339),
		SyncSeq:  1,
		Stats: model.DocStats{
			Currency:      100,
			CurrencyTotal: 100,
			XP:            250,
			XPTotal:       250,
			GamesPlayed:   1,
			TimePlayed:    600,
		},
		Perks:           []string{},
		PermaUnlocks:    []string{},
		SupporterStatus: []string{},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Fixture steam ids, all 17 digits.
const (
	SteamID1 = "76561198000000001"
	SteamID2 = "76561198000000002"
	SteamID3 = "76561198000000003"
)
