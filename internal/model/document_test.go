package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDoc() Document {
	name := "Tester"
	return Document{
		V:        DocumentVersion,
		SteamID:  "76561198000000001",
		Name:     &name,
		LastSync: "2026-01-10T12:00:00Z",
		SyncSeq:  1,
		Stats: DocStats{
			Currency:      100,
			CurrencyTotal: 100,
			XP:            50,
			XPTotal:       50,
		},
	}
}

func TestValidSteamID(t *testing.T) {
	assert.True(t, ValidSteamID("76561198000000001"))
	assert.False(t, ValidSteamID("7656119800000000"))   // 16 digits
	assert.False(t, ValidSteamID("765611980000000011")) // 18 digits
	assert.False(t, ValidSteamID("7656119800000000a"))
	assert.False(t, ValidSteamID(""))
}

func TestDocumentValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validDoc().Validate())
	})

	t.Run("wrong version", func(t *testing.T) {
		d := validDoc()
		d.V = 1
		assert.Error(t, d.Validate())
	})

	t.Run("bad steam id", func(t *testing.T) {
		d := validDoc()
		d.SteamID = "abc"
		assert.Error(t, d.Validate())
	})

	t.Run("negative sync seq", func(t *testing.T) {
		d := validDoc()
		d.SyncSeq = -1
		assert.Error(t, d.Validate())
	})

	t.Run("prestige out of range", func(t *testing.T) {
		d := validDoc()
		d.Stats.Prestige = 101
		assert.Error(t, d.Validate())
	})

	t.Run("negative stat", func(t *testing.T) {
		d := validDoc()
		d.Stats.CurrencySpent = -5
		assert.Error(t, d.Validate())
	})

	t.Run("loadout without item", func(t *testing.T) {
		d := validDoc()
		d.Loadout = []DocLoadout{{Slot: 0, Count: 1}}
		assert.Error(t, d.Validate())
	})

	t.Run("negative tracking counter", func(t *testing.T) {
		d := validDoc()
		d.Tracking = &Tracking{Kills: map[string]int64{"infantry": -1}}
		assert.Error(t, d.Validate())
	})

	t.Run("tracking absent is fine", func(t *testing.T) {
		d := validDoc()
		d.Tracking = nil
		assert.NoError(t, d.Validate())
	})
}

func TestFlattenErrors(t *testing.T) {
	d := validDoc()
	d.V = 1
	d.Stats.Prestige = 200

	errs := FlattenErrors(d.Validate())
	require.Len(t, errs, 2)
	// Keys come out sorted, so the order is stable.
	assert.Contains(t, errs[0], "stats")
	assert.Contains(t, errs[1], "v")
}

func TestExportDocument(t *testing.T) {
	serverID := "server-a"
	since := time.Date(2026, 1, 10, 11, 0, 0, 0, time.UTC)
	unlockedAt := since.Add(-time.Hour)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	full := &PlayerFull{
		Player: Player{
			SteamID:        "76561198000000001",
			SyncSeq:        7,
			ActiveServerID: &serverID,
			ActiveSince:    &since,
		},
		Stats:        PlayerStats{Currency: 100, CurrencyTotal: 150, JoinTime: &since},
		Supporter:    &SupporterStatus{Tier: "gold"},
		Loadout:      []LoadoutSlot{{Slot: 0, Item: "rifle", Count: 1}},
		Perks:        []string{"fast-reload"},
		PermaUnlocks: []PermanentUnlock{{WeaponName: "smg", UnlockedAt: unlockedAt}},
		Kills:        map[string]int64{"infantry": 2},
	}

	t.Run("tracking stripped", func(t *testing.T) {
		doc := ExportDocument(full, now, false)
		assert.Equal(t, DocumentVersion, doc.V)
		assert.Equal(t, int64(7), doc.SyncSeq)
		assert.Equal(t, "2026-01-10T12:00:00Z", doc.LastSync)
		require.NotNil(t, doc.ServerID)
		assert.Equal(t, serverID, *doc.ServerID)
		assert.Equal(t, []string{"gold"}, doc.SupporterStatus)
		assert.Equal(t, []string{"smg"}, doc.PermaUnlocks)
		require.NotNil(t, doc.Stats.JoinTime)
		assert.Nil(t, doc.Tracking)
	})

	t.Run("tracking included", func(t *testing.T) {
		doc := ExportDocument(full, now, true)
		require.NotNil(t, doc.Tracking)
		assert.Equal(t, int64(2), doc.Tracking.Kills["infantry"])
	})

	t.Run("no supporter", func(t *testing.T) {
		bare := *full
		bare.Supporter = nil
		doc := ExportDocument(&bare, now, false)
		assert.Empty(t, doc.SupporterStatus)
		assert.NotNil(t, doc.SupporterStatus, "empty list, not null, on the wire")
	})
}

func TestParseDocTime(t *testing.T) {
	t.Run("nil and empty", func(t *testing.T) {
		got, err := ParseDocTime(nil)
		require.NoError(t, err)
		assert.Nil(t, got)

		empty := ""
		got, err = ParseDocTime(&empty)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("valid", func(t *testing.T) {
		s := "2026-01-10T12:00:00Z"
		got, err := ParseDocTime(&s)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 2026, got.Year())
	})

	t.Run("garbage", func(t *testing.T) {
		s := "yesterday"
		_, err := ParseDocTime(&s)
		assert.Error(t, err)
	})
}
