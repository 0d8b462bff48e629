package model

import "time"

// Player is the aggregate root. Identified externally by a 17-digit steam id,
// internally by a surrogate id assigned at first sight.
type Player struct {
	ID             int64
	SteamID        string
	EOSID          *string
	Name           *string
	SyncSeq        int64
	ActiveServerID *string
	ActiveSince    *time.Time
	LastSync       *time.Time
	CreatedAt      time.Time
}

// OwnedBy reports whether the player is currently pinned to serverID.
func (p *Player) OwnedBy(serverID string) bool {
	return p.ActiveServerID != nil && *p.ActiveServerID == serverID
}

// SessionExpired reports whether the session lock has outlived timeout at now.
// The window is measured from the last write of the owning server, so an
// actively syncing session never expires mid-play.
func (p *Player) SessionExpired(now time.Time, timeout time.Duration) bool {
	if p.ActiveServerID == nil || p.ActiveSince == nil {
		return true
	}
	last := *p.ActiveSince
	if p.LastSync != nil && p.LastSync.After(last) {
		last = *p.LastSync
	}
	return now.Sub(last) >= timeout
}

// PlayerStats is the 1:1 progression row.
type PlayerStats struct {
	Currency       int64
	CurrencyTotal  int64
	CurrencySpent  int64
	XP             int64
	XPTotal        int64
	Prestige       int32
	PermaTokens    int32
	DailyClaims    int32
	GamesPlayed    int32
	TimePlayed     int64 // seconds
	JoinTime       *time.Time
	DailyClaimTime *time.Time
}

// PlayerSkins holds the three optional faction skin identifiers.
type PlayerSkins struct {
	Indfor *string
	Blufor *string
	Redfor *string
}

// SupporterStatus is the optional supporter tier of a player.
type SupporterStatus struct {
	Tier      string
	ExpiresAt *time.Time
}

// LoadoutSlot is one ordered loadout entry. Duplicate items across slots are
// permitted; the whole set is replaced on every sync.
type LoadoutSlot struct {
	Slot   int32
	Family *string
	Item   string
	Count  int32
}

// PermanentUnlock is an additive weapon unlock; the first unlock timestamp
// is kept forever.
type PermanentUnlock struct {
	WeaponName string
	UnlockedAt time.Time
}

// DiscordLink maps an external Discord id to a player.
type DiscordLink struct {
	DiscordID string
	Verified  bool
	CreatedAt time.Time
}

// PlayerFull is the aggregate plus all associations in one consistent
// snapshot, as returned by the store.
type PlayerFull struct {
	Player       Player
	Stats        PlayerStats
	Skins        PlayerSkins
	Supporter    *SupporterStatus
	Loadout      []LoadoutSlot
	Perks        []string
	PermaUnlocks []PermanentUnlock
	Kills        map[string]int64
	VehicleKills map[string]int64
	Purchases    map[string]int64
	WeaponXP     map[string]int64
	Rewards      map[string]int64
}
