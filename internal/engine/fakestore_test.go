package engine

import (
	"context"
	"sync"
	"time"

	"github.com/udisondev/playersync/internal/model"
)

// fakeStore is an in-memory Store. It mirrors the relational semantics the
// engine relies on: replace for loadout and perks, additive unlocks keeping
// the first timestamp, merge for tracking counters. WithTx has no rollback;
// engine tests never fail mid-transaction.
type fakeStore struct {
	mu     sync.Mutex
	nextID int64

	bySteamID map[string]*model.Player
	stats     map[int64]model.PlayerStats
	skins     map[int64]model.PlayerSkins
	supporter map[int64]*model.SupporterStatus
	loadout   map[int64][]model.LoadoutSlot
	perks     map[int64][]string
	unlocks   map[int64][]model.PermanentUnlock

	kills        map[int64]map[string]int64
	vehicleKills map[int64]map[string]int64
	purchases    map[int64]map[string]int64
	weaponXP     map[int64]map[string]int64
	rewards      map[int64]map[string]int64

	audits []model.AuditEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bySteamID:    make(map[string]*model.Player),
		stats:        make(map[int64]model.PlayerStats),
		skins:        make(map[int64]model.PlayerSkins),
		supporter:    make(map[int64]*model.SupporterStatus),
		loadout:      make(map[int64][]model.LoadoutSlot),
		perks:        make(map[int64][]string),
		unlocks:      make(map[int64][]model.PermanentUnlock),
		kills:        make(map[int64]map[string]int64),
		vehicleKills: make(map[int64]map[string]int64),
		purchases:    make(map[int64]map[string]int64),
		weaponXP:     make(map[int64]map[string]int64),
		rewards:      make(map[int64]map[string]int64),
	}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&fakeTx{s: s})
}

// player returns the stored record for direct assertions.
func (s *fakeStore) player(steamID string) *model.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.bySteamID[steamID]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// seed inserts a player with the given state, bypassing the engine.
func (s *fakeStore) seed(steamID string, syncSeq int64, serverID *string, since *time.Time) *model.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p := &model.Player{
		ID:             s.nextID,
		SteamID:        steamID,
		SyncSeq:        syncSeq,
		ActiveServerID: serverID,
		ActiveSince:    since,
	}
	s.bySteamID[steamID] = p
	s.stats[p.ID] = model.PlayerStats{}
	return p
}

func (s *fakeStore) seedStats(playerID int64, st model.PlayerStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[playerID] = st
}

func (s *fakeStore) seedUnlock(playerID int64, weapon string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlocks[playerID] = append(s.unlocks[playerID], model.PermanentUnlock{WeaponName: weapon, UnlockedAt: at})
}

type fakeTx struct {
	s *fakeStore
}

func (t *fakeTx) GetPlayer(ctx context.Context, steamID string) (*model.Player, error) {
	p, ok := t.s.bySteamID[steamID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (t *fakeTx) GetPlayerForUpdate(ctx context.Context, steamID string) (*model.Player, error) {
	return t.GetPlayer(ctx, steamID)
}

func (t *fakeTx) GetOrCreatePlayer(ctx context.Context, steamID string, eosID, name *string) (*model.Player, bool, error) {
	if p, ok := t.s.bySteamID[steamID]; ok {
		cp := *p
		return &cp, false, nil
	}
	t.s.nextID++
	p := &model.Player{ID: t.s.nextID, SteamID: steamID, EOSID: eosID, Name: name}
	t.s.bySteamID[steamID] = p
	t.s.stats[p.ID] = model.PlayerStats{}
	cp := *p
	return &cp, true, nil
}

func (t *fakeTx) LoadPlayerFull(ctx context.Context, steamID string) (*model.PlayerFull, error) {
	p, ok := t.s.bySteamID[steamID]
	if !ok {
		return nil, nil
	}
	full := &model.PlayerFull{
		Player:       *p,
		Stats:        t.s.stats[p.ID],
		Skins:        t.s.skins[p.ID],
		Supporter:    t.s.supporter[p.ID],
		Loadout:      append([]model.LoadoutSlot{}, t.s.loadout[p.ID]...),
		Perks:        append([]string{}, t.s.perks[p.ID]...),
		PermaUnlocks: append([]model.PermanentUnlock{}, t.s.unlocks[p.ID]...),
		Kills:        copyMap(t.s.kills[p.ID]),
		VehicleKills: copyMap(t.s.vehicleKills[p.ID]),
		Purchases:    copyMap(t.s.purchases[p.ID]),
		WeaponXP:     copyMap(t.s.weaponXP[p.ID]),
		Rewards:      copyMap(t.s.rewards[p.ID]),
	}
	return full, nil
}

func (t *fakeTx) SetSession(ctx context.Context, playerID int64, serverID string, since time.Time) error {
	p := t.s.byID(playerID)
	p.ActiveServerID = &serverID
	p.ActiveSince = &since
	return nil
}

func (t *fakeTx) ClearSession(ctx context.Context, playerID int64) error {
	p := t.s.byID(playerID)
	p.ActiveServerID = nil
	p.ActiveSince = nil
	return nil
}

func (t *fakeTx) UpdateSync(ctx context.Context, playerID int64, eosID, name *string, syncSeq int64, lastSync time.Time) error {
	p := t.s.byID(playerID)
	if eosID != nil {
		p.EOSID = eosID
	}
	if name != nil {
		p.Name = name
	}
	p.SyncSeq = syncSeq
	ls := lastSync
	p.LastSync = &ls
	return nil
}

func (t *fakeTx) GetStats(ctx context.Context, playerID int64) (model.PlayerStats, error) {
	return t.s.stats[playerID], nil
}

func (t *fakeTx) UpsertStats(ctx context.Context, playerID int64, st model.PlayerStats) error {
	t.s.stats[playerID] = st
	return nil
}

func (t *fakeTx) UpsertSkins(ctx context.Context, playerID int64, sk model.PlayerSkins) error {
	t.s.skins[playerID] = sk
	return nil
}

func (t *fakeTx) UpsertSupporter(ctx context.Context, playerID int64, sup *model.SupporterStatus) error {
	if sup != nil {
		t.s.supporter[playerID] = sup
	}
	return nil
}

func (t *fakeTx) ReplaceLoadout(ctx context.Context, playerID int64, loadout []model.LoadoutSlot) error {
	t.s.loadout[playerID] = append([]model.LoadoutSlot{}, loadout...)
	return nil
}

func (t *fakeTx) ReplacePerks(ctx context.Context, playerID int64, perks []string) error {
	t.s.perks[playerID] = append([]string{}, perks...)
	return nil
}

func (t *fakeTx) UpsertUnlocks(ctx context.Context, playerID int64, weapons []string, now time.Time) error {
	existing := make(map[string]bool, len(t.s.unlocks[playerID]))
	for _, u := range t.s.unlocks[playerID] {
		existing[u.WeaponName] = true
	}
	for _, w := range weapons {
		if existing[w] {
			continue
		}
		existing[w] = true
		t.s.unlocks[playerID] = append(t.s.unlocks[playerID], model.PermanentUnlock{WeaponName: w, UnlockedAt: now})
	}
	return nil
}

func (t *fakeTx) UpsertKills(ctx context.Context, playerID int64, counters map[string]int64) error {
	return mergeCounters(t.s.kills, playerID, counters)
}

func (t *fakeTx) UpsertVehicleKills(ctx context.Context, playerID int64, counters map[string]int64) error {
	return mergeCounters(t.s.vehicleKills, playerID, counters)
}

func (t *fakeTx) UpsertPurchases(ctx context.Context, playerID int64, counters map[string]int64) error {
	return mergeCounters(t.s.purchases, playerID, counters)
}

func (t *fakeTx) UpsertWeaponXP(ctx context.Context, playerID int64, counters map[string]int64) error {
	return mergeCounters(t.s.weaponXP, playerID, counters)
}

func (t *fakeTx) UpsertRewards(ctx context.Context, playerID int64, counters map[string]int64) error {
	return mergeCounters(t.s.rewards, playerID, counters)
}

func (t *fakeTx) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	t.s.audits = append(t.s.audits, *e)
	return nil
}

func (s *fakeStore) byID(playerID int64) *model.Player {
	for _, p := range s.bySteamID {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func mergeCounters(m map[int64]map[string]int64, playerID int64, counters map[string]int64) error {
	if m[playerID] == nil {
		m[playerID] = make(map[string]int64)
	}
	for k, v := range counters {
		m[playerID][k] = v
	}
	return nil
}

func copyMap(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
