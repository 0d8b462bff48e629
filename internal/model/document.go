package model

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DocumentVersion is the sole supported wire format version.
const DocumentVersion = 2

var steamIDPattern = regexp.MustCompile(`^[0-9]{17}$`)

// ValidSteamID reports whether s is exactly 17 decimal digits.
func ValidSteamID(s string) bool {
	return steamIDPattern.MatchString(s)
}

// Document is the v2 player document exchanged with game servers. Tracking is
// optional: game servers omit it on some periodic syncs and the service never
// returns it on connect.
type Document struct {
	V               int           `json:"v"`
	SteamID         string        `json:"steamId"`
	EOSID           *string       `json:"eosId"`
	Name            *string       `json:"name"`
	ServerID        *string       `json:"serverId"`
	LastSync        string        `json:"lastSync"`
	SyncSeq         int64         `json:"syncSeq"`
	Stats           DocStats      `json:"stats"`
	Skins           DocSkins      `json:"skins"`
	Loadout         []DocLoadout  `json:"loadout"`
	Perks           []string      `json:"perks"`
	PermaUnlocks    []string      `json:"permaUnlocks"`
	SupporterStatus []string      `json:"supporterStatus"`
	Tracking        *Tracking     `json:"tracking,omitempty"`
}

// DocStats mirrors the stats section of the v2 document.
type DocStats struct {
	Currency       int64   `json:"currency"`
	CurrencyTotal  int64   `json:"currencyTotal"`
	CurrencySpent  int64   `json:"currencySpent"`
	XP             int64   `json:"xp"`
	XPTotal        int64   `json:"xpTotal"`
	Prestige       int32   `json:"prestige"`
	PermaTokens    int32   `json:"permaTokens"`
	DailyClaims    int32   `json:"dailyClaims"`
	GamesPlayed    int32   `json:"gamesPlayed"`
	TimePlayed     int64   `json:"timePlayed"`
	JoinTime       *string `json:"joinTime"`
	DailyClaimTime *string `json:"dailyClaimTime"`
}

// DocSkins mirrors the skins section.
type DocSkins struct {
	Indfor *string `json:"indfor"`
	Blufor *string `json:"blufor"`
	Redfor *string `json:"redfor"`
}

// DocLoadout is one loadout entry on the wire.
type DocLoadout struct {
	Slot   int32   `json:"slot"`
	Family *string `json:"family"`
	Item   string  `json:"item"`
	Count  int32   `json:"count"`
}

// Tracking holds the five open-keyed counter maps maintained by the game
// server during a session. Values are absolute counters, not deltas.
type Tracking struct {
	Kills        map[string]int64 `json:"kills"`
	VehicleKills map[string]int64 `json:"vehicleKills"`
	Purchases    map[string]int64 `json:"purchases"`
	WeaponXP     map[string]int64 `json:"weaponXp"`
	Rewards      map[string]int64 `json:"rewards"`
}

// Validate checks the document against the v2 shape rules.
func (d Document) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.V, validation.Required, validation.In(DocumentVersion)),
		validation.Field(&d.SteamID, validation.Required,
			validation.Match(steamIDPattern).Error("must be exactly 17 decimal digits")),
		validation.Field(&d.SyncSeq, validation.Min(int64(0))),
		validation.Field(&d.Stats),
		validation.Field(&d.Loadout),
		validation.Field(&d.Tracking),
	)
}

// Validate checks all numeric stats are non-negative and prestige in [0,100].
func (s DocStats) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Currency, validation.Min(int64(0))),
		validation.Field(&s.CurrencyTotal, validation.Min(int64(0))),
		validation.Field(&s.CurrencySpent, validation.Min(int64(0))),
		validation.Field(&s.XP, validation.Min(int64(0))),
		validation.Field(&s.XPTotal, validation.Min(int64(0))),
		validation.Field(&s.Prestige, validation.Min(int32(0)), validation.Max(int32(100))),
		validation.Field(&s.PermaTokens, validation.Min(int32(0))),
		validation.Field(&s.DailyClaims, validation.Min(int32(0))),
		validation.Field(&s.GamesPlayed, validation.Min(int32(0))),
		validation.Field(&s.TimePlayed, validation.Min(int64(0))),
	)
}

// Validate checks a loadout entry has an item and sane counts.
func (l DocLoadout) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Item, validation.Required),
		validation.Field(&l.Slot, validation.Min(int32(0))),
		validation.Field(&l.Count, validation.Min(int32(0))),
	)
}

// Validate checks all tracking counter values are non-negative.
func (t Tracking) Validate() error {
	errs := validation.Errors{}
	checkMap(errs, "kills", t.Kills)
	checkMap(errs, "vehicleKills", t.VehicleKills)
	checkMap(errs, "purchases", t.Purchases)
	checkMap(errs, "weaponXp", t.WeaponXP)
	checkMap(errs, "rewards", t.Rewards)
	return errs.Filter()
}

func checkMap(errs validation.Errors, name string, m map[string]int64) {
	for k, v := range m {
		if v < 0 {
			errs[name] = fmt.Errorf("counter %q is negative", k)
			return
		}
	}
}

// FlattenErrors turns an ozzo validation error into the flat string list
// carried by sync:error frames. Non-validation errors become one entry.
func FlattenErrors(err error) []string {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validation.Errors)
	if !ok {
		return []string{err.Error()}
	}
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(verrs))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s: %s", k, flatten(verrs[k])))
	}
	return out
}

func flatten(err error) string {
	if verrs, ok := err.(validation.Errors); ok {
		keys := make([]string, 0, len(verrs))
		for k := range verrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s := ""
		for i, k := range keys {
			if i > 0 {
				s += "; "
			}
			s += fmt.Sprintf("%s: %s", k, flatten(verrs[k]))
		}
		return s
	}
	return err.Error()
}

// ExportDocument builds the v2 document for a player snapshot. Tracking is
// included only when includeTracking is set; connect responses strip it so
// the game server rebuilds session tracking fresh.
func ExportDocument(full *PlayerFull, now time.Time, includeTracking bool) Document {
	doc := Document{
		V:        DocumentVersion,
		SteamID:  full.Player.SteamID,
		EOSID:    full.Player.EOSID,
		Name:     full.Player.Name,
		ServerID: full.Player.ActiveServerID,
		LastSync: now.UTC().Format(time.RFC3339),
		SyncSeq:  full.Player.SyncSeq,
		Stats: DocStats{
			Currency:       full.Stats.Currency,
			CurrencyTotal:  full.Stats.CurrencyTotal,
			CurrencySpent:  full.Stats.CurrencySpent,
			XP:             full.Stats.XP,
			XPTotal:        full.Stats.XPTotal,
			Prestige:       full.Stats.Prestige,
			PermaTokens:    full.Stats.PermaTokens,
			DailyClaims:    full.Stats.DailyClaims,
			GamesPlayed:    full.Stats.GamesPlayed,
			TimePlayed:     full.Stats.TimePlayed,
			JoinTime:       formatTime(full.Stats.JoinTime),
			DailyClaimTime: formatTime(full.Stats.DailyClaimTime),
		},
		Skins: DocSkins{
			Indfor: full.Skins.Indfor,
			Blufor: full.Skins.Blufor,
			Redfor: full.Skins.Redfor,
		},
		Loadout:         make([]DocLoadout, 0, len(full.Loadout)),
		Perks:           append([]string{}, full.Perks...),
		PermaUnlocks:    make([]string, 0, len(full.PermaUnlocks)),
		SupporterStatus: []string{},
	}
	for _, slot := range full.Loadout {
		doc.Loadout = append(doc.Loadout, DocLoadout{
			Slot:   slot.Slot,
			Family: slot.Family,
			Item:   slot.Item,
			Count:  slot.Count,
		})
	}
	for _, u := range full.PermaUnlocks {
		doc.PermaUnlocks = append(doc.PermaUnlocks, u.WeaponName)
	}
	if full.Supporter != nil {
		doc.SupporterStatus = append(doc.SupporterStatus, full.Supporter.Tier)
	}
	if includeTracking {
		doc.Tracking = &Tracking{
			Kills:        copyCounters(full.Kills),
			VehicleKills: copyCounters(full.VehicleKills),
			Purchases:    copyCounters(full.Purchases),
			WeaponXP:     copyCounters(full.WeaponXP),
			Rewards:      copyCounters(full.Rewards),
		}
	}
	return doc
}

// ParseDocTime parses the ISO-8601 timestamps carried in documents.
// Returns nil for empty or absent values.
func ParseDocTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp %q: %w", *s, err)
	}
	return &t, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func copyCounters(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
