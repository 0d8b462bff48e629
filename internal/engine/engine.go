// Package engine implements the sync domain logic: the session lock,
// sequence monotonicity, delta limits and the four operation kinds. It is
// pure orchestration over the Store interface; protocol rejections come back
// as tagged outcomes, Go errors mean transient faults.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/udisondev/playersync/internal/model"
)

// Engine orchestrates sync operations over a Store.
type Engine struct {
	store Store
	now   func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock substitutes the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the given store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Connect finds or creates the player, claims the session lock for serverID
// and returns the current document without tracking. A player owned by
// another server inside the timeout window yields StatusActiveElsewhere with
// no state change.
func (e *Engine) Connect(ctx context.Context, serverID, steamID string, eosID, name *string) (*ConnectResult, error) {
	if !model.ValidSteamID(steamID) {
		return &ConnectResult{Status: StatusValidationFailed, SteamID: steamID}, nil
	}

	started := e.now()
	var res *ConnectResult
	err := e.store.WithTx(ctx, func(tx Tx) error {
		p, created, err := tx.GetOrCreatePlayer(ctx, steamID, eosID, name)
		if err != nil {
			return err
		}
		if created {
			slog.Info("player created", "steamId", steamID, "serverId", serverID)
		}

		now := e.now()
		if p.ActiveServerID != nil && *p.ActiveServerID != serverID && !p.SessionExpired(now, ActiveServerTimeout) {
			res = &ConnectResult{
				Status:       StatusActiveElsewhere,
				SteamID:      steamID,
				ActiveServer: *p.ActiveServerID,
				ActiveSince:  *p.ActiveSince,
				RetryAfter:   ConnectRetryAfter,
				MaxRetries:   ConnectMaxRetries,
			}
			return nil
		}

		if err := tx.SetSession(ctx, p.ID, serverID, now); err != nil {
			return err
		}

		full, err := tx.LoadPlayerFull(ctx, steamID)
		if err != nil {
			return err
		}
		full.Player.ActiveServerID = &serverID
		full.Player.ActiveSince = &now

		doc := model.ExportDocument(full, now, false)
		res = &ConnectResult{
			Status:  StatusOK,
			SteamID: steamID,
			SyncSeq: full.Player.SyncSeq,
			Doc:     &doc,
		}

		return tx.AppendAudit(ctx, &model.AuditEntry{
			ServerID:      serverID,
			PlayerSteamID: steamID,
			Kind:          model.AuditConnect,
			SeqBefore:     nil,
			SeqAfter:      full.Player.SyncSeq,
			After:         statsSummary(full.Stats, full.Player.SyncSeq),
			DurationMs:    e.now().Sub(started).Milliseconds(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s on %s: %w", steamID, serverID, err)
	}
	return res, nil
}

// PeriodicSync applies a mid-session document for a player owned by serverID.
func (e *Engine) PeriodicSync(ctx context.Context, serverID string, doc model.Document) (*SyncResult, error) {
	return e.applySync(ctx, serverID, doc, model.AuditPeriodic, false)
}

// Disconnect applies the final session document and releases the session
// lock, both inside one transaction.
func (e *Engine) Disconnect(ctx context.Context, serverID string, doc model.Document) (*SyncResult, error) {
	return e.applySync(ctx, serverID, doc, model.AuditDisconnect, true)
}

func (e *Engine) applySync(ctx context.Context, serverID string, doc model.Document, kind model.AuditKind, clearSession bool) (*SyncResult, error) {
	if err := doc.Validate(); err != nil {
		return &SyncResult{
			Status:  StatusValidationFailed,
			SteamID: doc.SteamID,
			Errors:  model.FlattenErrors(err),
		}, nil
	}
	nextStats, err := statsFromDoc(doc.Stats)
	if err != nil {
		return &SyncResult{
			Status:  StatusValidationFailed,
			SteamID: doc.SteamID,
			Errors:  []string{err.Error()},
		}, nil
	}

	started := e.now()
	var res *SyncResult
	err = e.store.WithTx(ctx, func(tx Tx) error {
		p, err := tx.GetPlayerForUpdate(ctx, doc.SteamID)
		if err != nil {
			return err
		}
		if p == nil {
			res = &SyncResult{Status: StatusPlayerNotFound, SteamID: doc.SteamID}
			return nil
		}
		if !p.OwnedBy(serverID) {
			active := ""
			if p.ActiveServerID != nil {
				active = *p.ActiveServerID
			}
			res = &SyncResult{Status: StatusNotSessionOwner, SteamID: doc.SteamID, ActiveServer: active}
			return nil
		}
		if doc.SyncSeq <= p.SyncSeq || doc.SyncSeq-p.SyncSeq > SeqTolerance {
			res = &SyncResult{Status: StatusInvalidSyncSeq, SteamID: doc.SteamID, ExpectedSeq: p.SyncSeq}
			return nil
		}

		prevStats, err := tx.GetStats(ctx, p.ID)
		if err != nil {
			return err
		}
		reasons := checkDeltas(prevStats, nextStats)
		flagged := len(reasons) > 0
		if flagged {
			slog.Warn("delta limit exceeded", "steamId", doc.SteamID, "serverId", serverID, "reasons", joinReasons(reasons))
		}

		now := e.now()
		if err := e.applyDocument(ctx, tx, p, doc, nextStats, now); err != nil {
			return err
		}
		if clearSession {
			if err := tx.ClearSession(ctx, p.ID); err != nil {
				return err
			}
		}

		seqBefore := p.SyncSeq
		res = &SyncResult{
			Status:     StatusOK,
			SteamID:    doc.SteamID,
			SyncSeq:    doc.SyncSeq,
			Flagged:    flagged,
			FlagReason: joinReasons(reasons),
		}
		return tx.AppendAudit(ctx, &model.AuditEntry{
			ServerID:      serverID,
			PlayerSteamID: doc.SteamID,
			Kind:          kind,
			SeqBefore:     &seqBefore,
			SeqAfter:      doc.SyncSeq,
			Before:        statsSummary(prevStats, seqBefore),
			After:         statsSummary(nextStats, doc.SyncSeq),
			Flagged:       flagged,
			FlagReason:    joinReasons(reasons),
			DurationMs:    e.now().Sub(started).Milliseconds(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s sync %s on %s: %w", kind, doc.SteamID, serverID, err)
	}
	return res, nil
}

// CrashRecovery ingests a document left behind by a dead session. Stale
// documents are skipped, sequence and delta violations flag instead of
// rejecting, and the session lock is always released.
func (e *Engine) CrashRecovery(ctx context.Context, serverID string, doc model.Document) (*SyncResult, error) {
	return e.recover(ctx, serverID, doc, false, true)
}

// ImportDocument is the HTTP-surface upsert. Unlike CrashRecovery it creates
// unknown players and leaves any live session lock untouched.
func (e *Engine) ImportDocument(ctx context.Context, source string, doc model.Document) (*SyncResult, error) {
	return e.recover(ctx, source, doc, true, false)
}

func (e *Engine) recover(ctx context.Context, serverID string, doc model.Document, createMissing, clearSession bool) (*SyncResult, error) {
	if err := doc.Validate(); err != nil {
		return &SyncResult{
			Status:  StatusValidationFailed,
			SteamID: doc.SteamID,
			Errors:  model.FlattenErrors(err),
		}, nil
	}
	nextStats, err := statsFromDoc(doc.Stats)
	if err != nil {
		return &SyncResult{
			Status:  StatusValidationFailed,
			SteamID: doc.SteamID,
			Errors:  []string{err.Error()},
		}, nil
	}

	started := e.now()
	var res *SyncResult
	err = e.store.WithTx(ctx, func(tx Tx) error {
		var p *model.Player
		var err error
		if createMissing {
			p, _, err = tx.GetOrCreatePlayer(ctx, doc.SteamID, doc.EOSID, doc.Name)
		} else {
			p, err = tx.GetPlayerForUpdate(ctx, doc.SteamID)
		}
		if err != nil {
			return err
		}
		if p == nil {
			res = &SyncResult{Status: StatusPlayerNotFound, SteamID: doc.SteamID}
			return nil
		}

		seqBefore := p.SyncSeq
		if doc.SyncSeq < p.SyncSeq {
			res = &SyncResult{
				Status:     StatusSkipped,
				SteamID:    doc.SteamID,
				SyncSeq:    p.SyncSeq,
				SkipReason: "stale_data",
			}
			if clearSession {
				if err := tx.ClearSession(ctx, p.ID); err != nil {
					return err
				}
			}
			return tx.AppendAudit(ctx, &model.AuditEntry{
				ServerID:      serverID,
				PlayerSteamID: doc.SteamID,
				Kind:          model.AuditCrashRecovery,
				SeqBefore:     &seqBefore,
				SeqAfter:      p.SyncSeq,
				FlagReason:    "skipped: stale_data",
				DurationMs:    e.now().Sub(started).Milliseconds(),
			})
		}

		var reasons []string
		if doc.SyncSeq-p.SyncSeq > RecoverySeqTolerance {
			reasons = append(reasons, fmt.Sprintf("Sync sequence jump of %d exceeds recovery tolerance %d", doc.SyncSeq-p.SyncSeq, RecoverySeqTolerance))
		}

		prevStats, err := tx.GetStats(ctx, p.ID)
		if err != nil {
			return err
		}
		reasons = append(reasons, checkDeltas(prevStats, nextStats)...)
		flagged := len(reasons) > 0

		if clearSession {
			if err := tx.ClearSession(ctx, p.ID); err != nil {
				return err
			}
		}

		now := e.now()
		if err := e.applyDocument(ctx, tx, p, doc, nextStats, now); err != nil {
			return err
		}

		res = &SyncResult{
			Status:     StatusOK,
			SteamID:    doc.SteamID,
			SyncSeq:    doc.SyncSeq,
			Flagged:    flagged,
			FlagReason: joinReasons(reasons),
		}
		return tx.AppendAudit(ctx, &model.AuditEntry{
			ServerID:      serverID,
			PlayerSteamID: doc.SteamID,
			Kind:          model.AuditCrashRecovery,
			SeqBefore:     &seqBefore,
			SeqAfter:      doc.SyncSeq,
			Before:        statsSummary(prevStats, seqBefore),
			After:         statsSummary(nextStats, doc.SyncSeq),
			Flagged:       flagged,
			FlagReason:    joinReasons(reasons),
			DurationMs:    e.now().Sub(started).Milliseconds(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("crash recovery %s on %s: %w", doc.SteamID, serverID, err)
	}
	return res, nil
}

// BatchCrashRecovery processes up to MaxBatchSize documents independently.
// One failing entry never aborts the others.
func (e *Engine) BatchCrashRecovery(ctx context.Context, serverID string, docs []model.Document) (*BatchResult, error) {
	if len(docs) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds limit of %d", len(docs), MaxBatchSize)
	}

	batch := &BatchResult{Total: len(docs), Results: make([]SyncResult, 0, len(docs))}
	for _, doc := range docs {
		res, err := e.CrashRecovery(ctx, serverID, doc)
		if err != nil {
			slog.Error("batch recovery entry failed", "steamId", doc.SteamID, "serverId", serverID, "err", err)
			batch.Failed++
			batch.Results = append(batch.Results, SyncResult{
				Status:  StatusError,
				SteamID: doc.SteamID,
				Errors:  []string{"transient failure"},
			})
			continue
		}
		switch res.Status {
		case StatusOK, StatusSkipped:
			batch.Successful++
		default:
			batch.Failed++
		}
		batch.Results = append(batch.Results, *res)
	}
	return batch, nil
}

// Export returns the current v2 document for a player, or nil if unknown.
func (e *Engine) Export(ctx context.Context, steamID string, includeTracking bool) (*model.Document, error) {
	var doc *model.Document
	err := e.store.WithTx(ctx, func(tx Tx) error {
		full, err := tx.LoadPlayerFull(ctx, steamID)
		if err != nil {
			return err
		}
		if full == nil {
			return nil
		}
		d := model.ExportDocument(full, e.now(), includeTracking)
		doc = &d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exporting player %s: %w", steamID, err)
	}
	return doc, nil
}

// applyDocument performs the write set shared by all mutating operations:
// player row, 1:1 upserts, loadout/perk replacement, additive unlocks and
// tracking counters.
func (e *Engine) applyDocument(ctx context.Context, tx Tx, p *model.Player, doc model.Document, stats model.PlayerStats, now time.Time) error {
	if err := tx.UpdateSync(ctx, p.ID, doc.EOSID, doc.Name, doc.SyncSeq, now); err != nil {
		return err
	}
	if err := tx.UpsertStats(ctx, p.ID, stats); err != nil {
		return err
	}
	if err := tx.UpsertSkins(ctx, p.ID, model.PlayerSkins{
		Indfor: doc.Skins.Indfor,
		Blufor: doc.Skins.Blufor,
		Redfor: doc.Skins.Redfor,
	}); err != nil {
		return err
	}
	if err := tx.UpsertSupporter(ctx, p.ID, supporterFromDoc(doc.SupporterStatus)); err != nil {
		return err
	}

	loadout := make([]model.LoadoutSlot, 0, len(doc.Loadout))
	for _, l := range doc.Loadout {
		loadout = append(loadout, model.LoadoutSlot{
			Slot:   l.Slot,
			Family: l.Family,
			Item:   l.Item,
			Count:  l.Count,
		})
	}
	if err := tx.ReplaceLoadout(ctx, p.ID, loadout); err != nil {
		return err
	}
	if err := tx.ReplacePerks(ctx, p.ID, doc.Perks); err != nil {
		return err
	}
	if err := tx.UpsertUnlocks(ctx, p.ID, doc.PermaUnlocks, now); err != nil {
		return err
	}

	if doc.Tracking == nil {
		return nil
	}
	if err := tx.UpsertKills(ctx, p.ID, doc.Tracking.Kills); err != nil {
		return err
	}
	if err := tx.UpsertVehicleKills(ctx, p.ID, doc.Tracking.VehicleKills); err != nil {
		return err
	}
	if err := tx.UpsertPurchases(ctx, p.ID, doc.Tracking.Purchases); err != nil {
		return err
	}
	if err := tx.UpsertWeaponXP(ctx, p.ID, doc.Tracking.WeaponXP); err != nil {
		return err
	}
	return tx.UpsertRewards(ctx, p.ID, doc.Tracking.Rewards)
}

func statsFromDoc(s model.DocStats) (model.PlayerStats, error) {
	joinTime, err := model.ParseDocTime(s.JoinTime)
	if err != nil {
		return model.PlayerStats{}, fmt.Errorf("stats.joinTime: %w", err)
	}
	claimTime, err := model.ParseDocTime(s.DailyClaimTime)
	if err != nil {
		return model.PlayerStats{}, fmt.Errorf("stats.dailyClaimTime: %w", err)
	}
	return model.PlayerStats{
		Currency:       s.Currency,
		CurrencyTotal:  s.CurrencyTotal,
		CurrencySpent:  s.CurrencySpent,
		XP:             s.XP,
		XPTotal:        s.XPTotal,
		Prestige:       s.Prestige,
		PermaTokens:    s.PermaTokens,
		DailyClaims:    s.DailyClaims,
		GamesPlayed:    s.GamesPlayed,
		TimePlayed:     s.TimePlayed,
		JoinTime:       joinTime,
		DailyClaimTime: claimTime,
	}, nil
}

func supporterFromDoc(tiers []string) *model.SupporterStatus {
	if len(tiers) == 0 {
		return nil
	}
	return &model.SupporterStatus{Tier: tiers[0]}
}

func statsSummary(s model.PlayerStats, seq int64) []byte {
	data, err := json.Marshal(model.StatsSummary{
		SyncSeq:       seq,
		CurrencyTotal: s.CurrencyTotal,
		CurrencySpent: s.CurrencySpent,
		XPTotal:       s.XPTotal,
		Prestige:      s.Prestige,
		PermaTokens:   s.PermaTokens,
		TimePlayed:    s.TimePlayed,
	})
	if err != nil {
		return nil
	}
	return data
}
