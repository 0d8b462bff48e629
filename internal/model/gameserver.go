package model

import "time"

// GameServer is a registered game server. The token authenticates its
// connector session; Active gates authentication, Flagged is advisory.
type GameServer struct {
	ID         int64
	ServerID   string
	Token      string
	Active     bool
	Flagged    bool
	FlagReason string
	LastSeen   *time.Time
	CreatedAt  time.Time
}
