package models

import "github.com/google/uuid"

// BoardAction is a single accepted move on a mines board, as recorded by the historian.
type BoardAction struct {
	GameID      uuid.UUID `json:"game_id"`
	ActionIndex int       `json:"action_index"`
	ActorUserID int64     `json:"actor_user_id"`
	ActionType  string    `json:"action_type"`
	Tile        int       `json:"tile"`
	Timestamp   int64     `json:"timestamp"`
}
