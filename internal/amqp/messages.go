package amqp

import (
	"encoding/json"
	"time"
)

// ScoreRefreshMessage asks the worker to recompute one plan's score. It
// carries only the plan ID; the worker reads everything else from storage
// so the message can never go stale.
type ScoreRefreshMessage struct {
	PlanID    int64     `json:"plan_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewScoreRefreshMessage creates a refresh message for a plan.
func NewScoreRefreshMessage(planID int64) *ScoreRefreshMessage {
	return &ScoreRefreshMessage{
		PlanID:    planID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *ScoreRefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ScoreRefreshMessageFromJSON creates a message from JSON bytes.
func ScoreRefreshMessageFromJSON(data []byte) (*ScoreRefreshMessage, error) {
	var msg ScoreRefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
