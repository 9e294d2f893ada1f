package events

import (
	"encoding/json"
	"time"
)

const EventChangesRelayed = "CHANGES_RELAYED"

// EntryChangeEvent 中继已转发的编辑增量，投递给 Kafka 供审计/下游消费。
// Delta 保持不透明：下游自己决定怎么解释编辑器负载。
type EntryChangeEvent struct {
	EventType string          `json:"eventType"` // 固定 "CHANGES_RELAYED"
	DocID     string          `json:"docId"`
	AuthorID  string          `json:"authorId"`
	Delta     json.RawMessage `json:"delta"`
	RelayedAt time.Time       `json:"relayedAt"`
}
