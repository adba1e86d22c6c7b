package websocket

import (
	"encoding/json"

	"logistics-admin-be/pkg/notifsync"
)

// Server -> client frame types.
const (
	FrameSnapshot       = "snapshot"
	FrameNotification   = "notification"
	FrameMarkReadResult = "mark_read_result"
	FrameError          = "error"
)

// Client -> server message types.
const (
	MsgMarkRead    = "mark_read"
	MsgMarkAllRead = "mark_all_read"
)

type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type SnapshotData struct {
	notifsync.View
	Degraded bool `json:"degraded"`
}

type MarkReadResult struct {
	ID      string `json:"id,omitempty"`
	All     bool   `json:"all,omitempty"`
	Success bool   `json:"success"`
}

type InboundMessage struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

func encode(frameType string, data interface{}) []byte {
	out, _ := json.Marshal(Frame{Type: frameType, Data: data})
	return out
}
