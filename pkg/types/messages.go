// Package types holds the WebSocket wire format shared with clients.
package types

import (
	"encoding/json"
	"time"
)

// Client -> Server
//
//	heartbeat: {}
//	emergencyAlert: {type, severity, title, description}
//	productionStatusUpdate: {mode?, featureTable?, streamQuality?, uploadSpeed?, teamStatus?, currentIssues?, nextSchedule?}
//	teamMemberStatusUpdate: {status}
//	checklistItemToggle: {itemId, templateId?, isChecked, date?}
//	sendMessage: {recipientId?, content, type?, priority?}
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Server -> Client
//
//	emergencyAlert, emergencyUpdated, productionStatusChanged,
//	productionModeChanged, teamMemberStatusChanged, checklistUpdated,
//	newMessage, userOnline, userOffline, onlineUsers, heartbeatAck, error
type ServerMessage struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorData is the payload of an "error" message; it goes to one session only.
type ErrorData struct {
	Message string       `json:"message"`
	Code    string       `json:"code,omitempty"`
	Request string       `json:"request,omitempty"`
	Issues  []FieldIssue `json:"issues,omitempty"`
}

type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const (
	MsgHeartbeat              = "heartbeat"
	MsgHeartbeatAck           = "heartbeatAck"
	MsgEmergencyAlert         = "emergencyAlert"
	MsgProductionStatusUpdate = "productionStatusUpdate"
	MsgTeamMemberStatusUpdate = "teamMemberStatusUpdate"
	MsgChecklistItemToggle    = "checklistItemToggle"
	MsgSendMessage            = "sendMessage"

	MsgUserOnline  = "userOnline"
	MsgUserOffline = "userOffline"
	MsgOnlineUsers = "onlineUsers"
	MsgError       = "error"
)

// Encode marshals one server frame.
func Encode(event string, data any, at time.Time) ([]byte, error) {
	return json.Marshal(ServerMessage{Type: event, Data: data, Timestamp: at})
}
