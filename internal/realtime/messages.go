package realtime

import (
	"encoding/json"
	"fmt"
)

// Every frame on the channel is a JSON envelope with a "type" discriminant.
// Inbound frames decode into one variant per discriminant instead of a loose
// dictionary, so handlers see a concrete type.

// Inbound is a message received from the server.
type Inbound interface {
	inbound()
}

// Outbound is a message the client can send. The channel stamps the
// envelope fields (type, timestamp, user_id) on every frame.
type Outbound interface {
	messageType() string
}

type STTResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type NLUResult struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
}

type BusinessResult struct {
	Success bool            `json:"success"`
	Action  string          `json:"action"`
	Data    json.RawMessage `json:"data"`
}

type ResponsePayload struct {
	Text        string `json:"text"`
	AudioBase64 string `json:"audio_base64"`
}

// ConnectionAck confirms the server accepted the connection.
type ConnectionAck struct {
	UserID     string `json:"user_id"`
	ServerTime string `json:"server_time"`
	Message    string `json:"message"`
}

// AIResponse is the full pipeline result for a voice command.
type AIResponse struct {
	STT      STTResult       `json:"stt"`
	NLU      NLUResult       `json:"nlu"`
	Business BusinessResult  `json:"business"`
	Response ResponsePayload `json:"response"`
}

// TextResponse is the pipeline result for a text command.
type TextResponse struct {
	Input    string         `json:"input"`
	NLU      NLUResult      `json:"nlu"`
	Business BusinessResult `json:"business"`
	Response string         `json:"response"`
}

// ProcessingStatus reports pipeline progress while a command is in flight.
type ProcessingStatus struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Pong answers a client ping.
type Pong struct {
	Timestamp float64 `json:"timestamp"`
}

// StatusResponse answers a status request.
type StatusResponse struct {
	UserID       string `json:"user_id"`
	ConnectedAt  string `json:"connected_at"`
	MessageCount int    `json:"message_count"`
}

// ServerError is a failure reported by the server inside the channel.
type ServerError struct {
	Message string `json:"message"`
}

func (ConnectionAck) inbound()    {}
func (AIResponse) inbound()       {}
func (TextResponse) inbound()     {}
func (ProcessingStatus) inbound() {}
func (Pong) inbound()             {}
func (StatusResponse) inbound()   {}
func (ServerError) inbound()      {}

// VoiceCommand carries recognized speech, optionally with the raw audio.
type VoiceCommand struct {
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	AudioBase64 string  `json:"audio_base64,omitempty"`
}

// TextCommand carries typed text.
type TextCommand struct {
	Text string `json:"text"`
}

// Ping is the application-level heartbeat.
type Ping struct{}

// StatusRequest asks the server for session status.
type StatusRequest struct{}

func (VoiceCommand) messageType() string  { return "voice_command" }
func (TextCommand) messageType() string   { return "text_command" }
func (Ping) messageType() string          { return "ping" }
func (StatusRequest) messageType() string { return "status_request" }

// decodeInbound turns a raw frame into its typed variant. An unrecognized
// discriminant returns a nil message and no error: such frames are logged
// and dropped, never treated as failures.
func decodeInbound(data []byte) (Inbound, string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	var (
		msg Inbound
		err error
	)
	switch head.Type {
	case "connection_ack":
		var m ConnectionAck
		err = json.Unmarshal(data, &m)
		msg = m
	case "ai_response":
		var m AIResponse
		err = json.Unmarshal(data, &m)
		msg = m
	case "text_response":
		var m TextResponse
		err = json.Unmarshal(data, &m)
		msg = m
	case "processing_status":
		var m ProcessingStatus
		err = json.Unmarshal(data, &m)
		msg = m
	case "pong":
		var m Pong
		err = json.Unmarshal(data, &m)
		msg = m
	case "status_response":
		var m StatusResponse
		err = json.Unmarshal(data, &m)
		msg = m
	case "error":
		var m ServerError
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, head.Type, nil
	}
	if err != nil {
		return nil, head.Type, fmt.Errorf("%w: %s: %v", ErrInvalidJSON, head.Type, err)
	}
	return msg, head.Type, nil
}
