package realtime

import (
	"encoding/json"
)

// Frame type discriminators for the remote streaming protocol. Every frame
// carries a mandatory "type" field.
const (
	// Outbound
	TypeSessionUpdate  = "session.update"
	TypeAudioAppend    = "input_audio_buffer.append"
	TypeAudioCommit    = "input_audio_buffer.commit"
	TypeAudioClear     = "input_audio_buffer.clear"
	TypeResponseCreate = "response.create"

	// Inbound
	TypeSpeechStarted = "input_audio_buffer.speech_started"
	TypeSpeechStopped = "input_audio_buffer.speech_stopped"
	TypeTextDelta     = "response.text.delta"
	TypeTextDone      = "response.text.done"
	TypeAudioDelta    = "response.audio.delta"
	TypeAudioDone     = "response.audio.done"
	TypeResponseDone  = "response.done"
	TypeError         = "error"
)

// sessionUpdateFrame initializes the remote session after connect.
type sessionUpdateFrame struct {
	Type    string          `json:"type"`
	Session sessionSettings `json:"session"`
}

type sessionSettings struct {
	Modalities              []string              `json:"modalities"`
	Instructions            string                `json:"instructions"`
	Voice                   string                `json:"voice"`
	InputAudioFormat        string                `json:"input_audio_format"`
	OutputAudioFormat       string                `json:"output_audio_format"`
	InputAudioTranscription transcriptionSettings `json:"input_audio_transcription"`
	TurnDetection           turnDetection         `json:"turn_detection"`
}

type transcriptionSettings struct {
	Enabled bool   `json:"enabled"`
	Model   string `json:"model"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

// audioAppendFrame carries base64 audio into the input buffer.
type audioAppendFrame struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// typeOnlyFrame covers commit/clear frames that carry no payload.
type typeOnlyFrame struct {
	Type string `json:"type"`
}

// responseCreateFrame requests a model response.
type responseCreateFrame struct {
	Type     string          `json:"type"`
	Response responseRequest `json:"response"`
}

type responseRequest struct {
	Modalities   []string `json:"modalities"`
	Instructions string   `json:"instructions"`
}

// Event is a decoded inbound frame. Fields beyond Type are populated only
// for the frame types that carry them; Raw always holds the full payload
// for handlers that need more.
type Event struct {
	Type       string          `json:"type"`
	ItemID     string          `json:"item_id,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	Text       string          `json:"text,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Error      *EventError     `json:"error,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// EventError is the error payload of an inbound "error" frame.
type EventError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// decodeEvent parses an inbound frame, retaining the raw payload.
func decodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	ev.Raw = json.RawMessage(data)
	return ev, nil
}
