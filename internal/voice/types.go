// Package voice models the voice peer: the commands the engine sends to it,
// the events it reports, and the WebSocket bridge that carries both.
package voice

// CommandType names an instruction for the voice peer.
type CommandType string

const (
	CmdMute                CommandType = "mute"
	CmdUnmute              CommandType = "unmute"
	CmdConnect             CommandType = "connect"
	CmdDisconnect          CommandType = "disconnect"
	CmdPauseAssistant      CommandType = "pauseAssistant"
	CmdResumeAssistant     CommandType = "resumeAssistant"
	CmdMuteAudio           CommandType = "muteAudio"
	CmdUnmuteAudio         CommandType = "unmuteAudio"
	CmdClearAudioQueue     CommandType = "clearAudioQueue"
	CmdSendUserInput       CommandType = "sendUserInput"
	CmdSendAssistantInput  CommandType = "sendAssistantInput"
	CmdSendSessionSettings CommandType = "sendSessionSettings"
	CmdSendToolMessage     CommandType = "sendToolMessage"
)

// Command is one frame sent to the voice peer.
type Command struct {
	Type    CommandType `json:"type"`
	Message string      `json:"message,omitempty"`
}

// SpeakCommand asks the peer to speak text as the assistant.
func SpeakCommand(text string) Command {
	return Command{Type: CmdSendAssistantInput, Message: text}
}

// EventType names something the voice peer reported.
type EventType string

const (
	EventOpened  EventType = "opened"
	EventClosed  EventType = "closed"
	EventMessage EventType = "message"
	EventError   EventType = "error"
)

// Message types carried by EventMessage.
const (
	MessageUser      = "user_message"
	MessageAssistant = "assistant_message"
)

// Event is one frame received from the voice peer.
type Event struct {
	Type    EventType `json:"type"`
	Message *Message  `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Message is a transcribed utterance or a peer notice.
type Message struct {
	Type    string `json:"type"`
	Message Body   `json:"message"`
}

type Body struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// UserText returns the transcript of a user utterance.
func (e Event) UserText() (string, bool) {
	if e.Type != EventMessage || e.Message == nil || e.Message.Type != MessageUser {
		return "", false
	}
	return e.Message.Message.Content, e.Message.Message.Content != ""
}
