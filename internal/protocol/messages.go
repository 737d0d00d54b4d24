package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type              string   `json:"type"`
	ProtocolVersion   string   `json:"protocol_version"`
	SupportedVersions []string `json:"supported_versions,omitempty"`
	PlayerName        string   `json:"player_name"`
	// PlayerID is the client's stable identity. Offline clients omit it and
	// get one derived from the name.
	PlayerID string `json:"player_id,omitempty"`
	MaxQueue int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	PlayerID        string `json:"player_id"`
	PlayerName      string `json:"player_name"`
	// NegotiationTTLSeconds tells clients how long a transfer offer stays open.
	NegotiationTTLSeconds int `json:"negotiation_ttl_seconds"`
}

// CMD (client -> server): the arguments of one /transfer invocation.
type CmdMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ID              string   `json:"id"`
	Args            []string `json:"args"`
}

// COMPLETE (client -> server): tab completion for partially typed args.
type CompleteMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ID              string   `json:"id"`
	Args            []string `json:"args"`
}

// COMPLETIONS (server -> client)
type CompletionsMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Ref             string   `json:"ref"`
	Options         []string `json:"options"`
}

// NOTICE (server -> client): a rendered player-facing message.
type NoticeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Key             string   `json:"key"`
	Text            string   `json:"text"`
	Args            []string `json:"args,omitempty"`
}

// RESULT (server -> client): completion of a CMD. Ref is empty for frames
// rejected before they could be attributed to a command.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

func NewResult(ref string, code, message string) ResultMsg {
	return ResultMsg{
		Type:            TypeResult,
		ProtocolVersion: Version,
		Ref:             ref,
		OK:              code == "",
		Code:            code,
		Message:         message,
	}
}
