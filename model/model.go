package model

// PartyInfo is the authoritative playback snapshot of one party. It is
// created by the provisioning API and afterwards mutated only through
// member messages.
type PartyInfo struct {
	ID        string  `json:"id"`
	OwnerID   string  `json:"ownerId"`
	Src       string  `json:"src"`
	Playhead  float64 `json:"playhead"`
	IsPlaying bool    `json:"isPlaying"`
}

// Outbound event methods sent by the relay.
const (
	MethodJoinAck       = "join"
	MethodMemberJoined  = "new"
	MethodMemberLeft    = "leave"
	MethodChat          = "chat"
	MethodStatus        = "status"
	MethodPartyEnded    = "party-ended"
	MethodVoiceDisabled = "voice-disabled"
)

// JoinAck is the private acknowledgment sent to a member that completed
// the join handshake. It carries the full party snapshot so the client
// can seek to the shared playhead before rendering.
type JoinAck struct {
	Method string    `json:"method"`
	Party  PartyInfo `json:"party"`
}

// MemberEvent announces a join or leave to the rest of the party.
type MemberEvent struct {
	Method   string `json:"method"`
	Nickname string `json:"nickname"`
}

// ChatEvent is the authoritative chat broadcast. Senders receive their
// own message back through it instead of rendering a local echo.
type ChatEvent struct {
	Method    string `json:"method"`
	UserID    string `json:"userId"`
	Nickname  string `json:"nickname"`
	PartyID   string `json:"partyId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// StatusEvent is the periodic absolute-state broadcast reconciling
// client drift.
type StatusEvent struct {
	Method    string  `json:"method"`
	PartyID   string  `json:"partyId"`
	OwnerID   string  `json:"ownerId"`
	IsPlaying bool    `json:"isPlaying"`
	Playhead  float64 `json:"playhead"`
}

// PartyEndedEvent tells every member the owner terminated the party.
type PartyEndedEvent struct {
	Method  string `json:"method"`
	PartyID string `json:"partyId"`
}

// VoiceStateEvent announces that a member's voice chat went away, so
// peers tear down any open connection to it.
type VoiceStateEvent struct {
	Method  string `json:"method"`
	UserID  string `json:"userId"`
	PartyID string `json:"partyId"`
}
