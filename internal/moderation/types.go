package moderation

// CheckRequest is sent to moderation.check by the gateway for every chat
// message, and answered with a CheckResult.
type CheckRequest struct {
	Identity string `json:"identity"`
	Text     string `json:"text"`
	Ts       int64  `json:"ts"`
}

// CheckResult is the moderator's verdict for a CheckRequest. Reply is the
// formatted block message to show the sender when Allowed is false.
type CheckResult struct {
	Identity string `json:"identity"`
	Allowed  bool   `json:"allowed"`
	Command  bool   `json:"command,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Reply    string `json:"reply,omitempty"`
}

// ConnectEvent is published to moderation.connect when an identity joins.
type ConnectEvent struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
}

// Administrative commands carried by AdminRequest.
const (
	CommandBan        = "ban"
	CommandUnban      = "unban"
	CommandKarmaReset = "karma-reset"
	CommandStats      = "stats"
)

// AdminRequest is sent to moderation.admin once the caller has been
// authorised and the target resolved. Name is the target's display name,
// used only for the reply text.
type AdminRequest struct {
	Command  string `json:"command"`
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Actor    string `json:"actor"`
}

// AdminResult answers an AdminRequest.
type AdminResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}
