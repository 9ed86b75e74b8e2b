package storage

// Turn roles. Only end-user and assistant turns are persisted; the
// system context is assembled per request and never stored.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Record kinds. The payload schema belongs to the prompt contract, not
// to this store; kinds only partition the append-only log.
const (
	KindNutrition = "nutrition"
)

// Profile is the per-user document. Fields are sparse and additive:
// unknown keys written by older or newer prompt revisions survive merges.
type Profile map[string]any

// Clone returns a shallow copy of the profile.
func (p Profile) Clone() Profile {
	if p == nil {
		return Profile{}
	}
	out := make(Profile, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Turn is one conversation turn, immutable once written.
type Turn struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"` // Unix milliseconds, server-assigned
}

// Record is one extracted structured record (e.g. a logged meal).
type Record struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
	CreatedAt int64          `json:"created_at"` // Unix milliseconds, server-assigned
}
