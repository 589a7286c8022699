package storage

// Moderator decides whether a SpacePost may be stored. The engine in this
// repository never constructs a rejecting Moderator itself — moderation
// policy is out of scope (spec §1 Non-goals) — but store() still consults
// one so a caller-supplied policy can veto a write before any filesystem
// activity happens, reported as MESSAGE_REJECTED rather than a WriteError.
type Moderator interface {
	Allow(post SpacePost) bool
}

// AllowAll is the default Moderator: every post is accepted.
type AllowAll struct{}

func (AllowAll) Allow(SpacePost) bool { return true }
