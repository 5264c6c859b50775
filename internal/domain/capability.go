package domain

// Capability names a single permitted operation beyond what an RSVP's
// owner can already do
type Capability string

const (
	CapRSVPDeleteAny Capability = "rsvp:delete:any"
	CapRSVPReadEvent Capability = "rsvp:read:event"
	CapEventReopen   Capability = "event:reopen"
	CapEventCreate   Capability = "event:create"
)

// CapabilitySet is the resolved set of capabilities for one request.
// Token roles and legacy flags are collapsed into this once, at the edge;
// check sites never look at roles.
type CapabilitySet map[Capability]struct{}

// Has reports whether the set grants the capability
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Grant adds a capability to the set
func (s CapabilitySet) Grant(c Capability) {
	s[c] = struct{}{}
}

// adminCapabilities is everything the admin role expands to
var adminCapabilities = []Capability{
	CapRSVPDeleteAny,
	CapRSVPReadEvent,
	CapEventReopen,
	CapEventCreate,
}

// ResolveCapabilities collapses the token's role, legacy admin flag and
// explicit permission list into one CapabilitySet
func ResolveCapabilities(role string, legacyAdmin bool, permissions []string) CapabilitySet {
	set := make(CapabilitySet)

	if role == "admin" || legacyAdmin {
		for _, c := range adminCapabilities {
			set.Grant(c)
		}
	}
	if role == "organizer" {
		set.Grant(CapRSVPReadEvent)
	}
	for _, p := range permissions {
		set.Grant(Capability(p))
	}

	return set
}

// Requester is the verified caller identity plus its resolved capabilities
type Requester struct {
	UserID       string
	Email        string
	Capabilities CapabilitySet
}

// CanActOn reports whether the requester owns the reservation or holds
// the override capability
func (r *Requester) CanActOn(rsvp *RSVP, override Capability) bool {
	if rsvp.UserID == r.UserID {
		return true
	}
	return r.Capabilities.Has(override)
}
