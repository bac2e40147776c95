package model

import "strings"

// CapabilitySet is a set of capabilities granted to a user. Each key is a
// capability string (e.g. "approvals:act:manager") and may include wildcards
// (e.g. "approvals:*").
type CapabilitySet map[string]bool

// ActorCapability builds the capability string required to act as the given
// stage actor role.
func ActorCapability(actor string) string {
	return "approvals:act:" + actor
}

// Has returns true if the set contains the exact capability or a wildcard
// that matches it.
func (cs CapabilitySet) Has(cap string) bool {
	if cs[cap] {
		return true
	}
	// Check wildcard matches: "approvals:*" matches "approvals:act:manager",
	// "*" matches everything.
	for pattern := range cs {
		if matchWildcard(pattern, cap) {
			return true
		}
	}
	return false
}

// HasAll returns true if the set matches all given capabilities (including
// via wildcards).
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, cap := range caps {
		if !cs.Has(cap) {
			return false
		}
	}
	return true
}

// HasAny returns true if the set matches at least one of the given
// capabilities (including via wildcards).
func (cs CapabilitySet) HasAny(caps ...string) bool {
	for _, cap := range caps {
		if cs.Has(cap) {
			return true
		}
	}
	return false
}

// matchWildcard returns true if pattern (which may end in "*") matches cap.
// Examples:
//
//	"*"               matches anything
//	"approvals:*"     matches "approvals:act:manager"
//	"approvals:act:*" matches "approvals:act:manager"
//	"approvals:act"   does NOT match "approvals:act:manager" (exact only)
func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.HasSuffix(pattern, ":*") {
		return false
	}
	prefix := pattern[:len(pattern)-1] // "approvals:*" → "approvals:"
	return strings.HasPrefix(cap, prefix)
}

// PolicyEvaluator resolves capabilities from an authorization policy source.
type PolicyEvaluator interface {
	// ResolveCapabilities returns the capability set granted to the context's
	// roles.
	ResolveCapabilities(rctx *RequestContext) (CapabilitySet, error)

	// Evaluate checks a single capability, optionally with attributes.
	Evaluate(rctx *RequestContext, capability string, attrs map[string]any) (bool, error)
}

// CapabilityResolver resolves the full capability set for a request context.
type CapabilityResolver interface {
	// Resolve returns all capabilities for the given subject and tenant.
	Resolve(rctx *RequestContext) (CapabilitySet, error)

	// Invalidate clears cached capabilities for the given user and tenant.
	Invalidate(subjectID, tenantID string)
}
