package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/stagegate/stagegate/model"
)

// snapshot is an immutable collection of all definitions indexed by ID.
type snapshot struct {
	domains         map[string]model.DomainDefinition
	flows           map[string]model.ApprovalFlowDefinition
	conditionGroups map[string]model.ConditionGroup
	checksum        string
}

// Registry is a read-optimized, thread-safe store of all loaded definitions.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.DomainDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions.
func (r *Registry) Replace(defs []model.DomainDefinition) {
	s := &snapshot{
		domains:         make(map[string]model.DomainDefinition, len(defs)),
		flows:           make(map[string]model.ApprovalFlowDefinition),
		conditionGroups: make(map[string]model.ConditionGroup),
	}

	var checksumParts []string

	for _, def := range defs {
		s.domains[def.Domain] = def
		checksumParts = append(checksumParts, def.Checksum)

		for _, f := range def.Flows {
			s.flows[f.ID] = f
		}
		for _, g := range def.ConditionGroups {
			s.conditionGroups[g.ID] = g
		}
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// GetDomain returns the domain definition with the given ID.
func (r *Registry) GetDomain(domainID string) (model.DomainDefinition, bool) {
	d, ok := r.current().domains[domainID]
	return d, ok
}

// GetFlow returns the flow definition with the given ID.
func (r *Registry) GetFlow(flowID string) (model.ApprovalFlowDefinition, bool) {
	f, ok := r.current().flows[flowID]
	return f, ok
}

// GetConditionGroup returns the condition group with the given ID.
func (r *Registry) GetConditionGroup(groupID string) (model.ConditionGroup, bool) {
	g, ok := r.current().conditionGroups[groupID]
	return g, ok
}

// ResolveConditionGroups maps a transition's condition group id list to the
// registered groups. Unknown ids are reported rather than skipped so a stale
// reference cannot silently weaken a transition guard.
func (r *Registry) ResolveConditionGroups(ids []string) ([]model.ConditionGroup, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	groups := make([]model.ConditionGroup, 0, len(ids))
	for _, id := range ids {
		g, ok := r.current().conditionGroups[id]
		if !ok {
			return nil, fmt.Errorf("condition group %q not found", id)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// AllDomains returns all domain definitions.
func (r *Registry) AllDomains() []model.DomainDefinition {
	s := r.current()
	defs := make([]model.DomainDefinition, 0, len(s.domains))
	for _, d := range s.domains {
		defs = append(defs, d)
	}
	return defs
}

// AllFlows returns all flow definitions.
func (r *Registry) AllFlows() []model.ApprovalFlowDefinition {
	s := r.current()
	flows := make([]model.ApprovalFlowDefinition, 0, len(s.flows))
	for _, f := range s.flows {
		flows = append(flows, f)
	}
	return flows
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
