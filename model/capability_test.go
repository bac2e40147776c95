package model

import "testing"

func TestActorCapability(t *testing.T) {
	if got := ActorCapability("manager"); got != "approvals:act:manager" {
		t.Errorf("ActorCapability(manager) = %q", got)
	}
}

func TestCapabilitySet_Has_exact(t *testing.T) {
	cs := CapabilitySet{
		"approvals:act:manager":  true,
		"approvals:requests:view": true,
	}
	if !cs.Has("approvals:act:manager") {
		t.Error("Has(approvals:act:manager) = false, want true")
	}
	if cs.Has("approvals:act:finance") {
		t.Error("Has(approvals:act:finance) = true, want false")
	}
}

func TestCapabilitySet_Has_wildcard_star(t *testing.T) {
	cs := CapabilitySet{"*": true}
	if !cs.Has("approvals:act:manager") {
		t.Error("wildcard * should match approvals:act:manager")
	}
	if !cs.Has("anything") {
		t.Error("wildcard * should match anything")
	}
}

func TestCapabilitySet_Has_wildcard_namespace(t *testing.T) {
	cs := CapabilitySet{"approvals:*": true}
	if !cs.Has("approvals:act:manager") {
		t.Error("approvals:* should match approvals:act:manager")
	}
	if !cs.Has("approvals:requests:cancel") {
		t.Error("approvals:* should match approvals:requests:cancel")
	}
	if cs.Has("flows:edit:save") {
		t.Error("approvals:* should not match flows:edit:save")
	}
}

func TestCapabilitySet_Has_wildcard_resource(t *testing.T) {
	cs := CapabilitySet{"approvals:act:*": true}
	if !cs.Has("approvals:act:manager") {
		t.Error("approvals:act:* should match approvals:act:manager")
	}
	if !cs.Has("approvals:act:finance") {
		t.Error("approvals:act:* should match approvals:act:finance")
	}
	if cs.Has("approvals:requests:view") {
		t.Error("approvals:act:* should not match approvals:requests:view")
	}
}

func TestCapabilitySet_Has_empty(t *testing.T) {
	cs := CapabilitySet{}
	if cs.Has("approvals:act:manager") {
		t.Error("empty set should not match anything")
	}
}

func TestCapabilitySet_Has_nil(t *testing.T) {
	var cs CapabilitySet
	if cs.Has("approvals:act:manager") {
		t.Error("nil set should not match anything")
	}
}

func TestCapabilitySet_HasAll(t *testing.T) {
	cs := CapabilitySet{
		"approvals:act:manager":  true,
		"approvals:requests:view": true,
	}
	if !cs.HasAll("approvals:act:manager", "approvals:requests:view") {
		t.Error("HasAll should be true when all present")
	}
	if cs.HasAll("approvals:act:manager", "approvals:act:finance") {
		t.Error("HasAll should be false when one missing")
	}
}

func TestCapabilitySet_HasAll_wildcard(t *testing.T) {
	cs := CapabilitySet{"approvals:*": true}
	if !cs.HasAll("approvals:act:manager", "approvals:requests:cancel") {
		t.Error("HasAll with wildcard should match all under namespace")
	}
}

func TestCapabilitySet_HasAny(t *testing.T) {
	cs := CapabilitySet{
		"approvals:requests:view": true,
	}
	if !cs.HasAny("approvals:act:finance", "approvals:requests:view") {
		t.Error("HasAny should be true when at least one present")
	}
	if cs.HasAny("approvals:act:finance", "flows:edit:save") {
		t.Error("HasAny should be false when none present")
	}
}

func TestMatchWildcard(t *testing.T) {
	tests := []struct {
		pattern string
		cap     string
		want    bool
	}{
		{"*", "approvals:act:manager", true},
		{"*", "anything", true},
		{"approvals:*", "approvals:act:manager", true},
		{"approvals:*", "flows:edit:save", false},
		{"approvals:act:*", "approvals:act:manager", true},
		{"approvals:act:*", "approvals:requests:view", false},
		{"approvals:act:manager", "approvals:act:manager", false}, // exact match handled by map lookup, not wildcard
		{"approvals:act", "approvals:act:manager", false},         // no wildcard suffix
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"_vs_"+tt.cap, func(t *testing.T) {
			if got := matchWildcard(tt.pattern, tt.cap); got != tt.want {
				t.Errorf("matchWildcard(%q, %q) = %v, want %v", tt.pattern, tt.cap, got, tt.want)
			}
		})
	}
}
