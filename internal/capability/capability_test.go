package capability

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stagegate/stagegate/model"
)

const testPolicy = `
roles:
  manager:
    - approvals:act:manager
    - approvals:requests:view
  finance:
    - approvals:act:finance
    - approvals:requests:view
  admin:
    - approvals:*
`

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestStaticPolicyEvaluator_ResolveCapabilities(t *testing.T) {
	e, err := NewStaticPolicyEvaluator(writePolicy(t, testPolicy))
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator: %v", err)
	}

	caps, err := e.ResolveCapabilities(&model.RequestContext{
		SubjectID: "u1", TenantID: "t1", Roles: []string{"manager"},
	})
	if err != nil {
		t.Fatalf("ResolveCapabilities: %v", err)
	}
	if !caps.Has("approvals:act:manager") {
		t.Error("manager role missing approvals:act:manager")
	}
	if caps.Has("approvals:act:finance") {
		t.Error("manager role should not have approvals:act:finance")
	}
}

func TestStaticPolicyEvaluator_union_of_roles(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator(writePolicy(t, testPolicy))

	caps, _ := e.ResolveCapabilities(&model.RequestContext{
		SubjectID: "u1", TenantID: "t1", Roles: []string{"manager", "finance"},
	})
	if !caps.HasAll("approvals:act:manager", "approvals:act:finance") {
		t.Error("multi-role context should union capabilities")
	}
}

func TestStaticPolicyEvaluator_wildcard_role(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator(writePolicy(t, testPolicy))

	caps, _ := e.ResolveCapabilities(&model.RequestContext{
		SubjectID: "u1", TenantID: "t1", Roles: []string{"admin"},
	})
	if !caps.Has("approvals:act:manager") {
		t.Error("admin wildcard should match approvals:act:manager")
	}
}

func TestStaticPolicyEvaluator_unknown_role(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator(writePolicy(t, testPolicy))

	caps, _ := e.ResolveCapabilities(&model.RequestContext{
		SubjectID: "u1", TenantID: "t1", Roles: []string{"intern"},
	})
	if len(caps) != 0 {
		t.Errorf("unknown role caps = %v, want empty", caps)
	}
}

func TestStaticPolicyEvaluator_Evaluate(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator(writePolicy(t, testPolicy))
	rctx := &model.RequestContext{SubjectID: "u1", TenantID: "t1", Roles: []string{"manager"}}

	ok, err := e.Evaluate(rctx, "approvals:act:manager", nil)
	if err != nil || !ok {
		t.Errorf("Evaluate = %v, %v, want true", ok, err)
	}
	ok, _ = e.Evaluate(rctx, "approvals:act:finance", nil)
	if ok {
		t.Error("Evaluate(finance capability) = true for manager")
	}
}

func TestStaticPolicyEvaluator_missing_file(t *testing.T) {
	if _, err := NewStaticPolicyEvaluator("/nonexistent/policy.yaml"); err == nil {
		t.Error("missing policy file returned nil error")
	}
}

func TestStaticPolicyEvaluator_Sync_reload(t *testing.T) {
	path := writePolicy(t, testPolicy)
	e, _ := NewStaticPolicyEvaluator(path)
	rctx := &model.RequestContext{SubjectID: "u1", TenantID: "t1", Roles: []string{"intern"}}

	caps, _ := e.ResolveCapabilities(rctx)
	if len(caps) != 0 {
		t.Fatal("intern should start with no capabilities")
	}

	updated := testPolicy + `
  intern:
    - approvals:requests:view
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite policy: %v", err)
	}
	if err := e.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	caps, _ = e.ResolveCapabilities(rctx)
	if !caps.Has("approvals:requests:view") {
		t.Error("Sync did not pick up new role")
	}
}

// countingEvaluator counts ResolveCapabilities calls to observe caching.
type countingEvaluator struct {
	calls int
	caps  model.CapabilitySet
	err   error
}

func (c *countingEvaluator) ResolveCapabilities(_ *model.RequestContext) (model.CapabilitySet, error) {
	c.calls++
	return c.caps, c.err
}

func (c *countingEvaluator) Evaluate(_ *model.RequestContext, capability string, _ map[string]any) (bool, error) {
	return c.caps.Has(capability), c.err
}

func TestResolver_caches(t *testing.T) {
	ev := &countingEvaluator{caps: model.CapabilitySet{"approvals:act:manager": true}}
	r := NewResolver(ev, time.Minute)
	rctx := &model.RequestContext{SubjectID: "u1", TenantID: "t1"}

	for i := 0; i < 3; i++ {
		caps, err := r.Resolve(rctx)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !caps.Has("approvals:act:manager") {
			t.Error("capability missing")
		}
	}
	if ev.calls != 1 {
		t.Errorf("evaluator calls = %d, want 1 (cached)", ev.calls)
	}
}

func TestResolver_ttl_expiry(t *testing.T) {
	ev := &countingEvaluator{caps: model.CapabilitySet{}}
	r := NewResolver(ev, time.Millisecond)
	rctx := &model.RequestContext{SubjectID: "u1", TenantID: "t1"}

	_, _ = r.Resolve(rctx)
	time.Sleep(5 * time.Millisecond)
	_, _ = r.Resolve(rctx)

	if ev.calls != 2 {
		t.Errorf("evaluator calls = %d, want 2 (cache expired)", ev.calls)
	}
}

func TestResolver_Invalidate(t *testing.T) {
	ev := &countingEvaluator{caps: model.CapabilitySet{}}
	r := NewResolver(ev, time.Minute)
	rctx := &model.RequestContext{SubjectID: "u1", TenantID: "t1"}

	_, _ = r.Resolve(rctx)
	r.Invalidate("u1", "t1")
	_, _ = r.Resolve(rctx)

	if ev.calls != 2 {
		t.Errorf("evaluator calls = %d, want 2 (invalidated)", ev.calls)
	}
}

func TestResolver_propagates_error(t *testing.T) {
	ev := &countingEvaluator{err: errors.New("policy backend down")}
	r := NewResolver(ev, time.Minute)

	if _, err := r.Resolve(&model.RequestContext{SubjectID: "u1", TenantID: "t1"}); err == nil {
		t.Error("Resolve did not propagate evaluator error")
	}
}
