package rules

import (
	"strings"

	"github.com/stagegate/stagegate/model"
)

// ResolveField looks up a condition field against an evaluation context.
// Resolution order:
//
//  1. A literal key of the resource map wins, even when the field looks like a
//     namespaced path ("requester.role" as a resource key beats the requester
//     namespace).
//  2. A "requester.", "currentApprover.", "workflow." or "metadata." prefix
//     resolves the remainder as a dot-path against that namespace.
//  3. Otherwise the full field is resolved as a dot-path against the resource,
//     which supports nested resource fields without a prefix.
//
// A field that cannot be resolved yields nil; resolution never fails.
func ResolveField(ectx *model.EvaluationContext, field string) any {
	if ectx == nil {
		return nil
	}

	// 1. Direct resource key takes priority.
	if ectx.Resource != nil {
		if v, ok := ectx.Resource[field]; ok {
			return v
		}
	}

	// 2. Namespace prefixes.
	if rest, ok := strings.CutPrefix(field, "requester."); ok && ectx.Requester != nil {
		return walkPath(ectx.Requester, rest)
	}
	if rest, ok := strings.CutPrefix(field, "currentApprover."); ok && ectx.CurrentApprover != nil {
		return walkPath(ectx.CurrentApprover, rest)
	}
	if rest, ok := strings.CutPrefix(field, "workflow."); ok && ectx.Workflow != nil {
		return walkPath(ectx.Workflow, rest)
	}
	if rest, ok := strings.CutPrefix(field, "metadata."); ok && ectx.Metadata != nil {
		return walkPath(ectx.Metadata, rest)
	}

	// 3. Nested resource field.
	return walkPath(ectx.Resource, field)
}

// walkPath resolves a dot-separated path against a nested map. Any missing
// key or non-map intermediate yields nil.
func walkPath(root map[string]any, path string) any {
	if root == nil || path == "" {
		return nil
	}
	var current any = root
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[key]
		if !ok {
			return nil
		}
	}
	return current
}
