// Package target turns an abstract recipient Spec into concrete values.
package target

import (
	"context"
	"fmt"
	"strings"

	logx "promocast/pkg/logx"
)

// Projector extracts the value a platform needs from a target (an address, a
// subreddit, a chat handle). ok=false skips the target.
type Projector[V comparable] func(t Target) (V, bool)

// Resolve expands spec against the given snapshot and returns the projected,
// de-duplicated values in order of first occurrence.
//
// Unknown group or target references contribute nothing. An empty result is
// not an error here; the publish step decides what "nobody to send to" means.
func Resolve[V comparable](log logx.Logger, spec Spec, targets []Target, groups []Group, project Projector[V]) []V {
	if log.IsZero() {
		log = logx.Nop()
	}
	byID := make(map[string]Target, len(targets))
	for _, t := range targets {
		if _, dup := byID[t.ID]; !dup {
			byID[t.ID] = t
		}
	}

	var out []V
	seen := map[V]struct{}{}
	add := func(t Target) {
		v, ok := project(t)
		if !ok {
			log.Warn("target skipped: projection failed", logx.String("target", t.ID), logx.String("mode", string(spec.Mode)))
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	lookup := func(id string) {
		t, ok := byID[strings.TrimSpace(id)]
		if !ok {
			log.Debug("target reference not found", logx.String("target", id))
			return
		}
		add(t)
	}

	switch spec.Mode {
	case ModeAll:
		for _, t := range targets {
			add(t)
		}
	case ModeGroups:
		for _, ref := range spec.Groups {
			grp, ok := findGroup(groups, ref)
			if !ok {
				log.Debug("group reference not found", logx.String("group", ref.String()))
				continue
			}
			for _, id := range grp.TargetIDs {
				lookup(id)
			}
		}
	case ModeIndividual:
		for _, id := range spec.Individual {
			lookup(id)
		}
	default:
		log.Warn("unknown target mode; nothing resolved", logx.String("mode", string(spec.Mode)))
	}
	return out
}

// ResolveFrom reads one consistent view from src and resolves spec against it.
func ResolveFrom[V comparable](ctx context.Context, log logx.Logger, spec Spec, src Source, project Projector[V]) ([]V, error) {
	if src == nil {
		return nil, nil
	}
	targets, err := src.GetTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	var groups []Group
	if spec.Mode == ModeGroups {
		if groups, err = src.GetGroups(ctx); err != nil {
			return nil, fmt.Errorf("load groups: %w", err)
		}
	}
	return Resolve(log, spec, targets, groups, project), nil
}

func findGroup(groups []Group, ref GroupRef) (Group, bool) {
	for _, g := range groups {
		if ref.matches(g) {
			return g, true
		}
	}
	return Group{}, false
}

// BaseField projects the trimmed base field of active targets.
func BaseField(t Target) (string, bool) {
	if !t.Active {
		return "", false
	}
	v := strings.TrimSpace(t.BaseFieldValue)
	return v, v != ""
}

// CustomField projects a custom field of active targets, falling back to
// nothing when the field is missing or empty.
func CustomField(key string) Projector[string] {
	return func(t Target) (string, bool) {
		if !t.Active || t.CustomFields == nil {
			return "", false
		}
		raw, ok := t.CustomFields[key]
		if !ok || raw == nil {
			return "", false
		}
		v := strings.TrimSpace(fmt.Sprint(raw))
		return v, v != ""
	}
}
