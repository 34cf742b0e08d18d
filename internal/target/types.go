package target

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Mode selects which part of a Spec is consulted.
type Mode string

const (
	ModeAll        Mode = "all"
	ModeGroups     Mode = "groups"
	ModeIndividual Mode = "individual"
)

// Spec describes who receives a publish, abstractly.
//
// Only the field relevant to Mode is read; the others are ignored.
type Spec struct {
	Mode       Mode       `json:"mode" yaml:"mode"`
	Groups     []GroupRef `json:"groups,omitempty" yaml:"groups,omitempty"`
	Individual []string   `json:"individual,omitempty" yaml:"individual,omitempty"`
}

// GroupRef names a group by id or by name.
//
// In JSON it may be a bare string (matched against both id and name) or an
// object {"id": "...", "name": "..."}.
type GroupRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

func (g *GroupRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		s = strings.TrimSpace(s)
		*g = GroupRef{ID: s, Name: s}
		return nil
	}
	type plain GroupRef
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("group ref: %w", err)
	}
	*g = GroupRef(p)
	return nil
}

func (g GroupRef) matches(grp Group) bool {
	if g.ID != "" && g.ID == grp.ID {
		return true
	}
	return g.Name != "" && strings.EqualFold(g.Name, grp.Name)
}

func (g GroupRef) String() string {
	if g.ID != "" {
		return g.ID
	}
	return g.Name
}

// Target is one recipient record. Owned by the store; read-only here.
type Target struct {
	ID             string         `json:"id"`
	BaseFieldValue string         `json:"baseFieldValue"`
	CustomFields   map[string]any `json:"customFields,omitempty"`
	Active         bool           `json:"active"`
}

// Group is a named, ordered collection of target ids.
type Group struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	TargetIDs []string `json:"targetIds"`
}

// Source is the read side of the target/group store.
type Source interface {
	GetTargets(ctx context.Context) ([]Target, error)
	GetGroups(ctx context.Context) ([]Group, error)
}

// Snapshot is an in-memory Source.
type Snapshot struct {
	Targets []Target
	Groups  []Group
}

func (s Snapshot) GetTargets(context.Context) ([]Target, error) { return s.Targets, nil }
func (s Snapshot) GetGroups(context.Context) ([]Group, error)   { return s.Groups, nil }
