package target

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	logx "promocast/pkg/logx"
)

func fixture() ([]Target, []Group) {
	targets := []Target{
		{ID: "t1", BaseFieldValue: "a@example.com", Active: true, CustomFields: map[string]any{"subreddit": "golang"}},
		{ID: "t2", BaseFieldValue: "b@example.com", Active: true},
		{ID: "t3", BaseFieldValue: "", Active: true},
		{ID: "t4", BaseFieldValue: "d@example.com", Active: false},
		{ID: "t5", BaseFieldValue: " e@example.com ", Active: true, CustomFields: map[string]any{"subreddit": "golang"}},
	}
	groups := []Group{
		{ID: "g1", Name: "Newsletter", TargetIDs: []string{"t1", "t2"}},
		{ID: "g2", Name: "Partners", TargetIDs: []string{"t2", "t5", "missing"}},
		{ID: "g3", Name: "Newsletter", TargetIDs: []string{"t5"}},
	}
	return targets, groups
}

func TestResolveModes(t *testing.T) {
	t.Parallel()
	targets, groups := fixture()

	tests := []struct {
		name string
		spec Spec
		want []string
	}{
		{name: "all skips unprojectable", spec: Spec{Mode: ModeAll}, want: []string{"a@example.com", "b@example.com", "e@example.com"}},
		{name: "all ignores unrelated fields", spec: Spec{Mode: ModeAll, Individual: []string{"nope"}}, want: []string{"a@example.com", "b@example.com", "e@example.com"}},
		{name: "groups by id dedup", spec: Spec{Mode: ModeGroups, Groups: []GroupRef{{ID: "g1"}, {ID: "g2"}}}, want: []string{"a@example.com", "b@example.com", "e@example.com"}},
		{name: "groups by name first match wins", spec: Spec{Mode: ModeGroups, Groups: []GroupRef{{Name: "newsletter"}}}, want: []string{"a@example.com", "b@example.com"}},
		{name: "unknown group contributes nothing", spec: Spec{Mode: ModeGroups, Groups: []GroupRef{{ID: "zzz"}}}, want: nil},
		{name: "individual dedup", spec: Spec{Mode: ModeIndividual, Individual: []string{"t2", "t2", "t1"}}, want: []string{"b@example.com", "a@example.com"}},
		{name: "individual missing", spec: Spec{Mode: ModeIndividual, Individual: []string{"nope", "t4"}}, want: nil},
		{name: "unknown mode", spec: Spec{Mode: "bogus"}, want: nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Resolve(logx.Nop(), tt.spec, targets, groups, BaseField)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Resolve = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	t.Parallel()
	targets, groups := fixture()
	spec := Spec{Mode: ModeGroups, Groups: []GroupRef{{ID: "g2"}, {Name: "Newsletter"}}}
	a := Resolve(logx.Nop(), spec, targets, groups, BaseField)
	b := Resolve(logx.Nop(), spec, targets, groups, BaseField)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("resolution not deterministic: %v vs %v", a, b)
	}
}

func TestResolveCustomFieldDedup(t *testing.T) {
	t.Parallel()
	targets, groups := fixture()
	got := Resolve(logx.Nop(), Spec{Mode: ModeAll}, targets, groups, CustomField("subreddit"))
	if want := []string{"golang"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveLogsProjectionFailure(t *testing.T) {
	t.Parallel()
	targets, groups := fixture()
	var buf bytes.Buffer
	Resolve(logx.NewJSON(&buf, "debug"), Spec{Mode: ModeAll}, targets, groups, BaseField)
	out := buf.String()
	if !strings.Contains(out, "projection failed") || !strings.Contains(out, `"target":"t3"`) {
		t.Fatalf("expected diagnostic for t3, got %s", out)
	}
}

func TestGroupRefUnmarshal(t *testing.T) {
	t.Parallel()
	var spec Spec
	raw := `{"mode":"groups","groups":["Newsletter",{"id":"g2"}]}`
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(spec.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(spec.Groups))
	}
	if spec.Groups[0].ID != "Newsletter" || spec.Groups[0].Name != "Newsletter" {
		t.Fatalf("bare ref = %+v", spec.Groups[0])
	}
	if spec.Groups[1].ID != "g2" || spec.Groups[1].Name != "" {
		t.Fatalf("object ref = %+v", spec.Groups[1])
	}
}

func TestResolveFromSnapshot(t *testing.T) {
	t.Parallel()
	targets, groups := fixture()
	src := Snapshot{Targets: targets, Groups: groups}
	got, err := ResolveFrom(context.Background(), logx.Nop(), Spec{Mode: ModeGroups, Groups: []GroupRef{{ID: "g3"}}}, src, BaseField)
	if err != nil {
		t.Fatalf("ResolveFrom error: %v", err)
	}
	if want := []string{"e@example.com"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ResolveFrom = %v, want %v", got, want)
	}
}
