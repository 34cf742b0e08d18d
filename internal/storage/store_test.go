package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"promocast/internal/target"
	logx "promocast/pkg/logx"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{"memory": NewMemory(logx.Nop())}

	fs, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "file", "promocast.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	out["file"] = fs

	ss, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "db", "promocast.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	out["sqlite"] = ss

	t.Cleanup(func() {
		for _, s := range out {
			_ = s.Close()
		}
	})
	return out
}

func TestStoreTargetsAndGroups(t *testing.T) {
	ctx := context.Background()
	for name, st := range openAll(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			for _, tg := range []target.Target{
				{ID: "t1", BaseFieldValue: "a@example.com", Active: true, CustomFields: map[string]any{"name": "Ann"}},
				{ID: "t2", BaseFieldValue: "b@example.com", Active: true},
				{ID: "t3", BaseFieldValue: "c@example.com", Active: false},
			} {
				if err := st.PutTarget(ctx, tg); err != nil {
					t.Fatalf("PutTarget(%s): %v", tg.ID, err)
				}
			}
			if err := st.PutGroup(ctx, target.Group{ID: "g1", Name: "News", TargetIDs: []string{"t2", "t1"}}); err != nil {
				t.Fatalf("PutGroup: %v", err)
			}
			if err := st.PutGroup(ctx, target.Group{ID: "g2", Name: "All", TargetIDs: []string{"t1", "t2", "t3"}}); err != nil {
				t.Fatalf("PutGroup: %v", err)
			}

			ts, err := st.GetTargets(ctx)
			if err != nil {
				t.Fatalf("GetTargets: %v", err)
			}
			if len(ts) != 3 || ts[0].ID != "t1" || ts[0].CustomFields["name"] != "Ann" || ts[2].Active {
				t.Fatalf("targets = %+v", ts)
			}

			if err := st.DeleteTarget(ctx, "t1"); err != nil {
				t.Fatalf("DeleteTarget: %v", err)
			}
			if err := st.DeleteTarget(ctx, "t1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("second DeleteTarget err = %v, want ErrNotFound", err)
			}

			gs, err := st.GetGroups(ctx)
			if err != nil {
				t.Fatalf("GetGroups: %v", err)
			}
			want := []target.Group{
				{ID: "g1", Name: "News", TargetIDs: []string{"t2"}},
				{ID: "g2", Name: "All", TargetIDs: []string{"t2", "t3"}},
			}
			if !reflect.DeepEqual(gs, want) {
				t.Fatalf("groups = %+v, want %+v", gs, want)
			}

			if err := st.DeleteGroup(ctx, "g1"); err != nil {
				t.Fatalf("DeleteGroup: %v", err)
			}
			gs, _ = st.GetGroups(ctx)
			if len(gs) != 1 || gs[0].ID != "g2" {
				t.Fatalf("groups after delete = %+v", gs)
			}
		})
	}
}

func TestStoreContentAndAudit(t *testing.T) {
	ctx := context.Background()
	for name, st := range openAll(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			if _, ok, err := st.GetContent(ctx, "reddit"); err != nil || ok {
				t.Fatalf("GetContent(empty) = ok=%v err=%v", ok, err)
			}
			blob := json.RawMessage(`{"title":"Launch","body":"hello"}`)
			if err := st.PutContent(ctx, "reddit", blob); err != nil {
				t.Fatalf("PutContent: %v", err)
			}
			if err := st.PutContent(ctx, "reddit", json.RawMessage(`{broken`)); err == nil {
				t.Fatal("expected invalid JSON to be rejected")
			}
			got, ok, err := st.GetContent(ctx, "reddit")
			if err != nil || !ok {
				t.Fatalf("GetContent = ok=%v err=%v", ok, err)
			}
			if string(got) != string(blob) {
				t.Fatalf("content = %s, want %s", got, blob)
			}
			if err := st.AppendAudit(ctx, AuditEntry{RunID: "run-1", Trigger: "http", Platforms: 2, OK: 1, Fail: 1}); err != nil {
				t.Fatalf("AppendAudit: %v", err)
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "promocast.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.PutTarget(ctx, target.Target{ID: "t1", BaseFieldValue: "r/golang", Active: true}); err != nil {
		t.Fatalf("PutTarget: %v", err)
	}
	if err := st.PutGroup(ctx, target.Group{ID: "g1", Name: "subs", TargetIDs: []string{"t1"}}); err != nil {
		t.Fatalf("PutGroup: %v", err)
	}
	_ = st.Close()

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	gs, _ := st2.GetGroups(ctx)
	if len(gs) != 1 || !reflect.DeepEqual(gs[0].TargetIDs, []string{"t1"}) {
		t.Fatalf("groups after reopen = %+v", gs)
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if st != nil || err != nil {
		t.Fatalf("Open(none) = %v, %v; want nil, nil", st, err)
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
