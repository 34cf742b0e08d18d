package publish

import (
	"os"
	"path/filepath"
	"testing"

	"promocast/internal/channel"
)

func TestLoadRequestYAMLAndJSON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yml := `
platforms:
  reddit: true
  email: false
routes:
  reddit: automation
hashtags: [go, release]
dryMode: true
content:
  reddit:
    title: Launch
    targets:
      mode: groups
      groups: [vip]
`
	js := `{"platforms":{"reddit":true},"routes":{"reddit":"automation"},"hashtags":["go","release"],"dryMode":true,"content":{"reddit":{"title":"Launch"}}}`
	for name, body := range map[string]string{"batch.yaml": yml, "batch.json": js} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		req, err := LoadRequest(path)
		if err != nil {
			t.Fatalf("%s: LoadRequest err = %v", name, err)
		}
		if !req.Platforms["reddit"] || req.Routes["reddit"] != channel.Automation || !req.DryMode || len(req.Hashtags) != 2 {
			t.Fatalf("%s: request = %+v", name, req)
		}
		post, err := channel.DecodePost(req.Content["reddit"])
		if err != nil || post.Title != "Launch" {
			t.Fatalf("%s: content = %+v (%v)", name, post, err)
		}
	}
}

func TestParseRequestRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	if _, err := ParseRequest([]byte(`{"platfroms":{}}`), ".json"); err == nil {
		t.Fatalf("ParseRequest accepted a misspelled field")
	}
}
