package channel

import (
	"encoding/json"
	"fmt"
	"strings"

	"promocast/internal/target"
)

// Post is the normalised per-platform content blob.
type Post struct {
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Link    string         `json:"link,omitempty"`
	Targets target.Spec    `json:"targets"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// DecodePost accepts a Post, *Post, raw JSON or a generic map and returns a Post.
func DecodePost(content any) (Post, error) {
	switch v := content.(type) {
	case nil:
		return Post{}, fmt.Errorf("content is empty")
	case Post:
		return v, nil
	case *Post:
		if v == nil {
			return Post{}, fmt.Errorf("content is empty")
		}
		return *v, nil
	case json.RawMessage:
		return decodeJSON(v)
	case []byte:
		return decodeJSON(v)
	case string:
		return decodeJSON([]byte(v))
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return Post{}, fmt.Errorf("content: %w", err)
		}
		return decodeJSON(b)
	}
}

func decodeJSON(b []byte) (Post, error) {
	var p Post
	if err := json.Unmarshal(b, &p); err != nil {
		return Post{}, fmt.Errorf("content: %w", err)
	}
	return p, nil
}

// Text renders body, link and hashtags the way most text platforms expect.
func (p Post) Text(hashtags []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Body))
	if p.Link != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.Link)
	}
	if tags := FormatHashtags(hashtags); tags != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(tags)
	}
	return b.String()
}

// FormatHashtags normalises tags to "#tag" form, space separated, without duplicates.
func FormatHashtags(tags []string) string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, "#"+t)
	}
	return strings.Join(out, " ")
}
