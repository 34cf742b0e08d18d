package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"promocast/internal/channel/api"
	"promocast/internal/errclass"
	"promocast/internal/target"
	logx "promocast/pkg/logx"
)

func TestRecipient(t *testing.T) {
	t.Parallel()
	c := &Client{}
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"-100123", "-100123", true},
		{"mychannel", "@mychannel", true},
		{"@mychannel", "@mychannel", true},
		{"  ", "", false},
	}
	for _, tc := range cases {
		got, ok := c.Recipient(target.Target{BaseFieldValue: tc.in, Active: true})
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Recipient(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 30) + "\n" + strings.Repeat("b", 30)
	got := splitText(s, 40)
	if len(got) != 2 || got[0] != strings.Repeat("a", 30) || got[1] != strings.Repeat("b", 30) {
		t.Fatalf("splitText = %q", got)
	}
	if got := splitText("short", 40); len(got) != 1 {
		t.Fatalf("splitText(short) = %q", got)
	}
}

func TestSendUsesBotAPI(t *testing.T) {
	t.Parallel()
	var chatID, text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		chatID, _ = body["chat_id"].(string)
		text, _ = body["text"].(string)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":42,"chat":{"id":-1,"type":"channel"},"date":0}}`))
	}))
	defer srv.Close()

	c, err := New(Config{Token: "123:abc", APIURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New err = %v", err)
	}
	d, err := c.Send(context.Background(), "@promo", api.Message{Text: "hello"})
	if err != nil {
		t.Fatalf("Send err = %v", err)
	}
	if d.PostID != "42" || d.URL != "https://t.me/promo/42" {
		t.Fatalf("delivery = %+v", d)
	}
	if chatID != "@promo" || text != "hello" {
		t.Fatalf("request chat_id=%q text=%q", chatID, text)
	}
}

func TestSendRejectedChatIsNotRetryable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was kicked from the channel chat"}`))
	}))
	defer srv.Close()

	c, err := New(Config{Token: "123:abc", APIURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New err = %v", err)
	}
	_, err = c.Send(context.Background(), "@promo", api.Message{Text: "hello"})
	if err == nil {
		t.Fatalf("Send err = nil, want failure")
	}
	if _, retry := errclass.Classify(err); retry {
		t.Fatalf("Classify(%v) retryable, want not", err)
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected cancellation: %v", err)
	}
}
