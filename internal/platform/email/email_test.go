package email

import (
	"context"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"

	"promocast/internal/channel"
	"promocast/internal/channel/api"
	"promocast/internal/errclass"
	"promocast/internal/target"
)

func TestSendComposesMessage(t *testing.T) {
	t.Parallel()
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	send := func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}
	s, err := New(Config{Host: "smtp.example.com", From: "news@example.com", FromName: "News"}, send)
	if err != nil {
		t.Fatalf("New err = %v", err)
	}
	msg := api.Message{Post: channel.Post{Title: "Big\r\nLaunch"}, Text: "body text"}
	d, err := s.Send(context.Background(), "ann@example.org", msg)
	if err != nil {
		t.Fatalf("Send err = %v", err)
	}
	if d.PostID == "" {
		t.Fatalf("empty PostID")
	}
	if gotAddr != "smtp.example.com:587" || gotFrom != "news@example.com" || len(gotTo) != 1 || gotTo[0] != "ann@example.org" {
		t.Fatalf("envelope = %s %s %v", gotAddr, gotFrom, gotTo)
	}
	for _, want := range []string{"From: News <news@example.com>", "Subject: BigLaunch", "\r\n\r\nbody text"} {
		if !strings.Contains(gotMsg, want) {
			t.Fatalf("message missing %q:\n%s", want, gotMsg)
		}
	}
}

func TestSendMapsSMTPReplies(t *testing.T) {
	t.Parallel()
	cases := []struct {
		code      int
		want      string
		retryable bool
	}{
		{421, "RETRY_AFTER", true},
		{550, "SMTP_550", false},
	}
	for _, tc := range cases {
		send := func(string, smtp.Auth, string, []string, []byte) error {
			return &textproto.Error{Code: tc.code, Msg: "nope"}
		}
		s, _ := New(Config{Host: "h", From: "a@b.c"}, send)
		_, err := s.Send(context.Background(), "x@y.z", api.Message{})
		code, retry := errclass.Classify(err)
		if code != tc.want || retry != tc.retryable {
			t.Fatalf("Classify(%d) = (%q, %v), want (%q, %v)", tc.code, code, retry, tc.want, tc.retryable)
		}
	}
}

func TestRecipientRequiresAddress(t *testing.T) {
	t.Parallel()
	s := &Sender{}
	if got, ok := s.Recipient(target.Target{BaseFieldValue: "Ann <ann@example.org>", Active: true}); !ok || got != "ann@example.org" {
		t.Fatalf("Recipient = (%q, %v)", got, ok)
	}
	if _, ok := s.Recipient(target.Target{BaseFieldValue: "not-an-address", Active: true}); ok {
		t.Fatalf("Recipient accepted an invalid address")
	}
}
