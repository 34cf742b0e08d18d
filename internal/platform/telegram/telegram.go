// Package telegram posts to Telegram channels and chats through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"promocast/internal/channel"
	"promocast/internal/channel/api"
	"promocast/internal/errclass"
	"promocast/internal/target"
	logx "promocast/pkg/logx"
)

const textLimit = 4000

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (tests, local bot servers).
	APIURL         string
	ParseMode      string
	DisablePreview bool
	Timeout        time.Duration
}

// Client implements api.Poster. Recipients are chat ids or @channel usernames.
type Client struct {
	cfg Config
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, bot: b, log: log.With(logx.String("comp", "telegram"))}, nil
}

// Recipient accepts a numeric chat id or an @username from the base field.
func (c *Client) Recipient(t target.Target) (string, bool) {
	v, ok := target.BaseField(t)
	if !ok {
		return "", false
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return v, true
	}
	if !strings.HasPrefix(v, "@") {
		v = "@" + v
	}
	return v, len(v) > 1
}

type chat string

func (c chat) Recipient() string { return string(c) }

func (c *Client) Send(ctx context.Context, to string, msg api.Message) (api.Delivery, error) {
	rcpt := chat(to)
	opt := &tele.SendOptions{ParseMode: c.cfg.ParseMode, DisableWebPagePreview: c.cfg.DisablePreview}

	var first *tele.Message
	for _, chunk := range splitText(msg.Text, textLimit) {
		if err := ctx.Err(); err != nil {
			return delivery(to, first), err
		}
		m, err := c.bot.Send(rcpt, chunk, opt)
		if err != nil {
			return delivery(to, first), mapError(err)
		}
		if first == nil {
			first = m
		}
	}
	for _, f := range msg.Files {
		if err := ctx.Err(); err != nil {
			return delivery(to, first), err
		}
		what, ok := attachment(f)
		if !ok {
			c.log.Debug("attachment skipped", logx.String("name", f.Name))
			continue
		}
		m, err := c.bot.Send(rcpt, what)
		if err != nil {
			return delivery(to, first), mapError(err)
		}
		if first == nil {
			first = m
		}
	}
	return delivery(to, first), nil
}

func attachment(f channel.FileRef) (any, bool) {
	var file tele.File
	switch {
	case f.Path != "":
		file = tele.FromDisk(f.Path)
	case f.URL != "":
		file = tele.FromURL(f.URL)
	default:
		return nil, false
	}
	if strings.HasPrefix(f.ContentType, "image/") {
		return &tele.Photo{File: file}, true
	}
	return &tele.Document{File: file, FileName: f.Name}, true
}

func delivery(to string, m *tele.Message) api.Delivery {
	if m == nil {
		return api.Delivery{}
	}
	d := api.Delivery{PostID: strconv.Itoa(m.ID)}
	if strings.HasPrefix(to, "@") {
		d.URL = fmt.Sprintf("https://t.me/%s/%d", strings.TrimPrefix(to, "@"), m.ID)
	}
	return d
}

// mapError turns Bot API failures into status errors so they classify like
// any other HTTP platform.
func mapError(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return errclass.RetryAfter(errclass.Status(http.StatusTooManyRequests, err.Error()), time.Duration(flood.RetryAfter)*time.Second)
	}
	var te *tele.Error
	if errors.As(err, &te) && te.Code > 0 {
		return fmt.Errorf("%w: %w", errclass.Status(te.Code, te.Description), err)
	}
	return err
}

// splitText cuts s into chunks of at most limit runes, preferring newlines.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
