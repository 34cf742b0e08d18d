package app

import (
	"fmt"
	"sort"
	"strings"

	"promocast/internal/channel"
	"promocast/internal/channel/api"
	"promocast/internal/channel/automation"
	"promocast/internal/channel/webhook"
	"promocast/internal/config"
	"promocast/internal/httpx"
	"promocast/internal/platform/email"
	"promocast/internal/platform/reddit"
	"promocast/internal/platform/telegram"
	"promocast/internal/target"
	logx "promocast/pkg/logx"
)

// channelDeps are the long-lived pieces shared by every route.
type channelDeps struct {
	src     target.Source
	browser automation.Browser // nil when automation is off
	log     logx.Logger
}

// buildChannels creates the route table from config. Webhook publishers are
// stateless and shared; api and automation publishers are built per call.
func buildChannels(cfg *config.Config, d channelDeps) (*channel.Registry, error) {
	reg := channel.NewRegistry()

	for _, p := range sortedNames(cfg.Webhook) {
		w := cfg.Webhook[p]
		hc, err := httpClient("webhook."+p, w.Timeout, w.MaxRetries)
		if err != nil {
			return nil, err
		}
		pub := webhook.New(webhook.Config{URL: strings.TrimSpace(w.URL), Token: w.Token}, hc, d.log)
		reg.RegisterStatic(p, channel.Webhook, pub)
	}

	if rc := cfg.Platforms.Reddit; rc != nil {
		hc, err := httpClient("platforms.reddit", rc.Timeout, rc.MaxRetries)
		if err != nil {
			return nil, err
		}
		client, err := reddit.New(reddit.Config{
			BaseURL:     strings.TrimSpace(rc.BaseURL),
			AccessToken: rc.AccessToken,
			UserAgent:   rc.UserAgent,
		}, hc)
		if err != nil {
			return nil, fmt.Errorf("platforms.reddit: %w", err)
		}
		registerAPI(reg, "reddit", client, rc.APIConfig, d)
	}

	if ec := cfg.Platforms.Email; ec != nil {
		sender, err := email.New(email.Config{
			Host:     strings.TrimSpace(ec.Host),
			Port:     strings.TrimSpace(ec.Port),
			User:     ec.User,
			Password: ec.Password,
			From:     strings.TrimSpace(ec.From),
			FromName: ec.FromName,
			HTML:     ec.HTML,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("platforms.email: %w", err)
		}
		registerAPI(reg, "email", sender, ec.APIConfig, d)
	}

	if tc := cfg.Platforms.Telegram; tc != nil {
		timeout, err := config.ParseDurationField("platforms.telegram.timeout", tc.Timeout)
		if err != nil {
			return nil, err
		}
		client, err := telegram.New(telegram.Config{
			Token:          tc.Token,
			APIURL:         strings.TrimSpace(tc.APIURL),
			ParseMode:      tc.ParseMode,
			DisablePreview: tc.DisablePreview,
			Timeout:        timeout,
		}, d.log)
		if err != nil {
			return nil, fmt.Errorf("platforms.telegram: %w", err)
		}
		registerAPI(reg, "telegram", client, tc.APIConfig, d)
	}

	if a := cfg.Automation; a != nil && d.browser != nil {
		for _, p := range sortedNames(a.Scripts) {
			s := a.Scripts[p]
			script := automation.Script{
				URL:            s.URL,
				RecipientField: s.RecipientField,
				Title:          s.Title,
				Body:           s.Body,
				Link:           s.Link,
				Files:          s.Files,
				Submit:         s.Submit,
				Done:           s.Done,
			}
			reg.Register(p, channel.Automation, func() channel.Publisher {
				return automation.New(d.browser, script, d.src, d.log)
			})
		}
	}

	return reg, nil
}

// registerAPI shares one rate limiter per platform across invocations.
func registerAPI(reg *channel.Registry, platform string, poster api.Poster, ac config.APIConfig, d channelDeps) {
	limiter := api.NewLimiter(ac.RatePerSec)
	cfg := api.Config{RatePerSec: ac.RatePerSec, StopOnError: ac.StopOnError}
	log := d.log.With(logx.String("platform", platform))
	reg.Register(platform, channel.API, func() channel.Publisher {
		return api.New(poster, d.src, limiter, cfg, log)
	})
}

func httpClient(path, timeout string, retries int) (*httpx.Client, error) {
	t, err := config.ParseDurationField(path+".timeout", timeout)
	if err != nil {
		return nil, err
	}
	return httpx.New(httpx.Config{Timeout: t, MaxRetries: retries}), nil
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
