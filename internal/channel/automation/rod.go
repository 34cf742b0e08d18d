package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	logx "promocast/pkg/logx"
)

// RodConfig selects how Chromium is reached.
type RodConfig struct {
	// ControlURL attaches to a running browser; empty launches one.
	ControlURL string
	Bin        string
	Headless   bool
	// PageTimeout bounds every action on a page.
	PageTimeout time.Duration
}

// RodBrowser is a Browser backed by go-rod with stealth pages. The browser
// is started on first use.
type RodBrowser struct {
	cfg RodConfig
	log logx.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

func NewRod(cfg RodConfig, log logx.Logger) *RodBrowser {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 45 * time.Second
	}
	return &RodBrowser{cfg: cfg, log: log.With(logx.String("comp", "rod"))}
}

func (b *RodBrowser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}
	u := b.cfg.ControlURL
	if u == "" {
		l := launcher.New().
			Headless(b.cfg.Headless).
			Set("disable-gpu").
			Set("disable-dev-shm-usage")
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		var err error
		if u, err = l.Launch(); err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}
	br := rod.New().ControlURL(u)
	if err := br.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	b.browser = br
	b.log.Info("browser connected", logx.Bool("headless", b.cfg.Headless))
	return br, nil
}

func (b *RodBrowser) Open(ctx context.Context) (Page, error) {
	br, err := b.connect()
	if err != nil {
		return nil, err
	}
	page, err := stealth.Page(br)
	if err != nil {
		return nil, fmt.Errorf("create tab: %w", err)
	}
	return &rodPage{page: page.Context(ctx), tab: page, timeout: b.cfg.PageTimeout}, nil
}

// Close shuts the browser down, including pages left open by dry runs.
func (b *RodBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

type rodPage struct {
	page    *rod.Page // bound to the publish context
	tab     *rod.Page // unbound, so Close works after cancellation
	timeout time.Duration
}

func (p *rodPage) el(selector string) (*rod.Element, error) {
	el, err := p.page.Timeout(p.timeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element %q: %w", selector, err)
	}
	return el, nil
}

func (p *rodPage) Navigate(url string) error {
	pg := p.page.Timeout(p.timeout)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	return pg.WaitLoad()
}

func (p *rodPage) Fill(selector, value string) error {
	el, err := p.el(selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

func (p *rodPage) Upload(selector string, paths []string) error {
	el, err := p.el(selector)
	if err != nil {
		return err
	}
	return el.SetFiles(paths)
}

func (p *rodPage) Click(selector string) error {
	el, err := p.el(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) WaitVisible(selector string) error {
	el, err := p.el(selector)
	if err != nil {
		return err
	}
	return el.WaitVisible()
}

func (p *rodPage) URL() (string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) Close() error { return p.tab.Context(context.Background()).Close() }
