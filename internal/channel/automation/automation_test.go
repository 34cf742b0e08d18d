package automation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"promocast/internal/channel"
	"promocast/internal/errclass"
	"promocast/internal/eventbus"
	"promocast/internal/target"
	logx "promocast/pkg/logx"
)

type fakePage struct {
	b      *fakeBrowser
	url    string
	filled map[string]string
	closed bool
}

func (p *fakePage) Navigate(url string) error { p.url = url; return nil }
func (p *fakePage) Fill(sel, v string) error {
	if sel == p.b.broken {
		return errors.New("element not found")
	}
	if sel == p.b.panicOn {
		panic("detached node")
	}
	p.filled[sel] = v
	return nil
}
func (p *fakePage) Upload(string, []string) error { return nil }
func (p *fakePage) Click(sel string) error {
	p.b.mu.Lock()
	p.b.clicks++
	p.b.mu.Unlock()
	return nil
}
func (p *fakePage) WaitVisible(string) error { return nil }
func (p *fakePage) URL() (string, error)    { return p.url, nil }
func (p *fakePage) Close() error            { p.closed = true; return nil }

type fakeBrowser struct {
	mu     sync.Mutex
	pages  []*fakePage
	clicks  int
	broken  string
	panicOn string
	openErr error
}

func (b *fakeBrowser) Open(context.Context) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	p := &fakePage{b: b, filled: map[string]string{}}
	b.pages = append(b.pages, p)
	return p, nil
}

type recorder struct {
	events []eventbus.StepEvent
}

func (r *recorder) Emit(e eventbus.StepEvent) { r.events = append(r.events, e) }

var script = Script{
	URL:    "https://example.com/r/{recipient}/submit",
	Title:  "#title",
	Body:   "#body",
	Submit: "#submit",
}

func src() target.Snapshot {
	return target.Snapshot{Targets: []target.Target{
		{ID: "a", BaseFieldValue: "golang", Active: true},
		{ID: "b", BaseFieldValue: "rust", Active: true},
	}}
}

func post() channel.Post {
	return channel.Post{Title: "Launch", Body: "text", Targets: target.Spec{Mode: target.ModeAll}}
}

func TestPublishSubmitsPerRecipient(t *testing.T) {
	t.Parallel()
	b := &fakeBrowser{}
	rec := &recorder{}
	p := New(b, script, src(), logx.Nop())
	p.SetEventEmitter(rec)
	p.SetRunID("run")

	res, err := p.Publish(context.Background(), post(), nil, []string{"news"}, channel.Options{Platform: "reddit", StepID: "run-1"})
	if err != nil {
		t.Fatalf("Publish err = %v", err)
	}
	if !res.Success || res.Message != "submitted 2/2" || res.URL != "https://example.com/r/golang/submit" {
		t.Fatalf("result = %+v", res)
	}
	if b.clicks != 2 {
		t.Fatalf("clicks = %d, want 2", b.clicks)
	}
	for _, pg := range b.pages {
		if !pg.closed {
			t.Fatalf("page %s left open after submit", pg.url)
		}
		if pg.filled["#body"] != "text\n\n#news" {
			t.Fatalf("body = %q", pg.filled["#body"])
		}
	}
	// navigate, fill, submit for two recipients
	if len(rec.events) != 12 {
		t.Fatalf("events = %d, want 12", len(rec.events))
	}
	if rec.events[0].StepID != "run-1-r1-navigate" || rec.events[0].Method != "automation" {
		t.Fatalf("first event = %+v", rec.events[0])
	}
}

func TestPublishDryModeLeavesPagesOpen(t *testing.T) {
	t.Parallel()
	b := &fakeBrowser{}
	p := New(b, script, src(), logx.Nop())

	res, err := p.Publish(context.Background(), post(), nil, nil, channel.Options{Platform: "reddit", DryMode: true})
	if err != nil || !res.Success {
		t.Fatalf("Publish = (%+v, %v)", res, err)
	}
	if b.clicks != 0 {
		t.Fatalf("dry mode clicked submit %d times", b.clicks)
	}
	for _, pg := range b.pages {
		if pg.closed {
			t.Fatalf("dry-run page was closed")
		}
	}
}

func TestPublishPhaseFailureIsReported(t *testing.T) {
	t.Parallel()
	b := &fakeBrowser{broken: "#title"}
	rec := &recorder{}
	p := New(b, script, src(), logx.Nop())
	p.SetEventEmitter(rec)

	_, err := p.Publish(context.Background(), post(), nil, nil, channel.Options{Platform: "reddit", StepID: "s"})
	if err == nil {
		t.Fatalf("Publish err = nil, want fill failure")
	}
	if code, retry := errclass.Classify(err); code != errclass.CodeUnknown || retry {
		t.Fatalf("Classify = (%q, %v)", code, retry)
	}
	var failed int
	for _, e := range rec.events {
		if e.Type == eventbus.StepFailed {
			failed++
		}
	}
	if failed != 2 {
		t.Fatalf("failed events = %d, want 2", failed)
	}
}

func TestPublishRejectsIncompleteScript(t *testing.T) {
	t.Parallel()
	p := New(&fakeBrowser{}, Script{URL: "https://x"}, src(), logx.Nop())
	_, err := p.Publish(context.Background(), post(), nil, nil, channel.Options{})
	if !errclass.IsNoRetry(err) {
		t.Fatalf("err = %v, want no-retry", err)
	}
}

// assertStepsTerminate checks every sub-step has Started then one terminal event.
func assertStepsTerminate(t *testing.T, events []eventbus.StepEvent) map[string][]eventbus.Kind {
	t.Helper()
	steps := map[string][]eventbus.Kind{}
	for _, e := range events {
		steps[e.StepID] = append(steps[e.StepID], e.Type)
	}
	for id, kinds := range steps {
		if len(kinds) != 2 || kinds[0] != eventbus.StepStarted || !kinds[1].Terminal() {
			t.Fatalf("step %s events = %v, want [started, terminal]", id, kinds)
		}
	}
	return steps
}

func TestPublishPanicTerminatesPhase(t *testing.T) {
	t.Parallel()
	b := &fakeBrowser{panicOn: "#body"}
	rec := &recorder{}
	p := New(b, script, src(), logx.Nop())
	p.SetEventEmitter(rec)

	_, err := p.Publish(context.Background(), post(), nil, nil, channel.Options{Platform: "reddit", StepID: "s"})
	if code, retry := errclass.Classify(err); err == nil || retry {
		t.Fatalf("Publish err = %v (%q, %v), want non-retryable failure", err, code, retry)
	}
	steps := assertStepsTerminate(t, rec.events)
	for _, id := range []string{"s-r1-fill", "s-r2-fill"} {
		if kinds := steps[id]; len(kinds) != 2 || kinds[1] != eventbus.StepFailed {
			t.Fatalf("step %s events = %v, want failed", id, kinds)
		}
	}
	for _, pg := range b.pages {
		if !pg.closed {
			t.Fatalf("page %s left open after panic", pg.url)
		}
	}
}

func TestPublishOpenFailureIsNavigateStep(t *testing.T) {
	t.Parallel()
	b := &fakeBrowser{openErr: errors.New("browser gone")}
	rec := &recorder{}
	p := New(b, script, src(), logx.Nop())
	p.SetEventEmitter(rec)

	if _, err := p.Publish(context.Background(), post(), nil, nil, channel.Options{Platform: "reddit", StepID: "s"}); err == nil {
		t.Fatal("Publish err = nil, want open failure")
	}
	steps := assertStepsTerminate(t, rec.events)
	if kinds := steps["s-r1-navigate"]; len(kinds) != 2 || kinds[1] != eventbus.StepFailed {
		t.Fatalf("navigate events = %v, want [started, failed]", kinds)
	}
	if len(steps) != 2 {
		t.Fatalf("steps = %v, want one navigate step per recipient", steps)
	}
}
