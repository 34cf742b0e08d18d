// Package scheduler fires publish batches from files on cron or interval
// schedules. It is trigger-only: batches run through the orchestrator.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"promocast/internal/publish"
	logx "promocast/pkg/logx"
)

// Job is one scheduled batch.
type Job struct {
	Name     string
	Schedule string
	// Batch is a JSON or YAML batch file, read on every run.
	Batch    string
	DryMode  bool
	Disabled bool
}

type Config struct {
	Timezone string
	Jobs     []Job
}

// Runner executes a batch.
type Runner interface {
	Publish(ctx context.Context, req publish.Request) (publish.Result, error)
}

// Loader reads a batch file.
type Loader func(path string) (publish.Request, error)

// Entry describes a registered job.
type Entry struct {
	Name string
	Kind Kind
	Next time.Time
}

type Service struct {
	mu     sync.Mutex
	cfg    Config
	log    logx.Logger
	runner Runner
	load   Loader
	parser cron.Parser

	c      *cron.Cron
	loc    *time.Location
	ids    map[string]cron.EntryID
	kinds  map[string]Kind
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	busyMu sync.Mutex
	busy   map[string]bool
}

func New(cfg Config, runner Runner, load Loader, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if load == nil {
		load = publish.LoadRequest
	}
	return &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "scheduler")),
		runner: runner,
		load:   load,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		busy:   map[string]bool{},
	}
}

// Validate checks every job without registering anything.
func (s *Service) Validate(cfg Config) error {
	seen := map[string]bool{}
	for _, j := range cfg.Jobs {
		name := strings.TrimSpace(j.Name)
		if name == "" {
			return fmt.Errorf("schedule: job name required")
		}
		if seen[name] {
			return fmt.Errorf("schedule %q: duplicate name", name)
		}
		seen[name] = true
		if strings.TrimSpace(j.Batch) == "" {
			return fmt.Errorf("schedule %q: batch file required", name)
		}
		sc, err := Parse(j.Schedule)
		if err != nil {
			return fmt.Errorf("schedule %q: %w", name, err)
		}
		if sc.Kind == KindCron {
			if _, err := s.parser.Parse(sc.Cron); err != nil {
				return fmt.Errorf("schedule %q: %w", name, err)
			}
		}
	}
	return nil
}

// Apply swaps the job set. A running scheduler re-registers every job.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if s.c == nil {
		return
	}
	s.restartLocked()
}

// Start registers the jobs and starts triggering. Runs use ctx as parent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.startLocked()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.ids)))
}

func (s *Service) startLocked() {
	s.loc = s.location()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	s.ids = map[string]cron.EntryID{}
	s.kinds = map[string]Kind{}
	for _, j := range s.cfg.Jobs {
		if j.Disabled {
			continue
		}
		if err := s.addLocked(j); err != nil {
			s.log.Warn("schedule skipped", logx.String("job", j.Name), logx.Err(err))
		}
	}
	s.c.Start()
}

func (s *Service) restartLocked() {
	old := s.c
	s.c = nil
	if old != nil {
		// in-flight runs keep going; only triggering stops
		old.Stop()
	}
	s.startLocked()
	s.log.Info("service restarted", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.ids)))
}

func (s *Service) addLocked(j Job) error {
	sc, err := Parse(j.Schedule)
	if err != nil {
		return err
	}
	var id cron.EntryID
	switch sc.Kind {
	case KindInterval:
		id = s.c.Schedule(cron.Every(sc.Every), s.jobFunc(j))
	default:
		id, err = s.c.AddJob(sc.Cron, s.jobFunc(j))
		if err != nil {
			return err
		}
	}
	s.ids[j.Name] = id
	s.kinds[j.Name] = sc.Kind
	return nil
}

func (s *Service) jobFunc(j Job) cron.Job {
	ctx := s.ctx
	return cron.FuncJob(func() {
		s.wg.Add(1)
		defer s.wg.Done()
		s.fire(ctx, j)
	})
}

// Trigger runs a job now, outside its schedule.
func (s *Service) Trigger(ctx context.Context, name string) (publish.Result, error) {
	s.mu.Lock()
	var job *Job
	for i := range s.cfg.Jobs {
		if s.cfg.Jobs[i].Name == name {
			j := s.cfg.Jobs[i]
			job = &j
			break
		}
	}
	s.mu.Unlock()
	if job == nil {
		return publish.Result{}, fmt.Errorf("schedule %q not found", name)
	}
	return s.run(ctx, *job)
}

func (s *Service) fire(ctx context.Context, j Job) {
	if _, err := s.run(ctx, j); err != nil {
		s.log.Warn("scheduled batch failed", logx.String("job", j.Name), logx.Err(err))
	}
}

// ErrBusy is returned when the previous run of a job has not finished.
var ErrBusy = errors.New("previous run still in progress")

func (s *Service) run(ctx context.Context, j Job) (publish.Result, error) {
	s.busyMu.Lock()
	if s.busy[j.Name] {
		s.busyMu.Unlock()
		return publish.Result{}, ErrBusy
	}
	s.busy[j.Name] = true
	s.busyMu.Unlock()
	defer func() {
		s.busyMu.Lock()
		delete(s.busy, j.Name)
		s.busyMu.Unlock()
	}()

	req, err := s.load(j.Batch)
	if err != nil {
		return publish.Result{}, fmt.Errorf("load %s: %w", j.Batch, err)
	}
	req.Trigger = "schedule:" + j.Name
	if j.DryMode {
		req.DryMode = true
	}

	start := time.Now()
	res, err := s.runner.Publish(ctx, req)
	if err != nil {
		return res, err
	}
	s.log.Info("scheduled batch done",
		logx.String("job", j.Name),
		logx.String("run", res.RunID),
		logx.Bool("ok", res.Success),
		logx.Strings("failed", res.Failed()),
		logx.Duration("took", time.Since(start)),
	)
	return res, nil
}

// Entries lists registered jobs with their next fire time.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	out := make([]Entry, 0, len(s.ids))
	for _, j := range s.cfg.Jobs {
		id, ok := s.ids[j.Name]
		if !ok {
			continue
		}
		out = append(out, Entry{Name: j.Name, Kind: s.kinds[j.Name], Next: s.c.Entry(id).Next})
	}
	return out
}

// Stop stops triggering and waits for in-flight runs until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// Run starts the service and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	return nil
}

func (s *Service) location() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
