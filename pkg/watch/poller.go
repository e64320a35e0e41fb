// Package watch polls for image updates periodically and whenever one of the
// configuration files changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/oleksiyp/kubecd/pkg/model"
	"github.com/oleksiyp/kubecd/pkg/updates"
)

// DefaultDebounce is how long file events are coalesced before a poll.
const DefaultDebounce = 500 * time.Millisecond

// Loader loads the configuration. It is called before every poll, so edits
// to the files are always picked up.
type Loader func() (*model.Config, error)

// Checker scans a loaded configuration for updates.
type Checker func(ctx context.Context, cfg *model.Config) (*updates.Report, error)

// Poller runs a check on start, on every interval tick and on changes to the
// files of the configuration.
type Poller struct {
	load      Loader
	check     Checker
	interval  time.Duration
	debounce  time.Duration
	notifiers []Notifier
	logger    *zap.Logger

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool

	watcher *fsnotify.Watcher
	always  []string
	files   map[string]bool
	dirs    map[string]bool

	manual chan struct{}
	polls  int
	last   *Result
}

// NewPoller creates a poller.
func NewPoller(load Loader, check Checker, interval time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		load:     load,
		check:    check,
		interval: interval,
		debounce: DefaultDebounce,
		logger:   logger,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		manual:   make(chan struct{}, 1),
	}
}

// AddNotifier adds a receiver of poll results.
func (p *Poller) AddNotifier(n Notifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifiers = append(p.notifiers, n)
}

// WatchFile adds a file that is watched even when the configuration cannot be
// loaded, typically the environments file the loader reads.
func (p *Poller) WatchFile(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.always = append(p.always, filepath.Clean(path))
}

// SetDebounce sets the delay between a file event and the poll it triggers.
func (p *Poller) SetDebounce(d time.Duration) {
	p.debounce = d
}

// Start begins polling in the background.
func (p *Poller) Start(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("poller already running")
	}
	if p.interval <= 0 {
		return fmt.Errorf("invalid poll interval %s", p.interval)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	p.watcher = watcher
	p.watchFilesLocked(nil)

	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	p.logger.Info("starting poller", zap.Duration("interval", p.interval))

	p.wg.Add(1)
	go p.run(ctx, watcher)
	return nil
}

// Stop halts polling and waits for an in-flight poll to finish.
func (p *Poller) Stop() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller not running")
	}
	p.running = false
	cancel, watcher := p.cancel, p.watcher
	p.watcher = nil
	p.mu.Unlock()

	p.logger.Info("stopping poller")
	cancel()
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.files = make(map[string]bool)
	p.dirs = make(map[string]bool)
	return watcher.Close()
}

// Poll requests an immediate poll. Requests made while one is pending are
// merged.
func (p *Poller) Poll() {
	select {
	case p.manual <- struct{}{}:
	default:
	}
}

// Status returns the state of the poller and the result of the last poll.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	files := make([]string, 0, len(p.files))
	for f := range p.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return Status{
		Running:  p.running,
		Interval: p.interval.String(),
		Polls:    p.polls,
		Files:    files,
		Last:     p.last,
	}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return p.Stop()
}

func (p *Poller) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx, TriggerStart, "")

	var (
		debounce <-chan time.Time
		changed  string
	)
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("poller context cancelled")
			return
		case <-ticker.C:
			p.poll(ctx, TriggerInterval, "")
		case <-p.manual:
			p.poll(ctx, TriggerManual, "")
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if p.relevant(event) {
				p.logger.Debug("config file changed",
					zap.String("file", event.Name),
					zap.String("op", event.Op.String()))
				changed = event.Name
				debounce = time.After(p.debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("file watcher error", zap.Error(err))
		case <-debounce:
			debounce = nil
			p.poll(ctx, TriggerFile, changed)
		}
	}
}

func (p *Poller) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.files[filepath.Clean(event.Name)]
}

func (p *Poller) poll(ctx context.Context, trigger Trigger, file string) {
	result := Result{Timestamp: time.Now(), Trigger: trigger, File: file}

	cfg, err := p.load()
	if err != nil {
		p.logger.Error("failed to load config", zap.Error(err))
		result.Error = err.Error()
		p.record(result)
		p.notify(result)
		return
	}
	p.watchFiles(cfg.Files())

	report, err := p.check(ctx, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("update check failed", zap.Error(err))
		result.Error = err.Error()
	}
	if report != nil {
		for _, f := range report.Files() {
			result.Updates = append(result.Updates, report.Updates[f]...)
		}
		result.Failures = report.Failures
	}
	p.logger.Debug("poll finished",
		zap.String("trigger", string(trigger)),
		zap.Int("updates", len(result.Updates)),
		zap.Int("failures", len(result.Failures)))

	p.record(result)
	if !result.Empty() {
		p.notify(result)
	}
}

func (p *Poller) record(result Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	p.last = &result
}

// watchFiles watches the parent directories of files, so editors that
// replace files through a rename are noticed too.
func (p *Poller) watchFiles(files []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watchFilesLocked(files)
}

func (p *Poller) watchFilesLocked(files []string) {
	if p.watcher == nil {
		return
	}

	p.files = make(map[string]bool, len(files)+len(p.always))
	dirs := make(map[string]bool)
	for _, f := range append(append([]string(nil), p.always...), files...) {
		f = filepath.Clean(f)
		p.files[f] = true
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if p.dirs[dir] {
			continue
		}
		if err := p.watcher.Add(dir); err != nil {
			p.logger.Warn("failed to watch directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		p.dirs[dir] = true
	}
	for dir := range p.dirs {
		if !dirs[dir] {
			_ = p.watcher.Remove(dir)
			delete(p.dirs, dir)
		}
	}
}

func (p *Poller) notify(result Result) {
	p.mu.RLock()
	notifiers := make([]Notifier, len(p.notifiers))
	copy(notifiers, p.notifiers)
	p.mu.RUnlock()

	for _, n := range notifiers {
		if err := n.Notify(result); err != nil {
			p.logger.Error("failed to notify",
				zap.String("trigger", string(result.Trigger)),
				zap.Error(err))
		}
	}
}
