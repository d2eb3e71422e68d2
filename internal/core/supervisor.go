package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jiujiugas/gasops/internal/fileutil"
	"github.com/jiujiugas/gasops/internal/journal"
	"github.com/jiujiugas/gasops/internal/lockfile"
	"github.com/jiujiugas/gasops/internal/netutil"
	"github.com/jiujiugas/gasops/internal/sentinel"
	"github.com/jiujiugas/gasops/internal/servicefile"
	"github.com/jiujiugas/gasops/internal/sysmetrics"
)

// supervisorState represents the lifecycle state of a Supervisor.
type supervisorState uint32

const (
	supervisorCreated      supervisorState = iota // Zero value; NewSupervisor returns in this state
	supervisorReady                               // Initialize succeeded
	supervisorRunning                             // Run in progress
	supervisorShuttingDown                        // Shutdown called
)

const (
	// ErrShuttingDown is returned once Shutdown has been called.
	ErrShuttingDown = sentinel.Error("supervisor is shutting down")

	// ErrNotInitialized is returned by Run before Initialize succeeded.
	ErrNotInitialized = sentinel.Error("supervisor not initialized")

	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = sentinel.Error("supervisor already running")

	// ErrUnknownService is returned for a service name that was never registered.
	ErrUnknownService = sentinel.Error("unknown service")

	// ErrDuplicateService is returned when a name is registered twice.
	ErrDuplicateService = sentinel.Error("service already registered")

	// ErrMaxInstances is returned when a start would exceed MaxInstances.
	ErrMaxInstances = sentinel.Error("max instances reached")

	// ErrPortInUse is returned when something outside the supervisor already
	// listens on an instance port.
	ErrPortInUse = sentinel.Error("port already in use")
)

// ErrLocked is re-exported from lockfile so the public API imports only
// from core.
const ErrLocked = lockfile.ErrLocked

// ErrPortClaimed is re-exported from netutil so the public API imports
// only from core.
const ErrPortClaimed = netutil.ErrPortClaimed

// Supervisor runs the registered services, keeps them healthy and journals
// what it sees. It is safe for concurrent use.
type Supervisor struct {
	cfg     SupervisorConfig
	sampler sysmetrics.Sampler
	ping    PingFunc
	ports   *netutil.PortRegistry

	state  atomic.Uint32 // supervisorState
	initMu sync.Mutex

	mu       sync.RWMutex
	services map[string]*service
	order    []string

	// lock and journal are set by Initialize and cleared by Shutdown,
	// both under initMu.
	lock    *lockfile.Lock
	journal atomic.Pointer[journal.Journal]
}

func (s *Supervisor) loadState() supervisorState    { return supervisorState(s.state.Load()) }
func (s *Supervisor) storeState(st supervisorState) { s.state.Store(uint32(st)) }

// NewSupervisor creates a Supervisor. It performs no I/O; call Initialize
// before Run.
//
// Panics if cfg.Validate reports any errors.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("gasops: invalid supervisor config: %v", err))
	}
	s := &Supervisor{
		cfg:      cfg,
		sampler:  cfg.Sampler,
		ping:     cfg.Ping,
		ports:    netutil.NewPortRegistry(Logger()),
		services: make(map[string]*service),
	}
	if s.sampler == nil {
		s.sampler = sysmetrics.System{DiskPath: "/"}
	}
	if s.ping == nil {
		s.ping = netutil.Ping
	}
	return s
}

// Initialize locks the state directory, opens the journal and registers
// the configured services. A missing services file is created with the
// stock services. Calling it again after success is a no-op; a failed call
// can be retried.
func (s *Supervisor) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	switch s.loadState() {
	case supervisorReady, supervisorRunning:
		return nil
	case supervisorShuttingDown:
		return ErrShuttingDown
	case supervisorCreated:
	}

	if err := s.doInitialize(ctx); err != nil {
		s.releaseResources()
		return fmt.Errorf("initialize: %w", err)
	}
	s.storeState(supervisorReady)
	return nil
}

func (s *Supervisor) doInitialize(ctx context.Context) error {
	if err := fileutil.EnsureDir(s.cfg.logDir()); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	lock, err := lockfile.Acquire(ctx, s.cfg.StateDir, s.cfg.LockWait, Logger())
	if err != nil {
		return err
	}
	s.lock = lock

	j, err := journal.Open(ctx, s.cfg.journalPath(), Logger())
	if err != nil {
		return err
	}
	s.journal.Store(j)

	services := slices.Clone(s.cfg.Services)
	if s.cfg.ServicesFile != "" {
		f, created, err := servicefile.LoadOrCreate(s.cfg.ServicesFile)
		if err != nil {
			return err
		}
		if created {
			Logger().Info("wrote default services file", "path", s.cfg.ServicesFile)
		}
		services = append(services, ServicesFromFile(f)...)
	}

	for _, svc := range services {
		if s.registered(svc.Name) {
			continue
		}
		if err := s.Register(svc); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) releaseResources() {
	if j := s.journal.Swap(nil); j != nil {
		if err := j.Close(); err != nil {
			Logger().Warn("close journal", "error", err)
		}
	}
	if s.lock != nil {
		s.lock.Release()
		s.lock = nil
	}
}

// Register adds a service and claims its port range. Zero fields take the
// package defaults.
func (s *Supervisor) Register(cfg ServiceConfig) error {
	if s.loadState() == supervisorShuttingDown {
		return ErrShuttingDown
	}
	if cfg.HealthInterval == 0 {
		cfg.HealthInterval = s.cfg.HealthInterval
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[cfg.Name]; ok {
		return fmt.Errorf("register %q: %w", cfg.Name, ErrDuplicateService)
	}
	for slot := range cfg.MaxInstances {
		if err := s.ports.Claim(cfg.PortFor(slot), cfg.Name); err != nil {
			for prev := range slot {
				s.ports.Release(cfg.PortFor(prev))
			}
			return fmt.Errorf("register %q: %w", cfg.Name, err)
		}
	}

	s.services[cfg.Name] = newService(cfg, s.cfg.logDir())
	s.order = append(s.order, cfg.Name)
	Logger().Info("service registered", "service", cfg.Name,
		"port", cfg.Port, "max_instances", cfg.MaxInstances)
	return nil
}

func (s *Supervisor) registered(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.services[name]
	return ok
}

// Services returns the registered service names in registration order.
func (s *Supervisor) Services() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

func (s *Supervisor) service(name string) (*service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	return svc, nil
}

func (s *Supervisor) all() []*service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*service, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.services[name])
	}
	return out
}

// StartService starts n more instances of name and returns how many came
// up. It fails with ErrMaxInstances when n would exceed MaxInstances.
func (s *Supervisor) StartService(ctx context.Context, name string, n int) (int, error) {
	if s.loadState() == supervisorShuttingDown {
		return 0, ErrShuttingDown
	}
	svc, err := s.service(name)
	if err != nil {
		return 0, err
	}
	svc.opMu.Lock()
	defer svc.opMu.Unlock()
	return s.startLocked(ctx, svc, n)
}

// startLocked starts n instances concurrently. The caller holds svc.opMu.
func (s *Supervisor) startLocked(ctx context.Context, svc *service, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	if s.loadState() == supervisorShuttingDown {
		return 0, ErrShuttingDown
	}
	live, _ := svc.counts()
	if live+n > svc.cfg.MaxInstances {
		return 0, fmt.Errorf("start %d instances of %q with %d live: %w",
			n, svc.cfg.Name, live, ErrMaxInstances)
	}

	insts := svc.reserve(n)
	var (
		g       errgroup.Group
		started atomic.Int32
		errsMu  sync.Mutex
		errs    []error
	)
	for _, inst := range insts {
		g.Go(func() error {
			err := s.startInstance(ctx, svc, inst)
			if err != nil {
				errsMu.Lock()
				errs = append(errs, err)
				errsMu.Unlock()
				return nil
			}
			started.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(started.Load()), errors.Join(errs...)
}

func (s *Supervisor) startInstance(ctx context.Context, svc *service, inst *Instance) error {
	if netutil.InUse(ctx, inst.Port()) {
		inst.setState(StateFailed)
		svc.remove(inst)
		err := fmt.Errorf("start %s slot %d on port %d: %w", svc.cfg.Name, inst.slot, inst.Port(), ErrPortInUse)
		s.recordError(ctx, inst, "port_in_use", err)
		return err
	}
	if err := inst.Start(ctx, s.cfg.StartTimeout, s.cfg.StopTimeout); err != nil {
		svc.remove(inst)
		err = fmt.Errorf("start %s slot %d: %w", svc.cfg.Name, inst.slot, err)
		s.recordError(ctx, inst, "start_failed", err)
		return err
	}
	s.recordStatus(ctx, inst.Info())
	return nil
}

// StopService stops every instance of name.
func (s *Supervisor) StopService(ctx context.Context, name string) error {
	svc, err := s.service(name)
	if err != nil {
		return err
	}
	svc.opMu.Lock()
	defer svc.opMu.Unlock()
	return s.stopLocked(ctx, svc)
}

// stopLocked stops every instance concurrently. The caller holds svc.opMu.
func (s *Supervisor) stopLocked(ctx context.Context, svc *service) error {
	insts := svc.takeAll()
	var (
		wg     sync.WaitGroup
		errsMu sync.Mutex
		errs   []error
	)
	for _, inst := range insts {
		wg.Go(func() {
			if err := inst.Stop(s.cfg.StopTimeout); err != nil {
				errsMu.Lock()
				errs = append(errs, fmt.Errorf("stop %s slot %d: %w", svc.cfg.Name, inst.slot, err))
				errsMu.Unlock()
			}
			s.recordStatus(ctx, inst.Info())
		})
	}
	wg.Wait()
	if len(insts) > 0 {
		Logger().Info("service stopped", "service", svc.cfg.Name, "instances", len(insts))
	}
	return errors.Join(errs...)
}

// RestartService stops every instance of name, waits RestartDelay and
// starts as many instances as were live, at least MinInstances.
func (s *Supervisor) RestartService(ctx context.Context, name string) error {
	if s.loadState() == supervisorShuttingDown {
		return ErrShuttingDown
	}
	svc, err := s.service(name)
	if err != nil {
		return err
	}
	svc.opMu.Lock()
	defer svc.opMu.Unlock()

	live, _ := svc.counts()
	_, err = s.restartLocked(ctx, svc, max(live, svc.cfg.MinInstances))
	return err
}

// restartLocked stops svc, waits RestartDelay and starts n instances. The
// caller holds svc.opMu.
func (s *Supervisor) restartLocked(ctx context.Context, svc *service, n int) (int, error) {
	if err := s.stopLocked(ctx, svc); err != nil {
		Logger().Warn("stop before restart", "service", svc.cfg.Name, "error", err)
	}
	if err := sleepCtx(ctx, svc.cfg.RestartDelay); err != nil {
		return 0, err
	}
	return s.startLocked(ctx, svc, n)
}

// StartAll brings every service up to MinInstances.
func (s *Supervisor) StartAll(ctx context.Context) error {
	var g errgroup.Group
	for _, svc := range s.all() {
		g.Go(func() error {
			svc.opMu.Lock()
			defer svc.opMu.Unlock()
			live, _ := svc.counts()
			_, err := s.startLocked(ctx, svc, svc.cfg.MinInstances-live)
			return err
		})
	}
	return g.Wait()
}

// StopAll stops every instance of every service.
func (s *Supervisor) StopAll(ctx context.Context) error {
	var (
		g      errgroup.Group
		errsMu sync.Mutex
		errs   []error
	)
	for _, svc := range s.all() {
		g.Go(func() error {
			svc.opMu.Lock()
			defer svc.opMu.Unlock()
			if err := s.stopLocked(ctx, svc); err != nil {
				errsMu.Lock()
				errs = append(errs, err)
				errsMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// ServiceStatus is a snapshot of one service.
type ServiceStatus struct {
	Config    ServiceConfig
	Instances []InstanceInfo
	Live      int
	Running   int
}

// Status is a snapshot of the whole supervisor.
type Status struct {
	Time     time.Time
	Running  bool
	Services []ServiceStatus
}

// Status returns a snapshot of every service and instance.
func (s *Supervisor) Status() Status {
	st := Status{Time: time.Now(), Running: s.loadState() == supervisorRunning}
	for _, svc := range s.all() {
		ss := ServiceStatus{Config: svc.cfg, Instances: svc.infos()}
		for _, in := range ss.Instances {
			if in.State.Live() {
				ss.Live++
			}
			if in.State == StateRunning {
				ss.Running++
			}
		}
		st.Services = append(st.Services, ss)
	}
	return st
}

// BestInstance returns the instance new work for name should go to. ok is
// false when the service has no live instance.
func (s *Supervisor) BestInstance(name string) (InstanceInfo, bool, error) {
	svc, err := s.service(name)
	if err != nil {
		return InstanceInfo{}, false, err
	}
	best, ok := pickBest(svc.infos())
	return best, ok, nil
}

// RecordRequest counts a request served by instance id of service name.
func (s *Supervisor) RecordRequest(name, id string, failed bool) error {
	svc, err := s.service(name)
	if err != nil {
		return err
	}
	inst := svc.find(id)
	if inst == nil {
		return fmt.Errorf("record request: instance %q of %q not found", id, name)
	}
	inst.RecordRequest(failed)
	return nil
}

// Run starts every service and then runs the health, recovery and metrics
// loops until ctx is cancelled. All instances are stopped before it
// returns.
func (s *Supervisor) Run(ctx context.Context) error {
	switch s.loadState() {
	case supervisorCreated:
		return ErrNotInitialized
	case supervisorShuttingDown:
		return ErrShuttingDown
	case supervisorRunning:
		return ErrAlreadyRunning
	case supervisorReady:
	}
	if !s.state.CompareAndSwap(uint32(supervisorReady), uint32(supervisorRunning)) {
		return ErrAlreadyRunning
	}
	defer s.state.CompareAndSwap(uint32(supervisorRunning), uint32(supervisorReady))

	Logger().Info("supervisor starting", "services", s.Services(),
		"recovery_strategy", s.cfg.RecoveryStrategy)

	if err := s.StartAll(ctx); err != nil {
		Logger().Warn("initial start incomplete", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range s.all() {
		g.Go(func() error {
			s.loop(gctx, svc.cfg.HealthInterval, func(c context.Context) { s.checkService(c, svc) })
			return nil
		})
	}
	g.Go(func() error {
		s.loop(gctx, s.cfg.RecoveryInterval, s.Recover)
		return nil
	})
	g.Go(func() error {
		s.loop(gctx, s.cfg.MetricsInterval, s.CollectMetrics)
		return nil
	})
	_ = g.Wait()

	Logger().Info("supervisor stopping")
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*s.cfg.StopTimeout)
	defer cancel()
	return s.StopAll(stopCtx)
}

// loop calls fn every interval until ctx is done.
func (s *Supervisor) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn(ctx)
		}
	}
}

// Shutdown stops every instance, closes the journal and releases the state
// directory lock. It is idempotent.
func (s *Supervisor) Shutdown() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.loadState() == supervisorShuttingDown {
		return nil
	}
	s.storeState(supervisorShuttingDown)

	ctx, cancel := context.WithTimeout(context.Background(), 2*s.cfg.StopTimeout)
	defer cancel()
	err := s.StopAll(ctx)

	s.mu.Lock()
	for _, port := range s.ports.Ports() {
		s.ports.Release(port)
	}
	s.mu.Unlock()

	s.releaseResources()
	return err
}

// Journal returns the open journal, nil before Initialize or after Shutdown.
func (s *Supervisor) Journal() *journal.Journal {
	return s.journal.Load()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
