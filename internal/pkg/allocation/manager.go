package allocation

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const (
	lockRetrySweep = "creditledger:lock:allocation:retry"
	lockMonthlyRun = "creditledger:lock:allocation:monthly"
)

// Locker grants a cluster-wide lock. ok is false when another holder owns it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// ManagerConfig configures the in-process scheduler.
type ManagerConfig struct {
	RetryInterval   time.Duration
	MonthlyInterval time.Duration
	LockTTL         time.Duration
	AutoFix         bool
}

func (c *ManagerConfig) defaults() {
	if c.RetryInterval <= 0 {
		c.RetryInterval = 15 * time.Minute
	}
	if c.MonthlyInterval <= 0 {
		c.MonthlyInterval = 24 * time.Hour
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Minute
	}
}

// Manager runs the retry sweep and the monthly run on tickers. The monthly
// run is idempotent, so running it daily only books what is still missing.
type Manager struct {
	scheduler     *Scheduler
	locker        Locker
	cfg           ManagerConfig
	retryTicker   *time.Ticker
	monthlyTicker *time.Ticker
	cancel        context.CancelFunc
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

// NewManager creates a manager. locker may be nil on a single instance.
func NewManager(scheduler *Scheduler, locker Locker, cfg ManagerConfig) *Manager {
	cfg.defaults()
	return &Manager{scheduler: scheduler, locker: locker, cfg: cfg}
}

// Start starts the background workers.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	log.Info("[Allocation Manager] Starting allocation workers")

	m.retryTicker = time.NewTicker(m.cfg.RetryInterval)
	m.wg.Add(1)
	go m.worker(ctx, "retry", m.retryTicker, m.stopCh, m.RunRetryOnce)

	m.monthlyTicker = time.NewTicker(m.cfg.MonthlyInterval)
	m.wg.Add(1)
	go m.worker(ctx, "monthly", m.monthlyTicker, m.stopCh, m.RunMonthlyOnce)

	log.Infof("[Allocation Manager] Started (retry every %s, monthly run every %s)", m.cfg.RetryInterval, m.cfg.MonthlyInterval)
}

// Stop stops the workers and waits for a running job to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Allocation Manager] Stopping allocation workers...")
	m.retryTicker.Stop()
	m.monthlyTicker.Stop()
	close(m.stopCh)
	m.cancel()
	m.running = false
	m.wg.Wait()
	log.Info("[Allocation Manager] Stopped successfully")
}

// IsRunning returns whether the workers are running.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) worker(ctx context.Context, name string, ticker *time.Ticker, stopCh <-chan struct{}, run func(context.Context) bool) {
	defer m.wg.Done()
	for {
		select {
		case <-stopCh:
			log.Infof("[Allocation Manager] %s worker stopping", name)
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

// RunRetryOnce runs one retry sweep under the cluster lock. It reports
// whether the sweep ran.
func (m *Manager) RunRetryOnce(ctx context.Context) bool {
	return m.locked(ctx, lockRetrySweep, func() {
		sum, err := m.scheduler.Retry(ctx)
		if err != nil {
			log.Errorf("[Allocation Manager] Retry sweep error: %v", err)
			return
		}
		if sum.Total > 0 {
			log.Infof("[Allocation Manager] Retry sweep: %d resolved, %d rescheduled, %d failed", sum.Successful, sum.Scheduled, sum.Failed)
		}
	})
}

// RunMonthlyOnce runs one full monthly run under the cluster lock.
func (m *Manager) RunMonthlyOnce(ctx context.Context) bool {
	return m.locked(ctx, lockMonthlyRun, func() {
		m.scheduler.RunMonthly(ctx, m.cfg.AutoFix)
	})
}

func (m *Manager) locked(ctx context.Context, key string, fn func()) bool {
	if m.locker == nil {
		fn()
		return true
	}
	unlock, ok, err := m.locker.TryLock(ctx, key, m.cfg.LockTTL)
	if err != nil {
		log.Errorf("[Allocation Manager] Lock %s: %v", key, err)
		return false
	}
	if !ok {
		log.Debugf("[Allocation Manager] Lock %s held elsewhere, skipping", key)
		return false
	}
	defer unlock()
	fn()
	return true
}
