// Package monitor drives the periodic presence probe and the quiet-hours
// penalty protocol for one participant.
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"nightwatch/presence/internal/db"
	"nightwatch/presence/internal/window"
)

// Store is the slice of the remote store the monitor and penalizer need.
type Store interface {
	GetParticipant(ctx context.Context, id uuid.UUID) (*db.Participant, error)
	UpdateParticipantStatus(ctx context.Context, id uuid.UUID, online bool, lastSeen time.Time) (*db.Participant, error)
	RecordPing(ctx context.Context, participantID uuid.UUID, at time.Time, latency time.Duration, online bool) error
	FindActivePenalty(ctx context.Context, participantID uuid.UUID, day time.Time) (*db.PenaltyRecord, error)
	ApplyPenalty(ctx context.Context, participantID uuid.UUID, day time.Time) (*db.PenaltyRecord, bool, error)
	ReducePenalty(ctx context.Context, participantID, reducer uuid.UUID, at time.Time) (*db.PenaltyRecord, *db.Participant, error)
}

type Config struct {
	ProbeInterval    time.Duration // probe timer period, default 30s
	RecheckInterval  time.Duration // penalty-window recheck period, default 2m
	Debounce         time.Duration // minimum gap between probe ticks, default 15s
	LatencyThreshold time.Duration // ping record cutoff, default 1s
	TickTimeout      time.Duration // budget for one tick's remote calls, default 10s
	Location         *time.Location
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	if cfg.RecheckInterval <= 0 {
		cfg.RecheckInterval = 2 * time.Minute
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 15 * time.Second
	}
	if cfg.LatencyThreshold <= 0 {
		cfg.LatencyThreshold = time.Second
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return cfg
}

// Monitor probes presence for one participant on two timers: the probe timer
// runs the full reachability/status/penalty tick, and the recheck timer runs
// the penalty check alone so a participant whose probes keep failing still
// gets penalized inside the window. Start and Stop follow the host process's
// foreground/background transitions.
type Monitor struct {
	store     Store
	prober    Prober
	penalizer *Penalizer
	cfg       Config
	now       func() time.Time

	mu            sync.Mutex
	running       bool
	cancel        context.CancelFunc
	participantID uuid.UUID
	generation    uint64
	lastProbe     time.Time
	inFlight      bool
}

func New(store Store, prober Prober, penalizer *Penalizer, cfg Config) *Monitor {
	return &Monitor{
		store:     store,
		prober:    prober,
		penalizer: penalizer,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// Start begins probing for participantID, replacing any prior run. The
// previous run's in-flight work is cut off by context cancellation and its
// results are discarded by the generation check.
func (m *Monitor) Start(ctx context.Context, participantID uuid.UUID) {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.participantID = participantID
	m.generation++
	m.lastProbe = time.Time{}
	m.inFlight = false
	generation := m.generation
	m.mu.Unlock()

	go m.probeLoop(runCtx, generation)
	go m.recheckLoop(runCtx, generation)
}

// Stop cancels both timers. In-flight remote calls may complete but no new
// tick starts afterwards.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Monitor) probeLoop(ctx context.Context, generation uint64) {
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()
	m.tick(ctx, generation) // probe immediately on start
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, generation)
		}
	}
}

func (m *Monitor) recheckLoop(ctx context.Context, generation uint64) {
	ticker := time.NewTicker(m.cfg.RecheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.recheck(ctx, generation)
		}
	}
}

// tick runs one full probe. Every failure inside is logged and absorbed; a
// tick never panics or propagates an error into the timer loop.
func (m *Monitor) tick(ctx context.Context, generation uint64) {
	now := m.now()

	m.mu.Lock()
	if !m.running || m.generation != generation {
		m.mu.Unlock()
		return
	}
	if m.inFlight {
		m.mu.Unlock()
		probesTotal.WithLabelValues(resultSkipped).Inc()
		return
	}
	if !m.lastProbe.IsZero() && now.Sub(m.lastProbe) < m.cfg.Debounce {
		m.mu.Unlock()
		probesTotal.WithLabelValues(resultSkipped).Inc()
		return
	}
	m.inFlight = true
	m.lastProbe = now
	participantID := m.participantID
	m.mu.Unlock()

	result := m.runProbe(ctx, participantID, now)
	probesTotal.WithLabelValues(result).Inc()

	m.mu.Lock()
	if m.generation == generation {
		m.inFlight = false
	}
	m.mu.Unlock()
}

func (m *Monitor) runProbe(ctx context.Context, participantID uuid.UUID, now time.Time) string {
	tickCtx, cancel := context.WithTimeout(ctx, m.cfg.TickTimeout)
	defer cancel()

	if err := m.prober.Probe(tickCtx); err != nil {
		if _, err := m.store.UpdateParticipantStatus(tickCtx, participantID, false, now); err != nil {
			log.Printf("offline status write failed: %v", err)
		}
		return resultUnreachable
	}

	readStart := m.now()
	_, readErr := m.store.GetParticipant(tickCtx, participantID)
	latency := m.now().Sub(readStart)
	online := readErr == nil

	if readErr != nil || latency > m.cfg.LatencyThreshold {
		if err := m.store.RecordPing(tickCtx, participantID, now, latency, online); err != nil {
			log.Printf("activity ping write failed: %v", err)
		}
	}

	if _, err := m.store.UpdateParticipantStatus(tickCtx, participantID, online, now); err != nil {
		log.Printf("status write failed: %v", err)
	}

	if readErr != nil {
		log.Printf("existence read failed: %v", readErr)
		return resultFailed
	}

	local := now.In(m.cfg.Location)
	if window.IsPenaltyWindow(local) {
		if _, err := m.penalizer.Apply(tickCtx, participantID, db.DateOf(local)); err != nil {
			log.Printf("penalty application failed: %v", err)
		}
	}
	return resultUpdated
}

// recheck applies the penalty independently of probe success, guarding
// against a participant whose probes all fail during the window.
func (m *Monitor) recheck(ctx context.Context, generation uint64) {
	m.mu.Lock()
	if !m.running || m.generation != generation {
		m.mu.Unlock()
		return
	}
	participantID := m.participantID
	m.mu.Unlock()

	local := m.now().In(m.cfg.Location)
	if !window.IsPenaltyWindow(local) {
		return
	}
	tickCtx, cancel := context.WithTimeout(ctx, m.cfg.TickTimeout)
	defer cancel()
	if _, err := m.penalizer.Apply(tickCtx, participantID, db.DateOf(local)); err != nil {
		log.Printf("window recheck penalty failed: %v", err)
	}
}
