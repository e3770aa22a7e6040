package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ternarybob/cadence/internal/common"
	"github.com/ternarybob/cadence/internal/models"
)

// handleState is the lifecycle of one scheduled job handle
type handleState int

const (
	stateNew handleState = iota
	stateStarted
	statePaused
	stateStopped
)

func (s handleState) String() string {
	switch s {
	case stateNew:
		return "NEW"
	case stateStarted:
		return "STARTED"
	case statePaused:
		return "PAUSED"
	case stateStopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// triggerBinding is the backend-specific part of a handle: how fires are
// produced for its job type.
type triggerBinding interface {
	start() error
	pause()
	resume() error
	stop()
}

// jobHandle is the in-memory representation of one active job: its
// config snapshot plus the trigger binding. Transitions:
// NEW -> STARTED (start); STARTED <-> PAUSED (pause/resume);
// any -> STOPPED (stop, terminal).
type jobHandle struct {
	manager *Manager
	cfg     *models.JobConfig
	state   handleState
	binding triggerBinding

	// inFlight guards against a fire overlapping itself: a tick that
	// arrives while the previous fire still runs is skipped. Guarded by
	// the manager lock.
	inFlight bool
}

// start transitions NEW -> STARTED. Called under the manager lock.
func (h *jobHandle) start() error {
	if h.state != stateNew {
		return common.SchedulerError("cannot start job %d from state %s", h.cfg.ID, h.state)
	}
	if err := h.binding.start(); err != nil {
		h.state = stateStopped
		return err
	}
	h.state = stateStarted
	return nil
}

// pause transitions STARTED -> PAUSED. Called under the manager lock.
func (h *jobHandle) pause() {
	if h.state != stateStarted {
		return
	}
	h.binding.pause()
	h.state = statePaused
}

// resume transitions PAUSED -> STARTED. Called under the manager lock.
func (h *jobHandle) resume() error {
	if h.state != statePaused {
		return nil
	}
	if err := h.binding.resume(); err != nil {
		return err
	}
	h.state = stateStarted
	return nil
}

// stop is terminal. In-flight fires complete under the old snapshot.
func (h *jobHandle) stop() {
	if h.state == stateStopped {
		return
	}
	h.binding.stop()
	h.state = stateStopped
}

// fire runs one scheduled invocation with the handle's current snapshot.
// A tick that lands while the previous fire is still running is skipped.
func (h *jobHandle) fire() {
	h.manager.mu.Lock()
	if h.state != stateStarted {
		h.manager.mu.Unlock()
		return
	}
	if h.inFlight {
		h.manager.mu.Unlock()
		h.manager.logger.Debug().
			Int64("job_id", h.cfg.ID).
			Str("job_name", h.cfg.JobName).
			Msg("Fire skipped, previous execution still running")
		return
	}
	h.inFlight = true
	snapshot := h.cfg.Clone()
	h.manager.mu.Unlock()

	h.manager.dispatch(h, snapshot)
}

// quartzBinding registers the handle with the shared cron runner
type quartzBinding struct {
	handle  *jobHandle
	entryID cron.EntryID
	bound   bool
}

func (b *quartzBinding) register() error {
	runner := b.handle.manager.runner
	entryID, err := runner.AddFunc(b.handle.cfg.CronExpression, b.handle.fire)
	if err != nil {
		return common.ConfigurationError("failed to schedule cron %q: %v", b.handle.cfg.CronExpression, err)
	}
	b.entryID = entryID
	b.bound = true
	return nil
}

func (b *quartzBinding) start() error {
	return b.register()
}

func (b *quartzBinding) pause() {
	if b.bound {
		b.handle.manager.runner.Remove(b.entryID)
		b.bound = false
	}
}

func (b *quartzBinding) resume() error {
	if b.bound {
		return nil
	}
	return b.register()
}

func (b *quartzBinding) stop() {
	b.pause()
}

// loopBinding is the cooperative fallback used when no shared cron
// runner is available: a goroutine parses the expression itself,
// computes the next fire from the current time, and sleeps until it.
type loopBinding struct {
	handle *jobHandle
	cancel context.CancelFunc
	paused chan bool
}

func (b *loopBinding) start() error {
	schedule, err := common.ParseCronSchedule(b.handle.cfg.CronExpression)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(b.handle.manager.ctx)
	b.cancel = cancel
	b.paused = make(chan bool, 1)

	go b.run(ctx, schedule)
	return nil
}

func (b *loopBinding) run(ctx context.Context, schedule cron.Schedule) {
	paused := false
	for {
		next := schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case p := <-b.paused:
			timer.Stop()
			paused = p
		case <-timer.C:
			if !paused {
				b.handle.fire()
			}
		}
	}
}

func (b *loopBinding) pause() {
	select {
	case b.paused <- true:
	default:
	}
}

func (b *loopBinding) resume() error {
	select {
	case b.paused <- false:
	default:
	}
	return nil
}

func (b *loopBinding) stop() {
	if b.cancel != nil {
		b.cancel()
	}
}

// externalBinding represents a job scheduled by an external executor
// framework. The core records intent only; fires never originate here.
type externalBinding struct {
	handle *jobHandle
}

func (b *externalBinding) start() error {
	b.handle.manager.logger.Warn().
		Int64("job_id", b.handle.cfg.ID).
		Str("job_name", b.handle.cfg.JobName).
		Msg("EXTERNAL job registered; no external executor framework is attached, fires will not originate here")
	return nil
}

func (b *externalBinding) pause()        {}
func (b *externalBinding) resume() error { return nil }
func (b *externalBinding) stop()         {}
