package client

import (
	"sync"
	"time"

	"presence_chat_service/internal/presence/domain"
)

// IdleDetector derives the intended status from local activity and page
// visibility. It only ever toggles between online and away: a manual busy
// or offline sticks until the user changes it or activity resumes from an
// automatic away. The away transition fires exactly once per idle period.
type IdleDetector struct {
	timeout  time.Duration
	onChange func(domain.Status)

	mu      sync.Mutex
	status  domain.Status
	manual  bool
	visible bool
	timer   *time.Timer
	stopped bool
}

// NewIdleDetector create the detector; onChange fires on every derived
// status transition, in transition order
func NewIdleDetector(timeout time.Duration, onChange func(domain.Status)) *IdleDetector {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	d := &IdleDetector{
		timeout:  timeout,
		onChange: onChange,
		status:   domain.StatusOnline,
		visible:  true,
	}
	d.timer = time.AfterFunc(timeout, d.expire)
	return d
}

// Touch record a local activity signal (pointer, key, touch, scroll).
// Reverts an automatic away back to online and restarts the idle timer.
func (d *IdleDetector) Touch() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	d.timer.Reset(d.timeout)

	var changed *domain.Status
	if d.status == domain.StatusAway && !d.manual {
		d.status = domain.StatusOnline
		changed = &d.status
	}
	d.mu.Unlock()
	d.emit(changed)
}

// SetVisible page visibility transition. Hidden pauses nothing, the idle
// timer keeps running; coming back from hidden reasserts online when the
// away was automatic. A repeated visible signal is not activity, that
// goes through Touch.
func (d *IdleDetector) SetVisible(visible bool) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	wasVisible := d.visible
	d.visible = visible

	var changed *domain.Status
	if visible && !wasVisible && d.status == domain.StatusAway && !d.manual {
		d.timer.Reset(d.timeout)
		d.status = domain.StatusOnline
		changed = &d.status
	}
	d.mu.Unlock()
	d.emit(changed)
}

// SetStatus explicit user choice; suspends automatic transitions until
// online is chosen again
func (d *IdleDetector) SetStatus(status domain.Status) {
	if !status.Valid() {
		return
	}
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	d.manual = status != domain.StatusOnline
	if status == domain.StatusOnline {
		d.timer.Reset(d.timeout)
	}

	var changed *domain.Status
	if d.status != status {
		d.status = status
		changed = &d.status
	}
	d.mu.Unlock()
	d.emit(changed)
}

// Status current derived status
func (d *IdleDetector) Status() domain.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Stop end the timer; the detector emits nothing afterwards
func (d *IdleDetector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.timer.Stop()
}

// expire timer callback: online decays to away, nothing else does
func (d *IdleDetector) expire() {
	d.mu.Lock()
	if d.stopped || d.manual || d.status != domain.StatusOnline {
		d.mu.Unlock()
		return
	}
	d.status = domain.StatusAway
	away := d.status
	d.mu.Unlock()
	d.emit(&away)
}

func (d *IdleDetector) emit(status *domain.Status) {
	if status == nil || d.onChange == nil {
		return
	}
	d.onChange(*status)
}
