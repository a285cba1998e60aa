package client

import (
	"sync"
	"testing"
	"time"

	"presence_chat_service/internal/presence/domain"

	"github.com/stretchr/testify/assert"
)

type statusRecorder struct {
	mu          sync.Mutex
	transitions []domain.Status
}

func (r *statusRecorder) record(status domain.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, status)
}

func (r *statusRecorder) all() []domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Status, len(r.transitions))
	copy(out, r.transitions)
	return out
}

func TestIdleDetector_AwayFiresExactlyOnce(t *testing.T) {
	rec := &statusRecorder{}
	d := NewIdleDetector(30*time.Millisecond, rec.record)
	defer d.Stop()

	assert.Eventually(t, func() bool {
		return d.Status() == domain.StatusAway
	}, time.Second, 5*time.Millisecond)

	// well past several timeout periods: still a single away transition
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []domain.Status{domain.StatusAway}, rec.all())
}

func TestIdleDetector_ActivityRevertsAway(t *testing.T) {
	rec := &statusRecorder{}
	d := NewIdleDetector(30*time.Millisecond, rec.record)
	defer d.Stop()

	assert.Eventually(t, func() bool {
		return d.Status() == domain.StatusAway
	}, time.Second, 5*time.Millisecond)

	d.Touch()
	assert.Equal(t, domain.StatusOnline, d.Status())
	assert.Equal(t, []domain.Status{domain.StatusAway, domain.StatusOnline}, rec.all())
}

func TestIdleDetector_TouchDefersAway(t *testing.T) {
	d := NewIdleDetector(50*time.Millisecond, nil)
	defer d.Stop()

	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		d.Touch()
	}
	// activity kept arriving inside the window, never decayed
	assert.Equal(t, domain.StatusOnline, d.Status())
}

func TestIdleDetector_ManualBusySticks(t *testing.T) {
	d := NewIdleDetector(30*time.Millisecond, nil)
	defer d.Stop()

	d.SetStatus(domain.StatusBusy)

	// idle expiry must not touch a manual status
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, domain.StatusBusy, d.Status())

	// nor does activity
	d.Touch()
	assert.Equal(t, domain.StatusBusy, d.Status())

	// back to automatic mode
	d.SetStatus(domain.StatusOnline)
	assert.Equal(t, domain.StatusOnline, d.Status())
}

func TestIdleDetector_VisibilityReassertsOnline(t *testing.T) {
	d := NewIdleDetector(30*time.Millisecond, nil)
	defer d.Stop()

	d.SetVisible(false)

	// hidden does not itself set away, the timer does
	assert.Eventually(t, func() bool {
		return d.Status() == domain.StatusAway
	}, time.Second, 5*time.Millisecond)

	d.SetVisible(true)
	assert.Equal(t, domain.StatusOnline, d.Status())
}

func TestIdleDetector_RepeatedVisibleIsNotActivity(t *testing.T) {
	d := NewIdleDetector(30*time.Millisecond, nil)
	defer d.Stop()

	assert.Eventually(t, func() bool {
		return d.Status() == domain.StatusAway
	}, time.Second, 5*time.Millisecond)

	// the page never went hidden: re-announcing visible must not wake us
	d.SetVisible(true)
	assert.Equal(t, domain.StatusAway, d.Status())
}

func TestIdleDetector_InvalidStatusIgnored(t *testing.T) {
	d := NewIdleDetector(time.Minute, nil)
	defer d.Stop()

	d.SetStatus(domain.Status("sleeping"))
	assert.Equal(t, domain.StatusOnline, d.Status())
}
