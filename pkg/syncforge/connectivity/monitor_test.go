package connectivity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mticknor/syncforge/pkg/syncforge/connectivity"
)

// fakeProber simulates the network without touching it.
type fakeProber struct {
	mu      sync.Mutex
	dialErr error
	latency time.Duration
	// fetchErrs maps URL to a forced error; URLs not present succeed.
	fetchErrs map[string]error
	fetches   []string
}

func (f *fakeProber) Dial(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dialErr
}

func (f *fakeProber) Fetch(_ context.Context, url string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, url)
	if err, ok := f.fetchErrs[url]; ok {
		return f.latency, err
	}
	return f.latency, nil
}

func (f *fakeProber) setDialErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialErr = err
}

func newMonitor(t *testing.T, p connectivity.Prober) *connectivity.Monitor {
	t.Helper()
	return connectivity.NewMonitor(connectivity.Config{
		ProbeURLs: []string{"https://probe-a", "https://probe-b"},
	}, connectivity.WithProber(p))
}

func TestMonitor_QualityBuckets(t *testing.T) {
	tests := []struct {
		name    string
		latency time.Duration
		want    connectivity.Quality
	}{
		{"99ms is excellent", 99 * time.Millisecond, connectivity.QualityExcellent},
		{"100ms is good", 100 * time.Millisecond, connectivity.QualityGood},
		{"299ms is good", 299 * time.Millisecond, connectivity.QualityGood},
		{"300ms is poor", 300 * time.Millisecond, connectivity.QualityPoor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMonitor(t, &fakeProber{latency: tt.latency})
			assert.Equal(t, tt.want, m.AssessQuality(context.Background()))
		})
	}
}

func TestMonitor_AssessQuality_FailedProbeIsPoor(t *testing.T) {
	// A failed timed probe means poor, not offline: offline is reserved
	// for CheckConnectivity failures.
	p := &fakeProber{fetchErrs: map[string]error{
		"https://probe-a": errors.New("boom"),
	}}
	m := newMonitor(t, p)
	assert.Equal(t, connectivity.QualityPoor, m.AssessQuality(context.Background()))
}

func TestMonitor_CheckConnectivity_DialGate(t *testing.T) {
	p := &fakeProber{dialErr: errors.New("no route")}
	m := newMonitor(t, p)

	assert.False(t, m.CheckConnectivity(context.Background()))
	// The HTTP stage never runs when the dial fails.
	assert.Empty(t, p.fetches)
}

func TestMonitor_CheckConnectivity_ShortCircuitsOnFirstSuccess(t *testing.T) {
	p := &fakeProber{fetchErrs: map[string]error{
		"https://probe-a": errors.New("unreachable"),
	}}
	m := newMonitor(t, p)

	assert.True(t, m.CheckConnectivity(context.Background()))
	assert.Equal(t, []string{"https://probe-a", "https://probe-b"}, p.fetches)
}

func TestMonitor_CheckConnectivity_AllProbesFailing(t *testing.T) {
	p := &fakeProber{fetchErrs: map[string]error{
		"https://probe-a": errors.New("unreachable"),
		"https://probe-b": errors.New("unreachable"),
	}}
	m := newMonitor(t, p)
	assert.False(t, m.CheckConnectivity(context.Background()))
}

func TestMonitor_UpdateStatus_Transitions(t *testing.T) {
	p := &fakeProber{latency: 50 * time.Millisecond}
	m := newMonitor(t, p)

	var gotOnline, gotOffline int
	m.SubscribeOnline(func(connectivity.State) error {
		gotOnline++
		return nil
	})
	m.SubscribeOffline(func(connectivity.State) error {
		gotOffline++
		return nil
	})

	// Unknown -> Online: counts as a flip.
	state, changed := m.UpdateStatus(context.Background())
	require.True(t, changed)
	assert.True(t, state.Online)
	assert.Equal(t, connectivity.QualityExcellent, state.Quality)
	assert.Equal(t, 1, gotOnline)

	// Online -> Online: no flip, no callbacks.
	_, changed = m.UpdateStatus(context.Background())
	assert.False(t, changed)
	assert.Equal(t, 1, gotOnline)

	// Online -> Offline.
	p.setDialErr(errors.New("gone"))
	state, changed = m.UpdateStatus(context.Background())
	require.True(t, changed)
	assert.False(t, state.Online)
	assert.Equal(t, connectivity.QualityOffline, state.Quality)
	assert.Equal(t, 1, gotOffline)
}

func TestMonitor_FirstProbeOffline_NoCallback(t *testing.T) {
	p := &fakeProber{dialErr: errors.New("no route")}
	m := newMonitor(t, p)

	fired := false
	m.SubscribeOffline(func(connectivity.State) error {
		fired = true
		return nil
	})

	_, changed := m.UpdateStatus(context.Background())
	assert.False(t, changed)
	assert.False(t, fired)
}

func TestMonitor_CallbackIsolation(t *testing.T) {
	p := &fakeProber{latency: 10 * time.Millisecond}
	m := newMonitor(t, p)

	var order []string
	m.SubscribeOnline(func(connectivity.State) error {
		order = append(order, "first")
		panic("subscriber bug")
	})
	m.SubscribeOnline(func(connectivity.State) error {
		order = append(order, "second")
		return errors.New("also broken")
	})
	m.SubscribeOnline(func(connectivity.State) error {
		order = append(order, "third")
		return nil
	})

	state, changed := m.UpdateStatus(context.Background())
	require.True(t, changed)

	// A panicking or failing subscriber never blocks the rest, and the
	// monitor's own state still updates.
	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.True(t, state.Online)
	assert.True(t, m.IsOnline())
}

func TestMonitor_ShouldPreferOfflineMode(t *testing.T) {
	t.Run("offline prefers offline", func(t *testing.T) {
		p := &fakeProber{dialErr: errors.New("gone")}
		m := newMonitor(t, p)
		m.UpdateStatus(context.Background())
		assert.True(t, m.ShouldPreferOfflineMode())
	})

	t.Run("poor quality prefers offline even when online", func(t *testing.T) {
		p := &fakeProber{latency: 500 * time.Millisecond}
		m := newMonitor(t, p)
		m.UpdateStatus(context.Background())
		assert.True(t, m.IsOnline())
		assert.True(t, m.ShouldPreferOfflineMode())
	})

	t.Run("good quality stays online", func(t *testing.T) {
		p := &fakeProber{latency: 150 * time.Millisecond}
		m := newMonitor(t, p)
		m.UpdateStatus(context.Background())
		assert.False(t, m.ShouldPreferOfflineMode())
	})
}

func TestMonitor_UnknownBeforeFirstProbe(t *testing.T) {
	m := newMonitor(t, &fakeProber{})
	assert.True(t, m.State().Unknown())

	m.UpdateStatus(context.Background())
	assert.False(t, m.State().Unknown())
}

func TestMonitor_StartStop(t *testing.T) {
	p := &fakeProber{latency: 10 * time.Millisecond}
	m := newMonitor(t, p)

	m.Start(context.Background(), 50*time.Millisecond)
	// Second start is a no-op.
	m.Start(context.Background(), 50*time.Millisecond)

	require.Eventually(t, func() bool {
		return m.IsOnline()
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, m.Snapshot().MonitoringActive)

	m.Stop()
	assert.False(t, m.Snapshot().MonitoringActive)
	// Stop when not running is safe.
	m.Stop()
}
