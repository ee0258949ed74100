package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenza-shell/cadenza-battery/batterystate"
	"github.com/cadenza-shell/cadenza-battery/config"
	"github.com/cadenza-shell/cadenza-battery/predictor"
	"github.com/cadenza-shell/cadenza-battery/sysfs"
)

func writeBatteryDevice(t *testing.T, attrs map[string]string) string {
	t.Helper()
	root := t.TempDir()
	dev := filepath.Join(root, "BAT0")
	require.NoError(t, os.MkdirAll(dev, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dev, "type"), []byte("Battery\n"), 0644))
	for name, value := range attrs {
		require.NoError(t, os.WriteFile(filepath.Join(dev, name), []byte(value+"\n"), 0644))
	}
	return root
}

func newTestWatcher(t *testing.T, root string) *watcher {
	t.Helper()
	battery, err := sysfs.FindBattery(root, log)
	require.NoError(t, err)

	conf := config.DefaultConfig()
	conf.PersistEveryTicks = 2

	return &watcher{
		battery:   battery,
		pred:      predictor.New(),
		cell:      batterystate.NewCell(),
		statePath: filepath.Join(t.TempDir(), "state.json"),
		conf:      conf,
	}
}

func healthyBatteryAttrs() map[string]string {
	return map[string]string{
		"current_now":        "-2000000",
		"voltage_now":        "12000000",
		"charge_now":         "5000000",
		"charge_full":        "10000000",
		"charge_full_design": "10000000",
		"status":             "Discharging",
	}
}

func TestTickPublishesState(t *testing.T) {
	root := writeBatteryDevice(t, healthyBatteryAttrs())
	w := newTestWatcher(t, root)

	w.tick()

	state, ok := w.cell.Get()
	require.True(t, ok)
	assert.Equal(t, 0.5, state.Percentage)
	assert.False(t, state.Charging)
	// 5 Ah at 2 A is the naive 2.5 h kernel estimate
	assert.Equal(t, 150*time.Minute, state.TimeRemainingKernel)
}

func TestTickSkipsWhenBatteryUnavailable(t *testing.T) {
	attrs := healthyBatteryAttrs()
	delete(attrs, "current_now")
	root := writeBatteryDevice(t, attrs)
	w := newTestWatcher(t, root)

	w.tick()

	_, ok := w.cell.Get()
	assert.False(t, ok)
	assert.Equal(t, 0, w.ticks)
}

func TestTickSkipsPublishWhenKernelEstimateFails(t *testing.T) {
	// no time_to_empty_now and no charge_now: the kernel estimate has
	// nothing to work with
	attrs := healthyBatteryAttrs()
	delete(attrs, "charge_now")
	root := writeBatteryDevice(t, attrs)
	w := newTestWatcher(t, root)

	w.tick()

	_, ok := w.cell.Get()
	assert.False(t, ok)
	// the cycle still counted and the model still learned
	assert.Equal(t, 1, w.ticks)
}

func TestTickPrefersKernelTimeAttribute(t *testing.T) {
	attrs := healthyBatteryAttrs()
	attrs["time_to_empty_now"] = "7200"
	root := writeBatteryDevice(t, attrs)
	w := newTestWatcher(t, root)

	w.tick()

	state, ok := w.cell.Get()
	require.True(t, ok)
	assert.Equal(t, 2*time.Hour, state.TimeRemainingKernel)
}

func TestDrainCollapsesEventBurst(t *testing.T) {
	root := writeBatteryDevice(t, healthyBatteryAttrs())
	w := newTestWatcher(t, root)
	w.conf.PollIntervalSeconds = 3600

	// a burst of notifications queued before the loop wakes must
	// produce exactly one extra cycle
	events := make(chan fsnotify.Event, 8)
	for i := 0; i < 3; i++ {
		events <- fsnotify.Event{Name: w.battery.StatusPath(), Op: fsnotify.Write}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.loop(ctx, events, make(chan error))
	}()

	// the state file appears when the second cycle completes: one
	// cycle at startup, one for the whole drained burst
	require.Eventually(t, func() bool {
		_, err := os.Stat(w.statePath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 2, w.ticks)
	assert.Empty(t, events)
}

func TestDeadWatcherDegradesToPolling(t *testing.T) {
	root := writeBatteryDevice(t, healthyBatteryAttrs())
	w := newTestWatcher(t, root)
	w.conf.PollIntervalSeconds = 1

	events := make(chan fsnotify.Event)
	watchErrs := make(chan error)
	close(events)
	close(watchErrs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.loop(ctx, events, watchErrs)
	}()

	// initial cycle, then at least one more driven purely by the
	// timeout after both watcher channels died
	require.Eventually(t, func() bool {
		_, err := os.Stat(w.statePath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.GreaterOrEqual(t, w.ticks, 2)
}

func TestPersistCadence(t *testing.T) {
	root := writeBatteryDevice(t, healthyBatteryAttrs())
	w := newTestWatcher(t, root)

	w.tick()
	_, err := os.Stat(w.statePath)
	assert.True(t, os.IsNotExist(err))

	w.tick()
	_, err = os.Stat(w.statePath)
	require.NoError(t, err)

	loaded, err := predictor.Load(w.statePath)
	require.NoError(t, err)
	assert.False(t, loaded.IsTrained(false))
}
