package source

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/RyanBlaney/sonido-keys/logging"
)

// PortLister enumerates MIDI inputs; drivers.Driver satisfies it
type PortLister interface {
	Ins() ([]drivers.In, error)
}

// WatcherConfig controls hot-plug scanning
type WatcherConfig struct {
	Interval time.Duration `json:"interval"`
	// Debounce collapses bursts of Rescan requests, e.g. from OS device
	// notifications while a USB hub enumerates
	Debounce time.Duration `json:"debounce"`
}

// DefaultWatcherConfig scans every second
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Interval: time.Second,
		Debounce: 250 * time.Millisecond,
	}
}

// Watcher keeps a Controller attached to the best available MIDI input,
// connecting on hot-plug and disconnecting when the device disappears or
// its listener fails.
type Watcher struct {
	mu        sync.Mutex
	ports     PortLister
	table     DeviceTable
	ctrl      *Controller
	clock     Clock
	config    WatcherConfig
	debounced func(func())
	logger    logging.Logger

	selected string
	onChange func(device string, connected bool)
}

// NewWatcher creates a watcher for ctrl. Nothing is scanned until Tick,
// Rescan or Run is called.
func NewWatcher(ports PortLister, table DeviceTable, ctrl *Controller, clock Clock, config WatcherConfig) *Watcher {
	return &Watcher{
		ports:     ports,
		table:     table,
		ctrl:      ctrl,
		clock:     clock,
		config:    config,
		debounced: debounce.New(config.Debounce),
		logger: logging.WithFields(logging.Fields{
			"component": "midi_watcher",
		}),
	}
}

// OnChange registers a callback for connects and disconnects. It runs on
// the scanning goroutine.
func (w *Watcher) OnChange(fn func(device string, connected bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Rescan schedules a debounced Tick
func (w *Watcher) Rescan() {
	w.debounced(w.Tick)
}

// Tick scans the inputs once
func (w *Watcher) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	ins, err := w.ports.Ins()
	if err != nil {
		w.logger.Error(err, "Failed to list MIDI inputs")
		return
	}

	if w.selected != "" {
		if w.ctrl.Failed() {
			w.logger.Warn("MIDI listener failed", logging.Fields{"device": w.selected})
			w.disconnectLocked()
		} else if find(ins, w.selected) != nil {
			w.ctrl.Heartbeat(w.clock.Now())
			return
		} else {
			w.logger.Warn("MIDI device disappeared", logging.Fields{"device": w.selected})
			w.disconnectLocked()
		}
	}

	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	name, profile, ok := w.table.Pick(names)
	if !ok {
		w.logger.Debug("No usable MIDI input", logging.Fields{
			"inputs": strings.Join(names, ", "),
		})
		return
	}

	in := find(ins, name)
	if err := w.ctrl.Listen(in, profile); err != nil {
		w.logger.Error(err, "MIDI connect failed", logging.Fields{"device": name})
		return
	}

	w.selected = name
	w.logger.Info("MIDI device connected", logging.Fields{
		"device":     name,
		"vendor":     profile.Vendor,
		"latency_ms": profile.Latency.Milliseconds(),
	})
	if w.onChange != nil {
		w.onChange(name, true)
	}
}

func (w *Watcher) disconnectLocked() {
	name := w.selected
	w.ctrl.Disconnect()
	w.selected = ""
	if w.onChange != nil {
		w.onChange(name, false)
	}
}

// Device is the connected port name, empty when none
func (w *Watcher) Device() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selected
}

// Run scans on every interval until ctx is done, then disconnects
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.Tick()
	for {
		select {
		case <-ctx.Done():
			w.Close()
			return
		case <-ticker.C:
			w.Tick()
		}
	}
}

// Close disconnects the controller
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selected != "" {
		w.disconnectLocked()
	}
}

func find(ins []drivers.In, name string) drivers.In {
	for _, in := range ins {
		if in.String() == name {
			return in
		}
	}
	return nil
}
