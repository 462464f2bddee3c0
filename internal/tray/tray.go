// Package tray provides the system tray menu: enable toggle, last touched
// flag and a link to the dashboard.
package tray

import (
	"fmt"
	"sync"
	"time"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle    func(enabled bool)
	onDashboard func()
	onQuit      func()
	enabled     bool
	lastTouch   string
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuToggle    *systray.MenuItem
	menuLastTouch *systray.MenuItem
}

// New creates a new Tray reflecting the given enabled state.
func New(enabled bool) *Tray {
	return &Tray{
		enabled:   enabled,
		lastTouch: lastTouchTitle("", time.Time{}),
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnDashboard sets the callback for the dashboard menu item.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Flagtouch")
	systray.SetTooltip("Flagtouch fingertip triggers")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle touch triggers")
	systray.AddSeparator()

	t.menuLastTouch = systray.AddMenuItem(t.lastTouch, "Last touched flag")
	t.menuLastTouch.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Flagtouch")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

func lastTouchTitle(flag string, at time.Time) string {
	if flag == "" {
		return "Last: none"
	}
	if at.IsZero() {
		return "Last: " + flag
	}
	return fmt.Sprintf("Last: %s at %s", flag, at.Format("15:04:05"))
}

// handleToggle flips the enabled state and notifies the toggle callback.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetLastTouch updates the last touched flag shown in the menu.
func (t *Tray) SetLastTouch(flag string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastTouch = lastTouchTitle(flag, at)
	if t.menuLastTouch != nil {
		t.menuLastTouch.SetTitle(t.lastTouch)
	}
}

// LastTouch returns the current last-touch label.
func (t *Tray) LastTouch() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastTouch
}

// SetEnabled reflects an enabled state changed elsewhere, so the next
// toggle flips the current value.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}
