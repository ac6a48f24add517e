package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"stockwatch/internal/domain/notification"
	"stockwatch/internal/pkg/storage"

	"go.uber.org/zap"
)

// SoundPlayer plays a named sound.
type SoundPlayer interface {
	Play(ctx context.Context, sound string) error
}

// DesktopNotifier raises OS-level notifications.
type DesktopNotifier interface {
	Permitted() bool
	Notify(ctx context.Context, n notification.Notification) error
}

// TerminalBell rings the terminal bell for every sound.
type TerminalBell struct {
	W io.Writer
}

func (b TerminalBell) Play(_ context.Context, _ string) error {
	_, err := io.WriteString(b.W, "\a")
	return err
}

// WriterNotifier prints notifications as single lines.
type WriterNotifier struct {
	mu sync.Mutex
	W  io.Writer
}

func (w *WriterNotifier) Permitted() bool { return w.W != nil }

func (w *WriterNotifier) Notify(_ context.Context, n notification.Notification) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.W, "[%s] %s: %s\n", n.Priority, n.Title, n.Message)
	return err
}

// Toggles reads local on/off switches.
type Toggles interface {
	Feature(ctx context.Context, name string, def bool) (bool, error)
}

// LocalDelivery drops the sound or desktop output switched off in toggles.
// Both default to on; an unreadable toggle keeps the default.
func LocalDelivery(ctx context.Context, toggles Toggles, sound SoundPlayer, desktop DesktopNotifier, logger *zap.Logger) (SoundPlayer, DesktopNotifier) {
	if toggles == nil {
		return sound, desktop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	enabled := func(name string) bool {
		on, err := toggles.Feature(ctx, name, true)
		if err != nil {
			logger.Warn("failed to read feature toggle", zap.String("feature", name), zap.Error(err))
			return true
		}
		return on
	}
	if !enabled(storage.FeatureSound) {
		sound = nil
	}
	if !enabled(storage.FeatureDesktop) {
		desktop = nil
	}
	return sound, desktop
}
