package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/ayusman/flagtouch/internal/logging"
)

// Player plays a pre-supplied sound. Play must return immediately.
type Player interface {
	Play()
}

// ErrNoPlayer is returned when no command-line audio player is installed.
var ErrNoPlayer = errors.New("no audio player command found")

// playTimeout bounds a single playback process.
const playTimeout = 5 * time.Second

// ExecPlayer plays a sound file through the platform's command-line player
// (afplay on macOS, aplay or paplay elsewhere). Each Play starts a new process.
type ExecPlayer struct {
	name    string
	path    string
	command []string
	cleanup func()

	wg sync.WaitGroup
}

// NewExecPlayer plays the file at path.
func NewExecPlayer(name, path string) (*ExecPlayer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("sound %q: %w", name, err)
	}
	command, err := findCommand()
	if err != nil {
		return nil, err
	}
	return &ExecPlayer{name: name, path: path, command: command}, nil
}

// NewClipPlayer writes clip to a temporary WAV file and plays it.
// The file is removed by Close.
func NewClipPlayer(name string, clip Clip) (*ExecPlayer, error) {
	command, err := findCommand()
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "flagtouch-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create clip file: %w", err)
	}
	if _, err := f.Write(clip.WAV()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write clip file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close clip file: %w", err)
	}

	path := f.Name()
	return &ExecPlayer{
		name:    name,
		path:    path,
		command: command,
		cleanup: func() { os.Remove(path) },
	}, nil
}

// Play starts playback in the background.
func (p *ExecPlayer) Play() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
		defer cancel()

		args := append(append([]string{}, p.command[1:]...), p.path)
		cmd := exec.CommandContext(ctx, p.command[0], args...)
		if out, err := cmd.CombinedOutput(); err != nil {
			logging.Named("audio").Warnf("play %s: %v %s", p.name, err, out)
		}
	}()
}

// Path returns the file being played.
func (p *ExecPlayer) Path() string {
	return p.path
}

// Close waits for running playbacks and removes any generated file.
func (p *ExecPlayer) Close() error {
	p.wg.Wait()
	if p.cleanup != nil {
		p.cleanup()
	}
	return nil
}

func findCommand() ([]string, error) {
	candidates := [][]string{{"aplay", "-q"}, {"paplay"}}
	if runtime.GOOS == "darwin" {
		candidates = [][]string{{"afplay"}}
	}

	for _, c := range candidates {
		if path, err := exec.LookPath(c[0]); err == nil {
			return append([]string{path}, c[1:]...), nil
		}
	}
	return nil, ErrNoPlayer
}

// LogPlayer only logs. It stands in when no audio output is available.
type LogPlayer struct {
	Name string
}

func (p LogPlayer) Play() {
	logging.Named("audio").Infof("play %s (silent)", p.Name)
}

// MockPlayer counts Play calls.
type MockPlayer struct {
	mu    sync.Mutex
	plays int
}

func (m *MockPlayer) Play() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays++
}

// Plays returns the number of Play calls so far.
func (m *MockPlayer) Plays() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plays
}

// IsSoundFile reports whether path names a file the exec player can hand off.
func IsSoundFile(path string) bool {
	switch filepath.Ext(path) {
	case ".wav", ".aiff", ".aif", ".mp3", ".ogg", ".flac":
		return true
	}
	return false
}
