// Command flagtouch plays a sound when a tracked fingertip touches a flag.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/flagtouch/internal/app"
	"github.com/ayusman/flagtouch/internal/logging"
	"github.com/ayusman/flagtouch/internal/scene"
	"github.com/ayusman/flagtouch/internal/server"
	"github.com/ayusman/flagtouch/internal/store"
	"github.com/ayusman/flagtouch/internal/tray"
)

type options struct {
	scenePath string
	dataDir   string
	addr      string
	webDir    string
	logLevel  string
	logJSON   bool
	tray      bool
	mock      bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("flagtouch", flag.ContinueOnError)
	fs.StringVar(&o.scenePath, "scene", "", "scene file (.yaml); a single default flag when empty")
	fs.StringVar(&o.dataDir, "data", "", "data directory (default ~/.flagtouch)")
	fs.StringVar(&o.addr, "addr", "127.0.0.1:8080", "HTTP listen address, empty to disable")
	fs.StringVar(&o.webDir, "web", "", "static files served at /")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.BoolVar(&o.logJSON, "log-json", false, "log as JSON")
	fs.BoolVar(&o.tray, "tray", false, "show a system tray menu")
	fs.BoolVar(&o.mock, "mock", false, "run without a camera")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if err := logging.Init(opts.logLevel, opts.logJSON); err != nil {
		fmt.Fprintf(os.Stderr, "flagtouch: %v\n", err)
		os.Exit(2)
	}
	defer logging.Sync()

	if err := run(opts); err != nil {
		logging.L().Errorf("flagtouch: %v", err)
		logging.Sync()
		os.Exit(1)
	}
}

func run(opts options) error {
	log := logging.L()

	sc, err := loadScene(opts.scenePath)
	if err != nil {
		return err
	}
	if opts.mock {
		sc.Tracking.Mock = true
	}

	dataDir, err := resolveDataDir(opts.dataDir)
	if err != nil {
		return err
	}
	st, err := store.New(filepath.Join(dataDir, "flagtouch.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	log.Infof("touch history in %s", st.Path())

	a, err := app.New(app.Config{Scene: sc, Store: st})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(ctx) })
	if opts.addr != "" {
		srv := server.New(server.ConfigFor(a, opts.webDir))
		g.Go(func() error { return srv.Run(ctx, opts.addr) })
	}

	if !opts.tray {
		return g.Wait()
	}

	t := tray.New(a.IsEnabled())
	t.OnToggle(a.SetEnabled)
	a.OnEnabled(t.SetEnabled)
	t.OnQuit(stop)
	a.OnTouch(func(ev app.Event) { t.SetLastTouch(ev.Flag, ev.FiredAt) })
	if opts.addr != "" {
		url := "http://" + opts.addr
		t.OnDashboard(func() {
			if err := openBrowser(url); err != nil {
				log.Warnf("open dashboard: %v", err)
			}
		})
	}

	done := make(chan error, 1)
	go func() {
		err := g.Wait()
		t.Quit()
		done <- err
	}()

	// The tray must own the main goroutine on macOS.
	t.Run()
	stop()
	return <-done
}

func loadScene(path string) (*scene.Scene, error) {
	if path == "" {
		logging.L().Info("no scene file given, using a single default flag")
		return scene.Default(), nil
	}
	return scene.Load(path)
}

func resolveDataDir(dir string) (string, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("find home directory: %w", err)
		}
		dir = filepath.Join(home, ".flagtouch")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dir, nil
}

func openBrowser(url string) error {
	name := "xdg-open"
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	}
	return exec.Command(name, url).Start()
}
