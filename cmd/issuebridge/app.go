package main

import (
	"errors"
	"fmt"

	"github.com/entrhq/issuebridge/pkg/config"
	"github.com/entrhq/issuebridge/pkg/intent"
	"github.com/entrhq/issuebridge/pkg/logging"
)

// app bundles what every command opens: settings, timings and a logger. The
// intent store is opened on first use.
type app struct {
	manager  *config.Manager
	settings *config.SettingsSection
	timings  config.Timings
	store    intent.Store
	log      *logging.Logger

	closers []func() error
}

func openApp(configPath, component string, notifier config.ChangeNotifier) (*app, error) {
	// the fallback logger reports its own failure on stderr
	log, _ := logging.NewLogger(component)
	a := &app{log: log, closers: []func() error{log.Close}}

	var err error

	a.manager, a.settings, err = config.Open(configPath, notifier)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	a.timings, err = config.LoadTimings(a.settings.GetTimingsFile())
	if err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

// intentStore opens the configured store once and keeps it until close.
func (a *app) intentStore() (intent.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

func (a *app) openStore() (intent.Store, error) {
	backend, path := a.settings.GetStore()
	switch backend {
	case config.StoreBackendSQLite:
		s, err := intent.OpenSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		a.log.Debugf("intent store: sqlite %s", s.Path())
		return s, nil
	default:
		s, err := intent.NewFileStore(path)
		if err != nil {
			return nil, err
		}
		a.log.Debugf("intent store: file %s", s.Path())
		return s, nil
	}
}

func (a *app) configLocation() string {
	if fs, ok := a.manager.Store().(*config.FileStore); ok {
		return fs.Path()
	}
	return fmt.Sprintf("%T", a.manager.Store())
}

// storeLocation describes the configured store for display without opening it.
func (a *app) storeLocation() string {
	backend, path := a.settings.GetStore()
	if path == "" {
		var err error
		if backend == config.StoreBackendSQLite {
			path, err = intent.DefaultSQLitePath()
		} else {
			path, err = intent.DefaultFileStorePath()
		}
		if err != nil {
			return backend + " " + err.Error()
		}
	}
	return backend + " " + path
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
