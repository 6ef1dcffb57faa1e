// Package browser owns the Playwright driver and the Chromium sessions the
// watcher drives.
//
// # Session Lifecycle
//
//  1. Initialize: install (first run only) and start the Playwright driver
//  2. StartSession: launch Chromium, either fresh or on a persistent profile
//     directory so a Tracker login survives restarts
//  3. Use: Navigate, Document for the automation, Content for snapshots
//  4. Shutdown: close every session and stop the driver
//
// Sessions idle longer than the configured timeout can be reaped with
// CleanupIdleSessions.
//
// # Example Usage
//
//	manager := browser.NewSessionManager()
//	if err := manager.Initialize(); err != nil {
//	    return err
//	}
//	defer manager.Shutdown()
//
//	session, err := manager.StartSession("tracker", browser.SessionOptions{
//	    UserDataDir: filepath.Join(dir, "profile"),
//	})
//	err = session.Navigate("https://acme.atlassian.net", browser.NavigateOptions{
//	    WaitUntil: "domcontentloaded",
//	})
//	res, err := consumer.ProcessPending(ctx, session.Document())
package browser
