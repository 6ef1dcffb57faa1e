package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/entrhq/issuebridge/pkg/config"
)

var errConfigUsage = errors.New("usage: issuebridge config [show | set <key> <value> | reset]")

func runConfig(_ context.Context, args []string) error {
	fs, configPath := newFlagSet("config", "[show | set <key> <value> | reset]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	sub := "show"
	if len(rest) > 0 {
		sub, rest = rest[0], rest[1:]
	}

	notifier := config.NotifierFunc(func(sectionID string) {
		fmt.Println(successStyle.Render("✓ Saved " + sectionID + " settings"))
	})
	a, err := openApp(*configPath, "config", notifier)
	if err != nil {
		return err
	}
	defer a.close()

	switch sub {
	case "show":
		showConfig(a)
		return nil

	case "set":
		if len(rest) != 2 {
			return errConfigUsage
		}
		value, err := parseSettingValue(rest[0], rest[1])
		if err != nil {
			return err
		}
		if err := a.manager.Update(config.SectionIDSettings, map[string]interface{}{rest[0]: value}); err != nil {
			return fmt.Errorf("failed to set %s: %w", rest[0], err)
		}
		a.log.Infof("setting %s changed", rest[0])
		return nil

	case "reset":
		a.manager.ResetAll()
		if err := a.manager.SaveAll(); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("✓ Settings restored to defaults"))
		return nil

	default:
		return errConfigUsage
	}
}

func showConfig(a *app) {
	section(os.Stdout, a.settings.Title())
	fmt.Println("  " + mutedStyle.Render(a.settings.Description()))
	row(os.Stdout, "file", a.configLocation())

	data := a.settings.Data()
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		var text string
		switch v := data[k].(type) {
		case []string:
			text = strings.Join(v, ", ")
		case string:
			text = strings.ReplaceAll(strings.TrimSpace(v), "\n", "; ")
		default:
			text = fmt.Sprint(v)
		}
		row(os.Stdout, k, orNone(text))
	}
}

// parseSettingValue converts a command-line value to the type the settings
// section expects for key. A project_mappings value of "@path" is read from
// the file at path.
func parseSettingValue(key, raw string) (interface{}, error) {
	switch key {
	case "enabled", "headless", "copy_url_fallback":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s expects true or false, got %q", key, raw)
		}
		return b, nil

	case "tracker_url_patterns":
		patterns := []string{}
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
		return patterns, nil

	case "project_mappings":
		if path, ok := strings.CutPrefix(raw, "@"); ok {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read mappings file: %w", err)
			}
			return string(b), nil
		}
		return strings.ReplaceAll(raw, `\n`, "\n"), nil

	case "base_url", "store_backend", "store_path", "timings_file":
		return raw, nil

	default:
		return nil, fmt.Errorf("unknown setting %q", key)
	}
}
