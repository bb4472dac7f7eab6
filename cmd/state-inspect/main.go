// Command state-inspect reads and edits the entries a store keeps in its
// configured durable backend. Writes go through a store so that sibling
// instances on the configured transport see them.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"mfestate/internal/config"
	"mfestate/internal/core"
)

const InspectVersion = "0.1.0"

const usage = `State inspector.

Configuration is read from --config, else from the file named by
MFESTATE_CONFIG, then overridden by MFESTATE_* environment variables.

Usage:
    state-inspect list [--config=<path>]
    state-inspect get <key> [--config=<path>]
    state-inspect set <key> <json> [--config=<path>] [--source=<source>]
    state-inspect delete <key> [--config=<path>]
    state-inspect clear [--config=<path>]
    state-inspect -h | --help
    state-inspect --version

Options:
    -h --help           Show this screen.
    --version           Show version.
    --config=<path>     Config file (yaml, json or toml).
    --source=<source>   Source tag for set [default: state-inspect].`

var errNotFound = errors.New("key not found")

func loadSettings(opts docopt.Opts) (config.Config, error) {
	if path, ok := opts["--config"].(string); ok && path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(ctx context.Context, opts docopt.Opts, out io.Writer) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	settings.State.Persistent = true
	prefix := settings.State.StoragePrefix + ":"

	if isSet(opts, "list") {
		return listEntries(ctx, settings, prefix, out)
	}
	if isSet(opts, "get") {
		key, _ := opts.String("<key>")
		return getEntry(ctx, settings, prefix+key, out)
	}
	return edit(ctx, settings, opts, out)
}

func listEntries(ctx context.Context, settings config.Config, prefix string, out io.Writer) error {
	persister, err := core.OpenPersister(ctx, settings)
	if err != nil {
		return err
	}
	defer persister.Close()
	entries, err := persister.Entries(ctx, prefix)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\t%s\n", strings.TrimPrefix(e.Key, prefix), e.Payload)
	}
	return nil
}

func getEntry(ctx context.Context, settings config.Config, key string, out io.Writer) error {
	persister, err := core.OpenPersister(ctx, settings)
	if err != nil {
		return err
	}
	defer persister.Close()
	entries, err := persister.Entries(ctx, key)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Key != key {
			continue
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, e.Payload, "", "  "); err != nil {
			pretty.Reset()
			pretty.Write(e.Payload)
		}
		fmt.Fprintln(out, pretty.String())
		return nil
	}
	return fmt.Errorf("%s: %w", key, errNotFound)
}

func edit(ctx context.Context, settings config.Config, opts docopt.Opts, out io.Writer) error {
	store, err := core.Open(ctx, settings)
	if err != nil {
		return err
	}
	err = apply(store, opts, out)
	return errors.Join(err, store.Close())
}

func apply(store *core.Store, opts docopt.Opts, out io.Writer) error {
	key, _ := opts.String("<key>")
	switch {
	case isSet(opts, "set"):
		raw, _ := opts.String("<json>")
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return fmt.Errorf("value for %s is not JSON: %w", key, err)
		}
		source, _ := opts.String("--source")
		store.Set(key, value, source)
		fmt.Fprintf(out, "set %s (version %d)\n", key, store.Meta().Version)
	case isSet(opts, "delete"):
		if _, ok := store.Lookup(key); !ok {
			return fmt.Errorf("%s: %w", key, errNotFound)
		}
		store.Delete(key)
		fmt.Fprintf(out, "deleted %s\n", key)
	case isSet(opts, "clear"):
		n := len(store.Keys())
		store.Clear()
		fmt.Fprintf(out, "cleared %d keys\n", n)
	}
	return nil
}

func isSet(opts docopt.Opts, command string) bool {
	v, _ := opts.Bool(command)
	return v
}

func main() {
	_ = flag.CommandLine.Parse(nil)
	_ = flag.Set("logtostderr", "true")
	defer glog.Flush()

	opts, err := docopt.ParseArgs(usage, os.Args[1:], InspectVersion)
	if err != nil {
		panic(err)
	}
	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		glog.Flush()
		os.Exit(1)
	}
}
