// Command tds is a CLI client for the remote to-do service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"todosync/internal/api"
	"todosync/internal/model"
	"todosync/internal/session"
	todosync "todosync/internal/sync"
)

// ---- config ----

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "todosync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "todosync")
}

func sessionDBPath() string { return filepath.Join(cfgDir(), "session.db") }

// serverAddr resolves the base URL: flag beats env beats default.
func serverAddr(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if v := os.Getenv("TODOSYNC_ADDR"); v != "" {
		return v
	}
	return "http://localhost:3000"
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func itemJSON(item model.Item) map[string]string {
	return map[string]string{
		"id":          item.ID,
		"title":       item.Title,
		"description": item.Description,
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `tds CLI
Usage:
  tds [-addr URL] [-v] <cmd> [args]

Commands:
  version
  register   -u <username> -p <password> -e <email>
  login      -u <username> -p <password>           (saves token)
  logout                                           (clears token)
  get        -id <id>
  update     -id <id> -title <t> -desc <d>
  watch      -id <id> [-interval 2s]               (prints on change)
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against a controller wired to the durable
// session store under the user config dir.
func main() {
	addr := flag.String("addr", "", "server base URL (default $TODOSYNC_ADDR or http://localhost:3000)")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	if cmd == "version" {
		fmt.Printf("tds %s (%s)\n", version, buildDate)
		return
	}

	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	_ = os.MkdirAll(cfgDir(), 0o700)
	store, err := session.OpenSQLite(sessionDBPath())
	if err != nil {
		fail(err)
	}
	defer store.Close()

	client := api.New(serverAddr(*addr), store, api.WithLogger(logger))
	ctrl := todosync.NewController(client, store, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		e := fs.String("e", "", "email")
		_ = fs.Parse(flag.Args()[1:])

		if err := ctrl.Register(ctx, model.Registration{Username: *u, Password: *p, Email: *e}); err != nil {
			fail(err)
		}
		fmt.Println("registered; run `tds login` to sign in")

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])

		if err := ctrl.Login(ctx, model.Credentials{Username: *u, Password: *p}); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "logout":
		if err := ctrl.Logout(ctx); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "get":
		fs := flag.NewFlagSet("get", flag.ExitOnError)
		id := fs.String("id", "", "item id")
		_ = fs.Parse(flag.Args()[1:])
		if *id == "" {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}

		item, err := ctrl.Fetch(ctx, *id)
		if err != nil {
			fail(err)
		}
		printJSON(itemJSON(item))

	case "update":
		fs := flag.NewFlagSet("update", flag.ExitOnError)
		id := fs.String("id", "", "item id")
		title := fs.String("title", "", "new title")
		desc := fs.String("desc", "", "new description")
		_ = fs.Parse(flag.Args()[1:])
		if *id == "" {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}

		item, err := ctrl.Update(ctx, *id, model.ItemFields{Title: *title, Description: *desc})
		if err != nil {
			fail(err)
		}
		printJSON(itemJSON(item))

	case "watch":
		fs := flag.NewFlagSet("watch", flag.ExitOnError)
		id := fs.String("id", "", "item id")
		interval := fs.Duration("interval", 2*time.Second, "poll interval")
		_ = fs.Parse(flag.Args()[1:])
		if *id == "" {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}

		// Subscription delivery prints; the poll loop only feeds the
		// cache. Unchanged polls stay silent.
		var last model.Item
		var have bool
		sub := ctrl.Subscribe(*id, func(item model.Item) {
			if have && item == last {
				return
			}
			last, have = item, true
			printJSON(itemJSON(item))
		})
		defer ctrl.Unsubscribe(sub)

		if _, err := ctrl.Fetch(context.Background(), *id); err != nil {
			fail(err)
		}
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := ctrl.Fetch(context.Background(), *id); err != nil {
				fail(err)
			}
		}

	default:
		usage()
	}
}
