package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"arteng.org/internal/migrate"
	"arteng.org/internal/store"
	"arteng.org/internal/store/pg"
	"arteng.org/internal/store/sqlite"
)

func main() {
	log.SetFlags(0)
	var (
		dsn     = flag.String("dsn", os.Getenv("DATABASE_URL"), "postgres://... or sqlite://<path>")
		timeout = flag.Duration("timeout", 30*time.Second, "overall timeout")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DATABASE_URL")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status|pending]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, fsys, opts, err := open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, fsys, opts...)

	var names []string
	switch flag.Arg(0) {
	case "up":
		names, err = mgr.Up(ctx)
	case "down":
		var last string
		if last, err = mgr.Down(ctx); err == nil {
			names = []string{last}
		}
	case "status":
		names, err = mgr.Status(ctx)
	case "pending":
		names, err = mgr.Pending(ctx)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func open(dsn string) (*sql.DB, fs.FS, []migrate.Option, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err := pg.Open(dsn)
		return db, migrate.Postgres(), nil, err
	case strings.HasPrefix(dsn, "sqlite://"):
		db, err := sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
		return db, migrate.SQLite(), []migrate.Option{migrate.WithPlaceholder(store.QuestionPlaceholder)}, err
	default:
		return nil, nil, nil, fmt.Errorf("unsupported DSN %q", dsn)
	}
}
