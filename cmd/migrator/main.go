package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/NordCoder/doggy-auth/migrations"
)

func main() {
	flag.Usage = func() {
		log.Printf("usage: %s [up|down|status]", os.Args[0])
	}
	flag.Parse()
	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	dbURL := os.Getenv("DB_DSN")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DB_DSN is empty")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		log.Fatalf("goose provider: %v", err)
	}

	switch cmd {
	case "up":
		results, err := provider.Up(ctx)
		for _, r := range results {
			log.Printf("applied %s (%s)", r.Source.Path, r.Duration)
		}
		if err != nil {
			log.Fatalf("migrate up: %v", err)
		}
		log.Println("migrations: up OK")
	case "down":
		r, err := provider.Down(ctx)
		if err != nil {
			log.Fatalf("migrate down: %v", err)
		}
		log.Printf("rolled back %s", r.Source.Path)
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			log.Fatalf("migrate status: %v", err)
		}
		for _, s := range statuses {
			log.Printf("%-10s %s", s.State, s.Source.Path)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}
