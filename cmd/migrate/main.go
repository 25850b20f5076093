package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"agri-platform/internal/app"
	"agri-platform/internal/config"
	"agri-platform/migrations"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	scripts, err := migrations.Scripts(migrations.Direction(*direction))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	db, err := sqlx.Connect("postgres", app.DatabaseConfig(cfg).DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Println("Connected to database successfully")

	for _, s := range scripts {
		fmt.Printf("Running migration: %s\n", s.Name)
		if _, err := db.Exec(s.SQL); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to execute migration %s: %v\n", s.Name, err)
			os.Exit(1)
		}
	}

	fmt.Println("Migration completed successfully")
}
