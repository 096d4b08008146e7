package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/drawguess/go/internal/dbconfig"
	"github.com/mcdev12/drawguess/go/internal/game/words"
)

const upsertWord = `
INSERT INTO words (category, content)
VALUES ($1, $2)
ON CONFLICT (category, content) DO NOTHING`

func main() {
	path := "go/internal/assets/words.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the YAML dictionary
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read words file: %v\n", err)
		os.Exit(1)
	}
	categories, err := words.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert in one batch per category
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	var total, inserted, skipped, errs int
	for _, name := range names {
		category := strings.ToLower(strings.TrimSpace(name))
		list := words.Clean(categories[name])
		total += len(list)

		batch := &pgx.Batch{}
		for _, w := range list {
			batch.Queue(upsertWord, category, strings.ToLower(w))
		}

		results := pool.SendBatch(ctx, batch)
		for _, w := range list {
			tag, err := results.Exec()
			if err != nil {
				fmt.Fprintf(os.Stderr, "error inserting %q in %s: %v\n", w, category, err)
				errs++
				continue
			}
			if tag.RowsAffected() == 1 {
				inserted++
			} else {
				skipped++
			}
		}
		if err := results.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close batch for %s: %v\n", category, err)
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Words seed complete: %d categories, %d total, %d inserted, %d skipped, %d errors\n",
		len(names), total, inserted, skipped, errs,
	)
}
