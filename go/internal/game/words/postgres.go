package words

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

const (
	randomWordsByCategory = `SELECT content FROM words WHERE category = ANY($1) ORDER BY random() LIMIT $2`
	randomWords           = `SELECT content FROM words ORDER BY random() LIMIT $1`
)

// PostgresSupply draws words from the words table.
type PostgresSupply struct {
	db *sql.DB
}

func NewPostgresSupply(db *sql.DB) *PostgresSupply {
	return &PostgresSupply{db: db}
}

func (p *PostgresSupply) GetRandomWords(ctx context.Context, categories []string, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	var (
		rows *sql.Rows
		err  error
	)
	if len(categories) == 0 {
		rows, err = p.db.QueryContext(ctx, randomWords, count)
	} else {
		rows, err = p.db.QueryContext(ctx, randomWordsByCategory, pq.Array(categories), count)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query words: %w", err)
	}
	defer rows.Close()

	words := make([]string, 0, count)
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("failed to scan word: %w", err)
		}
		words = append(words, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read words: %w", err)
	}
	return words, nil
}
