package main

import (
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// Dumps the closed-position history from the bot database as CSV, either to
// stdout or to a file. Reads the relational mirror directly so it works
// without the bot running.
func main() {
	dbPath := flag.String("db", "bot.db", "path to the bot sqlite database")
	outPath := flag.String("out", "", "output file (default stdout)")
	pair := flag.String("pair", "", "restrict to a single pair, e.g. ETH/USD")
	flag.Parse()

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	query := `SELECT pair, entry_time, exit_time, entry_price, exit_price, volume, profit_usd, profit_pct, exit_reason
	          FROM closed_positions`
	args := []interface{}{}
	if *pair != "" {
		query += ` WHERE pair = ?`
		args = append(args, *pair)
	}
	query += ` ORDER BY exit_time`

	rows, err := db.Query(query, args...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create output file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	w := csv.NewWriter(out)
	if err := w.Write([]string{
		"pair", "entry_time", "exit_time", "entry_price", "exit_price",
		"volume", "profit_usd", "profit_pct", "exit_reason",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Write failed: %v\n", err)
		os.Exit(1)
	}

	count := 0
	for rows.Next() {
		var (
			p, entryTime, exitTime, reason              string
			entryPrice, exitPrice, volume, profit, pct float64
		)
		if err := rows.Scan(&p, &entryTime, &exitTime, &entryPrice, &exitPrice, &volume, &profit, &pct, &reason); err != nil {
			fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
			os.Exit(1)
		}
		record := []string{
			p, entryTime, exitTime,
			fmt.Sprintf("%g", entryPrice),
			fmt.Sprintf("%g", exitPrice),
			fmt.Sprintf("%g", volume),
			fmt.Sprintf("%.2f", profit),
			fmt.Sprintf("%.4f", pct),
			reason,
		}
		if err := w.Write(record); err != nil {
			fmt.Fprintf(os.Stderr, "Write failed: %v\n", err)
			os.Exit(1)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Rows failed: %v\n", err)
		os.Exit(1)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "Flush failed: %v\n", err)
		os.Exit(1)
	}

	if *outPath != "" {
		fmt.Printf("Exported %d closed positions to %s\n", count, *outPath)
	}
}
