package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JoyBoyak31/demo-volume-bot/internal/reporting"
	"github.com/JoyBoyak31/demo-volume-bot/internal/storage"
	chstore "github.com/JoyBoyak31/demo-volume-bot/internal/storage/clickhouse"
	pgstore "github.com/JoyBoyak31/demo-volume-bot/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", os.Getenv("VOLUMEBOT_POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("VOLUMEBOT_CLICKHOUSE_DSN"), "ClickHouse connection string (optional, adds the volume timeline)")
	runID := flag.String("run-id", "", "Session to report on (empty lists available runs)")
	outputDir := flag.String("output-dir", "", "Write Markdown and CSV files here instead of printing to stdout")
	flag.Parse()

	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required (or set VOLUMEBOT_POSTGRES_DSN)")
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: connect to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()
	trades := pgstore.NewTradeRecordStore(pool)

	var stats storage.VolumeStatStore
	if *clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: connect to clickhouse: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()
		stats = chstore.NewVolumeStatStore(conn)
	}

	gen := reporting.NewGenerator(trades, stats)

	if *runID == "" {
		err = listRuns(ctx, gen)
	} else {
		err = report(ctx, gen, *runID, *outputDir)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// listRuns prints every session found in the trade log.
func listRuns(ctx context.Context, gen *reporting.Generator) error {
	runs, err := gen.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No trades recorded")
		return nil
	}

	fmt.Printf("%d runs:\n", len(runs))
	for _, r := range runs {
		fmt.Printf("  %s  %5d trades  %s to %s\n",
			r.RunID, r.Trades,
			r.FirstTrade.Format(time.RFC3339), r.LastTrade.Format(time.RFC3339))
	}
	fmt.Println("\nUse --run-id to report on one of them")
	return nil
}

// report prints the run report to stdout, or renders the Markdown and CSV
// variants into outputDir when one is given.
func report(ctx context.Context, gen *reporting.Generator, runID, outputDir string) error {
	r, err := gen.Generate(ctx, runID)
	if err != nil {
		return err
	}

	if outputDir == "" {
		fmt.Print(reporting.RenderText(r))
		return nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{fmt.Sprintf("REPORT_%s.md", runID), reporting.RenderMarkdown(r)},
		{fmt.Sprintf("WALLETS_%s.csv", runID), reporting.RenderWalletsCSV(r)},
	}
	if len(r.Timeline) > 0 {
		files = append(files, struct {
			name    string
			content string
		}{fmt.Sprintf("TIMELINE_%s.csv", runID), reporting.RenderTimelineCSV(r)})
	}

	fmt.Println("Report generated:")
	for _, f := range files {
		path := filepath.Join(outputDir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("  - %s\n", path)
	}
	return nil
}
