package clickhouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir holds the clickhouse DDL, relative to this package.
// Tests read it from disk because importing the migrations package
// from here would create an import cycle.
const migrationsDir = "../migrations/clickhouse"

// setupTestDB starts a clickhouse container, applies migrations, and
// returns a connection plus a cleanup function.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping clickhouse integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		Env: map[string]string{
			"CLICKHOUSE_DB":       "test",
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60*time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start clickhouse container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://%s:%s/test", host, port.Port())
	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)

	applyMigrations(t, conn)

	cleanup := func() {
		conn.Close()
		_ = testcontainers.TerminateContainer(container)
	}
	return conn, cleanup
}

func applyMigrations(t *testing.T, conn *Conn) {
	t.Helper()

	entries, err := os.ReadDir(migrationsDir)
	require.NoError(t, err, "read migrations dir")

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	require.NotEmpty(t, files, "no migration files in %s", migrationsDir)

	for _, name := range files {
		raw, err := os.ReadFile(filepath.Join(migrationsDir, name))
		require.NoError(t, err)
		// The native protocol runs one statement per Exec.
		for _, stmt := range splitSQL(string(raw)) {
			require.NoError(t, conn.Exec(context.Background(), stmt), "apply migration %s", name)
		}
	}
}

func splitSQL(script string) []string {
	var filtered strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		filtered.WriteString(line)
		filtered.WriteString("\n")
	}

	var stmts []string
	for _, stmt := range strings.Split(filtered.String(), ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
