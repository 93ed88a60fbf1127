package importer

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	_ "github.com/dolthub/driver"
	_ "github.com/go-sql-driver/mysql"
)

// looksLikeDSN reports whether repo names a live database connection
// (sql-server DSN) rather than a local dolt database directory.
func looksLikeDSN(repo string) bool {
	return strings.Contains(repo, "://") || strings.Contains(repo, "@tcp(")
}

// ensureDoltAvailable checks that rows can actually be fetched from repo:
// for a DSN, connectivity is verified at query time; for a local database
// directory, the dolt binary must be on PATH.
func ensureDoltAvailable(ctx context.Context, repo string) error {
	if looksLikeDSN(repo) {
		return nil
	}
	if _, err := exec.LookPath("dolt"); err != nil {
		return wrapIo(fmt.Errorf("dolt binary not found on PATH: %w", err))
	}
	return nil
}

// fetchDoltRows returns one JSON object per issues row, reading through
// whichever path repo names: a local database directory (shelling out to
// the dolt CLI for JSON row export) or a sql-server DSN (a typed
// database/sql query through the dolt or mysql driver).
func fetchDoltRows(ctx context.Context, repo string) ([]json.RawMessage, error) {
	if looksLikeDSN(repo) {
		return fetchDoltRowsViaDriver(ctx, repo)
	}
	return fetchDoltRowsViaShell(ctx, repo)
}

func fetchDoltRowsViaShell(ctx context.Context, repoDir string) ([]json.RawMessage, error) {
	cmd := exec.CommandContext(ctx, "dolt", "sql", "-q", "SELECT * FROM issues", "-r", "json")
	cmd.Dir = repoDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, wrapIo(fmt.Errorf("dolt sql: %w: %s", err, strings.TrimSpace(stderr.String())))
	}

	var payload struct {
		Rows []json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return nil, wrapJSON(err)
	}
	return payload.Rows, nil
}

func fetchDoltRowsViaDriver(ctx context.Context, dsn string) ([]json.RawMessage, error) {
	driverName := "dolt"
	if strings.HasPrefix(dsn, "mysql://") {
		driverName = "mysql"
		dsn = strings.TrimPrefix(dsn, "mysql://")
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, wrapDb(err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT * FROM issues")
	if err != nil {
		return nil, wrapDb(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, wrapDb(err)
	}

	var out []json.RawMessage
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, wrapDb(err)
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = normalizeSQLValue(values[i])
		}
		encoded, err := json.Marshal(record)
		if err != nil {
			return nil, wrapJSON(err)
		}
		out = append(out, encoded)
	}
	return out, rows.Err()
}

// normalizeSQLValue converts a database/sql scan result into a JSON-friendly
// value: byte slices (the driver's representation for TEXT/JSON columns)
// become strings so downstream json.Marshal/Unmarshal round-trips cleanly.
func normalizeSQLValue(value any) any {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}

func sourceIssueFromDoltRow(raw json.RawMessage) (SourceIssue, error) {
	var issue SourceIssue
	if err := json.Unmarshal(raw, &issue); err != nil {
		return SourceIssue{}, invalidRecord("invalid row shape: %v", err)
	}
	return issue, nil
}
