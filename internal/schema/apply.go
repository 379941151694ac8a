package schema

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4/database/multistmt"

	"github.com/jask/launchpad/internal/database"
)

// ErrConnectionUnavailable is returned when the connection cannot execute
// anything at all. It is the storage collaborator's error.
var ErrConnectionUnavailable = database.ErrConnectionUnavailable

// maxStatementSize bounds a single statement handed to the splitter.
const maxStatementSize = 1 << 20

// Execer is the part of a storage connection the applier needs. *sql.Conn
// satisfies it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Mode records how a batch was executed.
type Mode int

const (
	ModeWholeBatch Mode = iota
	ModePerStatementFallback
)

func (m Mode) String() string {
	switch m {
	case ModeWholeBatch:
		return "whole-batch"
	case ModePerStatementFallback:
		return "per-statement"
	default:
		return "unknown"
	}
}

// StatementError describes one statement rejected during fallback.
type StatementError struct {
	Index     int
	Statement string
	Err       error
}

func (e StatementError) Error() string {
	return fmt.Sprintf("statement %d: %v", e.Index+1, e.Err)
}

// Result tallies a batch application. Callers decide whether Failed > 0 is
// acceptable; Apply never fails because of individual statements.
type Result struct {
	Source    string
	Total     int
	Succeeded int
	Failed    int
	Mode      Mode
	// BatchErr is the reason the whole batch was rejected, if it was.
	BatchErr error
	Failures []StatementError
}

// Apply executes script against conn, first as one transaction and, if the
// engine rejects that, statement by statement.
func Apply(ctx context.Context, conn Execer, script Script) (Result, error) {
	stmts, err := Split(script.Body)
	if err != nil {
		return Result{}, fmt.Errorf("split schema %s: %w", script.Source, err)
	}
	res := Result{Source: script.Source, Total: len(stmts), Mode: ModeWholeBatch}
	if len(stmts) == 0 {
		return res, nil
	}

	if _, err := conn.ExecContext(ctx, "BEGIN"); err != nil {
		return res, fmt.Errorf("%w: begin schema batch: %v", ErrConnectionUnavailable, err)
	}
	batchErr := execBatch(ctx, conn, script.Body)
	if batchErr == nil {
		res.Succeeded = res.Total
		return res, nil
	}
	res.BatchErr = batchErr
	if isConnErr(batchErr) {
		return res, fmt.Errorf("%w: %v", ErrConnectionUnavailable, batchErr)
	}

	res.Mode = ModePerStatementFallback
	for i, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			if isConnErr(err) {
				return res, fmt.Errorf("%w: statement %d: %v", ErrConnectionUnavailable, i+1, err)
			}
			res.Failed++
			res.Failures = append(res.Failures, StatementError{Index: i, Statement: stmt, Err: err})
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

func execBatch(ctx context.Context, conn Execer, body string) error {
	if _, err := conn.ExecContext(ctx, body); err != nil {
		// sqlite may already have rolled back; "no transaction is active" is fine
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return err
	}
	return nil
}

// Split breaks a script into executable statements on ';', dropping blank
// statements and full-line '--' comments. Semicolons inside string literals
// or trigger bodies are not supported.
func Split(body string) ([]string, error) {
	var out []string
	err := multistmt.Parse(strings.NewReader(stripLineComments(body)), []byte(";"), maxStatementSize, func(m []byte) bool {
		stmt := strings.TrimSpace(string(m))
		stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
		if stmt == "" || commentOnly(stmt) {
			return true
		}
		out = append(out, stmt)
		return true
	})
	return out, err
}

// stripLineComments drops lines that hold only a '--' comment so a ';'
// inside one cannot end a statement early.
func stripLineComments(body string) string {
	lines := strings.Split(body, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func commentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return false
	}
	return true
}

func isConnErr(err error) bool {
	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn)
}
