// Package ledger persists attendance rows.
//
// Identity mode keeps at most one row per subject per day. Presence mode
// appends one row per sampled frame that contained a face. Each backend
// serialises its own check-then-append, so a Ledger may be shared.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/types"
)

var (
	// ErrSchemaMismatch is returned when an existing ledger has a different header than the mode expects.
	ErrSchemaMismatch = errors.New("ledger header does not match mode")
	// ErrWrongMode is returned when an identity operation is used on a presence ledger or vice versa.
	ErrWrongMode = errors.New("operation not supported in this ledger mode")
)

// Schema is the fixed column layout of a ledger.
type Schema struct {
	Mode   string
	Header []string
}

var (
	IdentitySchema = Schema{Mode: config.ModeIdentity, Header: []string{"Name", "Date", "Time"}}
	PresenceSchema = Schema{Mode: config.ModePresence, Header: []string{"Timestamp", "Status"}}
)

// SchemaFor returns the schema of mode.
func SchemaFor(mode string) (Schema, error) {
	switch mode {
	case config.ModeIdentity:
		return IdentitySchema, nil
	case config.ModePresence:
		return PresenceSchema, nil
	}
	return Schema{}, fmt.Errorf("unknown mode %q", mode)
}

// Matches reports whether header equals the schema header.
func (s Schema) Matches(header []string) bool {
	return slices.Equal(s.Header, header)
}

type Ledger interface {
	// RecordIfAbsent appends ev unless a row with the same name and date exists.
	// It reports whether a row was written.
	RecordIfAbsent(ctx context.Context, ev types.AttendanceEvent) (bool, error)
	// RecordPresence always appends ev.
	RecordPresence(ctx context.Context, ev types.PresenceEvent) error
	// Events lists identity rows for date, or every row when date is empty.
	Events(ctx context.Context, date string) ([]types.AttendanceEvent, error)
	// Presence lists presence rows for date, or every row when date is empty.
	Presence(ctx context.Context, date string) ([]types.PresenceEvent, error)
	// Reset removes every row.
	Reset(ctx context.Context) error
	Close(ctx context.Context)
}

// Open builds the ledger backend selected in cfg for mode.
func Open(ctx context.Context, cfg config.LedgerConfig, mode string) (Ledger, error) {
	schema, err := SchemaFor(mode)
	if err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "", "xlsx":
		return OpenXLSX(cfg.Path, schema)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, schema)
	case "memory":
		return NewMemory(schema), nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
}

// History returns the rows of one subject across all days, oldest first.
func History(ctx context.Context, l Ledger, name string) ([]types.AttendanceEvent, error) {
	all, err := l.Events(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []types.AttendanceEvent
	for _, ev := range all {
		if strings.EqualFold(ev.Name, name) {
			out = append(out, ev)
		}
	}
	return out, nil
}
