package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/xuri/excelize/v2"
)

// XLSX is a spreadsheet ledger. The workbook is re-read on every operation so
// rows added by hand between runs are honoured, and written back through a
// temp file and rename so readers never see a half-written workbook.
type XLSX struct {
	Path   string
	Schema Schema

	mu sync.Mutex
}

// OpenXLSX checks an existing workbook against schema. A missing file is
// created with the header on first write.
func OpenXLSX(path string, schema Schema) (*XLSX, error) {
	if path == "" {
		return nil, errors.New("xlsx ledger path is empty")
	}
	l := &XLSX{Path: path, Schema: schema}
	if _, err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// sheet is the in-memory view of the ledger's first worksheet.
type sheet struct {
	file *excelize.File
	name string
	rows [][]string // data rows, header excluded
}

// load opens the workbook, or returns an empty one carrying the header when the file does not exist.
func (l *XLSX) load() (*sheet, error) {
	f, err := excelize.OpenFile(l.Path)
	if errors.Is(err, fs.ErrNotExist) {
		f = excelize.NewFile()
		name := f.GetSheetList()[0]
		if err := f.SetSheetRow(name, "A1", toRow(l.Schema.Header)); err != nil {
			f.Close()
			return nil, err
		}
		return &sheet{file: f, name: name}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", l.Path, err)
	}

	name := f.GetSheetList()[0]
	rows, err := f.GetRows(name)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read ledger %s: %w", l.Path, err)
	}
	if len(rows) == 0 {
		// Empty sheet, write the header
		if err := f.SetSheetRow(name, "A1", toRow(l.Schema.Header)); err != nil {
			f.Close()
			return nil, err
		}
		return &sheet{file: f, name: name}, nil
	}
	if !l.Schema.Matches(trimRow(rows[0])) {
		f.Close()
		return nil, fmt.Errorf("%w: %s has header %v, %s mode expects %v",
			ErrSchemaMismatch, l.Path, rows[0], l.Schema.Mode, l.Schema.Header)
	}
	return &sheet{file: f, name: name, rows: rows[1:]}, nil
}

// appendRow writes values after the last row and persists the workbook.
func (l *XLSX) appendRow(s *sheet, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, len(s.rows)+2)
	if err != nil {
		return err
	}
	if err := s.file.SetSheetRow(s.name, cell, toRow(values)); err != nil {
		return err
	}
	return l.save(s.file)
}

func (l *XLSX) save(f *excelize.File) error {
	dir := filepath.Dir(l.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(l.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), l.Path); err != nil {
		return fmt.Errorf("failed to replace ledger %s: %w", l.Path, err)
	}
	return nil
}

func (l *XLSX) RecordIfAbsent(ctx context.Context, ev types.AttendanceEvent) (bool, error) {
	if l.Schema.Mode != IdentitySchema.Mode {
		return false, ErrWrongMode
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.load()
	if err != nil {
		return false, err
	}
	defer s.file.Close()

	for _, row := range s.rows {
		if cell(row, 0) == ev.Name && cell(row, 1) == ev.Date {
			return false, nil
		}
	}
	if err := l.appendRow(s, []string{ev.Name, ev.Date, ev.Time}); err != nil {
		return false, err
	}
	return true, nil
}

func (l *XLSX) RecordPresence(ctx context.Context, ev types.PresenceEvent) error {
	if l.Schema.Mode != PresenceSchema.Mode {
		return ErrWrongMode
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.load()
	if err != nil {
		return err
	}
	defer s.file.Close()

	return l.appendRow(s, []string{ev.Timestamp, ev.Status})
}

func (l *XLSX) Events(ctx context.Context, date string) ([]types.AttendanceEvent, error) {
	if l.Schema.Mode != IdentitySchema.Mode {
		return nil, ErrWrongMode
	}
	rows, err := l.dataRows()
	if err != nil {
		return nil, err
	}
	var out []types.AttendanceEvent
	for _, row := range rows {
		ev := types.AttendanceEvent{Name: cell(row, 0), Date: cell(row, 1), Time: cell(row, 2)}
		if ev.Name == "" || (date != "" && ev.Date != date) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (l *XLSX) Presence(ctx context.Context, date string) ([]types.PresenceEvent, error) {
	if l.Schema.Mode != PresenceSchema.Mode {
		return nil, ErrWrongMode
	}
	rows, err := l.dataRows()
	if err != nil {
		return nil, err
	}
	var out []types.PresenceEvent
	for _, row := range rows {
		ev := types.PresenceEvent{Timestamp: cell(row, 0), Status: cell(row, 1)}
		if ev.Timestamp == "" || (date != "" && !strings.HasPrefix(ev.Timestamp, date)) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (l *XLSX) dataRows() ([][]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.load()
	if err != nil {
		return nil, err
	}
	s.file.Close()
	return s.rows, nil
}

// Reset rewrites the workbook with only the header.
func (l *XLSX) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	s, err := l.load()
	if err != nil {
		return err
	}
	defer s.file.Close()
	return l.save(s.file)
}

func (l *XLSX) Close(ctx context.Context) {}

func toRow(values []string) *[]interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return &row
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// trimRow drops trailing empty cells so a header followed by blank columns still matches.
func trimRow(row []string) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = strings.TrimSpace(v)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}
