// Package workbook mirrors hours data into a local .xlsx workbook, for use
// without a Google account.
package workbook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/Tiliavir/hours-tracker/internal/tabular"
)

// Workbook is a tabular.Target backed by an .xlsx file. Every operation
// opens the file and saves it atomically.
type Workbook struct {
	path string
	mu   sync.Mutex
}

// Create writes a new workbook at path with one sheet per region and the
// entry and workplace headers. An existing file is replaced.
func Create(path string) (*Workbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating workbook directory: %w", err)
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), tabular.TimeEntries.Title); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}
	for _, r := range tabular.Regions[1:] {
		if _, err := f.NewSheet(r.Title); err != nil {
			return nil, fmt.Errorf("adding sheet %s: %w", r.Title, err)
		}
	}
	for _, r := range []tabular.Region{tabular.TimeEntries, tabular.Workplaces} {
		if err := writeRows(f, tabular.From(r, 1), [][]any{headerRow(r)}); err != nil {
			return nil, err
		}
	}
	if err := f.SetPanes(tabular.TimeEntries.Title, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freezing header: %w", err)
	}
	if err := styleHeader(f, tabular.TimeEntries); err != nil {
		return nil, err
	}

	w := &Workbook{path: path}
	if err := w.save(f); err != nil {
		return nil, err
	}
	return w, nil
}

// Open returns the workbook at path, which must exist.
func Open(path string) (*Workbook, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	return &Workbook{path: path}, nil
}

func (w *Workbook) ID() string { return w.path }

// Clear removes the rows of rng. Open-ended ranges delete every row from
// rng.FirstRow on; bounded ranges blank their cells in place.
func (w *Workbook) Clear(_ context.Context, rng tabular.Range) error {
	return w.update(func(f *excelize.File) error {
		sheet := rng.Region.Title
		if rng.Rows > 0 {
			for row := rng.FirstRow; row < rng.FirstRow+rng.Rows; row++ {
				for col := 1; col <= rng.Region.Columns(); col++ {
					cell, err := excelize.CoordinatesToCellName(col, row)
					if err != nil {
						return err
					}
					if err := f.SetCellValue(sheet, cell, nil); err != nil {
						return fmt.Errorf("clearing %s: %w", rng.A1(), err)
					}
				}
			}
			return nil
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return fmt.Errorf("reading %s: %w", sheet, err)
		}
		for row := len(rows); row >= rng.FirstRow && row >= 1; row-- {
			if err := f.RemoveRow(sheet, row); err != nil {
				return fmt.Errorf("clearing %s: %w", rng.A1(), err)
			}
		}
		return nil
	})
}

func (w *Workbook) Write(_ context.Context, rng tabular.Range, rows [][]any) error {
	return w.update(func(f *excelize.File) error {
		return writeRows(f, rng, rows)
	})
}

func (w *Workbook) FormatHeader(_ context.Context, region tabular.Region) error {
	return w.update(func(f *excelize.File) error {
		return styleHeader(f, region)
	})
}

func (w *Workbook) update(fn func(*excelize.File) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return err
	}
	return w.save(f)
}

// save writes to a temporary file next to the workbook and renames it.
func (w *Workbook) save(f *excelize.File) error {
	ext := filepath.Ext(w.path)
	tmp := strings.TrimSuffix(w.path, ext) + ".tmp" + ext
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, rng tabular.Range, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, rng.FirstRow+i)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(rng.Region.Title, cell, &row); err != nil {
			return fmt.Errorf("writing %s: %w", rng.A1(), err)
		}
	}
	return nil
}

func styleHeader(f *excelize.File, region tabular.Region) error {
	style, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4285F4"}, Pattern: 1},
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetCellStyle(region.Title, "A1", region.LastColumn()+"1", style); err != nil {
		return fmt.Errorf("formatting header of %s: %w", region.Title, err)
	}
	return nil
}

func headerRow(r tabular.Region) []any {
	row := make([]any, 0, r.Columns())
	for _, h := range r.Header {
		row = append(row, h)
	}
	return row
}

// Connector opens the workbook at Path. It implements syncer.Connector;
// there is nothing to sign in to.
type Connector struct {
	Path string
}

func (c *Connector) Initialize(context.Context) error {
	if c.Path == "" {
		return fmt.Errorf("workbook path not configured")
	}
	return nil
}

func (c *Connector) IsSignedIn() bool { return true }

// SetupTarget creates the workbook and returns its path.
func (c *Connector) SetupTarget(context.Context) (string, error) {
	w, err := Create(c.Path)
	if err != nil {
		return "", err
	}
	return w.ID(), nil
}

func (c *Connector) Open(_ context.Context, id string) (tabular.Target, error) {
	return Open(id)
}
