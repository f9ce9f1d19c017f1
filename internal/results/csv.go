package results

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// File names of the reported tables.
const (
	CapacityFile       = "MCACapacity.csv"
	PricesFile         = "MCAPrices.csv"
	SupplyDir          = "Supply_Timeslice"
	ConsumptionDir     = "Consumption_Timeslice"
	flowFileNameFormat = "%d.csv"
)

// WriteCSV writes every table under dir:
//
//	MCACapacity.csv
//	MCAPrices.csv
//	<Sector>/Supply_Timeslice/<year>.csv
//	<Sector>/Consumption_Timeslice/<year>.csv
//
// A per-sector file exists for every reported year even when it has no rows.
func WriteCSV(dir string, t *Tables) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := WriteCapacityCSV(filepath.Join(dir, CapacityFile), t.Capacity); err != nil {
		return fmt.Errorf("write capacity: %w", err)
	}
	if err := WritePricesCSV(filepath.Join(dir, PricesFile), t.Prices); err != nil {
		return fmt.Errorf("write prices: %w", err)
	}
	for _, sec := range t.Sectors() {
		for _, year := range t.Years() {
			f := Filter{Year: year, Sector: sec}
			path := filepath.Join(dir, sec, SupplyDir, fmt.Sprintf(flowFileNameFormat, year))
			if err := WriteFlowCSV(path, "supply", t.SupplyRows(f)); err != nil {
				return fmt.Errorf("write %s supply %d: %w", sec, year, err)
			}
			path = filepath.Join(dir, sec, ConsumptionDir, fmt.Sprintf(flowFileNameFormat, year))
			if err := WriteFlowCSV(path, "consumption", t.ConsumptionRows(f)); err != nil {
				return fmt.Errorf("write %s consumption %d: %w", sec, year, err)
			}
		}
	}
	return nil
}

func WriteCapacityCSV(path string, rows []CapacityRow) error {
	return writeCSV(path, []string{"year", "sector", "technology", "capacity"}, len(rows), func(i int) []string {
		r := rows[i]
		return []string{strconv.Itoa(r.Year), r.Sector, r.Technology, fmtFloat(r.Capacity)}
	})
}

func WritePricesCSV(path string, rows []PriceRow) error {
	return writeCSV(path, []string{"year", "commodity", "timeslice", "timeslice_name", "price"}, len(rows), func(i int) []string {
		r := rows[i]
		return []string{strconv.Itoa(r.Year), r.Commodity, strconv.Itoa(r.Timeslice), r.Slice, fmtFloat(r.Price)}
	})
}

// WriteFlowCSV writes supply or consumption rows; quantity names the value column.
func WriteFlowCSV(path, quantity string, rows []FlowRow) error {
	header := []string{"year", "sector", "technology", "commodity", "timeslice", "timeslice_name", quantity}
	return writeCSV(path, header, len(rows), func(i int) []string {
		r := rows[i]
		return []string{
			strconv.Itoa(r.Year),
			r.Sector,
			r.Technology,
			r.Commodity,
			strconv.Itoa(r.Timeslice),
			r.Slice,
			fmtFloat(r.Quantity),
		}
	})
}

func writeCSV(path string, header []string, n int, row func(int) []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
