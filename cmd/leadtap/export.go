package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rendis/leadtap/internal/engine/storage"
	"github.com/rendis/leadtap/internal/model"
)

var recordHeader = []string{
	"provider", "name", "rating", "review_count", "category", "address",
	"phone", "website", "plus_code", "lat", "lng", "opening_hours",
	"emails", "contact_phones", "contact_address", "source_url", "query",
}

var profileHeader = []string{"name", "title", "location", "profile_url"}

func runExport(args []string) error {
	var dbPath, outputPath, format, kind string

	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.StringVar(&dbPath, "db", "", "Path to .db file (required)")
	fs.StringVar(&outputPath, "output", "", "Output file path (default: same dir as db)")
	fs.StringVar(&format, "format", "csv", "Export format: csv, xlsx or json")
	fs.StringVar(&kind, "kind", "records", "What to export: records or profiles")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: leadtap export [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  leadtap export -db ./leads/leadtap_20260212_101500.db\n")
		fmt.Fprintf(os.Stderr, "  leadtap export -db data.db -format xlsx -output leads.xlsx\n")
		fmt.Fprintf(os.Stderr, "  leadtap export -db people.db -kind profiles -format json\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if dbPath == "" {
		return errors.New("-db is required")
	}
	format = strings.ToLower(format)
	switch format {
	case "csv", "xlsx", "json":
	default:
		return fmt.Errorf("unsupported format: %s (csv, xlsx or json)", format)
	}
	if kind != "records" && kind != "profiles" {
		return fmt.Errorf("unsupported kind: %s (records or profiles)", kind)
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("opening db: %w", err)
	}

	if outputPath == "" {
		dir := filepath.Dir(dbPath)
		base := strings.TrimSuffix(filepath.Base(dbPath), ".db")
		outputPath = filepath.Join(dir, base+"."+format)
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("loading db: %w", err)
	}
	defer store.Close()

	var (
		header []string
		rows   [][]string
		items  any
	)
	if kind == "profiles" {
		profiles, err := store.Profiles()
		if err != nil {
			return fmt.Errorf("loading profiles: %w", err)
		}
		header, rows, items = profileHeader, profileRows(profiles), profiles
	} else {
		records, err := store.Records()
		if err != nil {
			return fmt.Errorf("loading records: %w", err)
		}
		header, rows, items = recordHeader, recordRows(records), records
	}
	if len(rows) == 0 {
		return fmt.Errorf("no %s found in database", kind)
	}

	switch format {
	case "xlsx":
		err = writeXLSX(outputPath, kind, header, rows)
	default:
		err = writeFile(outputPath, func(w io.Writer) error {
			if format == "json" {
				return writeJSON(w, items)
			}
			return writeCSV(w, header, rows)
		})
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Exported %d %s to %s\n", len(rows), kind, outputPath)
	return nil
}

func recordRows(records []model.BusinessRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		var rating, reviews, lat, lng string
		if r.Rating != nil {
			rating = strconv.FormatFloat(*r.Rating, 'f', 1, 64)
		}
		if r.ReviewCount != nil {
			reviews = strconv.Itoa(*r.ReviewCount)
		}
		if r.Coordinates != nil {
			lat = strconv.FormatFloat(r.Coordinates.Lat, 'f', 6, 64)
			lng = strconv.FormatFloat(r.Coordinates.Lng, 'f', 6, 64)
		}
		var emails, phones, contactAddr string
		if r.Contacts != nil {
			emails = strings.Join(r.Contacts.Emails, "; ")
			phones = strings.Join(r.Contacts.Phones, "; ")
			contactAddr = r.Contacts.Address
		}
		rows = append(rows, []string{
			r.Provider, r.Name, rating, reviews, r.Category, r.Address,
			r.Phone, r.Website, r.PlusCode, lat, lng, strings.Join(r.OpeningHours, "; "),
			emails, phones, contactAddr, r.SourceURL, r.Query,
		})
	}
	return rows
}

func profileRows(profiles []model.Profile) [][]string {
	rows := make([][]string, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, []string{p.Name, p.Title, p.Location, p.ProfileURL})
	}
	return rows
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeXLSX(path, sheet string, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}

	write := func(row int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		cells := make([]any, len(values))
		for i, v := range values {
			cells[i] = v
		}
		return f.SetSheetRow(sheet, cell, &cells)
	}
	if err := write(1, header); err != nil {
		return fmt.Errorf("writing xlsx header: %w", err)
	}
	for i, r := range rows {
		if err := write(i+2, r); err != nil {
			return fmt.Errorf("writing xlsx row %d: %w", i+2, err)
		}
	}
	last, _ := excelize.ColumnNumberToName(len(header))
	_ = f.SetColWidth(sheet, "A", last, 24)
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving xlsx: %w", err)
	}
	return nil
}
