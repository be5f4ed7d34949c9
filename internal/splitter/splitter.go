package splitter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultRecordsPerFile is how many CSV records land in each text chunk
// when no count is given
const DefaultRecordsPerFile = 10

// Split breaks a ';'-separated CSV file into numbered text files to
// simplify manual inspection. Malformed rows are skipped. Each record is
// rendered as a "--- Record N ---" block of "column: value" lines.
func Split(csvPath, outputDir string, recordsPerFile int, logger zerolog.Logger) error {
	if recordsPerFile <= 0 {
		recordsPerFile = DefaultRecordsPerFile
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	header, records, err := readRecords(file)
	if err != nil {
		return err
	}

	for start := 0; start < len(records); start += recordsPerFile {
		end := min(start+recordsPerFile, len(records))

		name := fmt.Sprintf("xrecords_%d_to_%d.txt", start+1, end)
		path := filepath.Join(outputDir, name)

		if err := writeChunk(path, header, records[start:end], start); err != nil {
			return err
		}
		logger.Info().Str("file", name).Msg("Created file")
	}

	logger.Info().
		Str("output_dir", outputDir).
		Int("records", len(records)).
		Msg("Export completed")
	return nil
}

// readRecords reads the header row and all data rows, skipping rows the
// CSV parser rejects
func readRecords(r io.Reader) ([]string, [][]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				// Bad lines are skipped, matching the lenient import
				// behavior the exported data was built with
				continue
			}
			return nil, nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		records = append(records, record)
	}

	return header, records, nil
}

// writeChunk renders one batch of records into a text file
func writeChunk(path string, header []string, records [][]string, offset int) error {
	var buf strings.Builder

	for i, record := range records {
		fmt.Fprintf(&buf, "--- Record %d ---\n", offset+i+1)
		for j, column := range header {
			value := ""
			if j < len(record) {
				value = record[j]
			}
			fmt.Fprintf(&buf, "%s: %s\n", column, value)
		}
		buf.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(buf.String()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
