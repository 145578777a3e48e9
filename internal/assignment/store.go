package assignment

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
)

var header = []string{"metric", "host", "tcpPort", "rate"}

// Row is one persisted metric assignment. Rate is informational, written for
// operators and ignored on load.
type Row struct {
	Metric  string
	Host    string
	TCPPort int
	Rate    float64
}

// Read loads assignment rows from the CSV file at path. Rows with fewer than
// four fields or an unparseable port are dropped. I/O failures are logged and
// whatever was accumulated so far is returned; the in-memory state is the
// source of truth.
func Read(path string, log *slog.Logger) []Row {
	var rows []Row

	f, err := os.Open(path)
	if err != nil {
		log.Error("failed to open assignment file", slog.String("path", path), slog.Any("err", err))
		return rows
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	for i := 0; ; i++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Error("failed to read assignment file", slog.String("path", path), slog.Any("err", err))
			return rows
		}
		if i == 0 {
			// header
			continue
		}
		if len(record) < 4 {
			continue
		}

		tcpPort, err := strconv.Atoi(record[2])
		if err != nil {
			log.Warn("dropping assignment row with bad port",
				slog.String("metric", record[0]),
				slog.String("port", record[2]))
			continue
		}

		rows = append(rows, Row{
			Metric:  record[0],
			Host:    record[1],
			TCPPort: tcpPort,
		})
	}

	return rows
}

// Write rewrites the assignment file at path in full: a header row followed by
// one row per assignment. Values are written unquoted, except that a field
// holding a comma, a double quote or a line break is quoted as CSV requires.
func Write(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create assignment file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write assignment header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.Metric,
			row.Host,
			strconv.Itoa(row.TCPPort),
			strconv.FormatFloat(row.Rate, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write assignment row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
