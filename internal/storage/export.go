package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fnb-tools/fnbmon/internal/session"
)

// csvHeader is the column layout of exported CSV files.
var csvHeader = []string{
	"timestamp", "voltage_v", "current_a", "power_w",
	"dp_v", "dn_v", "temperature_c", "protocol",
}

// ExportCSV writes the session's readings as CSV. Optional fields are
// left empty when the transport did not report them.
func ExportCSV(w io.Writer, s *session.Session) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	record := make([]string, len(csvHeader))
	for _, r := range s.Readings {
		record[0] = r.Timestamp.UTC().Format(time.RFC3339Nano)
		record[1] = strconv.FormatFloat(r.Voltage, 'f', -1, 64)
		record[2] = strconv.FormatFloat(r.Current, 'f', -1, 64)
		record[3] = strconv.FormatFloat(r.Power, 'f', -1, 64)
		record[4] = formatOptional(r.DP)
		record[5] = formatOptional(r.DN)
		record[6] = formatOptional(r.Temperature)

		record[7] = ""
		if r.Protocol != nil {
			record[7] = r.Protocol.Name
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing CSV record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}

// ExportJSON writes the whole session, stats included, as indented JSON.
func ExportJSON(w io.Writer, s *session.Session) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return nil
}

func formatOptional(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
