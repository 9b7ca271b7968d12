package recon

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/HerbHall/ipscan/internal/scanner"
	"github.com/HerbHall/ipscan/pkg/models"
)

// resultHeaders returns the CSV column headers for exported results.
func resultHeaders() []string {
	return []string{"ip", "status", "method", "latency_ms", "hostname", "manual_name", "last_scan"}
}

// hostToCSVRow converts a host result to a CSV row (matching resultHeaders order).
func hostToCSVRow(h models.HostResult) []string {
	latency := ""
	if h.LatencyMs != nil {
		latency = strconv.FormatFloat(*h.LatencyMs, 'f', 3, 64)
	}
	return []string{
		h.IP,
		string(h.Status),
		string(h.Method),
		latency,
		h.Hostname,
		h.ManualName,
		h.LastScan,
	}
}

// WriteResultsCSV writes one row per item of snap, preceded by a header row.
func WriteResultsCSV(w io.Writer, snap *models.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(resultHeaders()); err != nil {
		return err
	}
	for _, item := range snap.Items {
		if err := cw.Write(hostToCSVRow(item)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// MaxImportRows bounds a device name import.
const MaxImportRows = 4096

// ParseNamesCSV reads "ip,name" rows. A first row whose ip column is the
// literal "ip" is treated as a header. Addresses and names are normalized;
// the first invalid row fails the whole import with a ValidationError
// naming its line.
func ParseNamesCSV(r io.Reader) ([]DeviceNameRequest, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []DeviceNameRequest
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &scanner.ValidationError{Field: "csv", Reason: err.Error()}
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "ip") {
			continue
		}
		if len(row) < 2 {
			return nil, lineError(line, "expected 2 columns, got %d", len(row))
		}
		ip, err := scanner.NormalizeIP(row[0])
		if err != nil {
			return nil, lineError(line, "%v", err)
		}
		name, err := scanner.NormalizeManualName(row[1])
		if err != nil {
			return nil, lineError(line, "%v", err)
		}
		if len(out) == MaxImportRows {
			return nil, lineError(line, "more than %d rows", MaxImportRows)
		}
		out = append(out, DeviceNameRequest{IP: ip, Name: name})
	}
	return out, nil
}

func lineError(line int, format string, args ...any) error {
	return &scanner.ValidationError{
		Field:  "csv",
		Reason: fmt.Sprintf("line %d: ", line) + fmt.Sprintf(format, args...),
	}
}
