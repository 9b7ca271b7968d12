package recon

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/HerbHall/ipscan/internal/scanner"
	"github.com/HerbHall/ipscan/internal/testutil"
	"github.com/HerbHall/ipscan/pkg/models"
)

func TestHostToCSVRow_ColumnCount(t *testing.T) {
	row := hostToCSVRow(testutil.NewHostResult())
	if len(row) != len(resultHeaders()) {
		t.Errorf("row has %d columns, headers have %d", len(row), len(resultHeaders()))
	}
}

func TestHostToCSVRow_Offline(t *testing.T) {
	h := testutil.NewHostResult(testutil.WithIP("10.0.0.9"), testutil.WithStatus(models.HostStatusOffline))
	row := hostToCSVRow(h)

	if row[0] != "10.0.0.9" {
		t.Errorf("ip = %q", row[0])
	}
	if row[1] != "offline" || row[2] != "none" {
		t.Errorf("status/method = %q/%q, want offline/none", row[1], row[2])
	}
	if row[3] != "" {
		t.Errorf("latency = %q, want empty for offline host", row[3])
	}
}

func TestWriteResultsCSV(t *testing.T) {
	snap := &models.Snapshot{Items: []models.HostResult{
		testutil.NewHostResult(testutil.WithIP("10.0.0.1"), testutil.WithLatency(1.25), testutil.WithManualName("router, main")),
		testutil.NewHostResult(testutil.WithIP("10.0.0.2"), testutil.WithStatus(models.HostStatusOffline)),
	}}

	var buf bytes.Buffer
	if err := WriteResultsCSV(&buf, snap); err != nil {
		t.Fatalf("WriteResultsCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want header + 2", len(records))
	}
	if records[0][0] != "ip" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][3] != "1.250" {
		t.Errorf("latency = %q, want 1.250", records[1][3])
	}
	if records[1][5] != "router, main" {
		t.Errorf("manual name = %q, want quoted comma preserved", records[1][5])
	}
}

func TestParseNamesCSV(t *testing.T) {
	in := "ip,name\n10.0.0.1, router \n10.0.0.2,\n"
	got, err := ParseNamesCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseNamesCSV: %v", err)
	}
	want := []DeviceNameRequest{{IP: "10.0.0.1", Name: "router"}, {IP: "10.0.0.2", Name: ""}}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseNamesCSV_NoHeader(t *testing.T) {
	got, err := ParseNamesCSV(strings.NewReader("192.168.1.5,printer\n"))
	if err != nil {
		t.Fatalf("ParseNamesCSV: %v", err)
	}
	if len(got) != 1 || got[0].Name != "printer" {
		t.Errorf("got %+v", got)
	}
}

func TestParseNamesCSV_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		line string
	}{
		{"bad ip", "ip,name\n10.0.0.1,a\n10.0.0.300,b\n", "line 3"},
		{"one column", "10.0.0.1\n", "line 1"},
		{"name too long", "10.0.0.1," + strings.Repeat("x", scanner.MaxManualNameLength+1) + "\n", "line 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseNamesCSV(strings.NewReader(tt.in))
			if !scanner.IsValidation(err) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.line) {
				t.Errorf("err = %v, want mention of %q", err, tt.line)
			}
		})
	}
}
