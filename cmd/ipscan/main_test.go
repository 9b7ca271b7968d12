package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/ipscan/internal/scanner"
	"github.com/HerbHall/ipscan/internal/testutil"
	"github.com/HerbHall/ipscan/pkg/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("IPSCAN_CONFIG", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigCmd_Defaults(t *testing.T) {
	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "port: 8080")
	assert.Contains(t, out, "range: 192.168.1.0/24")
	assert.Contains(t, out, "path: ipscan.db")
}

func TestConfigCmd_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scanner:\n  range: 10.1.0.0/24\n  concurrency: 8\n"), 0o600))
	t.Setenv("IPSCAN_SCANNER_CONCURRENCY", "16")

	out, err := execute(t, "--config", path, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "range: 10.1.0.0/24")
	assert.Contains(t, out, "concurrency: 16")
}

func TestConfigCmd_MissingFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "config")
	assert.Error(t, err)
}

func TestScanCmd_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"malformed range", []string{"scan", "10.0.0.300"}},
		{"reversed range", []string{"scan", "10.0.0.9-10.0.0.1"}},
		{"zero concurrency", []string{"scan", "10.0.0.1", "--concurrency", "0"}},
		{"timeout too large", []string{"scan", "10.0.0.1", "--timeout-ms", "60001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.True(t, scanner.IsValidation(err), "got %v", err)
		})
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ipscan "), out)
}

func TestPrintSnapshot(t *testing.T) {
	snap := &models.Snapshot{
		Range:      "10.0.0.1-10.0.0.2",
		Total:      2,
		Completed:  2,
		Online:     1,
		Offline:    1,
		DurationMs: 12,
		Items: []models.HostResult{
			testutil.NewHostResult(testutil.WithIP("10.0.0.1"), testutil.WithHostname("gw.lan"), testutil.WithManualName("router")),
			testutil.NewHostResult(testutil.WithIP("10.0.0.2"), testutil.WithStatus(models.HostStatusOffline)),
		},
	}

	var out bytes.Buffer
	require.NoError(t, printSnapshot(&out, snap))
	text := out.String()
	assert.Contains(t, text, "10.0.0.1")
	assert.Contains(t, text, "gw.lan")
	assert.Contains(t, text, "router")
	assert.Contains(t, text, "1.0 ms")
	assert.Contains(t, text, "1 online, 1 offline of 2 in 12 ms")

	filtered := onlineOnly(snap)
	require.Len(t, filtered.Items, 1)
	assert.Equal(t, "10.0.0.1", filtered.Items[0].IP)
	assert.Len(t, snap.Items, 2, "filtering does not modify the input")
}
