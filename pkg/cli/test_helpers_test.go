package cli

import (
	"bytes"
	"context"
	"testing"
)

// isolate points HOME at a temp dir and clears every variable the CLI reads.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{
		"REDSHIFT_DATABASE", "REDSHIFT_WORKGROUP", "REDSHIFT_SECRET_ARN", "AWS_REGION",
		"DATA_API_ENDPOINT", "DB_TABLE", "DB_ROLE", "TABLE_PATTERN",
		"POLL_MAX_ATTEMPTS", "POLL_INTERVAL", "POLL_MAX_INTERVAL", "POLL_MAX_WAIT",
		"TRANSPORT_RETRIES", "DATA_API_RPS", "DATA_API_BURST",
		"LOCAL_DB_PATH", "LOG_LEVEL", "ENV", "ORDERS_OUTPUT",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("POLL_INTERVAL", "1ms")
	t.Setenv("POLL_MAX_INTERVAL", "1ms")
}

// runCLI executes the CLI with args and returns stdout, stderr and the exit code.
func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}
