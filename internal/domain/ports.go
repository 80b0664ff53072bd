package domain

import (
	"context"
	"regexp"
	"strings"
)

// StatementClient is the I/O boundary to the asynchronous SQL engine. A client
// is bound to one Target and lives for a single invocation.
type StatementClient interface {
	// Submit starts executing sql and returns the engine's statement id.
	Submit(ctx context.Context, sql string, params ...Param) (string, error)
	// Describe returns the current status snapshot of a statement.
	Describe(ctx context.Context, id string) (*StatementDescription, error)
	// FetchResult returns all rows of a finished statement.
	FetchResult(ctx context.Context, id string) (*ResultSet, error)
	// ListTables returns tables matching a LIKE pattern. It is synchronous.
	ListTables(ctx context.Context, pattern string, maxResults int32) ([]TableDescriptor, error)
	// Close releases the session.
	Close() error
}

// Target identifies where statements run.
type Target struct {
	Database  string
	Workgroup string
	SecretARN string // optional; IAM auth is used when empty
}

var (
	nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$-]{0,126}$`)
	arnRe  = regexp.MustCompile(`^arn:aws[a-z-]*:secretsmanager:[a-z0-9-]+:\d{12}:secret:.+$`)
)

// Validate checks the target before any remote call.
func (t Target) Validate() error {
	if strings.TrimSpace(t.Database) == "" {
		return ErrConfiguration("database", "is required")
	}
	if !nameRe.MatchString(t.Database) {
		return ErrConfiguration("database", "invalid name %q", t.Database)
	}
	if strings.TrimSpace(t.Workgroup) == "" {
		return ErrConfiguration("workgroup", "is required")
	}
	if !nameRe.MatchString(t.Workgroup) {
		return ErrConfiguration("workgroup", "invalid name %q", t.Workgroup)
	}
	if t.SecretARN != "" && !arnRe.MatchString(t.SecretARN) {
		return ErrConfiguration("secret_arn", "not a Secrets Manager ARN")
	}
	return nil
}
