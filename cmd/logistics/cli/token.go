package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/odyssey-erp/logistics/internal/auth"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// TokenIssuer creates API tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, name string, permissions []string, ttl time.Duration) (string, *auth.Token, error)
}

// TokenIssueOptions defines the flags of the token issue command.
type TokenIssueOptions struct {
	Name        string
	Permissions string
	TTL         time.Duration
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// TokenIssueSummary is the JSON output of token issue.
type TokenIssueSummary struct {
	Name        string     `json:"name"`
	Token       string     `json:"token"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// IssueTokenCommand creates a token and prints its raw value once.
func IssueTokenCommand(ctx context.Context, issuer TokenIssuer, opts TokenIssueOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	perms, err := parsePermissions(opts.Permissions)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "token issue: %v\n", err)
		return 1
	}
	raw, token, err := issuer.Issue(ctx, opts.Name, perms, opts.TTL)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "token issue: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		summary := TokenIssueSummary{Name: token.Name, Token: raw, Permissions: token.Permissions, ExpiresAt: token.ExpiresAt}
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "token issue: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "token for %s: %s\n", token.Name, raw)
	_, _ = fmt.Fprintf(opts.Stdout, "permissions: %s\n", strings.Join(token.Permissions, ", "))
	if token.ExpiresAt != nil {
		_, _ = fmt.Fprintf(opts.Stdout, "expires: %s\n", token.ExpiresAt.Format(time.RFC3339))
	}
	return 0
}

// parsePermissions splits a comma separated list. "all" expands to every
// logistics scope and "*" is kept as the wildcard grant.
func parsePermissions(raw string) ([]string, error) {
	known := make(map[string]bool)
	for _, p := range shared.LogisticsScopes() {
		known[p] = true
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		p := strings.TrimSpace(part)
		switch {
		case p == "":
			continue
		case p == "all":
			out = append(out, shared.LogisticsScopes()...)
		case p == "*" || known[p]:
			out = append(out, p)
		default:
			return nil, fmt.Errorf("unknown permission %q", p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one permission required")
	}
	return out, nil
}
