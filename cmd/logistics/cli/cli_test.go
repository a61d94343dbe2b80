package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/logistics/internal/auth"
	"github.com/odyssey-erp/logistics/internal/parcel"
	"github.com/odyssey-erp/logistics/internal/shared"
	"github.com/odyssey-erp/logistics/jobs"
)

type stubIssuer struct {
	perms []string
	err   error
}

func (s *stubIssuer) Issue(_ context.Context, name string, permissions []string, ttl time.Duration) (string, *auth.Token, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	s.perms = permissions
	token := &auth.Token{Name: name, Prefix: "abcd1234", Permissions: permissions}
	if ttl > 0 {
		exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(ttl)
		token.ExpiresAt = &exp
	}
	return "lgx_abcd1234_secret", token, nil
}

func TestIssueTokenCommandJSON(t *testing.T) {
	issuer := &stubIssuer{}
	var stdout, stderr bytes.Buffer
	code := IssueTokenCommand(context.Background(), issuer, TokenIssueOptions{
		Name:        "scanner-01",
		Permissions: "parcel.deliver, item.view",
		TTL:         24 * time.Hour,
		JSONOutput:  true,
		Stdout:      &stdout,
		Stderr:      &stderr,
	})
	require.Equal(t, 0, code, stderr.String())

	var summary TokenIssueSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.Equal(t, "lgx_abcd1234_secret", summary.Token)
	assert.Equal(t, []string{shared.PermParcelDeliver, shared.PermItemView}, summary.Permissions)
	require.NotNil(t, summary.ExpiresAt)
}

func TestIssueTokenCommandExpandsAll(t *testing.T) {
	issuer := &stubIssuer{}
	var stdout bytes.Buffer
	code := IssueTokenCommand(context.Background(), issuer, TokenIssueOptions{Name: "ops", Permissions: "all", Stdout: &stdout})
	require.Equal(t, 0, code)
	assert.Equal(t, shared.LogisticsScopes(), issuer.perms)
	assert.Contains(t, stdout.String(), "token for ops: lgx_abcd1234_secret")
}

func TestIssueTokenCommandRejectsUnknownPermission(t *testing.T) {
	var stderr bytes.Buffer
	code := IssueTokenCommand(context.Background(), &stubIssuer{}, TokenIssueOptions{Name: "x", Permissions: "ledger.post", Stderr: &stderr})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), `unknown permission "ledger.post"`)

	stderr.Reset()
	code = IssueTokenCommand(context.Background(), &stubIssuer{err: errors.New("auth: token name required")}, TokenIssueOptions{Permissions: "*", Stderr: &stderr})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "token name required")
}

func TestBuildTask(t *testing.T) {
	now := time.Date(2026, 5, 4, 2, 15, 0, 0, time.UTC)

	task, err := BuildTask(jobs.TaskSequenceSweep, "", now)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskSequenceSweep, task.Type())

	task, err = BuildTask(jobs.TaskParcelDeleted, "DN-00042", now)
	require.NoError(t, err)
	var evt parcel.Deleted
	require.NoError(t, json.Unmarshal(task.Payload(), &evt))
	assert.Equal(t, "DN-00042", evt.DeliveryNote)

	_, err = BuildTask(jobs.TaskParcelDeleted, "", now)
	assert.Error(t, err)
	_, err = BuildTask("finance:close", "", now)
	assert.Error(t, err)
}
