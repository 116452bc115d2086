package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotaclub/settlement/internal/settlement"
	"github.com/quotaclub/settlement/internal/testutil"
	"github.com/quotaclub/settlement/pkg/config"
)

type envelope struct {
	Success bool `json:"success"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func runAdmin(t *testing.T, args ...string) (envelope, *app, error) {
	t.Helper()
	client, _ := testutil.OpenClient(t)
	a := &app{boot: func(context.Context) (*settlement.Service, func(), error) {
		svc, err := settlement.Build(client, settlement.Options{
			Ledger:  config.DefaultLedgerConfig(),
			Gateway: config.GatewayConfig{},
		})
		return svc, func() {}, err
	}}
	t.Cleanup(a.close)

	out := &bytes.Buffer{}
	root := newRootCmd(a)
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())

	var env envelope
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &env), out.String())
	}
	return env, a, err
}

func TestReserveCommandPrintsEnvelope(t *testing.T) {
	env, a, err := runAdmin(t, "reserve")
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.NotNil(t, a.cleanup)
}

func TestApproveUnknownTransactionFails(t *testing.T) {
	env, _, err := runAdmin(t, "approve-tx", uuid.NewString(), "--action", "approve")
	require.ErrorIs(t, err, errOperationFailed)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ALREADY_PROCESSED", env.Error.Code)
}

func TestInvalidInputNeverOpensTheLedger(t *testing.T) {
	_, a, err := runAdmin(t, "sweep", "everything")
	require.Error(t, err)
	assert.Nil(t, a.svc)

	_, _, err = runAdmin(t, "approve-loan", "not-a-uuid")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errOperationFailed)
}
