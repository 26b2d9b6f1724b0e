package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/base-org/groth16-proof-service/groth16"
	"github.com/base-org/groth16-proof-service/internal/zktest"
	"github.com/base-org/groth16-proof-service/proving"
	"github.com/base-org/groth16-proof-service/proving/storage"
	"github.com/base-org/groth16-proof-service/witness"
	"github.com/base-org/groth16-proof-service/zkey"
)

type testEnv struct {
	client *rpc.Client
	dir    string
	vkJSON string
	wtns   hexutil.Bytes
}

func newTestEnv(t *testing.T) *testEnv {
	dir := t.TempDir()
	pk, err := zktest.Setup(zktest.Toy(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "toy.zkey"), zkey.Encode(pk), 0o600))
	vkJSON, err := json.Marshal(groth16.VerifyingKeyFromZkey(pk))
	require.NoError(t, err)

	keys := proving.NewKeyStore(storage.NewFileStorage(dir))
	service, err := proving.NewService(keys, proving.NewGoEngine(), proving.Config{}, nil)
	require.NoError(t, err)

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName(Namespace, NewGroth16(service)))
	client := rpc.DialInProc(server)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return &testEnv{
		client: client,
		dir:    dir,
		vkJSON: string(vkJSON),
		wtns:   witness.Encode(witness.FromUint64(1, 2, 3)),
	}
}

func requireRPCError(t *testing.T, err error, code int, kind, op string) {
	t.Helper()
	var rpcErr rpc.Error
	require.True(t, errors.As(err, &rpcErr), "unexpected error %v", err)
	require.Equal(t, code, rpcErr.ErrorCode())

	var dataErr rpc.DataError
	require.True(t, errors.As(err, &dataErr))
	raw, err := json.Marshal(dataErr.ErrorData())
	require.NoError(t, err)
	var data ErrorData
	require.NoError(t, json.Unmarshal(raw, &data))
	require.Equal(t, kind, data.Kind)
	require.Equal(t, op, data.Op)
}

func TestProveAndVerify(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t)

	var state proving.State
	require.NoError(env.client.CallContext(ctx, &state, "groth16_status", "toy"))
	require.Equal(proving.StateIdle, state)

	require.NoError(env.client.CallContext(ctx, &state, "groth16_loadKey", "toy", "toy.zkey"))
	require.Equal(proving.StateReady, state)

	var resp proving.ProveResponse
	require.NoError(env.client.CallContext(ctx, &resp, "groth16_prove", "toy", env.wtns))
	require.JSONEq(`["2"]`, resp.PublicSignals)

	var ok bool
	require.NoError(env.client.CallContext(ctx, &ok, "groth16_verify", env.vkJSON, resp.Proof, resp.PublicSignals))
	require.True(ok)
	require.NoError(env.client.CallContext(ctx, &ok, "groth16_verifyCircuit", "toy", resp.Proof, resp.PublicSignals))
	require.True(ok)
	require.NoError(env.client.CallContext(ctx, &ok, "groth16_verifyCircuit", "toy", resp.Proof, `["3"]`))
	require.False(ok)

	var vk json.RawMessage
	require.NoError(env.client.CallContext(ctx, &vk, "groth16_verificationKey", "toy"))
	require.JSONEq(env.vkJSON, string(vk))
}

func TestProveWithKeyPath(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t)
	path := "toy.zkey"

	var size int
	require.NoError(env.client.CallContext(ctx, &size, "groth16_publicBufferSize", path))
	require.Equal(86, size)

	var resp proving.ProveResponse
	require.NoError(env.client.CallContext(ctx, &resp, "groth16_proveWithKeyPath", path, env.wtns))
	require.NoError(env.client.CallContext(ctx, &resp, "groth16_proveWithKeyPath", path, env.wtns, proving.BufferLimits{PublicSize: size}))

	err := env.client.CallContext(ctx, &resp, "groth16_proveWithKeyPath", path, env.wtns, proving.BufferLimits{ProofSize: 10})
	requireRPCError(t, err, CodeValidation, "ValidationError", "groth16Prove")
}

func TestErrorPayloads(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var resp proving.ProveResponse
	err := env.client.CallContext(ctx, &resp, "groth16_prove", "unknown", env.wtns)
	requireRPCError(t, err, CodeConfiguration, "ConfigurationError", "prove")

	err = env.client.CallContext(ctx, &resp, "groth16_proveWithKeyPath", "toy.zkey", hexutil.Bytes{1, 2, 3})
	requireRPCError(t, err, CodeDecoding, "DecodingError", "groth16Prove")

	var ok bool
	err = env.client.CallContext(ctx, &ok, "groth16_verify", env.vkJSON, `{}`, `["2"]`)
	requireRPCError(t, err, CodeDecoding, "DecodingError", "groth16Verify")

	var size int
	err = env.client.CallContext(ctx, &size, "groth16_publicBufferSize", "missing.zkey")
	requireRPCError(t, err, CodeConfiguration, "ConfigurationError", "groth16PublicBufferSize")
}

func TestKeyPathsStayInKeyDirectory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	outside := filepath.Join(filepath.Dir(env.dir), "outside.zkey")
	require.NoError(t, os.WriteFile(outside, []byte("outside"), 0o600))
	t.Cleanup(func() { _ = os.Remove(outside) })

	for _, path := range []string{"../outside.zkey", outside, "/etc/hostname", "/etc/does-not-exist"} {
		var resp proving.ProveResponse
		err := env.client.CallContext(ctx, &resp, "groth16_proveWithKeyPath", path, env.wtns)
		requireRPCError(t, err, CodeConfiguration, "ConfigurationError", "groth16Prove")

		var size int
		err = env.client.CallContext(ctx, &size, "groth16_publicBufferSize", path)
		requireRPCError(t, err, CodeConfiguration, "ConfigurationError", "groth16PublicBufferSize")

		var state proving.State
		err = env.client.CallContext(ctx, &state, "groth16_loadKey", "outside", path)
		requireRPCError(t, err, CodeConfiguration, "ConfigurationError", "load")
	}
}
