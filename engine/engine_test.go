//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package engine

import (
	"context"
	"errors"
	"math/big"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hiplab/gcservice/circuit"
	"github.com/hiplab/gcservice/env"
	"github.com/hiplab/gcservice/p2p"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fake is a test engine that counts its calls.
type fake struct {
	arity    int
	offline  error
	online   func(input *big.Int) ([]*big.Int, error)
	calls    atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (f *fake) Arity() int {
	return f.arity
}

func (f *fake) Offline(ctx context.Context) error {
	f.calls.Add(1)
	return f.offline
}

func (f *fake) Online(ctx context.Context, input *big.Int) (
	[]*big.Int, error) {

	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)
	time.Sleep(time.Millisecond)

	if f.online != nil {
		return f.online(input)
	}
	return []*big.Int{new(big.Int).Set(input)}, nil
}

func listen(t *testing.T) (net.Listener, error) {
	t.Helper()
	return net.Listen("tcp", "127.0.0.1:0")
}

func testConfig(role env.Role, bits int) *env.Config {
	config := env.Defaults(role)
	config.NBits = bits
	return config
}

func TestEvaluateBeforePrepare(t *testing.T) {
	ev, err := NewEvaluator(testConfig(env.Server, 8), &fake{arity: 1})
	require.NoError(t, err)

	_, err = ev.Evaluate(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotPrepared)
	assert.False(t, ev.Prepared())
}

func TestPrepareOnce(t *testing.T) {
	f := &fake{arity: 1}
	ev, err := NewEvaluator(testConfig(env.Server, 8), f)
	require.NoError(t, err)

	require.NoError(t, ev.Prepare(context.Background()))
	require.NoError(t, ev.Prepare(context.Background()))
	assert.Equal(t, int32(1), f.calls.Load())
	assert.True(t, ev.Prepared())

	result, err := ev.Evaluate(context.Background(), big.NewInt(42))
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, int64(42), result[0].Int64())
}

func TestPrepareFailure(t *testing.T) {
	f := &fake{
		arity:   1,
		offline: errors.New("no material"),
	}
	ev, err := NewEvaluator(testConfig(env.Server, 8), f)
	require.NoError(t, err)

	assert.Error(t, ev.Prepare(context.Background()))
	assert.Error(t, ev.Prepare(context.Background()))

	_, err = ev.Evaluate(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotPrepared)
}

func TestEvaluateFailure(t *testing.T) {
	failure := errors.New("engine down")
	f := &fake{
		arity: 1,
		online: func(input *big.Int) ([]*big.Int, error) {
			if input.Sign() < 0 {
				return nil, failure
			}
			if input.Int64() == 7 {
				return []*big.Int{input, input}, nil
			}
			return []*big.Int{input}, nil
		},
	}
	ev, err := NewEvaluator(testConfig(env.Server, 8), f)
	require.NoError(t, err)
	require.NoError(t, ev.Prepare(context.Background()))

	var evalErr *EvalError

	_, err = ev.Evaluate(context.Background(), big.NewInt(-1))
	require.ErrorAs(t, err, &evalErr)
	assert.ErrorIs(t, err, failure)

	_, err = ev.Evaluate(context.Background(), big.NewInt(7))
	require.ErrorAs(t, err, &evalErr)

	// The evaluator stays usable after failures.
	result, err := ev.Evaluate(context.Background(), big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), result[0].Int64())
}

func TestEvaluateSerialized(t *testing.T) {
	f := &fake{arity: 1}
	ev, err := NewEvaluator(testConfig(env.Server, 8), f)
	require.NoError(t, err)
	require.NoError(t, ev.Prepare(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ev.Evaluate(context.Background(), big.NewInt(int64(i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.False(t, f.overlap.Load(), "concurrent online evaluations")
}

func TestInvalidArity(t *testing.T) {
	_, err := NewEvaluator(testConfig(env.Server, 8), &fake{arity: 0})
	assert.Error(t, err)
}

const twoOutputs = `8 24
1 8
2 8 8

1 1 0 16 INV
1 1 1 17 INV
1 1 2 18 INV
1 1 3 19 INV
1 1 4 20 INV
1 1 5 21 INV
1 1 6 22 INV
1 1 7 23 INV
`

func TestCircuitEngine(t *testing.T) {
	// Output 0 is left unassigned and always zero; output 1 is NOT x.
	circ, err := circuit.ParseBristol(strings.NewReader(twoOutputs))
	require.NoError(t, err)

	config := testConfig(env.Server, 8)
	config.Iterations = 3

	e, err := NewCircuit(config, circ, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Arity())

	_, err = e.Online(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotPrepared)

	ev, err := NewEvaluator(config, e)
	require.NoError(t, err)
	require.NoError(t, ev.Prepare(context.Background()))

	result, err := ev.Evaluate(context.Background(), big.NewInt(5))
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, int64(0), result[0].Int64())
	assert.Equal(t, int64(250), result[1].Int64())
}

func TestCircuitEngineWidth(t *testing.T) {
	_, err := NewCircuit(testConfig(env.Server, 8), circuit.Identity(16), nil)
	assert.Error(t, err)
}

func TestSharesEngine(t *testing.T) {
	config := testConfig(env.Client, 16)
	inner, err := NewCircuit(config, circuit.Identity(16), nil)
	require.NoError(t, err)

	s, err := NewShares(config, inner)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Arity())

	_, err = s.Online(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotPrepared)

	require.NoError(t, s.Offline(context.Background()))

	modulus := config.Modulus()
	for _, v := range []int64{0, 1, 5, 65535, -3} {
		shares, err := s.Online(context.Background(), big.NewInt(v))
		require.NoError(t, err)
		require.Len(t, shares, 2)

		for _, share := range shares {
			assert.True(t, share.Sign() >= 0 && share.Cmp(modulus) < 0,
				"share %v out of field", share)
		}
		expected := new(big.Int).Mod(big.NewInt(v), modulus)
		assert.Equal(t, 0, Combine(shares[0], shares[1], 16).Cmp(expected),
			"shares of %d", v)
	}

	_, err = NewShares(config, &fake{arity: 2})
	assert.Error(t, err)
}

func TestHandshake(t *testing.T) {
	tests := []struct {
		server Params
		client Params
		ok     bool
	}{
		{
			server: Params{Role: env.Server, NBits: 128, Iterations: 1},
			client: Params{Role: env.Client, NBits: 128, Iterations: 1},
			ok:     true,
		},
		{
			server: Params{Role: env.Server, NBits: 128, Iterations: 1},
			client: Params{Role: env.Client, NBits: 64, Iterations: 1},
		},
		{
			server: Params{Role: env.Server, NBits: 64, Iterations: 2},
			client: Params{Role: env.Client, NBits: 64, Iterations: 1},
		},
		{
			server: Params{Role: env.Server, NBits: 64, Iterations: 1},
			client: Params{Role: env.Server, NBits: 64, Iterations: 1},
		},
		{
			server: Params{Role: env.Server, NBits: 64, Iterations: 1,
				Inputs: circuit.IO{64, 8}, Outputs: circuit.IO{64}},
			client: Params{Role: env.Client, NBits: 64, Iterations: 1,
				Inputs: circuit.IO{64, 8}, Outputs: circuit.IO{64}},
			ok: true,
		},
		{
			server: Params{Role: env.Server, NBits: 64, Iterations: 1,
				Inputs: circuit.IO{64}, Outputs: circuit.IO{64}},
			client: Params{Role: env.Client, NBits: 64, Iterations: 1,
				Inputs: circuit.IO{8}, Outputs: circuit.IO{64}},
		},
		{
			server: Params{Role: env.Server, NBits: 64, Iterations: 1,
				Inputs: circuit.IO{64}, Outputs: circuit.IO{64}},
			client: Params{Role: env.Client, NBits: 64, Iterations: 1,
				Inputs: circuit.IO{64, 64}, Outputs: circuit.IO{64}},
		},
		{
			server: Params{Role: env.Server, NBits: 64, Iterations: 1,
				Inputs: circuit.IO{64}, Outputs: circuit.IO{64}},
			client: Params{Role: env.Client, NBits: 64, Iterations: 1,
				Inputs: circuit.IO{64}, Outputs: circuit.IO{32, 32}},
		},
	}
	for idx, test := range tests {
		c0, c1 := p2p.Pipe()
		done := make(chan error)
		go func() {
			done <- Handshake(c1, test.client)
		}()
		err := Handshake(c0, test.server)
		clientErr := <-done

		if test.ok {
			assert.NoError(t, err, "test %d", idx)
			assert.NoError(t, clientErr, "test %d", idx)
		} else {
			assert.ErrorIs(t, err, ErrParamMismatch, "test %d", idx)
			assert.ErrorIs(t, clientErr, ErrParamMismatch, "test %d", idx)
		}
		c0.Close()
		c1.Close()
	}
}

func TestCircuitEnginePeers(t *testing.T) {
	serverConfig := testConfig(env.Server, 32)
	clientConfig := testConfig(env.Client, 32)

	ln, err := listen(t)
	require.NoError(t, err)

	server, err := NewCircuit(serverConfig, circuit.Identity(32),
		AcceptPeer(ln))
	require.NoError(t, err)
	client, err := NewCircuit(clientConfig, circuit.Identity(32),
		DialPeer(ln.Addr().String()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error)
	go func() {
		done <- client.Offline(ctx)
	}()
	require.NoError(t, server.Offline(ctx))
	require.NoError(t, <-done)
}

func TestCircuitEnginePeersMismatch(t *testing.T) {
	serverConfig := testConfig(env.Server, 32)
	clientConfig := testConfig(env.Client, 32)

	ln, err := listen(t)
	require.NoError(t, err)

	server, err := NewCircuit(serverConfig, circuit.Identity(32),
		AcceptPeer(ln))
	require.NoError(t, err)
	client, err := NewCircuit(clientConfig, circuit.Identity(8),
		DialPeer(ln.Addr().String()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error)
	go func() {
		done <- client.Offline(ctx)
	}()
	assert.ErrorIs(t, server.Offline(ctx), ErrParamMismatch)
	assert.ErrorIs(t, <-done, ErrParamMismatch)
}

func TestAcceptPeerCancel(t *testing.T) {
	ln, err := listen(t)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = AcceptPeer(ln)(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
