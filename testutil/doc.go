/*
Package testutil provides testing utilities for the market telemetry service.

This package contains test data generators shared by tests across the protocol
and services layers. It covers the fixtures those tests need most often, from
market configurations to actor key pairs and encrypted metric contributions,
so test writers can focus on test logic rather than setup plumbing.

# Key Components

## Configuration Generators

Functions for creating customizable market configurations:

	// Create a default test config owned by the given actor
	config := testutil.NewTestMarketConfig(owner)

	// Create a custom config with specific options
	customConfig := testutil.NewTestMarketConfig(
	    owner,
	    testutil.WithInstanceID("my-test-market"),
	    testutil.WithCooldown(time.Second),
	    testutil.WithCallbackURL(server.URL+"/oracle/callback"),
	)

## Cryptographic Generators

Utilities for generating keys and actors:

	// Generate a signing key pair
	pubKey, privKey, _ := testutil.GenerateTestKeyPair()

	// Generate an actor together with its signing key
	provider, providerKey, _ := testutil.GenerateTestActor()

	// Stand up an in-process coprocessor with a fresh oracle identity
	coproc, _ := testutil.NewTestCoprocessor()

## Contribution Generators

Functions for producing encrypted metric deltas:

	// Encrypt a full set of metric values into submittable handles
	handles, _ := testutil.EncryptDeltas(ctx, coproc, protocol.MetricValues{
	    TotalVolume: 100,
	    TradeCount:  3,
	})

# Usage Example

A typical market test wires these together:

	func TestContribution(t *testing.T) {
	    coproc, err := testutil.NewTestCoprocessor()
	    require.NoError(t, err)

	    owner, ownerKey, err := testutil.GenerateTestActor()
	    require.NoError(t, err)

	    market, err := protocol.NewMarket(testutil.NewTestMarketConfig(owner), coproc, nil)
	    require.NoError(t, err)

	    handles, err := testutil.EncryptDeltas(context.Background(), coproc,
	        protocol.MetricValues{TotalVolume: 42})
	    require.NoError(t, err)
	    _ = ownerKey
	    // submit handles via market.SubmitContribution ...
	}

# Best Practices

1. Use the option pattern to customize configs instead of mutating fields after construction
2. Generate a fresh coprocessor per test so oracle identities never leak between tests
3. Reuse EncryptDeltas rather than encrypting metrics one handle at a time

This package is intended for testing purposes only and should not be used in
production code.
*/
package testutil
