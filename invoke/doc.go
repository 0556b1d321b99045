// Package invoke implements the multi-backend model invocation layer.
//
// It presents one uniform call contract (Invoke) over N provider backends,
// each of which may expose several call strategies (official SDK, raw HTTP),
// plus higher-order combinators with real concurrency semantics:
//
//   - InvokeAll: concurrent fan-out preserving submission order
//   - InvokeRacing: first success wins, losers are cancelled
//   - InvokeFallbackChain: strict ordered attempts, stop at first success
//
// Failures never surface as errors from these entry points; they are encoded
// as non-success Results carrying an ErrorKind (config, transport, provider,
// timeout). Providers are inferred from model identifiers via ordered keyword
// matching with a configurable default, and each provider declares exactly
// one preferred strategy for ordinary calls.
//
// Concrete backends live in the subpackages anthropic, openai and bedrock.
package invoke
