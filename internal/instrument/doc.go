// Package instrument defines how instruments declare their
// capabilities to the sequence engine.
//
// An instrument exposes a set of named operations. Each operation
// carries an OperationSpec — its input and output ParameterSpecs and a
// human-readable template string — and the function that performs it.
// The engine looks operations up by name rather than holding live
// method references, which keeps sequence specifications serialisable
// and lets operations be validated and tested in isolation.
//
// # Bind-time validation
//
// Every placeholder name in an operation's template string, and every
// declared argument name of its function, must exactly match an input
// ParameterSpec name. The mismatch is a configuration error detected
// when the operation is registered, before any instrument is touched.
//
// # Coercion
//
// A parameter's coercion type derives from its printf-style format
// specifier: e/E/f/g/G verbs coerce to float64, d/i/u to int, anything
// else to string. A value that cannot be coerced raises an
// InvalidInputError carrying the field name and offending value.
//
// # Thread Safety
//
// Registry is safe for concurrent use. Individual instruments must be
// driven from one goroutine at a time; the engine guarantees an
// instrument is never shared across concurrent branches.
package instrument
