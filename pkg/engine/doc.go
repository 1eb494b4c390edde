// Package engine defines the model-serving collaborators of the worker
// and their HTTP adapters.
//
// The worker only sees three small interfaces: STT for transcription,
// MT for translation and Metrics for host resource samples. The HTTP
// adapters wrap each backend in its own circuit breaker, so a dead
// backend fails tasks fast instead of tying up pool slots until the
// client timeout.
package engine
