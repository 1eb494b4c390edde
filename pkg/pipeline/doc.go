// Package pipeline turns one claimed task into packed results.
//
// For each audio file the runner transcribes, validates the transcript
// against the reference text by word error rate, and translates the
// winning text into every target language:
//
//	audio ──► STT ──► WER gate ──► MT (per target) ──► packed
//	                    │
//	          reference text (text_data)
//
// A transcript whose error rate exceeds the threshold is assumed
// garbled and the reference is translated instead; the raw transcript
// is still packed for inspection. Cancellation is polled through a
// probe before every engine call, since a single call may block for
// minutes and cannot be interrupted midway.
package pipeline
