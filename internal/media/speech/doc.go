// Package speech defines the speech-to-text contract used for subtitle
// generation and its implementations: WhisperX invoked through uvx, and a
// static provider for offline installs and tests.
//
// Providers receive a mono 16 kHz PCM file and return ordered segments with
// per-segment confidence. Callers own the audio file and scratch directory.
package speech
