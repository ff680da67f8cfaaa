// Package audio provides the sinks that turn a stream of audio chunks into
// sound or files. Speaker playback uses a single process-wide oto/v3 context;
// MockOutput stands in for the device in tests and headless environments.
package audio
