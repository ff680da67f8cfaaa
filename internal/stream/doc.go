// Package stream implements the streaming playback pipeline: a Source delivers
// ordered audio chunks from a synthesis call, a BufferQueue holds chunks the
// Sink is not yet ready for, and a Session drives both from a single event
// loop so that chunks reach the Sink exactly once, in order, one at a time.
package stream
