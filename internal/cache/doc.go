// Package cache keeps completed synthesis streams on disk so a repeated
// request replays locally instead of calling the backend again.
package cache
