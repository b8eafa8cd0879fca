// Package notifier delivers use case notifications asynchronously.
//
// Dispatch enqueues a notification and returns a channel that yields the
// delivery outcome exactly once. Workers drain the queue through a rate
// limiter, retry failed sends with jittered backoff and suppress duplicates
// inside a dedup window. The dedup window optionally survives restarts
// through the storage package.
//
// # Channels
//
// A Sender performs the actual delivery: Telegram (telebot) when a bot token
// is configured, otherwise a structured log line.
package notifier
