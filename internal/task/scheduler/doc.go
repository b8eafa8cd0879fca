// Package scheduler owns the job registry: recurring cron triggers and
// one-shot timers. Firing only hands the callback to the task engine; the
// engine runs it.
//
// Registry mutations and one-shot firing happen under one lock, so a
// cancelled one-shot job never fires and none fires twice.
package scheduler
