// Package reminder finds due reminders, delivers them and reschedules them.
//
// # Overview
//
// A Scanner wakes up on a cron or interval schedule, asks the store for every
// open task whose due time has passed and hands the batch to a Dispatcher.
// The Dispatcher sends each reminder through a Transport on a bounded pool and
// acts on the three-way Outcome:
//
//   - Delivered: the due time is cleared if it still equals the dispatched one.
//   - PermanentlyFailed: same clear, so a blocked chat is not retried forever.
//   - Retry: the attempt counter grows and the next scan tries again. After
//     MaxAttempts the reminder is dead-lettered.
//
// Clearing the due time is the only thing that stops repeat delivery, so the
// clear is a compare-and-clear in the store.
//
// # Snooze
//
// Fixed-minute snoozes count from the moment the button is pressed. "Tomorrow"
// counts from the previous due time plus one day so the time of day is kept.
//
// All due-time writes for one task go through Locks.
package reminder
