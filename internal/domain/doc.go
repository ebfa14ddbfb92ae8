// Package domain contains the core entities of the task lifecycle
// engine: task records and their status lifecycle, the closed task type
// set, payload parsing, and the recurrence windows the scheduler
// creates tasks against.
package domain
