// Package audit records who did what to which studio object, and serves
// that log back to admins and project managers.
//
// # Writing
//
// Business operations hand an Event to the Pipeline:
//
//	pipeline.LogBestEffort(ctx, &audit.Event{
//		Action:     audit.ActionDelete,
//		EntityType: audit.EntityTask,
//		EntityID:   task.ID,
//		EntityName: task.Title,
//	})
//
// The pipeline validates and bounds the event (Sanitize), requires an
// authenticated session in ctx, resolves the caller's email from their
// profile, and inserts one immutable Record. After a successful insert the
// record is handed to a Syncer, which mirrors it to a spreadsheet in the
// background. Mirror failures never reach the caller.
//
// # Reading
//
// Reader.Query is restricted to roles for which Role.CanReadAuditLog is
// true. Results are ordered newest first and capped at 1000 rows (100 when
// no limit is given). There is no offset.
//
// Records are never updated or deleted by this package.
package audit
