// Package domain defines the core business types for the MailMule
// mailing-list backend.
//
// Types in this package are pure value objects with no behavior beyond
// validation, no database dependencies, and no HTTP concerns. They are the
// shared language between handlers, services, and the store.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - Validation functions are allowed (they're pure functions on the type)
//   - Constants, enums, and the error taxonomy belong here
package domain
