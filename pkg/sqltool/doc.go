// Package sqltool implements the run_database_query tool.
//
// The model writes arbitrary PostgreSQL; the Executor runs it on a pooled
// connection and always returns a JSON document, never an error:
//
//   - a result set becomes an array of objects keyed by column name
//   - a statement without a result set becomes
//     {"status": "success", "message": "Query executed successfully."}
//   - a failure becomes {"status": "error", "error": "<message>"}
//
// Dates, timestamps, numerics, UUIDs and byte strings are rendered as text.
// With Options.ReadOnly the statement runs in a READ ONLY transaction.
package sqltool
