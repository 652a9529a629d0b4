// Package query resolves path expressions against untyped JSON documents.
//
// One implementation serves both the condition evaluator (--exists,
// --custom) and the CLI --query output filter, so a path means the same
// thing everywhere. Expressions use JMESPath syntax; a plain dotted path
// such as "properties.provisioningState" is the common case.
//
// Compiled paths are immutable and safe for concurrent use. Resolution is
// pure: it never performs I/O and never mutates the document.
package query
