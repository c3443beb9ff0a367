// Package executor implements a breadth-first, batch-friendly GraphQL executor
// with explicit runtime hooks for synchronous resolution, depth-wise batching of
// asynchronous work, abstract-type resolution, and leaf serialization.
//
// # Overview
//
// The executor follows a level-by-level (BFS) execution model designed to:
//   - Expand synchronous fields immediately without adding batch depth.
//   - Collect asynchronous fields encountered at the current depth and resolve
//     them in a single call to Runtime.BatchResolveAsync.
//   - Complete values according to the GraphQL specification (lists, leafs,
//     objects, abstract types), including Non-Null null-propagation rules.
//   - Accumulate located errors while allowing partial success.
//
// In a stitched gateway the split is natural: fields read from an object a
// service already returned are synchronous, while root fields and extension
// fields that need a round trip to a service are asynchronous. The schema
// conveys this through schema.Field.Async.
//
// # Execution
//
// ExecuteRequest selects the operation (by name, or the only one), coerces
// variables against the operation's variable definitions and resolves the
// root type. A Request carrying the document, operation and coerced variables
// is shared with every FieldInfo handed to the Runtime.
//
// Each depth runs as follows:
//
//	A. Sync expansion
//	   - Sync fields are resolved through Runtime.ResolveSync and completed
//	     right away. Object results keep expanding at the same depth.
//	   - Async fields become AsyncResolveTasks queued for this depth.
//
//	B. Batch execution
//	   - Runtime.BatchResolveAsync is called exactly once with all live tasks
//	     and must return one result per task, in order.
//	   - Each result is completed; async fields found beneath it are queued for
//	     the next depth.
//
//	C. Non-Null propagation and pruning
//	   - A Non-Null violation sets the nearest nullable ancestor to null and
//	     tombstones its path. Queued tasks under a tombstone are dropped.
//
// For a document with asynchronous depth d, BatchResolveAsync is invoked
// exactly d times.
//
// # Fragments
//
// Inline fragments and fragment spreads apply when their type condition names
// the object type itself, or an interface or union the object type belongs to.
//
// # Errors
//
// Errors are located GraphQL errors (message + path). Resolver errors that
// implement ExtendedError keep their extensions in the response.
package executor
