// Package aggregate turns fetched pages and versions into report rows.
//
// The steps, in pipeline order:
//
//   - Classify joins versions to pages, derives each page's group key from
//     its tags and fills group buckets, routing pages whose latest capture
//     failed into the reserved errors bucket.
//   - MergeChain collapses a page's version chain into one Annotation,
//     leaving out error captures inside an otherwise healthy window.
//   - Sort orders rows deterministically, clustering rows with the same
//     text diff.
//
// Nothing in this package performs I/O.
package aggregate
