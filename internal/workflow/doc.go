// Package workflow implements the editorial lifecycle of courses and lessons.
//
// A workflow moves between draft, review, approved, published and archived
// along a fixed transition table. Every change is written together with an
// append-only history entry in one transaction, so a rejected move leaves
// both untouched. Views returned by the service carry the title and owner of
// the tracked content, resolved in one batch per query.
package workflow
