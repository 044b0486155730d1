// Package content models courses and lessons as a closed tagged union and
// resolves ids against the content tables.
//
// Catalog.Resolve loads many ids in one query; workflow views use it to
// annotate results with titles and owners without a lookup per row.
package content
