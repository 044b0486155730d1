// Package ingest accepts uploaded lesson videos and exposes their processing
// state.
//
// SubmitUpload records the asset, fans out the four processing jobs and makes
// sure the lesson has an editorial workflow. It returns as soon as the jobs
// are persisted.
package ingest
