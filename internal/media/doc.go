// Package media performs the unit transformations behind the job queues:
// probing, ladder transcoding, thumbnail extraction and subtitle generation.
//
// External tools run through a Runner so tests can substitute ffmpeg and
// ffprobe. Every output lands under <media_dir>/<asset_id>/ so concurrent
// workers never share a path. Rendition and subtitle rows are written as work
// progresses; job bookkeeping belongs to the jobs package.
package media
