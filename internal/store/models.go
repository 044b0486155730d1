package store

import (
	"encoding/json"
	"strings"
	"time"
)

// JobType names a job kind. Each type is served by its own queue.
type JobType string

const (
	JobTranscode JobType = "transcode"
	JobSubtitle  JobType = "subtitle"
	JobMetadata  JobType = "metadata"
	JobThumbnail JobType = "thumbnail"
)

// JobTypes lists every queue in display order.
var JobTypes = []JobType{JobMetadata, JobThumbnail, JobTranscode, JobSubtitle}

// ParseJobType converts a string into a JobType when recognised.
func ParseJobType(value string) (JobType, bool) {
	normalized := JobType(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case JobTranscode, JobSubtitle, JobMetadata, JobThumbnail:
		return normalized, true
	default:
		return "", false
	}
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// ParseJobStatus converts a string into a JobStatus when recognised.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case JobPending, JobProcessing, JobCompleted, JobFailed:
		return normalized, true
	default:
		return "", false
	}
}

// Job is one unit of asynchronous work.
type Job struct {
	ID        string
	Type      JobType
	ContentID string
	AssetID   string
	Priority  int
	Status    JobStatus
	Progress  int
	// Parameters and Result hold the typed payloads in their encoded form.
	// Parameters are stored and returned byte-for-byte.
	Parameters json.RawMessage
	Result     json.RawMessage
	// ErrorMessage is the last failure, kept until the job is retried.
	ErrorMessage string
	// RetryCount counts every re-entry to pending, automatic or manual.
	RetryCount int
	// Attempts counts executions since submission or the last manual retry.
	// It also fences late writes from a reclaimed execution.
	Attempts      int
	AvailableAt   time.Time
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// IsTerminal reports whether the job reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// QueueCounts aggregates job counts for one queue.
type QueueCounts struct {
	Waiting   int `json:"waiting"`
	Delayed   int `json:"delayed"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// ArtifactStatus tracks renditions and subtitle sets.
type ArtifactStatus string

const (
	ArtifactPending    ArtifactStatus = "pending"
	ArtifactProcessing ArtifactStatus = "processing"
	ArtifactCompleted  ArtifactStatus = "completed"
	ArtifactFailed     ArtifactStatus = "failed"
)

// Upload and processing states of a media asset.
const (
	UploadUploaded = "uploaded"

	ProcessingQueued    = "queued"
	ProcessingActive    = "processing"
	ProcessingCompleted = "completed"
	ProcessingPartial   = "partial"
	ProcessingFailed    = "failed"
)

// Asset is an uploaded media file and its probed properties.
type Asset struct {
	ID               string
	ContentID        string
	OriginalPath     string
	OriginalFilename string
	SizeBytes        int64
	DurationSeconds  float64
	BitRate          int64
	Width            int
	Height           int
	Resolution       string
	Format           string
	VideoCodec       string
	AudioCodec       string
	FrameRate        float64
	AudioChannels    int
	ThumbnailPath    string
	UploadStatus     string
	ProcessingStatus string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AssetMetadata is the probed subset of Asset written by the metadata job.
type AssetMetadata struct {
	SizeBytes       int64   `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	BitRate         int64   `json:"bit_rate"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Resolution      string  `json:"resolution"`
	Format          string  `json:"format"`
	VideoCodec      string  `json:"video_codec"`
	AudioCodec      string  `json:"audio_codec"`
	FrameRate       float64 `json:"frame_rate"`
	AudioChannels   int     `json:"audio_channels"`
}

// Rendition is one rung of the transcode ladder.
type Rendition struct {
	ID            string
	AssetID       string
	Resolution    string
	Height        int
	QualityTier   string
	BitrateKbps   int
	FilePath      string
	Status        ArtifactStatus
	Progress      int
	FileSizeBytes int64
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// SubtitleSet is a generated subtitle track for one language.
type SubtitleSet struct {
	ID              string
	AssetID         string
	Language        string
	Format          string
	FilePath        string
	ConfidenceScore float64
	WordCount       int
	Status          ArtifactStatus
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Segment is one timed cue of a subtitle set.
type Segment struct {
	Order      int     `json:"order"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// ContentKind discriminates the content tagged union.
type ContentKind string

const (
	KindCourse ContentKind = "course"
	KindLesson ContentKind = "lesson"
)

// ParseContentKind converts a string into a ContentKind when recognised.
func ParseContentKind(value string) (ContentKind, bool) {
	normalized := ContentKind(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case KindCourse, KindLesson:
		return normalized, true
	default:
		return "", false
	}
}

// ContentItem is the persisted row behind courses and lessons.
type ContentItem struct {
	ID        string
	Kind      ContentKind
	Title     string
	OwnerID   string
	CourseID  string
	Tags      []string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WorkflowStatus is an editorial lifecycle state.
type WorkflowStatus string

const (
	WorkflowDraft     WorkflowStatus = "draft"
	WorkflowReview    WorkflowStatus = "review"
	WorkflowApproved  WorkflowStatus = "approved"
	WorkflowPublished WorkflowStatus = "published"
	WorkflowArchived  WorkflowStatus = "archived"
)

// Workflow is the editorial record for one content item.
type Workflow struct {
	ID             string
	ContentID      string
	ContentType    ContentKind
	Status         WorkflowStatus
	ReviewerID     string
	ReviewDeadline *time.Time
	ReviewNotes    string
	PublishedAt    *time.Time
	ArchivedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HistoryEntry is one append-only workflow audit row. FromStatus is empty for
// the creation entry.
type HistoryEntry struct {
	ID         string
	WorkflowID string
	FromStatus WorkflowStatus
	ToStatus   WorkflowStatus
	ActorID    string
	Notes      string
	CreatedAt  time.Time
}

// WorkflowSearch filters workflows joined with their content rows.
type WorkflowSearch struct {
	Status      WorkflowStatus
	ContentType ContentKind
	Tags        []string
	Metadata    map[string]string
	TitleQuery  string
	Limit       int
}
