package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"mediaflow/internal/config"
	"mediaflow/internal/content"
	"mediaflow/internal/jobs"
	"mediaflow/internal/logging"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
	"mediaflow/internal/workflow"
)

// Job priorities for an upload. Lower values dispatch first within a queue.
const (
	PriorityMetadata  = 1
	PriorityThumbnail = 2
	PriorityTranscode = 3
	PrioritySubtitle  = 4
)

// Submitter enqueues jobs. *jobs.Manager satisfies it.
type Submitter interface {
	Submit(ctx context.Context, sub jobs.Submission) (string, error)
}

// Orchestrator turns an uploaded file into an asset, its processing jobs and
// a draft workflow for the owning lesson.
type Orchestrator struct {
	cfg       *config.Config
	store     *store.Store
	catalog   *content.Catalog
	submitter Submitter
	workflows *workflow.Service
	logger    *slog.Logger
}

// NewOrchestrator wires an orchestrator.
func NewOrchestrator(cfg *config.Config, st *store.Store, catalog *content.Catalog, submitter Submitter, workflows *workflow.Service, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if catalog == nil {
		catalog = content.NewCatalog(st)
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		catalog:   catalog,
		submitter: submitter,
		workflows: workflows,
		logger:    logging.NewComponentLogger(logger, "ingest"),
	}
}

// SubmittedJob identifies one job created for an upload.
type SubmittedJob struct {
	ID       string        `json:"id"`
	Type     store.JobType `json:"type"`
	Priority int           `json:"priority"`
}

// UploadResult is returned by SubmitUpload.
type UploadResult struct {
	AssetID    string         `json:"asset_id"`
	WorkflowID string         `json:"workflow_id"`
	Jobs       []SubmittedJob `json:"jobs"`
}

// JobIDs returns the ids of the submitted jobs in priority order.
func (r UploadResult) JobIDs() []string {
	ids := make([]string, 0, len(r.Jobs))
	for _, j := range r.Jobs {
		ids = append(ids, j.ID)
	}
	return ids
}

// SubmitUpload registers filePath as a new asset of the lesson and enqueues
// its metadata, thumbnail, transcode and subtitle jobs. It does not wait for
// any job to run.
func (o *Orchestrator) SubmitUpload(ctx context.Context, lessonID, filePath, originalFilename string) (UploadResult, error) {
	if strings.TrimSpace(lessonID) == "" {
		return UploadResult{}, services.Wrap(services.ErrValidation, "ingest", "submit upload", "lesson id is required", nil)
	}
	if strings.TrimSpace(filePath) == "" {
		return UploadResult{}, services.Wrap(services.ErrValidation, "ingest", "submit upload", "file path is required", nil)
	}
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return UploadResult{}, services.Wrap(services.ErrValidation, "ingest", "submit upload", "resolve file path", err)
	}
	info, err := os.Stat(absPath)
	if errors.Is(err, fs.ErrNotExist) {
		return UploadResult{}, services.Wrap(services.ErrNotFound, "ingest", "submit upload", "upload file "+absPath, nil)
	}
	if err != nil {
		return UploadResult{}, services.Wrap(services.ErrTransient, "ingest", "submit upload", "stat upload", err)
	}
	if !info.Mode().IsRegular() {
		return UploadResult{}, services.Wrap(services.ErrValidation, "ingest", "submit upload", absPath+" is not a regular file", nil)
	}
	if strings.TrimSpace(originalFilename) == "" {
		originalFilename = filepath.Base(absPath)
	}

	lesson, err := o.catalog.Lesson(ctx, lessonID)
	if err != nil {
		return UploadResult{}, err
	}

	asset := &store.Asset{
		ContentID:        lesson.ID(),
		OriginalPath:     absPath,
		OriginalFilename: originalFilename,
		SizeBytes:        info.Size(),
	}
	if err := o.store.InsertAsset(ctx, asset); err != nil {
		return UploadResult{}, services.Wrap(services.ErrTransient, "ingest", "submit upload", "create asset", err)
	}
	logger := logging.WithContext(services.WithAssetID(ctx, asset.ID), o.logger)

	subs := o.submissions(lesson.ID(), asset.ID, absPath)
	submitted := make([]SubmittedJob, len(subs))
	var wf workflow.View

	g, gctx := errgroup.WithContext(ctx)
	for i, sub := range subs {
		g.Go(func() error {
			id, err := o.submitter.Submit(gctx, sub)
			if err != nil {
				return fmt.Errorf("submit %s job: %w", sub.Params.JobType(), err)
			}
			submitted[i] = SubmittedJob{ID: id, Type: sub.Params.JobType(), Priority: sub.Priority}
			return nil
		})
	}
	g.Go(func() error {
		view, err := o.workflows.EnsureWorkflow(gctx, lesson.ID(), store.KindLesson, lesson.Owner())
		if err != nil {
			return fmt.Errorf("ensure workflow: %w", err)
		}
		wf = view
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("upload submission incomplete",
			logging.Error(err),
			logging.String(logging.FieldEventType, "upload_failed"),
			logging.String(logging.FieldErrorHint, "jobs already submitted keep running; resubmit the upload or retry them"),
		)
		return UploadResult{}, err
	}

	logger.Info("upload submitted",
		logging.String("lesson_id", lesson.ID()),
		logging.String("file", originalFilename),
		logging.Int64("size_bytes", asset.SizeBytes),
		logging.Int("jobs", len(submitted)),
		logging.String(logging.FieldWorkflowID, wf.ID),
		logging.String(logging.FieldEventType, "upload_submitted"),
	)
	return UploadResult{AssetID: asset.ID, WorkflowID: wf.ID, Jobs: submitted}, nil
}

func (o *Orchestrator) submissions(contentID, assetID, source string) []jobs.Submission {
	return []jobs.Submission{
		{
			ContentID: contentID,
			Priority:  PriorityMetadata,
			Params:    jobs.MetadataParams{AssetID: assetID, SourcePath: source},
		},
		{
			ContentID: contentID,
			Priority:  PriorityThumbnail,
			Params:    jobs.ThumbnailParams{AssetID: assetID, SourcePath: source, OffsetSeconds: o.cfg.Thumbnail.OffsetSeconds},
		},
		{
			ContentID: contentID,
			Priority:  PriorityTranscode,
			Params:    jobs.TranscodeParams{AssetID: assetID, SourcePath: source, Ladder: o.cfg.Transcode.Ladder},
		},
		{
			ContentID: contentID,
			Priority:  PrioritySubtitle,
			Params:    jobs.SubtitleParams{AssetID: assetID, SourcePath: source, Language: o.cfg.Subtitles.DefaultLanguage},
		},
	}
}
