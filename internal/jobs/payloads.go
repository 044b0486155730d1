package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"mediaflow/internal/language"
	"mediaflow/internal/media"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
)

// Params is the closed set of job payloads. Each payload names its queue.
type Params interface {
	JobType() store.JobType
	Asset() string
	validate() error
}

// MetadataParams probes the source file of an asset.
type MetadataParams struct {
	AssetID    string `json:"asset_id"`
	SourcePath string `json:"source_path"`
}

// ThumbnailParams extracts a still from an asset.
type ThumbnailParams struct {
	AssetID       string  `json:"asset_id"`
	SourcePath    string  `json:"source_path"`
	OffsetSeconds float64 `json:"offset_seconds"`
}

// TranscodeParams encodes an asset to every rung of a ladder.
type TranscodeParams struct {
	AssetID    string   `json:"asset_id"`
	SourcePath string   `json:"source_path"`
	Ladder     []string `json:"ladder"`
}

// SubtitleParams generates a subtitle set in one language.
type SubtitleParams struct {
	AssetID    string `json:"asset_id"`
	SourcePath string `json:"source_path"`
	Language   string `json:"language"`
}

func (MetadataParams) JobType() store.JobType  { return store.JobMetadata }
func (ThumbnailParams) JobType() store.JobType { return store.JobThumbnail }
func (TranscodeParams) JobType() store.JobType { return store.JobTranscode }
func (SubtitleParams) JobType() store.JobType  { return store.JobSubtitle }

func (p MetadataParams) Asset() string  { return p.AssetID }
func (p ThumbnailParams) Asset() string { return p.AssetID }
func (p TranscodeParams) Asset() string { return p.AssetID }
func (p SubtitleParams) Asset() string  { return p.AssetID }

func requireSource(assetID, source string) error {
	if strings.TrimSpace(assetID) == "" {
		return fmt.Errorf("asset_id is required")
	}
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("source_path is required")
	}
	return nil
}

func (p MetadataParams) validate() error { return requireSource(p.AssetID, p.SourcePath) }

func (p ThumbnailParams) validate() error {
	if err := requireSource(p.AssetID, p.SourcePath); err != nil {
		return err
	}
	if p.OffsetSeconds < 0 {
		return fmt.Errorf("offset_seconds must be >= 0")
	}
	return nil
}

func (p TranscodeParams) validate() error {
	if err := requireSource(p.AssetID, p.SourcePath); err != nil {
		return err
	}
	_, err := media.ParseLadder(p.Ladder)
	return err
}

func (p SubtitleParams) validate() error {
	if err := requireSource(p.AssetID, p.SourcePath); err != nil {
		return err
	}
	_, err := language.Canonical(p.Language)
	return err
}

// DecodeParams decodes a stored payload into the variant for jobType.
// Unknown fields are rejected.
func DecodeParams(jobType store.JobType, raw json.RawMessage) (Params, error) {
	var params Params
	switch jobType {
	case store.JobMetadata:
		params = &MetadataParams{}
	case store.JobThumbnail:
		params = &ThumbnailParams{}
	case store.JobTranscode:
		params = &TranscodeParams{}
	case store.JobSubtitle:
		params = &SubtitleParams{}
	default:
		return nil, services.Wrap(services.ErrValidation, "jobs", "decode params", fmt.Sprintf("unknown job type %q", jobType), nil)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(params); err != nil {
		return nil, services.Wrap(services.ErrValidation, "jobs", "decode params", string(jobType), err)
	}
	if err := params.validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "jobs", "decode params", string(jobType), err)
	}
	return params, nil
}

// MetadataResult is the outcome of a metadata job.
type MetadataResult struct {
	Metadata store.AssetMetadata `json:"metadata"`
}

// ThumbnailResult is the outcome of a thumbnail job.
type ThumbnailResult struct {
	Path string `json:"path"`
}

// TranscodeResult is the outcome of a transcode job.
type TranscodeResult struct {
	Renditions []media.RenditionOutcome `json:"renditions"`
}

// SubtitleResult is the outcome of a subtitle job.
type SubtitleResult = media.SubtitleResult

// DecodeResult decodes a completed job's result into its typed form.
func DecodeResult(jobType store.JobType, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var target any
	switch jobType {
	case store.JobMetadata:
		target = &MetadataResult{}
	case store.JobThumbnail:
		target = &ThumbnailResult{}
	case store.JobTranscode:
		target = &TranscodeResult{}
	case store.JobSubtitle:
		target = &SubtitleResult{}
	default:
		return nil, fmt.Errorf("decode result: unknown job type %q", jobType)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", jobType, err)
	}
	return target, nil
}
