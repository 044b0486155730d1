package ffprobe

import (
	"math"
	"testing"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video"},
			{CodecType: "audio"},
			{CodecType: "audio"},
		},
		Format: Format{
			Duration: "123.45",
			Size:     "1000",
			BitRate:  "32000",
		},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	if result.BitRate() != 32000 {
		t.Fatalf("unexpected bitrate: %d", result.BitRate())
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Format: Format{
			Duration: "bad",
			Size:     "-1",
			BitRate:  "nope",
		},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if result.BitRate() != 0 {
		t.Fatalf("expected bitrate 0, got %d", result.BitRate())
	}
}

func TestParseExtractsPrimaryStreams(t *testing.T) {
	payload := []byte(`{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001", "r_frame_rate": "30000/1001"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "channels": 2, "sample_rate": "48000"}
  ],
  "format": {"duration": "600.000000", "size": "157286400", "bit_rate": "2097152", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
}`)
	result, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	video, ok := result.PrimaryVideo()
	if !ok || video.Height != 1080 || video.CodecName != "h264" {
		t.Fatalf("unexpected video stream: %+v", video)
	}
	if rate := video.FrameRate(); rate != 29.97 {
		t.Fatalf("unexpected frame rate: %v", rate)
	}
	audio, ok := result.PrimaryAudio()
	if !ok || audio.Channels != 2 {
		t.Fatalf("unexpected audio stream: %+v", audio)
	}
	if result.DurationSeconds() != 600 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if string(result.RawJSON()) != string(payload) {
		t.Fatal("expected raw payload to be retained")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("moov atom not found")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDurationFallsBackToStreams(t *testing.T) {
	result := Result{Streams: []Stream{{Duration: "12.5"}, {Duration: "13.25"}}}
	if got := result.DurationSeconds(); got != 13.25 {
		t.Fatalf("expected stream duration fallback, got %v", got)
	}
}

func TestFrameRateFallsBackToRealRate(t *testing.T) {
	stream := Stream{AvgFrameRate: "0/0", RFrameRate: "25/1"}
	if got := stream.FrameRate(); got != 25 {
		t.Fatalf("expected 25, got %v", got)
	}
}
