package formats

import (
	"errors"
	"testing"
)

func TestRankOrdersResolutionsDescending(t *testing.T) {
	records := []Record{
		{FormatID: "22", Height: 720, VCodec: "avc1", ACodec: "mp4a", Ext: "mp4", Filesize: 50_000_000},
		{FormatID: "137", Height: 1080, VCodec: "avc1", ACodec: "none", Ext: "mp4", Filesize: 120_000_000},
		{FormatID: "18", Height: 360, VCodec: "avc1", ACodec: "mp4a", Ext: "mp4", Filesize: 20_000_000},
	}

	list, err := Rank("test", 60, false, records)
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}

	video := videoOnly(list.Options)
	if len(video) != 3 {
		t.Fatalf("expected 3 video options, got %d", len(video))
	}
	if video[0].Label != "1080p" || video[1].Label != "720p" || video[2].Label != "360p" {
		t.Errorf("unexpected order: %q, %q, %q", video[0].Label, video[1].Label, video[2].Label)
	}
}

func TestRankPrefersProgressiveWithinHeight(t *testing.T) {
	// The muxed 1080p candidate must win even though the video-only one
	// has a larger filesize.
	records := []Record{
		{FormatID: "137", Height: 1080, VCodec: "avc1", ACodec: "none", Filesize: 300_000_000},
		{FormatID: "301", Height: 1080, VCodec: "avc1", ACodec: "mp4a", Filesize: 150_000_000},
	}

	list, err := Rank("test", 10, false, records)
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	if list.Options[0].FormatID != "301" {
		t.Errorf("expected progressive format 301, got %s", list.Options[0].FormatID)
	}
	if !list.Options[0].HasAudio {
		t.Error("expected winning option to be marked HasAudio")
	}
}

func TestRankBreaksTiesByBitrate(t *testing.T) {
	records := []Record{
		{FormatID: "low", Height: 720, VCodec: "vp9", ACodec: "none", TBR: 900},
		{FormatID: "high", Height: 720, VCodec: "vp9", ACodec: "none", TBR: 2500},
	}

	list, err := Rank("test", 10, false, records)
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	if list.Options[0].FormatID != "high" {
		t.Errorf("expected higher-bitrate format, got %s", list.Options[0].FormatID)
	}
}

func TestRankHighFPSLabel(t *testing.T) {
	records := []Record{
		{FormatID: "299", Height: 1080, FPS: 60, VCodec: "avc1", ACodec: "none"},
		{FormatID: "137", Height: 720, FPS: 30, VCodec: "avc1", ACodec: "none"},
	}

	list, err := Rank("test", 10, false, records)
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	if list.Options[0].Label != "1080p 60fps" {
		t.Errorf("expected fps suffix for 60fps, got %q", list.Options[0].Label)
	}
	if list.Options[1].Label != "720p" {
		t.Errorf("expected no fps suffix for 30fps, got %q", list.Options[1].Label)
	}
}

func TestRankCapsVideoOptions(t *testing.T) {
	var records []Record
	for h := 144; h <= 144*12; h += 144 {
		records = append(records, Record{FormatID: "v", Height: h, VCodec: "avc1"})
	}

	list, err := Rank("test", 10, false, records)
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	if len(list.Options) != MaxVideoOptions {
		t.Errorf("expected %d options, got %d", MaxVideoOptions, len(list.Options))
	}
}

func TestRankSingleAudioOption(t *testing.T) {
	records := []Record{
		{FormatID: "139", VCodec: "none", ACodec: "mp4a", ABR: 48, Ext: "m4a"},
		{FormatID: "140", VCodec: "none", ACodec: "mp4a", ABR: 128, Ext: "m4a"},
		{FormatID: "18", Height: 360, VCodec: "avc1", ACodec: "mp4a"},
	}

	list, err := Rank("test", 10, false, records)
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	var audio []Option
	for _, opt := range list.Options {
		if opt.IsAudioOnly {
			audio = append(audio, opt)
		}
	}
	if len(audio) != 1 {
		t.Fatalf("expected exactly one audio option, got %d", len(audio))
	}
	if audio[0].FormatID != "140" {
		t.Errorf("expected best audio format 140, got %s", audio[0].FormatID)
	}
	if audio[0].Label != "Audio ~128kbps" {
		t.Errorf("unexpected audio label %q", audio[0].Label)
	}
}

func TestRankFailures(t *testing.T) {
	tests := []struct {
		name       string
		isPlaylist bool
		records    []Record
		want       error
	}{
		{"playlist", true, []Record{{FormatID: "x", Height: 720, VCodec: "avc1"}}, ErrPlaylist},
		{"empty", false, nil, ErrNoFormats},
		{"no suitable", false, []Record{{FormatID: "x", VCodec: "none", ACodec: "none"}}, ErrNoSuitableFormats},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Rank("test", 10, tt.isPlaylist, tt.records)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, ""},
		{59, "0:59"},
		{75, "1:15"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func videoOnly(options []Option) []Option {
	var out []Option
	for _, opt := range options {
		if !opt.IsAudioOnly {
			out = append(out, opt)
		}
	}
	return out
}
