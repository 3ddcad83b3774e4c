package formats

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MaxVideoOptions caps the number of video entries offered to the user,
// highest resolutions first.
const MaxVideoOptions = 8

var (
	ErrPlaylist          = errors.New("url resolves to a playlist")
	ErrNoFormats         = errors.New("no formats reported")
	ErrNoSuitableFormats = errors.New("no suitable formats found")
)

// Record is one row of media metadata as reported by the discovery engine.
// All fields are optional; absent numeric fields decode as zero.
type Record struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	TBR            float64 `json:"tbr"`
	ABR            float64 `json:"abr"`
}

// HasVideo reports whether the record carries a video stream.
func (r Record) HasVideo() bool {
	return r.VCodec != "" && r.VCodec != "none"
}

// HasAudio reports whether the record carries an audio stream.
func (r Record) HasAudio() bool {
	return r.ACodec != "" && r.ACodec != "none"
}

func (r Record) size() int64 {
	if r.Filesize > 0 {
		return r.Filesize
	}
	return r.FilesizeApprox
}

// Option is one user-facing quality choice. Immutable once produced.
type Option struct {
	FormatID     string
	Label        string
	QualityLabel string
	IsAudioOnly  bool
	HasAudio     bool
	Ext          string
	Filesize     int64
}

// List is the ranked output of format discovery for a single video.
type List struct {
	Title    string
	Duration string
	Options  []Option
}

// Rank partitions raw format records into video and audio-only candidates
// and produces the ordered option list shown to the user: one entry per
// distinct height, descending, capped at MaxVideoOptions, plus at most one
// audio-only entry at the end.
func Rank(title string, durationSeconds float64, isPlaylist bool, records []Record) (*List, error) {
	if isPlaylist {
		return nil, ErrPlaylist
	}
	if len(records) == 0 {
		return nil, ErrNoFormats
	}

	byHeight := make(map[int]Record)
	var audio []Record
	for _, rec := range records {
		if rec.HasVideo() {
			if rec.Height <= 0 {
				continue
			}
			best, ok := byHeight[rec.Height]
			if !ok || scoreLess(best, rec, true) {
				byHeight[rec.Height] = rec
			}
			continue
		}
		if rec.HasAudio() {
			audio = append(audio, rec)
		}
	}

	heights := make([]int, 0, len(byHeight))
	for h := range byHeight {
		heights = append(heights, h)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))
	if len(heights) > MaxVideoOptions {
		heights = heights[:MaxVideoOptions]
	}

	options := make([]Option, 0, len(heights)+1)
	for _, h := range heights {
		options = append(options, videoOption(byHeight[h]))
	}
	if best, ok := bestAudio(audio); ok {
		options = append(options, best)
	}

	if len(options) == 0 {
		return nil, ErrNoSuitableFormats
	}
	return &List{
		Title:    title,
		Duration: FormatDuration(durationSeconds),
		Options:  options,
	}, nil
}

// scoreLess reports whether b outranks a under the lexicographic tie-break
// score (progressive bonus, filesize, tbr, abr). The progressive bonus
// prefers formats that already carry audio, avoiding a mux step later.
func scoreLess(a, b Record, preferProgressive bool) bool {
	if preferProgressive {
		aAudio, bAudio := a.HasAudio(), b.HasAudio()
		if aAudio != bAudio {
			return bAudio
		}
	}
	if a.size() != b.size() {
		return a.size() < b.size()
	}
	if a.TBR != b.TBR {
		return a.TBR < b.TBR
	}
	return a.ABR < b.ABR
}

func videoOption(rec Record) Option {
	label := fmt.Sprintf("%dp", rec.Height)
	if rec.FPS >= 50 {
		label = fmt.Sprintf("%s %.0ffps", label, rec.FPS)
	}
	quality := label
	if rec.Ext != "" {
		quality = fmt.Sprintf("%s %s", label, strings.ToUpper(rec.Ext))
	}
	return Option{
		FormatID:     rec.FormatID,
		Label:        label,
		QualityLabel: quality,
		HasAudio:     rec.HasAudio(),
		Ext:          rec.Ext,
		Filesize:     rec.size(),
	}
}

func bestAudio(records []Record) (Option, bool) {
	if len(records) == 0 {
		return Option{}, false
	}
	best := records[0]
	for _, rec := range records[1:] {
		if scoreLess(best, rec, false) {
			best = rec
		}
	}
	label := "Audio"
	if best.ABR > 0 {
		label = fmt.Sprintf("Audio ~%.0fkbps", best.ABR)
	} else if best.TBR > 0 {
		label = fmt.Sprintf("Audio ~%.0fkbps", best.TBR)
	}
	quality := label
	if best.Ext != "" {
		quality = fmt.Sprintf("%s %s", label, strings.ToUpper(best.Ext))
	}
	return Option{
		FormatID:     best.FormatID,
		Label:        label,
		QualityLabel: quality,
		IsAudioOnly:  true,
		HasAudio:     true,
		Ext:          best.Ext,
		Filesize:     best.size(),
	}, true
}

// FormatDuration renders a duration in seconds as H:MM:SS, or M:SS when
// under an hour. Non-positive durations render as an empty string.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// HumanSize renders a byte count for user messages, or an empty string
// when the size is unknown.
func HumanSize(value int64) string {
	if value <= 0 {
		return ""
	}
	size := float64(value)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 || unit == "GB" {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return ""
}
