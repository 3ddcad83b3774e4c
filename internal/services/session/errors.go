package session

import (
	"errors"
	"strings"

	"github.com/gruzd1sok/YTSage-telegram-bot/internal/formats"
)

var (
	ErrAccessDenied   = errors.New("access denied")
	ErrMalformedPick  = errors.New("malformed selection pick")
	ErrUploadTooLarge = errors.New("file exceeds the upload size ceiling")
	ErrDeliveryFailed = errors.New("file delivery failed")
	ErrFileMissing    = errors.New("download finished but file was not found")
)

// authRejectionMarkers is the fixed set of "credentials rejected"
// signatures that arm the refresh-and-retry protocol. Matching is
// case-insensitive substring search.
var authRejectionMarkers = []string{
	"sign in to confirm",
	"login_required",
	"login required",
	"cookies are no longer valid",
	"please sign in",
	"use --cookies",
	"account cookies",
}

// IsAuthRejection reports whether the error text carries an
// expired/invalid session cookie signature.
func IsAuthRejection(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, marker := range authRejectionMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// UserMessage maps an internal error onto the fixed user-facing phrase
// table. Raw engine output never reaches the user.
func UserMessage(err error) string {
	if err == nil {
		return "Done."
	}
	switch {
	case errors.Is(err, formats.ErrPlaylist):
		return "Playlists are not supported yet. Send a link to a single video."
	case errors.Is(err, formats.ErrNoFormats):
		return "Could not find any downloadable formats for this link. Try another video."
	case errors.Is(err, formats.ErrNoSuitableFormats):
		return "No suitable quality options were found. Try another video."
	case errors.Is(err, ErrUploadTooLarge):
		return "The file is too large to upload to Telegram."
	case errors.Is(err, ErrFileMissing):
		return "The download finished but the file was not found."
	case errors.Is(err, ErrDeliveryFailed):
		return "Could not send the file to Telegram. Please try again."
	case errors.Is(err, ErrMalformedPick):
		return "Could not process the selection. Send the link again."
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "playlist"):
		return "Playlists are not supported yet. Send a link to a single video."
	case containsAny(text, "invalid url", "unsupported url", "no video found", "invalid"):
		return "That does not look like a valid YouTube link. Check the URL and try again."
	case containsAny(text, "age restricted", "age-restricted", "confirm your age"):
		return "This video is age-restricted. Account access is required."
	case containsAny(text, "private", "login_required", "sign in", "cookies"):
		return "This video requires authorization. Try another video or send a public link."
	case containsAny(text, "available in your country", "geo"):
		return "This video is not available in your region."
	case containsAny(text, "live stream", "livestream", "is live"):
		return "This is a live stream. Try again after it ends."
	case containsAny(text, "timeout", "timed out", "connection", "network", "unable to download"):
		return "Network trouble. Please try again in a bit."
	default:
		return "Could not process the link. Make sure the video is available and try again."
	}
}

func containsAny(text string, markers ...string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
