package voice

import (
	"mime"
	"path/filepath"
	"strings"
)

// InferFormat guesses the clip container from the upload's filename, then its MIME type.
// Browser recordings without either are webm.
func InferFormat(filename, contentType string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "mp3"
	case ".wav":
		return "wav"
	case ".webm":
		return "webm"
	case ".ogg", ".oga":
		return "ogg"
	case ".m4a", ".mp4":
		return "m4a"
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "webm"
	}
	switch mediaType {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/ogg":
		return "ogg"
	case "audio/mp4", "audio/x-m4a":
		return "m4a"
	default:
		return "webm"
	}
}
