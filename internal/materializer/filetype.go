package materializer

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

var extensionTypes = map[string]string{
	".pdf":  "pdf",
	".png":  "image",
	".jpg":  "image",
	".jpeg": "image",
	".gif":  "image",
	".webp": "image",
	".svg":  "image",
	".bmp":  "image",
	".mp3":  "audio",
	".wav":  "audio",
	".ogg":  "audio",
	".flac": "audio",
	".m4a":  "audio",
	".mp4":  "video",
	".mov":  "video",
	".avi":  "video",
	".mkv":  "video",
	".webm": "video",
	".txt":  "text",
	".md":   "text",
	".json": "text",
	".doc":  "document",
	".docx": "document",
	".odt":  "document",
	".rtf":  "document",
	".ppt":  "document",
	".pptx": "document",
	".xls":  "spreadsheet",
	".xlsx": "spreadsheet",
	".ods":  "spreadsheet",
	".csv":  "spreadsheet",
	".zip":  "archive",
	".tar":  "archive",
	".gz":   "archive",
	".tgz":  "archive",
	".7z":   "archive",
	".rar":  "archive",
}

// detectMime prefers the declared mime type, then the file extension, then
// the content itself.
func detectMime(declared, name string, data []byte) string {
	if declared != "" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(name))); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}

// fileType classifies a file for the workflow editor, extension first.
func fileType(name, mimeType string) string {
	if t, ok := extensionTypes[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	base, _, _ := strings.Cut(strings.ToLower(mimeType), ";")
	switch {
	case base == "application/pdf":
		return "pdf"
	case strings.HasPrefix(base, "image/"):
		return "image"
	case strings.HasPrefix(base, "audio/"):
		return "audio"
	case strings.HasPrefix(base, "video/"):
		return "video"
	case strings.HasPrefix(base, "text/"):
		return "text"
	case strings.Contains(base, "spreadsheet") || strings.Contains(base, "excel"):
		return "spreadsheet"
	case strings.Contains(base, "word") || strings.Contains(base, "document"):
		return "document"
	case strings.Contains(base, "zip") || strings.Contains(base, "tar") || strings.Contains(base, "compressed"):
		return "archive"
	default:
		return "file"
	}
}
