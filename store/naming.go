package store

import (
	"mime"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultExtension is used when neither filename nor content type say
// otherwise. GitLab serves artifact archives as zip.
const DefaultExtension = ".zip"

// compound extensions checked before filepath.Ext
var multiExtensions = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tar.zst"}

var mimeExtensions = map[string]string{
	"application/zip":              ".zip",
	"application/x-zip-compressed": ".zip",
	"application/pdf":              ".pdf",
	"application/gzip":             ".gz",
	"application/x-gzip":           ".gz",
	"application/x-tar":            ".tar",
	"application/json":             ".json",
	"application/xml":              ".xml",
	"text/xml":                     ".xml",
	"text/plain":                   ".txt",
}

var nameReplacer = strings.NewReplacer("/", "-", "\\", "-", "\x00", "-")

// ArtifactPath returns <root>/<prefix>_<jobName>_<jobID><ext>. The job id
// keeps retried jobs of one name apart. Path separators and NUL in prefix
// and jobName become "-" so the result always stays directly under root.
// An empty prefix drops its separator.
func ArtifactPath(root, prefix, jobName string, jobID int, ext string) string {
	return filepath.Join(root, ArtifactBase(prefix, jobName, jobID)+ext)
}

// ArtifactBase is ArtifactPath's file name without root or extension.
func ArtifactBase(prefix, jobName string, jobID int) string {
	name := sanitize(jobName) + "_" + strconv.Itoa(jobID)
	if prefix != "" {
		name = sanitize(prefix) + "_" + name
	}
	return name
}

// ArtifactGlob matches every name ArtifactBase can produce for prefix and
// jobName: archives, extraction directories, and retried job ids.
func ArtifactGlob(prefix, jobName string) string {
	base := sanitize(jobName) + "_"
	if prefix != "" {
		base = sanitize(prefix) + "_" + base
	}
	return globReplacer.Replace(base) + "*"
}

// BundleName is the reports bundle's file name for prefix.
func BundleName(prefix string) string {
	if prefix == "" {
		return DefaultBundleName
	}
	return sanitize(prefix) + "_" + DefaultBundleName
}

var globReplacer = strings.NewReplacer("*", `\*`, "?", `\?`, "[", `\[`)

func sanitize(s string) string {
	s = nameReplacer.Replace(s)
	if s == "." || s == ".." {
		s = strings.Repeat("-", len(s))
	}
	return s
}

// ExtensionFor derives an artifact's extension, dot included. The first
// non-empty filename wins, then the MIME type, then DefaultExtension.
func ExtensionFor(contentType string, filenames ...string) string {
	for _, name := range filenames {
		if name == "" {
			continue
		}
		if ext := filenameExtension(name); ext != "" {
			return ext
		}
	}

	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			if ext, ok := mimeExtensions[strings.ToLower(mediaType)]; ok {
				return ext
			}
		}
	}

	return DefaultExtension
}

func filenameExtension(name string) string {
	lower := strings.ToLower(filepath.Base(name))
	for _, ext := range multiExtensions {
		if strings.HasSuffix(lower, ext) && len(lower) > len(ext) {
			return ext
		}
	}
	ext := filepath.Ext(lower)
	if ext == "." || ext == lower {
		return ""
	}
	return ext
}
