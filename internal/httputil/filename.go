package httputil

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/vfaronov/httpheader"
)

// ExtractFilename determines the local file name for a download using the
// response headers and the (post-redirect) URL. Resolution order:
// Content-Disposition, then the URL path basename when it carries an
// extension, then a content-type-derived default, then "download.bin".
func ExtractFilename(rawurl string, hdr http.Header) string {
	if _, name, err := httpheader.ContentDisposition(hdr); err == nil && name != "" {
		// Some origins percent-encode the plain filename parameter.
		if dec, err := url.PathUnescape(name); err == nil {
			name = dec
		}
		if s := sanitizeFilename(name); s != "" && s != "." {
			return s
		}
	}

	if parsed, err := url.Parse(rawurl); err == nil {
		base := path.Base(parsed.Path)
		if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
			if s := sanitizeFilename(base); s != "" && s != "." {
				return s
			}
		}
	}

	if name := defaultForContentType(hdr.Get("Content-Type")); name != "" {
		return name
	}

	return "download.bin"
}

// defaultForContentType maps a Content-Type to a placeholder name. The
// common document/archive/media families keep their conventional
// extensions; anything else consults the filetype registry for an exact
// MIME match.
func defaultForContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if ct == "" {
		return ""
	}

	switch {
	case strings.Contains(ct, "pdf"):
		return "download.pdf"
	case strings.Contains(ct, "zip"):
		return "download.zip"
	case strings.HasPrefix(ct, "video"):
		return "download.mp4"
	case strings.HasPrefix(ct, "audio"):
		return "download.mp3"
	case strings.HasPrefix(ct, "image"):
		return "download.jpg"
	}

	ext := ""
	filetype.Types.Range(func(_, value interface{}) bool {
		t := value.(types.Type)
		if t.MIME.Value == ct && t.Extension != "" {
			ext = t.Extension
			return false
		}
		return true
	})
	if ext != "" {
		return "download." + ext
	}
	return ""
}

func sanitizeFilename(name string) string {
	// Treat backslashes as separators so a Windows-style path in
	// Content-Disposition cannot escape the output directory.
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.TrimSpace(name)
	name = strings.Trim(name, `"'`)

	for _, c := range []string{"/", ":", "*", "?", `"`, "<", ">", "|"} {
		name = strings.ReplaceAll(name, c, "_")
	}
	return name
}
