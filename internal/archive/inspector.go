package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/debsources/debsources/internal/archerr"
)

// DefaultSniffBytes bounds the prefix read when the extension is not enough.
const DefaultSniffBytes = 512

// FileMetadata describes a file location.
type FileMetadata struct {
	MimeType string      `json:"mime_type"`
	IsText   bool        `json:"is_text"`
	Size     int64       `json:"size"`
	Mode     fs.FileMode `json:"-"`
	RawURL   string      `json:"raw_url"`
}

// Permissions renders the permission bits the way ls does, e.g. "rwxr-xr-x".
func (m *FileMetadata) Permissions() string {
	return m.Mode.Perm().String()[1:]
}

// Inspector derives metadata for file locations.
type Inspector struct {
	rawPrefix  string
	sniffBytes int
}

// NewInspector creates an inspector. rawPrefix is the URL prefix raw content
// is served under; sniffBytes bounds content sniffing (<= 0 selects
// DefaultSniffBytes).
func NewInspector(rawPrefix string, sniffBytes int) *Inspector {
	if sniffBytes <= 0 {
		sniffBytes = DefaultSniffBytes
	}
	return &Inspector{
		rawPrefix:  strings.TrimSuffix(rawPrefix, "/"),
		sniffBytes: sniffBytes,
	}
}

// Inspect returns metadata for loc, which must be a file. The type comes from
// a fixed extension table; unknown or ambiguous extensions fall back to
// sniffing a bounded prefix of the content.
func (in *Inspector) Inspect(loc *Location) (*FileMetadata, error) {
	if loc.Kind != KindFile {
		return nil, fmt.Errorf("%s: not a file: %w", loc.Address(), archerr.ErrNotFound)
	}

	_, info, err := loc.revalidate()
	switch {
	case err != nil:
		return nil, err
	case !info.Mode().IsRegular():
		return nil, fmt.Errorf("%s: not a regular file: %w", loc.Address(), archerr.ErrNotFound)
	}

	name := loc.Name()
	mimeType := typeByName(name)
	if mimeType == "" {
		mimeType, err = in.sniff(loc.PhysicalPath)
		if err != nil {
			return nil, fmt.Errorf("sniff %s: %w", loc.Address(), err)
		}
	}

	return &FileMetadata{
		MimeType: mimeType,
		IsText:   isText(mimeType),
		Size:     info.Size(),
		Mode:     info.Mode(),
		RawURL:   in.RawURL(loc),
	}, nil
}

// RawURL returns the URL under which the raw bytes of loc are served. Each
// segment is percent-escaped, so the result is stable for a given location.
func (in *Inspector) RawURL(loc *Location) string {
	segs := append([]string{loc.Package, loc.Version}, loc.Path...)
	var b strings.Builder
	b.WriteString(in.rawPrefix)
	for _, s := range segs {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

func (in *Inspector) sniff(path string) (string, error) {
	f, err := openNoFollow(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, in.sniffBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	return baseType(mimetype.Detect(buf[:n]).String()), nil
}

func baseType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mt
}

// typeByName looks the name up in the fixed tables. An empty result means the
// content has to be sniffed.
func typeByName(name string) string {
	if t, ok := knownNames[name]; ok {
		return t
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	return extensionTypes[ext]
}

func isText(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	_, ok := textTypes[mimeType]
	return ok
}

// knownNames maps conventional extensionless source tree files.
var knownNames = map[string]string{
	"AUTHORS":        "text/plain",
	"BUGS":           "text/plain",
	"ChangeLog":      "text/plain",
	"CHANGES":        "text/plain",
	"COPYING":        "text/plain",
	"CREDITS":        "text/plain",
	"HACKING":        "text/plain",
	"INSTALL":        "text/plain",
	"LICENSE":        "text/plain",
	"NEWS":           "text/plain",
	"README":         "text/plain",
	"THANKS":         "text/plain",
	"TODO":           "text/plain",
	"changelog":      "text/plain",
	"compat":         "text/plain",
	"control":        "text/plain",
	"copyright":      "text/plain",
	"watch":          "text/plain",
	"configure":      "text/x-shellscript",
	"rules":          "text/x-makefile",
	"Makefile":       "text/x-makefile",
	"GNUmakefile":    "text/x-makefile",
	"makefile":       "text/x-makefile",
	"Kconfig":        "text/plain",
	"Kbuild":         "text/x-makefile",
	"Dockerfile":     "text/plain",
	"Jamfile":        "text/plain",
	"SConstruct":     "text/x-python",
	"Rakefile":       "text/x-ruby",
	"Gemfile":        "text/x-ruby",
	"CMakeLists.txt": "text/x-cmake",
}

// extensionTypes is fixed so results do not depend on the host's mime.types.
// Extensions mapped to "" are ambiguous and always sniffed.
var extensionTypes = map[string]string{
	// C family
	".c":   "text/x-csrc",
	".h":   "text/x-chdr",
	".cc":  "text/x-c++src",
	".cpp": "text/x-c++src",
	".cxx": "text/x-c++src",
	".hh":  "text/x-c++hdr",
	".hpp": "text/x-c++hdr",
	".hxx": "text/x-c++hdr",
	".m":   "",
	".s":   "text/x-asm",
	".asm": "text/x-asm",

	// Other languages
	".go":    "text/x-go",
	".rs":    "text/x-rust",
	".java":  "text/x-java",
	".kt":    "text/x-kotlin",
	".scala": "text/x-scala",
	".cs":    "text/x-csharp",
	".py":    "text/x-python",
	".rb":    "text/x-ruby",
	".pl":    "",
	".pm":    "text/x-perl",
	".php":   "text/x-php",
	".lua":   "text/x-lua",
	".tcl":   "text/x-tcl",
	".hs":    "text/x-haskell",
	".ml":    "text/x-ocaml",
	".mli":   "text/x-ocaml",
	".el":    "text/x-lisp",
	".lisp":  "text/x-lisp",
	".scm":   "text/x-scheme",
	".f":     "text/x-fortran",
	".f90":   "text/x-fortran",
	".pas":   "text/x-pascal",
	".d":     "",
	".vala":  "text/x-vala",
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".ts":    "",
	".sh":    "application/x-sh",
	".bash":  "application/x-sh",
	".awk":   "application/x-awk",
	".sed":   "text/x-sed",
	".m4":    "application/x-m4",
	".sql":   "application/sql",
	".tex":   "application/x-tex",

	// Build and packaging
	".mk":      "text/x-makefile",
	".am":      "text/x-makefile",
	".in":      "",
	".ac":      "application/x-m4",
	".cmake":   "text/x-cmake",
	".patch":   "text/x-diff",
	".diff":    "text/x-diff",
	".dsc":     "text/plain",
	".install": "text/plain",
	".links":   "text/plain",
	".docs":    "text/plain",
	".service": "text/plain",

	// Markup and data
	".txt":  "text/plain",
	".md":   "text/markdown",
	".rst":  "text/x-rst",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".csv":  "text/csv",
	".xml":  "application/xml",
	".xsl":  "application/xml",
	".svg":  "image/svg+xml",
	".json": "application/json",
	".yaml": "application/x-yaml",
	".yml":  "application/x-yaml",
	".toml": "application/toml",
	".ini":  "text/plain",
	".cfg":  "text/plain",
	".conf": "text/plain",
	".po":   "text/x-gettext-translation",
	".pot":  "text/x-gettext-translation",
	".1":    "text/troff",
	".3":    "text/troff",
	".8":    "text/troff",
	".texi": "text/x-texinfo",
	".dat":  "",

	// Binary
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
	".gz":   "application/gzip",
	".tgz":  "application/gzip",
	".bz2":  "application/x-bzip2",
	".xz":   "application/x-xz",
	".zip":  "application/zip",
	".tar":  "application/x-tar",
	".o":    "application/x-object",
	".a":    "application/x-archive",
	".so":   "application/x-sharedlib",
	".ttf":  "font/ttf",
	".woff": "font/woff",
	".mo":   "application/x-gettext-translation",
	".wav":  "audio/x-wav",
	".ogg":  "audio/ogg",
}

// textTypes are non-text/* types whose content is still readable source.
var textTypes = map[string]struct{}{
	"application/javascript": {},
	"application/json":       {},
	"application/sql":        {},
	"application/toml":       {},
	"application/x-awk":      {},
	"application/x-m4":       {},
	"application/x-sh":       {},
	"application/x-tex":      {},
	"application/x-yaml":     {},
	"application/xml":        {},
	"image/svg+xml":          {},
}
