package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/debsources/debsources/internal/archive"
	"github.com/debsources/debsources/internal/logging"
	"github.com/debsources/debsources/internal/metrics"
)

var (
	rangeRe = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

	errRangeNotSatisfiable = errors.New("range not satisfiable")
)

// handleRaw handles GET {RawPrefix}/{package}/{version}/{path...}
// The address is resolved under the same symlink policy as the JSON API
// before any byte is read from the content backend.
func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	addr, err := archive.ParseAddress(r.PathValue("path"))
	if err != nil {
		s.sendArchiveError(w, r, err)
		return
	}

	res, err := s.Resolver.Resolve(r.Context(), addr)
	if err != nil {
		s.sendArchiveError(w, r, err)
		return
	}
	if res.IsRedirect() {
		s.redirect(w, r, s.RawPrefix, *res.Redirect)
		return
	}

	loc := res.Location
	if loc.Kind != archive.KindFile {
		s.sendError(w, http.StatusNotFound, loc.Address().String()+": not a file")
		return
	}

	meta, err := s.Inspector.Inspect(loc)
	if err != nil {
		s.sendArchiveError(w, r, err)
		return
	}

	offset, length, hasRange, err := parseRangeHeader(r.Header.Get("Range"), meta.Size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", meta.Size))
		s.sendError(w, http.StatusRequestedRangeNotSatisfiable, err.Error())
		return
	}

	if !hasRange {
		offset, length = 0, 0
	}
	reader, _, err := s.Content.GetObject(r.Context(), loc.Address().String(), offset, length)
	if err != nil {
		metrics.RecordContentServed(0, false)
		s.sendArchiveError(w, r, err)
		return
	}
	defer reader.Close()

	// Archive content is untrusted: text is never served as markup.
	ct := meta.MimeType
	if meta.IsText {
		ct = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Accept-Ranges", "bytes")

	if hasRange {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, meta.Size))
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
		w.WriteHeader(http.StatusOK)
	}

	if r.Method == http.MethodHead {
		return
	}

	n, err := io.Copy(w, reader)
	if err != nil {
		logging.Warn("content transfer error", zap.String("path", r.URL.Path), zap.Error(err))
	}
	metrics.RecordContentServed(n, err == nil)
}

// parseRangeHeader parses a single "bytes=start-end" range against a body of
// totalSize bytes. Absent or malformed headers select the whole body
// (hasRange=false); a well-formed range starting past the end fails with
// errRangeNotSatisfiable.
func parseRangeHeader(rangeHeader string, totalSize int64) (offset, length int64, hasRange bool, err error) {
	if rangeHeader == "" {
		return 0, totalSize, false, nil
	}

	matches := rangeRe.FindStringSubmatch(rangeHeader)
	if matches == nil || (matches[1] == "" && matches[2] == "") {
		return 0, totalSize, false, nil
	}
	startStr, endStr := matches[1], matches[2]

	// Suffix range: the last N bytes.
	if startStr == "" {
		suffix, perr := strconv.ParseInt(endStr, 10, 64)
		if perr != nil {
			return 0, totalSize, false, nil
		}
		if suffix == 0 || totalSize == 0 {
			return 0, 0, false, errRangeNotSatisfiable
		}
		if suffix > totalSize {
			suffix = totalSize
		}
		return totalSize - suffix, suffix, true, nil
	}

	start, perr := strconv.ParseInt(startStr, 10, 64)
	if perr != nil {
		return 0, totalSize, false, nil
	}
	if start >= totalSize {
		return 0, 0, false, errRangeNotSatisfiable
	}

	end := totalSize - 1
	if endStr != "" {
		e, perr := strconv.ParseInt(endStr, 10, 64)
		if perr != nil || e < start {
			return 0, totalSize, false, nil
		}
		if e < end {
			end = e
		}
	}
	return start, end - start + 1, true, nil
}
