package api

import (
	"net/http"

	"github.com/debsources/debsources/internal/archive"
	"github.com/debsources/debsources/internal/registry"
	"github.com/debsources/debsources/pkg/protocol"
)

// handleSource handles GET /api/src/{package}/[{version}/{path...}]
// A bare package lists its versions; "latest" redirects to the concrete
// version; anything else is a directory listing or file metadata.
func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	segs := splitPath(r.PathValue("path"))
	switch len(segs) {
	case 0:
		s.sendError(w, http.StatusBadRequest, "package required")
		return
	case 1:
		s.servePackage(w, r, segs[0])
		return
	}

	addr, err := archive.NewAddress(segs[0], segs[1], segs[2:]...)
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
		s.redirect(w, r, "/api/src/", *res.Redirect)
		return
	}

	loc := res.Location
	if loc.Kind == archive.KindFile {
		s.serveFile(w, r, loc)
		return
	}
	s.serveDirectory(w, r, loc)
}

func (s *Server) servePackage(w http.ResponseWriter, r *http.Request, pkg string) {
	vs, err := s.Resolver.Versions(r.Context(), pkg)
	if err != nil {
		s.sendArchiveError(w, r, err)
		return
	}

	resp := protocol.PackageResponse{
		Type:     "package",
		Package:  pkg,
		Versions: make([]protocol.VersionInfo, 0, len(vs)),
		PTSLink:  s.ptsLink(pkg),
	}
	for _, v := range vs {
		resp.Versions = append(resp.Versions, protocol.VersionInfo{
			Version: v.Number,
			VCS:     vcsInfo(v.VCS),
		})
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) serveDirectory(w http.ResponseWriter, r *http.Request, loc *archive.Location) {
	entries, err := s.Lister.ListLocation(loc)
	if err != nil {
		s.sendArchiveError(w, r, err)
		return
	}

	content := make([]protocol.DirEntry, 0, len(entries))
	for _, e := range entries {
		content = append(content, protocol.DirEntry{Name: e.Name, Type: e.Kind.String()})
	}
	s.sendJSON(w, http.StatusOK, protocol.DirectoryResponse{
		Type:    loc.Kind.String(),
		Package: loc.Package,
		Version: loc.Version,
		Path:    loc.SubPath(),
		Content: content,
		VCS:     vcsInfo(loc.VCS),
		PTSLink: s.ptsLink(loc.Package),
	})
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, loc *archive.Location) {
	meta, err := s.Inspector.Inspect(loc)
	if err != nil {
		s.sendArchiveError(w, r, err)
		return
	}

	s.sendJSON(w, http.StatusOK, protocol.FileResponse{
		Type:        loc.Kind.String(),
		Package:     loc.Package,
		Version:     loc.Version,
		Path:        loc.SubPath(),
		Name:        loc.Name(),
		MimeType:    meta.MimeType,
		IsText:      meta.IsText,
		Size:        meta.Size,
		Permissions: meta.Permissions(),
		RawURL:      meta.RawURL,
		VCS:         vcsInfo(loc.VCS),
		PTSLink:     s.ptsLink(loc.Package),
	})
}

// handleChecksum handles GET /api/sha256/{checksum}
// An optional ?package= narrows the results to one package.
func (s *Server) handleChecksum(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("checksum")
	occ, err := s.Checksums.Lookup(r.Context(), key)
	if err != nil {
		s.sendArchiveError(w, r, err)
		return
	}

	pkg := r.URL.Query().Get("package")
	results := make([]protocol.Occurrence, 0, len(occ))
	for _, o := range occ {
		if pkg != "" && o.Package != pkg {
			continue
		}
		results = append(results, protocol.Occurrence{Package: o.Package, Version: o.Version, Path: o.Path})
	}
	s.sendJSON(w, http.StatusOK, protocol.ChecksumResponse{
		SHA256:  key,
		Count:   len(results),
		Results: results,
	})
}

func vcsInfo(v *registry.VCS) *protocol.VCS {
	if v == nil {
		return nil
	}
	return &protocol.VCS{Type: v.Type, Browser: v.Browser}
}
