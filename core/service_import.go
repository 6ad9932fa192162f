package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pkt.systems/codebench/internal/importer"
	"pkt.systems/codebench/internal/logx"
	"pkt.systems/codebench/schema"
)

const (
	invalidFileTitle  = "Invalid file type."
	importFailedTitle = "Unable to import file."
)

var extensionLabels = map[string]string{
	"js":   "JS",
	"ts":   "TS",
	"py":   "Python",
	"java": "Java",
	"cs":   "C#",
	"php":  "PHP",
}

func (s *service) ImportFile(ctx context.Context, req schema.ImportFileRequest) (schema.ImportFileResponse, error) {
	if ctx == nil {
		return schema.ImportFileResponse{}, errMissingContext
	}
	log := logx.WithSession(ctx, req.SessionID).With("file", req.FileName)

	ext, validateErr := importer.Validate(req.FileName, s.cfg.AllowedExtensions)

	s.mu.Lock()
	sess, err := s.sessionLocked(req.SessionID)
	if err != nil {
		s.mu.Unlock()
		log.Warn("service import failed", "err", err)
		return schema.ImportFileResponse{}, err
	}
	if validateErr != nil {
		now := s.now()
		sess.addNotice(schema.Notice{
			ID:          schema.NoticeID(newID(now)),
			Title:       invalidFileTitle,
			Description: allowedDescription(s.cfg.AllowedExtensions),
			CreatedAt:   now,
		}, s.cfg.MaxNotices)
		sess.UpdatedAt = now
		snap := sess.Snapshot()
		s.mu.Unlock()
		s.emit(schema.SessionEventUpdated, "", snap)
		log.Warn("service import rejected", "extension", ext, "err", validateErr)
		return schema.ImportFileResponse{Session: snap, Extension: ext}, validateErr
	}
	sess.Importing = true
	sess.importGen++
	gen := sess.importGen
	sess.UpdatedAt = s.now()
	pending := sess.Snapshot()
	s.mu.Unlock()
	s.emit(schema.SessionEventUpdated, "", pending)

	text, readErr := readCandidate(req, ext, s.cfg.MaxImportBytes)

	s.mu.Lock()
	if s.sessions[sess.ID] != sess {
		s.mu.Unlock()
		log.Info("service import discarded", "reason", "session closed")
		return schema.ImportFileResponse{}, schema.ErrSessionNotFound
	}
	if sess.importGen != gen {
		snap := sess.Snapshot()
		s.mu.Unlock()
		log.Info("service import discarded", "reason", "superseded")
		return schema.ImportFileResponse{Session: snap, Extension: ext}, nil
	}
	now := s.now()
	sess.Importing = false
	sess.UpdatedAt = now
	if readErr != nil {
		sess.addNotice(schema.Notice{
			ID:          schema.NoticeID(newID(now)),
			Title:       importFailedTitle,
			Description: readErr.Error(),
			CreatedAt:   now,
		}, s.cfg.MaxNotices)
		snap := sess.Snapshot()
		s.mu.Unlock()
		s.emit(schema.SessionEventUpdated, "", snap)
		log.Warn("service import failed", "err", readErr)
		return schema.ImportFileResponse{Session: snap, Extension: ext}, readErr
	}
	sess.Document.SourceText = text
	resp := schema.ImportFileResponse{Extension: ext}
	if detected, ok := importer.LanguageForExtension(ext); ok {
		resp.DetectedLanguage = detected
		resp.LanguageMismatch = detected != sess.Document.Language
	}
	resp.Session = sess.Snapshot()
	s.mu.Unlock()

	s.emit(schema.SessionEventUpdated, "", resp.Session)
	log.Info("service import done", "extension", ext, "bytes", len(text), "language_mismatch", resp.LanguageMismatch)
	return resp, nil
}

func readCandidate(req schema.ImportFileRequest, ext string, limit int64) (string, error) {
	raw, err := importer.Read(req.FileName, req.Content, limit)
	if err != nil {
		if schema.IsValidation(err) {
			return "", err
		}
		return "", fmt.Errorf("read %s: %w", req.FileName, errors.Join(schema.ErrImportDecode, err))
	}
	candidate := importer.Candidate{FileName: req.FileName, Extension: ext, RawContent: raw}
	return candidate.Text()
}

// allowedDescription renders the allow-list as "Only JS, TS, and PHP files are allowed."
func allowedDescription(allowed []string) string {
	labels := make([]string, 0, len(allowed))
	for _, ext := range allowed {
		label, ok := extensionLabels[ext]
		if !ok {
			label = "." + ext
		}
		labels = append(labels, label)
	}
	var list string
	switch len(labels) {
	case 0:
		return "No files are allowed."
	case 1:
		list = labels[0]
	case 2:
		list = labels[0] + " and " + labels[1]
	default:
		list = strings.Join(labels[:len(labels)-1], ", ") + ", and " + labels[len(labels)-1]
	}
	return "Only " + list + " files are allowed."
}
