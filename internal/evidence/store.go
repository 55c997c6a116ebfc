package evidence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fabworks/fabops/backend/internal/domain"
	"go.uber.org/zap"
)

// Export files below this size are treated as corrupt or incomplete.
const minValidFileSize = 100

var (
	// ErrUnsafeFilename indicates the filename failed path-safety checks.
	ErrUnsafeFilename = errors.New("evidence: unsafe filename")
	// ErrFileNotFound indicates no export artifact exists under the name.
	ErrFileNotFound = errors.New("evidence: file not found")
	// ErrFileCorrupt indicates the artifact is too small to be a complete export.
	ErrFileCorrupt = errors.New("evidence: file corrupt or empty")
	// ErrUnsupportedFileType indicates an extension other than .pdf or .csv.
	ErrUnsupportedFileType = errors.New("evidence: unsupported file type")
)

// Format selects an export rendering.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat validates a caller-supplied format string.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(FormatCSV):
		return FormatCSV, nil
	case string(FormatPDF):
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, value)
	}
}

// FileStore owns the evidence uploads directory: deterministic filenames,
// path-safety validation, and artifact verification before serving.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore resolves the directory to an absolute path and creates it.
// Directory-creation failure is fatal: no export can proceed without it.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("evidence: uploads directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = noOpLogger
	}
	return &FileStore{dir: abs, logger: logger}, nil
}

// Dir returns the absolute uploads directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Filename builds the deterministic artifact name
// legal-evidence-{EntityType}_{entityId}_{YYYYMMDDHHMMSSmmm}.{ext}.
func (s *FileStore) Filename(entityType domain.EntityType, entityID string, format Format, at time.Time) string {
	stamp := at.UTC().Format("20060102150405") + fmt.Sprintf("%03d", at.UTC().Nanosecond()/1e6)
	return fmt.Sprintf("legal-evidence-%s_%s_%s.%s", entityType, entityID, stamp, format)
}

// Resolve validates a caller-supplied filename against path traversal and
// returns the absolute path inside the uploads directory. Each check is a
// hard rejection: no empty names, no "..", no path separators, the name
// must equal its own basename, and the joined path must remain under the
// uploads directory after cleaning.
func (s *FileStore) Resolve(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrUnsafeFilename)
	}
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrUnsafeFilename, filename)
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeFilename, filename)
	}
	if filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrUnsafeFilename, filename)
	}

	resolved := filepath.Clean(filepath.Join(s.dir, name))
	if !strings.HasPrefix(resolved, s.dir+string(os.PathSeparator)) {
		s.logger.Warn("path traversal attempt rejected", zap.String("filename", filename))
		return "", fmt.Errorf("%w: %q", ErrUnsafeFilename, filename)
	}
	return resolved, nil
}

// Verify confirms a resolved artifact exists, is large enough to be a
// complete export, and carries a supported extension, in that order.
func (s *FileStore) Verify(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filepath.Base(path))
		}
		return nil, err
	}
	if info.Size() < minValidFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileCorrupt, info.Size())
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".csv":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, filepath.Ext(path))
	}
	return info, nil
}

// Create opens a new artifact file for writing.
func (s *FileStore) Create(filename string) (*os.File, string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, "", err
	}
	path := filepath.Join(s.dir, filename)
	file, err := os.Create(path)
	if err != nil {
		return nil, "", err
	}
	return file, path, nil
}

// PathFor ensures the uploads directory exists and returns the absolute
// path an artifact with the given name would occupy.
func (s *FileStore) PathFor(filename string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filename), nil
}

// RemovePartial deletes a partially written artifact after a failed export.
func (s *FileStore) RemovePartial(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove partial export", zap.String("path", path), zap.Error(err))
	}
}

// ContentType maps a verified artifact to its response media type.
func ContentType(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "application/pdf"
	}
	return "text/csv"
}

// Disposition returns inline for PDFs so browsers render them, attachment
// for CSVs to force a download.
func Disposition(path, filename string) string {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return fmt.Sprintf("inline; filename=%q", filename)
	}
	return fmt.Sprintf("attachment; filename=%q", filename)
}
