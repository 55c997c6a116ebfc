package evidence

import (
	"context"

	"github.com/fabworks/fabops/backend/internal/audit"
	"go.uber.org/zap"
)

// Export builds a package for the given ids and renders it to the requested
// format under a deterministic filename. On a failed write the partial
// artifact is removed before the error is returned.
func (s *Service) Export(ctx context.Context, ids audit.EntityIDs, format Format, generatedBy string) (string, Package, error) {
	pkg, err := s.BuildPackage(ctx, ids, generatedBy)
	if err != nil {
		return "", Package{}, err
	}

	filename := s.store.Filename(
		pkg.Metadata.EntityIDs.PrimaryEntityType,
		pkg.Metadata.EntityIDs.PrimaryEntityID,
		format,
		s.clock(),
	)

	switch format {
	case FormatCSV:
		err = s.exportCSV(pkg, filename)
	case FormatPDF:
		err = s.exportPDF(pkg, filename)
	default:
		return "", Package{}, ErrUnsupportedFileType
	}
	if err != nil {
		s.logger.Error("evidence export failed",
			zap.String("filename", filename),
			zap.String("format", string(format)),
			zap.Error(err))
		return "", Package{}, err
	}

	s.logger.Info("evidence package exported",
		zap.String("filename", filename),
		zap.String("format", string(format)),
		zap.Int("events", pkg.Metadata.TotalHistoryEntries),
		zap.Int("documents", pkg.Metadata.TotalDocuments))
	return filename, pkg, nil
}

func (s *Service) exportCSV(pkg Package, filename string) error {
	file, path, err := s.store.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteCSV(file, pkg.Evidence.Timeline); err != nil {
		file.Close()
		s.store.RemovePartial(path)
		return err
	}
	if err := file.Close(); err != nil {
		s.store.RemovePartial(path)
		return err
	}
	return nil
}

func (s *Service) exportPDF(pkg Package, filename string) error {
	// writePDF opens the target file itself; the store only supplies the path.
	path, err := s.store.PathFor(filename)
	if err != nil {
		return err
	}
	if err := writePDF(pkg, path); err != nil {
		s.store.RemovePartial(path)
		return err
	}
	return nil
}
