package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	dataDirMode fs.FileMode = 0o750
	dbFileMode  fs.FileMode = 0o600
)

// DataPaths is the on-disk layout under dataDir:
//
//	db.sqlite       clicks and buttons (sqlite driver only)
//	audit.sqlite    configuration change log
//	icons/sha256/   content-addressed button icons
type DataPaths struct {
	RootDir     string
	DBPath      string
	AuditDBPath string
	IconsSHA256 string
}

func dataPathsFor(root string) DataPaths {
	return DataPaths{
		RootDir:     root,
		DBPath:      filepath.Join(root, "db.sqlite"),
		AuditDBPath: filepath.Join(root, "audit.sqlite"),
		IconsSHA256: filepath.Join(root, "icons", "sha256"),
	}
}

// InitDataDir creates the layout. The click SQLite file is only created when
// createDB is set, i.e. for the sqlite driver with no explicit database.path.
// Click history and audit actors are private, so new directories and the
// database file are not world-readable.
func InitDataDir(root string, createDB bool) (DataPaths, error) {
	paths := dataPathsFor(root)

	info, err := os.Stat(root)
	switch {
	case err == nil && !info.IsDir():
		return paths, fmt.Errorf("data directory %s exists and is not a directory", root)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return paths, fmt.Errorf("stat data directory %s: %w", root, err)
	}

	if err := os.MkdirAll(paths.IconsSHA256, dataDirMode); err != nil {
		return paths, fmt.Errorf("create icons directory %s: %w", paths.IconsSHA256, err)
	}
	if !createDB {
		return paths, nil
	}

	f, err := os.OpenFile(paths.DBPath, os.O_CREATE|os.O_RDWR, dbFileMode)
	if err != nil {
		return paths, fmt.Errorf("create/open sqlite file %s: %w", paths.DBPath, err)
	}
	if err := f.Close(); err != nil {
		return paths, fmt.Errorf("close sqlite file %s: %w", paths.DBPath, err)
	}
	return paths, nil
}
