// Package repo locates the repository root and describes the private
// directory layout under it (§6, external interfaces).
package repo

import (
	"os"
	"path/filepath"

	"github.com/codebased/codebased/internal/codebaseerrors"
)

// PrivateDirName is the recommended name for the tool's private directory.
const PrivateDirName = ".codebased"

// VCSMarker is the directory whose presence identifies a repository root.
const VCSMarker = ".git"

// IgnoreFileName is the repository's top-level ignore file.
const IgnoreFileName = ".gitignore"

// Repo describes a located repository and the paths of its private files.
type Repo struct {
	Root       string
	PrivateDir string
}

// DBPath is the relational-store file.
func (r Repo) DBPath() string { return filepath.Join(r.PrivateDir, "codebased.db") }

// VectorIndexPath is the vector-index snapshot file.
func (r Repo) VectorIndexPath() string { return filepath.Join(r.PrivateDir, "index.faiss") }

// LogDir is where auxiliary logs are written.
func (r Repo) LogDir() string { return filepath.Join(r.PrivateDir, "logs") }

// LockPath is the advisory single-writer lock file.
func (r Repo) LockPath() string { return filepath.Join(r.PrivateDir, "lock") }

// IgnoreFilePath is the repository's top-level ignore file.
func (r Repo) IgnoreFilePath() string { return filepath.Join(r.Root, IgnoreFileName) }

// Find walks upward from startPath until a directory containing VCSMarker
// is found. Absence is a user error (NotInRepository, fatal at startup).
func Find(startPath string) (Repo, error) {
	abs, err := filepath.Abs(startPath)
	if err != nil {
		return Repo{}, codebaseerrors.NotInRepository(startPath)
	}

	dir := abs
	for {
		marker := filepath.Join(dir, VCSMarker)
		if info, err := os.Stat(marker); err == nil && info.IsDir() {
			return Repo{
				Root:       dir,
				PrivateDir: filepath.Join(dir, PrivateDirName),
			}, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Repo{}, codebaseerrors.NotInRepository(startPath)
		}
		dir = parent
	}
}

// Ensure creates the private directory and its logs subdirectory if absent.
func (r Repo) Ensure() error {
	return os.MkdirAll(r.LogDir(), 0o755)
}
