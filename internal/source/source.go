// Package source resolves the stories argument of compute-embeddings to a
// local directory. Git URLs are cloned into memory and their files written
// to a temporary directory.
package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/storage/memory"
)

var (
	ErrNotDirectory = errors.New("stories path is not a directory")
	ErrCloneFailed  = errors.New("failed to clone stories repository")
)

// Stories is a resolved story directory.
type Stories struct {
	// Dir holds the story files.
	Dir string

	// Origin is the argument the directory was resolved from.
	Origin string

	// Revision is the commit hash for git sources, empty otherwise.
	Revision string

	cleanup func() error
}

// Close removes any temporary files created for the source.
func (s *Stories) Close() error {
	if s.cleanup == nil {
		return nil
	}
	return s.cleanup()
}

// IsRemote reports whether arg names a git repository rather than a local path.
func IsRemote(arg string) bool {
	for _, prefix := range []string{"http://", "https://", "ssh://", "git://", "file://", "git@"} {
		if strings.HasPrefix(arg, prefix) {
			return true
		}
	}
	return false
}

// Resolve returns the story directory for arg. A local directory is used as
// is; when it is a git work tree its HEAD is reported as the revision. A git
// URL is cloned; an optional "#subdir" suffix selects a directory inside it.
func Resolve(ctx context.Context, arg string) (*Stories, error) {
	if IsRemote(arg) {
		return resolveRemote(ctx, arg)
	}

	info, err := os.Stat(arg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotDirectory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, arg)
	}

	stories := &Stories{Dir: arg, Origin: arg}
	if repo, err := git.PlainOpen(arg); err == nil {
		if head, err := repo.Head(); err == nil {
			stories.Revision = head.Hash().String()
		}
	}
	return stories, nil
}

func resolveRemote(ctx context.Context, arg string) (*Stories, error) {
	url, subdir, _ := strings.Cut(arg, "#")
	subdir = strings.Trim(path.Clean("/"+subdir), "/")

	log.Printf("[Source] Cloning %s", url)
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCloneFailed, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve HEAD: %w", ErrCloneFailed, err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get commit: %w", ErrCloneFailed, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tree: %w", ErrCloneFailed, err)
	}

	tmp, err := os.MkdirTemp("", "lore-stories-*")
	if err != nil {
		return nil, err
	}
	cleanup := func() error { return os.RemoveAll(tmp) }

	written, err := writeTree(tree, subdir, tmp)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: %w", ErrCloneFailed, err)
	}
	log.Printf("[Source] Checked out %d files at %s", written, head.Hash().String()[:7])

	return &Stories{
		Dir:      tmp,
		Origin:   arg,
		Revision: head.Hash().String(),
		cleanup:  cleanup,
	}, nil
}

// writeTree copies the non-binary files directly under subdir of tree into dir.
func writeTree(tree *object.Tree, subdir, dir string) (int, error) {
	written := 0
	err := tree.Files().ForEach(func(file *object.File) error {
		if path.Dir(file.Name) != orDot(subdir) {
			return nil
		}
		if isBinary, _ := file.IsBinary(); isBinary {
			return nil
		}

		content, err := file.Contents()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file.Name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, path.Base(file.Name)), []byte(content), 0o644); err != nil {
			return err
		}
		written++
		return nil
	})
	return written, err
}

func orDot(subdir string) string {
	if subdir == "" {
		return "."
	}
	return subdir
}
