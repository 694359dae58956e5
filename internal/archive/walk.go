package archive

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/dbrownell/devenv-utilities/internal/graph"
)

// Lister lists the children of a remote folder. Satisfied by *graph.Client.
type Lister interface {
	ListChildren(ctx context.Context, folderID string) ([]graph.Item, error)
}

// RemoteFile is a file found under the archive root, with its path relative
// to that root.
type RemoteFile struct {
	graph.Item
	RemotePath string
}

type pendingFolder struct {
	id   string
	path string
}

// Enumerate walks the folder tree under root depth-first and returns every
// file. Folders are descended; OneNote packages are skipped.
func Enumerate(ctx context.Context, lister Lister, root *graph.Item, logger *slog.Logger) ([]RemoteFile, error) {
	stack := []pendingFolder{{id: root.ID, path: ""}}

	var files []RemoteFile

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("archive: enumerating: %w", err)
		}

		folder := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := lister.ListChildren(ctx, folder.id)
		if err != nil {
			return nil, fmt.Errorf("archive: listing %q: %w", displayPath(folder.path), err)
		}

		logger.Debug("listed folder",
			slog.String("path", displayPath(folder.path)),
			slog.Int("children", len(children)),
		)

		for i := range children {
			child := children[i]
			childPath := path.Join(folder.path, child.Name)

			switch {
			case child.IsPackage:
				continue
			case child.IsFolder:
				stack = append(stack, pendingFolder{id: child.ID, path: childPath})
			default:
				files = append(files, RemoteFile{Item: child, RemotePath: childPath})
			}
		}
	}

	logger.Info("enumerated remote folder",
		slog.String("root", root.Name),
		slog.Int("files", len(files)),
	)

	return files, nil
}

func displayPath(p string) string {
	if p == "" {
		return "/"
	}

	return p
}
