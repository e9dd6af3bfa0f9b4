package seed

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	models "drivestore/internal/domain/models/namespace"
	nsSvc "drivestore/internal/domain/services/namespace"
)

// SeedFile is one demo file, addressed by its folder path
type SeedFile struct {
	Folder   string // "" for root, "Docs/Reports" for nested
	Name     string
	Content  string
	MimeType string
}

// DemoFolders lists the demo folder hierarchy, parents before children
var DemoFolders = []string{
	"Documents",
	"Documents/Reports",
	"Documents/Reports/2024",
	"Photos",
	"Projects",
	"Projects/drivestore",
}

// DemoFiles lists the files created inside DemoFolders
var DemoFiles = []SeedFile{
	{Folder: "", Name: "README.md", Content: "# My Drive\n\nDemo content created by the seed command.\n", MimeType: "text/markdown"},
	{Folder: "Documents", Name: "todo.txt", Content: "- renew passport\n- file taxes\n"},
	{Folder: "Documents/Reports", Name: "q3-summary.csv", Content: "quarter,revenue\nQ3,1200\n", MimeType: "text/csv"},
	{Folder: "Documents/Reports/2024", Name: "annual.txt", Content: "Annual report placeholder.\n"},
	{Folder: "Projects/drivestore", Name: "notes.md", Content: "Ideas for the next release.\n", MimeType: "text/markdown"},
}

// TreeSeeder creates demo namespaces through the tree service so seeded
// data obeys the same quota and naming rules as real uploads
type TreeSeeder struct {
	tree   nsSvc.TreeService
	logger *slog.Logger
}

// NewTreeSeeder creates a new tree seeder
func NewTreeSeeder(tree nsSvc.TreeService, logger *slog.Logger) *TreeSeeder {
	return &TreeSeeder{
		tree:   tree,
		logger: logger,
	}
}

// SeedDemoTree creates DemoFolders and DemoFiles for ownerID and returns
// the created entries keyed by their display path
func (s *TreeSeeder) SeedDemoTree(ctx context.Context, ownerID string) (map[string]*models.Entry, error) {
	created := make(map[string]*models.Entry, len(DemoFolders)+len(DemoFiles))

	for _, folderPath := range DemoFolders {
		parent, name := path.Split(folderPath)
		parentID, err := lookupParent(created, strings.TrimSuffix(parent, "/"))
		if err != nil {
			return created, err
		}

		folder, err := s.tree.CreateFolder(ctx, &nsSvc.CreateFolderRequest{
			OwnerID:  ownerID,
			Name:     name,
			ParentID: parentID,
		})
		if err != nil {
			return created, fmt.Errorf("create folder %s: %w", folderPath, err)
		}
		created[folderPath] = folder
		s.logger.Debug("seeded folder", "path", folder.FullPath(), "id", folder.ID)
	}

	for _, f := range DemoFiles {
		parentID, err := lookupParent(created, f.Folder)
		if err != nil {
			return created, err
		}

		file, err := s.tree.CreateFile(ctx, &nsSvc.CreateFileRequest{
			OwnerID:  ownerID,
			Name:     f.Name,
			ParentID: parentID,
			Content:  []byte(f.Content),
			MimeType: f.MimeType,
		})
		if err != nil {
			return created, fmt.Errorf("create file %s/%s: %w", f.Folder, f.Name, err)
		}
		created[path.Join(f.Folder, f.Name)] = file
		s.logger.Debug("seeded file", "path", file.FullPath(), "id", file.ID, "size", file.Size)
	}

	s.logger.Info("demo tree seeded",
		"owner_id", ownerID,
		"folders", len(DemoFolders),
		"files", len(DemoFiles),
	)
	return created, nil
}

func lookupParent(created map[string]*models.Entry, folderPath string) (*string, error) {
	if folderPath == "" {
		return nil, nil
	}
	parent, ok := created[folderPath]
	if !ok {
		return nil, fmt.Errorf("seed folder %q is not defined before its children", folderPath)
	}
	return &parent.ID, nil
}

// ClearOwner permanently deletes every root-level entry of ownerID,
// trashed ones included
func (s *TreeSeeder) ClearOwner(ctx context.Context, ownerID string) (int, error) {
	roots, err := s.tree.ListChildren(ctx, ownerID, nil, models.ListFilter{})
	if err != nil {
		return 0, err
	}
	trashed, err := s.tree.ListTrash(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range append(roots, trashed...) {
		if err := s.tree.Delete(ctx, ownerID, e.ID); err != nil {
			return removed, fmt.Errorf("delete %s: %w", e.FullPath(), err)
		}
		removed++
	}

	s.logger.Info("owner data cleared", "owner_id", ownerID, "entries_removed", removed)
	return removed, nil
}
