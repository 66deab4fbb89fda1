package commands

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/vectorflow/internal/pipefile"
)

//go:embed all:templates
var templateFS embed.FS

// Scaffold groups and the state of a file after init.
const (
	groupConfig    = "config"
	groupPipelines = "pipelines"

	fileCreated     = "created"
	fileOverwritten = "overwritten"
	fileKept        = "kept"
)

// dotfiles are stored without their leading dot so embed keeps them.
var dotfiles = map[string]string{
	"gitignore": ".gitignore",
}

// scaffoldFile is one file written (or left alone) by init.
type scaffoldFile struct {
	Path   string
	Group  string
	Status string
}

// scaffold copies the named project template into dir. Existing files are
// kept unless force is set. Bundled pipelines must parse as pipeline
// documents before anything is written for them.
func scaffold(name, dir string, force bool) ([]scaffoldFile, error) {
	root := path.Join("templates", name)
	if _, err := fs.Stat(templateFS, root); err != nil {
		return nil, fmt.Errorf("unknown project template %q", name)
	}

	var files []scaffoldFile
	err := fs.WalkDir(templateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel := strings.TrimPrefix(p, root+"/")
		if dot, ok := dotfiles[path.Base(rel)]; ok {
			rel = path.Join(path.Dir(rel), dot)
		}

		content, err := templateFS.ReadFile(p)
		if err != nil {
			return err
		}
		group := groupConfig
		if strings.HasPrefix(rel, groupPipelines+"/") {
			group = groupPipelines
			if _, err := pipefile.Parse(content); err != nil {
				return fmt.Errorf("template %s: %w", rel, err)
			}
		}

		target := filepath.Join(dir, filepath.FromSlash(rel))
		status := fileCreated
		if _, err := os.Stat(target); err == nil {
			if !force {
				files = append(files, scaffoldFile{Path: rel, Group: group, Status: fileKept})
				return nil
			}
			status = fileOverwritten
		}
		if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
			return err
		}
		if err := os.WriteFile(target, content, 0600); err != nil {
			return err
		}
		files = append(files, scaffoldFile{Path: rel, Group: group, Status: status})
		return nil
	})
	return files, err
}
