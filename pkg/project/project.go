package project

import (
	_ "embed"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"testing/fstest"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/consts"
)

const (
	changeLogPlaceholder = "$$CHANGELOG"
	urlPlaceholder       = "$$DATABASE_URL"
	defaultChangeLogBase = "db/changelog"
)

var (
	//go:embed embed/changekeeper.yaml
	defaultConfig []byte

	//go:embed embed/changelog.yaml
	yamlChangeLog []byte

	//go:embed embed/changelog.sql
	sqlChangeLog []byte

	//go:embed embed/changelog.xml
	xmlChangeLog []byte

	changeLogs = map[string][]byte{
		"yaml": yamlChangeLog,
		"sql":  sqlChangeLog,
		"xml":  xmlChangeLog,
	}
)

type (
	// InitOptions contains options for project initialization
	InitOptions struct {
		// DatabaseURL is written to the new configuration. Defaults to
		// consts.DefaultDatabaseURL.
		DatabaseURL string

		// Format selects the root changelog format: yaml (default), sql or
		// xml.
		Format string
	}

	// Project is a changekeeper project rooted at a directory.
	Project struct {
		root string
	}
)

// Formats returns the supported root changelog formats.
func Formats() []string {
	out := make([]string, 0, len(changeLogs))
	for f := range changeLogs {
		out = append(out, f)
	}

	sort.Strings(out)
	return out
}

// New creates a Project for an existing directory.
//
// Example:
//
//	proj := project.New("/path/to/app")
//	cfg, err := proj.Initialize(project.InitOptions{
//		DatabaseURL: "postgres://localhost:5432/app",
//		Format:      "sql",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Root changelog: %s\n", cfg.ChangeLog)
func New(path string) *Project {
	return &Project{root: path}
}

// Root returns the project directory.
func (p *Project) Root() string { return p.root }

// ConfigPath returns the path of the project's configuration file.
func (p *Project) ConfigPath() string {
	return filepath.Join(p.root, consts.DefaultConfigFile)
}

// Initialize creates the project layout: changekeeper.yaml, a root changelog
// that includes every file under db/changes, and the db/changes directory.
// It is idempotent: existing files and directories are left untouched, and
// the resulting configuration is loaded and returned.
func (p *Project) Initialize(options InitOptions) (*config.Config, error) {
	if err := p.ensureDirectory(); err != nil {
		return nil, err
	}

	format := strings.ToLower(options.Format)
	if format == "" {
		format = "yaml"
	}

	content, ok := changeLogs[format]
	if !ok {
		return nil, errors.Errorf("unsupported changelog format %q (expected one of %s)", options.Format, strings.Join(Formats(), ", "))
	}

	url := options.DatabaseURL
	if url == "" {
		url = consts.DefaultDatabaseURL
	}

	changeLog := defaultChangeLogBase + "." + format
	cfg := strings.NewReplacer(
		changeLogPlaceholder, changeLog,
		urlPlaceholder, url,
	).Replace(string(defaultConfig))

	image := fstest.MapFS{
		"db":                     {Mode: os.ModeDir | consts.ModeDir},
		"db/changes":             {Mode: os.ModeDir | consts.ModeDir},
		consts.DefaultConfigFile: {Data: []byte(cfg)},
		path.Clean(changeLog):    {Data: content},
	}

	if err := p.write(image); err != nil {
		return nil, err
	}

	loaded, err := config.LoadConfigFile(p.ConfigPath())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", consts.DefaultConfigFile)
	}

	return loaded, nil
}

// write creates every missing entry of image below the project root.
func (p *Project) write(image fstest.MapFS) error {
	names := make([]string, 0, len(image))
	for name := range image {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry := image[name]
		fullPath := filepath.Join(p.root, filepath.FromSlash(name))

		if _, err := os.Stat(fullPath); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to stat %s", fullPath)
		}

		if entry.Mode.IsDir() {
			if err := os.MkdirAll(fullPath, entry.Mode.Perm()); err != nil {
				return errors.Wrapf(err, "failed to create directory %s", fullPath)
			}

			continue
		}

		parentDir := filepath.Dir(fullPath)
		if err := os.MkdirAll(parentDir, consts.ModeDir); err != nil {
			return errors.Wrapf(err, "failed to create parent directory %s", parentDir)
		}

		if err := os.WriteFile(fullPath, entry.Data, consts.ModeFile); err != nil {
			return errors.Wrapf(err, "failed to write file %s", fullPath)
		}
	}

	return nil
}

func (p *Project) ensureDirectory() error {
	dir, err := os.Stat(p.root)
	if err != nil {
		return errors.Wrapf(err, "failed to stat dir: %s", p.root)
	}

	if !dir.IsDir() {
		return errors.Errorf("%s is not a directory", p.root)
	}

	return nil
}
