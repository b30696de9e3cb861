package changelog

import (
	"bufio"
	"io/fs"
	"strings"

	"github.com/pkg/errors"
)

// readProperties reads a key=value properties file. Blank lines and lines
// starting with # or ! are skipped, and ':' is accepted as a separator.
func readProperties(fsys fs.FS, path string) ([][2]string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open properties file %s", path)
	}
	defer func() { _ = f.Close() }()

	var (
		out     [][2]string
		pending string
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if pending != "" {
			line = pending + line
			pending = ""
		}

		if line == "" || line[0] == '#' || line[0] == '!' {
			continue
		}

		if strings.HasSuffix(line, `\`) {
			pending = strings.TrimSuffix(line, `\`)
			continue
		}

		idx := strings.IndexAny(line, "=:")
		if idx < 0 {
			out = append(out, [2]string{line, ""})
			continue
		}

		out = append(out, [2]string{
			strings.TrimSpace(line[:idx]),
			strings.TrimSpace(line[idx+1:]),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read properties file %s", path)
	}

	return out, nil
}
