// Package frontmatter reads and writes markdown documents with a YAML header.
package frontmatter

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

var delimiter = []byte("---\n")

// Render prefixes body with meta encoded as YAML frontmatter
func Render(meta any, body []byte) ([]byte, error) {
	header, err := yaml.Marshal(meta)
	if err != nil {
		return nil, errors.Wrap(err, "encoding frontmatter")
	}

	var buf bytes.Buffer
	buf.Write(delimiter)
	buf.Write(header)
	buf.Write(delimiter)
	if len(body) > 0 {
		buf.WriteByte('\n')
		buf.Write(body)
	}
	return buf.Bytes(), nil
}

// Parse decodes the frontmatter into meta and returns the remaining content.
// Content without frontmatter is returned unchanged and meta is untouched.
func Parse(content []byte, meta any) ([]byte, error) {
	if !bytes.HasPrefix(content, delimiter) {
		return content, nil
	}

	rest := content[len(delimiter):]
	endIdx := bytes.Index(rest, []byte("\n---"))
	if endIdx == -1 {
		return content, nil
	}

	if err := yaml.Unmarshal(rest[:endIdx+1], meta); err != nil {
		return nil, errors.Wrap(err, "decoding frontmatter")
	}
	remaining := rest[endIdx+len("\n---"):]
	return bytes.TrimLeft(remaining, "\n"), nil
}
