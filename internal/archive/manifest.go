package archive

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// ManifestHeader is the fixed first line of hashmap.txt.
const ManifestHeader = "Hashed name, Original Asset URL"

// ManifestEntry maps a stored name back to the asset's source URL.
type ManifestEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Manifest is the ordered, append-only record of stored assets.
type Manifest []ManifestEntry

// Append adds an entry at the end of the manifest.
func (m *Manifest) Append(name, url string) {
	*m = append(*m, ManifestEntry{Name: name, URL: url})
}

// Bytes renders the manifest as the flat text record written to storage.
func (m Manifest) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(ManifestHeader)
	buf.WriteByte('\n')
	for _, entry := range m {
		buf.WriteString(entry.Name)
		buf.WriteString(", ")
		buf.WriteString(entry.URL)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ParseManifest reads a manifest previously produced by Bytes.
func ParseManifest(data []byte) (Manifest, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var (
		out    Manifest
		header bool
	)
	for scanner.Scan() {
		line := scanner.Text()
		if !header {
			if line != ManifestHeader {
				return nil, fmt.Errorf("unexpected manifest header %q", line)
			}
			header = true
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, url, ok := strings.Cut(line, ", ")
		if !ok {
			return nil, fmt.Errorf("malformed manifest line %q", line)
		}
		out = append(out, ManifestEntry{Name: name, URL: url})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan manifest: %w", err)
	}
	if !header {
		return nil, fmt.Errorf("manifest is empty")
	}
	return out, nil
}
