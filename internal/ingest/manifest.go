package ingest

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Source formats the manifest accepts.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Source locates one published table. URL accepts http(s), ftp, or a bare
// local path.
type Source struct {
	URL       string `yaml:"url"`
	Format    string `yaml:"format,omitempty"`     // csv (default) or xlsx
	Sheet     string `yaml:"sheet,omitempty"`      // xlsx only: sheet name, default first sheet
	Charset   string `yaml:"charset,omitempty"`    // csv only: source encoding, default UTF-8
	ZipMember string `yaml:"zip_member,omitempty"` // member to extract when the source is a ZIP archive
}

// Manifest names the three source tables the raw layer is built from.
type Manifest struct {
	Races              Source `yaml:"races"`
	Constructors       Source `yaml:"constructors"`
	ConstructorResults Source `yaml:"constructor_results"`
}

// LoadManifest reads a sources manifest from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read manifest %s", path)
	}

	// The YAML has a top-level "sources" key.
	var wrapper struct {
		Sources Manifest `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "ingest: parse manifest")
	}

	m := &wrapper.Sources
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) validate() error {
	for _, t := range []struct {
		name string
		src  Source
	}{
		{tableRaces, m.Races},
		{tableConstructors, m.Constructors},
		{tableConstructorResults, m.ConstructorResults},
	} {
		if t.src.URL == "" {
			return eris.Errorf("ingest: manifest names no url for %s", t.name)
		}
		switch t.src.Format {
		case "", FormatCSV, FormatXLSX:
		default:
			return eris.Errorf("ingest: unknown format %q for %s (want %q or %q)",
				t.src.Format, t.name, FormatCSV, FormatXLSX)
		}
	}
	return nil
}
