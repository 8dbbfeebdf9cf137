package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_layout.yaml
var defaultLayout []byte

// Layout is the static topic and slot configuration of a run.
//
//	topics:
//	  - type: world
//	    newsapi: {endpoint: top-headlines, params: {sources: bbc-news}}
//	slots:
//	  - {id: w1, name: World, type: world}
type Layout struct {
	Topics []Topic   `yaml:"topics"`
	Slots  []SlotDef `yaml:"slots"`
}

// Topic is one category type together with the queries that feed it.
type Topic struct {
	Type        string        `yaml:"type"`
	Description string        `yaml:"description"`
	NewsAPI     *NewsAPIQuery `yaml:"newsapi"`
	APITube     *APITubeQuery `yaml:"apitube"`
	RSS         []string      `yaml:"rss"`
}

type NewsAPIQuery struct {
	Endpoint string            `yaml:"endpoint"` // "everything" or "top-headlines"
	Params   map[string]string `yaml:"params"`
}

type APITubeQuery struct {
	Params map[string]string `yaml:"params"`
}

// SlotDef is one output position. Several slots may share a Type.
type SlotDef struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// LoadLayout reads the layout from path, or the embedded default when path
// is empty.
func LoadLayout(path string) (*Layout, error) {
	if path == "" {
		return ParseLayout(bytes.NewReader(defaultLayout))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening layout: %w", err)
	}
	defer f.Close()

	return ParseLayout(f)
}

// ParseLayout decodes and validates a YAML layout.
func ParseLayout(r io.Reader) (*Layout, error) {
	var l Layout
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&l); err != nil {
		return nil, fmt.Errorf("parsing layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

func (l *Layout) Validate() error {
	if len(l.Slots) == 0 {
		return fmt.Errorf("layout has no slots")
	}

	topics := make(map[string]bool, len(l.Topics))
	for _, t := range l.Topics {
		if t.Type == "" {
			return fmt.Errorf("layout topic with empty type")
		}
		if topics[t.Type] {
			return fmt.Errorf("duplicate topic type %q", t.Type)
		}
		if t.NewsAPI != nil && t.NewsAPI.Endpoint != "everything" && t.NewsAPI.Endpoint != "top-headlines" {
			return fmt.Errorf("topic %q: newsapi endpoint must be 'everything' or 'top-headlines'", t.Type)
		}
		topics[t.Type] = true
	}

	ids := make(map[string]bool, len(l.Slots))
	for _, s := range l.Slots {
		if s.ID == "" {
			return fmt.Errorf("layout slot with empty id")
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate slot id %q", s.ID)
		}
		if !topics[s.Type] {
			return fmt.Errorf("slot %q references unknown topic type %q", s.ID, s.Type)
		}
		ids[s.ID] = true
	}
	return nil
}

// CategoryTypes returns the distinct slot types in layout order.
func (l *Layout) CategoryTypes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range l.Slots {
		if !seen[s.Type] {
			seen[s.Type] = true
			out = append(out, s.Type)
		}
	}
	return out
}

// SlotCounts returns how many slots each category type has.
func (l *Layout) SlotCounts() map[string]int {
	counts := make(map[string]int)
	for _, s := range l.Slots {
		counts[s.Type]++
	}
	return counts
}

// Topic returns the topic with the given type.
func (l *Layout) Topic(typ string) (Topic, bool) {
	for _, t := range l.Topics {
		if t.Type == typ {
			return t, true
		}
	}
	return Topic{}, false
}
