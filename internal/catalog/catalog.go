package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	types "github.com/yungbote/roadmap-tracker/internal/domain/progress"
	"github.com/yungbote/roadmap-tracker/internal/platform/apierr"
	"github.com/yungbote/roadmap-tracker/internal/progress"
)

//go:embed topics.yaml
var defaultTopics []byte

var ErrTopicNotFound = apierr.New(http.StatusNotFound, "topic_not_found", errors.New("topic not found"))

type Resource struct {
	Title        string             `yaml:"title" json:"title"`
	Type         types.ResourceType `yaml:"type" json:"type"`
	Description  string             `yaml:"description" json:"description"`
	URL          string             `yaml:"url" json:"url"`
	SubResources []Resource         `yaml:"subResources" json:"subResources,omitempty"`
}

type Node struct {
	ID          string      `yaml:"id" json:"id"`
	Label       string      `yaml:"label" json:"label"`
	Description string      `yaml:"description" json:"description"`
	Level       types.Level `yaml:"level" json:"level"`
	Resources   []Resource  `yaml:"resources" json:"resources"`
}

type Edge struct {
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`
}

// Book is a downloadable reference listed under a topic.
type Book struct {
	Title       string `yaml:"title" json:"title"`
	Author      string `yaml:"author" json:"author"`
	Description string `yaml:"description" json:"description"`
	Level       string `yaml:"level" json:"level"`
	Language    string `yaml:"language" json:"language"`
	DownloadURL string `yaml:"downloadUrl" json:"downloadUrl"`
}

type Reference struct {
	Title       string             `yaml:"title" json:"title"`
	Author      string             `yaml:"author" json:"author"`
	Type        types.ResourceType `yaml:"type" json:"type"`
	Description string             `yaml:"description" json:"description"`
	Language    string             `yaml:"language" json:"language"`
	URL         string             `yaml:"url" json:"url"`
	Platform    string             `yaml:"platform,omitempty" json:"platform,omitempty"`
}

type Topic struct {
	ID                  string      `yaml:"id" json:"id"`
	Title               string      `yaml:"title" json:"title"`
	Description         string      `yaml:"description" json:"description"`
	Icon                string      `yaml:"icon" json:"icon,omitempty"`
	Nodes               []Node      `yaml:"nodes" json:"nodes"`
	Edges               []Edge      `yaml:"edges" json:"edges,omitempty"`
	Books               []Book      `yaml:"books" json:"books,omitempty"`
	AdditionalResources []Reference `yaml:"additionalResources" json:"additionalResources,omitempty"`
}

// Entry is one trackable resource of a topic, as the progress tracker lists it.
type Entry struct {
	ResourceID string             `json:"resourceId"`
	NodeID     string             `json:"nodeId"`
	Title      string             `json:"title"`
	Type       types.ResourceType `json:"type"`
	Level      types.Level        `json:"level"`
	URL        string             `json:"url"`
}

type TypeCounts struct {
	Videos   int `json:"videos"`
	Articles int `json:"articles"`
	Books    int `json:"books"`
}

func (c *TypeCounts) add(t types.ResourceType) {
	switch t {
	case types.ResourceVideo:
		c.Videos++
	case types.ResourceArticle:
		c.Articles++
	case types.ResourceBook:
		c.Books++
	}
}

type Catalog struct {
	topics  []Topic
	byID    map[string]int
	entries map[string]map[string]Entry
}

type document struct {
	Topics []Topic `yaml:"topics"`
}

// Default is the roadmap shipped with the binary.
func Default() (*Catalog, error) {
	return Parse(defaultTopics)
}

// Load reads a catalog file, or the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{
		topics:  doc.Topics,
		byID:    make(map[string]int, len(doc.Topics)),
		entries: make(map[string]map[string]Entry, len(doc.Topics)),
	}
	for i, t := range doc.Topics {
		if strings.TrimSpace(t.ID) == "" {
			return nil, fmt.Errorf("catalog topic #%d has no id", i+1)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("catalog topic %q defined twice", t.ID)
		}
		c.byID[t.ID] = i
		entries := map[string]Entry{}
		for _, n := range t.Nodes {
			if !n.Level.Valid() {
				return nil, fmt.Errorf("catalog node %s/%s: unknown level %q", t.ID, n.ID, n.Level)
			}
			for _, e := range nodeEntries(n) {
				if !e.Type.Valid() {
					return nil, fmt.Errorf("catalog resource %s/%q: unknown type %q", t.ID, e.Title, e.Type)
				}
				entries[e.ResourceID] = e
			}
		}
		c.entries[t.ID] = entries
	}
	return c, nil
}

func (c *Catalog) Topics() []Topic {
	out := make([]Topic, len(c.topics))
	copy(out, c.topics)
	return out
}

func (c *Catalog) Topic(id string) (Topic, error) {
	i, ok := c.byID[id]
	if !ok {
		return Topic{}, fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	return c.topics[i], nil
}

// Entries lists the topic's trackable resources in roadmap order.
func (c *Catalog) Entries(topicID string) ([]Entry, error) {
	t, err := c.Topic(topicID)
	if err != nil {
		return nil, err
	}
	out := []Entry{}
	for _, n := range t.Nodes {
		out = append(out, nodeEntries(n)...)
	}
	return out, nil
}

// Lookup resolves a resource id generated by ResourceID.
func (c *Catalog) Lookup(topicID, resourceID string) (Entry, bool) {
	e, ok := c.entries[topicID][resourceID]
	return e, ok
}

// LevelTotals counts every resource and sub-resource by the level of the
// node that holds it.
func (c *Catalog) LevelTotals(topicID string) (progress.LevelCounts, error) {
	t, err := c.Topic(topicID)
	if err != nil {
		return progress.LevelCounts{}, err
	}
	var out progress.LevelCounts
	for _, n := range t.Nodes {
		out.Add(n.Level, len(nodeEntries(n)))
	}
	return out, nil
}

func (c *Catalog) AllLevelTotals() map[string]progress.LevelCounts {
	out := make(map[string]progress.LevelCounts, len(c.topics))
	for _, t := range c.topics {
		totals, _ := c.LevelTotals(t.ID)
		out[t.ID] = totals
	}
	return out
}

// ResourceCounts tallies a topic's material by type, including its book list
// and additional references.
func (c *Catalog) ResourceCounts(topicID string) (TypeCounts, error) {
	t, err := c.Topic(topicID)
	if err != nil {
		return TypeCounts{}, err
	}
	var out TypeCounts
	for _, n := range t.Nodes {
		for _, e := range nodeEntries(n) {
			out.add(e.Type)
		}
	}
	out.Books += len(t.Books)
	for _, r := range t.AdditionalResources {
		out.add(r.Type)
	}
	return out, nil
}

var whitespace = regexp.MustCompile(`\s+`)

// ResourceID is the id the progress tracker assigns to a roadmap resource:
// the node id, a dash, then the title lowercased with whitespace runs dashed.
func ResourceID(nodeID, title string) string {
	return nodeID + "-" + whitespace.ReplaceAllString(strings.ToLower(title), "-")
}

// Sub-resources are tracked under a synthetic "<node>-sub" node.
func nodeEntries(n Node) []Entry {
	out := []Entry{}
	for _, r := range n.Resources {
		out = append(out, Entry{
			ResourceID: ResourceID(n.ID, r.Title),
			NodeID:     n.ID,
			Title:      r.Title,
			Type:       r.Type,
			Level:      n.Level,
			URL:        r.URL,
		})
		subNode := n.ID + "-sub"
		for _, s := range r.SubResources {
			out = append(out, Entry{
				ResourceID: ResourceID(subNode, s.Title),
				NodeID:     subNode,
				Title:      s.Title,
				Type:       s.Type,
				Level:      n.Level,
				URL:        s.URL,
			})
		}
	}
	return out
}
