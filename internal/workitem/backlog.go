package workitem

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/marathon/internal/graph"
	"github.com/ShayCichocki/marathon/pkg/models"
)

// backlogFile is the on-disk shape of a pre-seeded backlog.
type backlogFile struct {
	Items []backlogItem `yaml:"items"`
}

type backlogItem struct {
	ID          int           `yaml:"id"`
	Category    string        `yaml:"category"`
	Title       string        `yaml:"title"`
	Description string        `yaml:"description"`
	DependsOn   []int         `yaml:"depends_on"`
	Files       []string      `yaml:"files"`
	Validation  []backlogStep `yaml:"validation"`
}

type backlogStep struct {
	Name    string        `yaml:"name"`
	Command string        `yaml:"command"`
	Expect  string        `yaml:"expect"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoadBacklog reads a YAML backlog file and returns its items, all pending.
func LoadBacklog(path string) ([]models.WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backlog: %w", err)
	}
	return ParseBacklog(data)
}

// ParseBacklog decodes and validates backlog YAML.
func ParseBacklog(data []byte) ([]models.WorkItem, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f backlogFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse backlog: %w", err)
	}
	if len(f.Items) == 0 {
		return nil, fmt.Errorf("backlog has no items")
	}

	items := make([]models.WorkItem, 0, len(f.Items))
	for _, bi := range f.Items {
		if bi.ID <= 0 {
			return nil, fmt.Errorf("backlog item %q: id must be positive", bi.Title)
		}
		if strings.TrimSpace(bi.Description) == "" {
			return nil, fmt.Errorf("backlog item %d: description is required", bi.ID)
		}
		it := models.WorkItem{
			ID:          bi.ID,
			Category:    bi.Category,
			Title:       bi.Title,
			Description: bi.Description,
			DependsOn:   bi.DependsOn,
			Files:       bi.Files,
			Status:      models.ItemPending,
		}
		for i, st := range bi.Validation {
			if strings.TrimSpace(st.Command) == "" {
				return nil, fmt.Errorf("backlog item %d: validation step %d has no command", bi.ID, i+1)
			}
			it.ValidationSteps = append(it.ValidationSteps, models.ValidationStep{
				Name:    st.Name,
				Command: st.Command,
				Expect:  st.Expect,
				Timeout: st.Timeout,
			})
		}
		items = append(items, it)
	}

	if _, err := graph.Build(items); err != nil {
		return nil, fmt.Errorf("backlog dependencies: %w", err)
	}
	return items, nil
}
