package docsync

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Schema names the database properties a meeting is written to. Empty optional
// names are skipped
type Schema struct {
	Title        string `yaml:"title"`
	Leader       string `yaml:"leader"`
	Type         string `yaml:"type"`
	Date         string `yaml:"date"`
	Participants string `yaml:"participants"`

	// Optional
	Description string `yaml:"description"`
	MeetingLink string `yaml:"meeting_link"`
	Email       string `yaml:"email"`

	UnknownLeader string `yaml:"unknown_leader"`
}

// DefaultSchema matches the meeting database the room has always used
func DefaultSchema() Schema {
	return Schema{
		Title:         "Name",
		Leader:        "Líder",
		Type:          "Tipo",
		Date:          "Data do evento",
		Participants:  "Participantes",
		UnknownLeader: "Desconhecido",
	}
}

// LoadSchema reads a YAML schema file over the defaults. An empty path returns the defaults
func LoadSchema(path string) (Schema, error) {
	schema := DefaultSchema()
	if path == "" {
		return schema, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return schema, fmt.Errorf("failed to read notion schema file: %w", err)
	}

	if err := yaml.Unmarshal(data, &schema); err != nil {
		return schema, fmt.Errorf("failed to parse notion schema file: %w", err)
	}

	if schema.Title == "" {
		return schema, fmt.Errorf("notion schema must name the title property")
	}
	return schema, nil
}
