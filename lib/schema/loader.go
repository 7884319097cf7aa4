package schema

import (
	"fmt"
	"os"

	"vellum/hangar"
	"vellum/lib/value"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Tables []tableFile `yaml:"tables"`
}

type tableFile struct {
	ID         uint64       `yaml:"id"`
	Name       string       `yaml:"name"`
	Columns    []columnFile `yaml:"columns"`
	PrimaryKey []string     `yaml:"primary_key"`
	Indexes    []indexFile  `yaml:"indexes"`
}

type columnFile struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
}

type indexFile struct {
	ID      uint64   `yaml:"id"`
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

// LoadFile reads a YAML catalog:
//
//	tables:
//	  - id: 1
//	    name: users
//	    columns:
//	      - {name: id, type: BIGINT}
//	      - {name: email, type: TEXT, nullable: true}
//	    primary_key: [id]
//	    indexes:
//	      - {id: 1, name: users_email, columns: [email]}
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Schema, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	s := &Schema{tables: make(map[string]TableDef, len(cf.Tables))}
	for _, tf := range cf.Tables {
		if tf.ID == 0 {
			return nil, fmt.Errorf("table %s: id must be non-zero", tf.Name)
		}
		b := NewTable(hangar.TableID(tf.ID), tf.Name)
		for _, cf := range tf.Columns {
			dt, err := value.ParseDataType(cf.Type)
			if err != nil {
				return nil, fmt.Errorf("table %s column %s: %w", tf.Name, cf.Name, err)
			}
			b.Column(cf.Name, dt, cf.Nullable)
		}
		b.PrimaryKey(tf.PrimaryKey...)
		for _, idx := range tf.Indexes {
			b.Index(idx.ID, idx.Name, idx.Columns...)
		}
		def, err := b.Build()
		if err != nil {
			return nil, err
		}
		if err := s.AddTable(def); err != nil {
			return nil, err
		}
	}
	return s, nil
}
