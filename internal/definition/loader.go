// Package definition reads approval domain documents from disk and serves
// them through an atomically swappable registry. A domain document is one
// YAML file carrying the condition groups and flow graphs for a domain;
// everything the engine routes on originates here.
package definition

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stagegate/stagegate/model"
)

// Loader parses domain documents. Each parsed definition carries the SHA-256
// checksum of its source bytes; the flows API exposes that checksum so
// clients can detect definition changes without diffing documents.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll walks the given directories and parses every YAML file found,
// recursing into subdirectories. A single unparsable file fails the whole
// load; the server refuses to start on a half-loaded definition set.
func (l *Loader) LoadAll(directories []string) ([]model.DomainDefinition, error) {
	var defs []model.DomainDefinition

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isYAML(path) {
				return nil
			}
			def, err := l.LoadFile(path)
			if err != nil {
				return err
			}
			defs = append(defs, def)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning definition directory %s: %w", dir, err)
		}
	}

	return defs, nil
}

// LoadFile parses one domain document, stamping it with its checksum and
// source path.
func (l *Loader) LoadFile(path string) (model.DomainDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.DomainDefinition{}, fmt.Errorf("reading definition %s: %w", path, err)
	}

	var def model.DomainDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return model.DomainDefinition{}, fmt.Errorf("parsing definition %s: %w", path, err)
	}

	sum := sha256.Sum256(data)
	def.Checksum = hex.EncodeToString(sum[:])
	def.SourceFile = path
	return def, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
