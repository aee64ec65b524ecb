// Copyright 2026 Relaymesh
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package guidelines

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for guideline file loading, mirroring the small
// fmt.Errorf-sentinel convention used for workflow config loading.
var (
	ErrFileNotFound = errors.New("guidelines: file not found")
	ErrInvalidYAML  = errors.New("guidelines: invalid YAML syntax")
)

// LoadFromYAML reads and parses a single guideline definition file.
func LoadFromYAML(path string) (Guideline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Guideline{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return Guideline{}, fmt.Errorf("guidelines: read %s: %w", path, err)
	}

	var g Guideline
	if err := yaml.Unmarshal(data, &g); err != nil {
		return Guideline{}, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}
	return g, nil
}

// LoadDirectory loads every *.yaml/*.yml file directly under dir and
// registers each into r, returning the ids successfully registered.
func LoadDirectory(r *Registry, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("guidelines: read dir %s: %w", dir, err)
	}

	var loaded []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !hasYAMLExt(name) {
			continue
		}
		g, err := LoadFromYAML(dir + "/" + name)
		if err != nil {
			return loaded, err
		}
		if err := r.RegisterGuideline(g); err != nil {
			return loaded, err
		}
		loaded = append(loaded, g.ID)
	}
	return loaded, nil
}

func hasYAMLExt(name string) bool {
	for _, ext := range []string{".yaml", ".yml"} {
		if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
			return true
		}
	}
	return false
}
