// Package schemafs reads report schemas from a directory tree:
//
//	<reportType>/_sections.yaml   ordered list of {name, reportKey}
//	<reportType>/<reportKey>.yaml one schema document per section (.yml and .json work too)
//
// When _sections.yaml is missing, the sections are the documents sorted by key.
package schemafs

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/schoolstats/core/report"
	"github.com/trezcool/schoolstats/core/schema"
)

const (
	SectionsFile = "_sections.yaml"
	DocPattern   = "*/*.{yaml,yml,json}"
)

type Store struct {
	fsys fs.FS

	mu       sync.RWMutex
	sections map[string][]report.Section
	docs     map[string]schema.Fields
}

var _ report.SchemaSource = (*Store)(nil) // interface compliance check

// New loads every schema of fsys.
func New(fsys fs.FS) (*Store, error) {
	s := &Store{fsys: fsys}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open loads every schema under dir.
func Open(dir string) (*Store, error) {
	return New(os.DirFS(dir))
}

// ParseDocument decodes a schema document, as JSON or YAML depending on the extension of name.
func ParseDocument(name string, b []byte) (schema.Fields, error) {
	var fields schema.Fields
	var err error
	if strings.EqualFold(path.Ext(name), ".json") {
		err = json.Unmarshal(b, &fields)
	} else {
		err = yaml.Unmarshal(b, &fields)
	}
	if err != nil {
		return schema.Fields{}, errors.Wrapf(err, "parsing %s", name)
	}
	return fields, nil
}

// Reload reads the whole tree again. The previous schemas are kept when anything fails to parse.
func (s *Store) Reload() error {
	names, err := doublestar.Glob(s.fsys, DocPattern)
	if err != nil {
		return errors.Wrap(err, "listing schema documents")
	}
	sort.Strings(names)

	sections := make(map[string][]report.Section)
	docs := make(map[string]schema.Fields)
	for _, name := range names {
		reportType, file := path.Split(name)
		reportType = strings.TrimSuffix(reportType, "/")
		b, err := fs.ReadFile(s.fsys, name)
		if err != nil {
			return errors.Wrapf(err, "reading %s", name)
		}

		if file == SectionsFile {
			var list []report.Section
			if err := yaml.Unmarshal(b, &list); err != nil {
				return errors.Wrapf(err, "parsing %s", name)
			}
			sections[reportType] = list
			continue
		}
		doc, err := ParseDocument(name, b)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(file, path.Ext(file))
		docs[reportType+"/"+key] = doc
	}

	for key := range docs {
		reportType, _ := splitKey(key)
		if _, listed := sections[reportType]; !listed {
			sections[reportType] = derivedSections(reportType, docs)
		}
	}

	s.mu.Lock()
	s.sections, s.docs = sections, docs
	s.mu.Unlock()
	return nil
}

func splitKey(key string) (string, string) {
	i := strings.Index(key, "/")
	return key[:i], key[i+1:]
}

func derivedSections(reportType string, docs map[string]schema.Fields) []report.Section {
	var list []report.Section
	for key := range docs {
		if t, sectionKey := splitKey(key); t == reportType {
			list = append(list, report.Section{Name: sectionKey, SectionKey: sectionKey})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].SectionKey < list[j].SectionKey })
	return list
}

// ReportTypes returns the loaded report types, sorted.
func (s *Store) ReportTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]string, 0, len(s.sections))
	for t := range s.sections {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (s *Store) Sections(_ context.Context, reportType string) ([]report.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.sections[reportType]
	if !ok || len(list) == 0 {
		return nil, errors.Wrapf(report.ErrSchemaNotFound, "%q", reportType)
	}
	return append([]report.Section(nil), list...), nil
}

func (s *Store) Schema(_ context.Context, reportType, sectionKey string) (schema.Fields, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[reportType+"/"+sectionKey]
	if !ok {
		return schema.Fields{}, errors.Wrapf(report.ErrSchemaNotFound, "%s/%s", reportType, sectionKey)
	}
	return doc, nil
}

// ReadSchools reads a school directory file: a list of report.School, as JSON or YAML
// depending on the extension of name.
func ReadSchools(name string) (report.SchoolList, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	var list report.SchoolList
	if strings.EqualFold(path.Ext(name), ".json") {
		err = json.Unmarshal(b, &list)
	} else {
		err = yaml.Unmarshal(b, &list)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", name)
	}
	for i, s := range list {
		if s.Code == "" || s.ReportType == "" {
			return nil, errors.Errorf("parsing %s: school #%d needs a code and a report type", name, i+1)
		}
	}
	return list, nil
}
