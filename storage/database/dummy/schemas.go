// Package dummydb holds report schemas in memory. Used by tests and by the API when no schema source is configured.
package dummydb

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolstats/core/report"
	"github.com/trezcool/schoolstats/core/schema"
)

type SchemaStore struct {
	sync.RWMutex
	sections map[string][]report.Section
	docs     map[string]schema.Fields
}

var _ report.SchemaSource = (*SchemaStore)(nil) // interface compliance check

func NewSchemaStore() *SchemaStore {
	return &SchemaStore{
		sections: make(map[string][]report.Section),
		docs:     make(map[string]schema.Fields),
	}
}

// Put registers a section of reportType with its schema document, after the already registered ones.
func (s *SchemaStore) Put(reportType string, section report.Section, doc schema.Fields) *SchemaStore {
	s.Lock()
	defer s.Unlock()

	sections := s.sections[reportType]
	replaced := false
	for i, sec := range sections {
		if sec.SectionKey == section.SectionKey {
			sections[i] = section
			replaced = true
		}
	}
	if !replaced {
		sections = append(sections, section)
	}
	s.sections[reportType] = sections
	s.docs[reportType+"/"+section.SectionKey] = doc
	return s
}

func (s *SchemaStore) Sections(_ context.Context, reportType string) ([]report.Section, error) {
	s.RLock()
	defer s.RUnlock()

	sections, ok := s.sections[reportType]
	if !ok {
		return nil, errors.Wrapf(report.ErrSchemaNotFound, "%q", reportType)
	}
	return append([]report.Section(nil), sections...), nil
}

func (s *SchemaStore) Schema(_ context.Context, reportType, sectionKey string) (schema.Fields, error) {
	s.RLock()
	defer s.RUnlock()

	doc, ok := s.docs[reportType+"/"+sectionKey]
	if !ok {
		return schema.Fields{}, errors.Wrapf(report.ErrSchemaNotFound, "%s/%s", reportType, sectionKey)
	}
	return doc, nil
}
