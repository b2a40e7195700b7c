// Package inmemdb is a memory backed implementation of the repositories, for tests and local runs.
package inmemdb

import (
	"sync"

	"github.com/trezcool/schoolstats/core/report"
)

type (
	DB struct {
		mutex  sync.RWMutex
		report map[string]*report.Report
		child  map[childKey]*report.ChildReport
	}

	childKey struct {
		reportID   string
		sectionKey string
	}
)

func Open() *DB {
	return &DB{
		report: make(map[string]*report.Report),
		child:  make(map[childKey]*report.ChildReport),
	}
}
