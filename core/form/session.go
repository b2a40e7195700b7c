package form

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/valuetree"
	"github.com/trezcool/schoolstats/core/widget"
)

var (
	ErrSaveInFlight    = errors.New("a save is already in progress")
	ErrUnknownField    = errors.New("no field at path")
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Session is one user editing one child report.
// All edits are serialized; renders and saves see a consistent tree.
type Session struct {
	ID         string
	ReportID   string
	SectionKey string
	Identity   core.Identity
	CreatedAt  time.Time

	doc    schema.Fields
	walker *Walker
	reg    *widget.Registry
	loc    *time.Location

	mu       sync.Mutex
	tree     valuetree.Tree
	baseline valuetree.Tree
	saving   bool
	touched  time.Time
}

// SessionConfig holds what a new session is opened on.
type SessionConfig struct {
	ReportID   string
	SectionKey string
	Identity   core.Identity
	Doc        schema.Fields
	Data       valuetree.Tree
	Registry   *widget.Registry
	Location   *time.Location
}

func NewSession(cfg SessionConfig) *Session {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	now := nowFunc()
	data := valuetree.Clone(cfg.Data)
	return &Session{
		ID:         uuid.NewString(),
		ReportID:   cfg.ReportID,
		SectionKey: cfg.SectionKey,
		Identity:   cfg.Identity,
		CreatedAt:  now,
		doc:        cfg.Doc,
		walker:     NewWalker(cfg.Registry, loc),
		reg:        cfg.Registry,
		loc:        loc,
		tree:       data,
		baseline:   data,
		touched:    now,
	}
}

var nowFunc = time.Now

func (s *Session) Doc() schema.Fields { return s.doc }

// Tree returns a snapshot of the edited tree.
func (s *Session) Tree() valuetree.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// Dirty returns the paths edited since the session was opened or last saved.
func (s *Session) Dirty() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return valuetree.DiffKeys(s.baseline, s.tree)
}

// LastTouched returns the time of the last access to the session.
func (s *Session) LastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// commit applies edits one by one, running the derived step after each of them. Callers hold mu.
func (s *Session) commit(edits ...valuetree.Edit) {
	for _, e := range edits {
		s.tree = valuetree.Set(s.tree, e.Path, e.Value)
		s.tree = clearLocked(s.doc, s.tree, e)
		s.tree = ComputeDerived(s.doc, s.tree)
	}
	s.touched = nowFunc()
}

// Apply commits raw edits. Each edit must address a form of the document, stay out of
// locked fields and grow a sequence by one element at most. Nothing is committed when one is rejected.
func (s *Session) Apply(edits ...valuetree.Edit) (valuetree.Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.tree
	for _, e := range edits {
		segs := valuetree.ParsePath(e.Path)
		if len(segs) == 0 {
			return nil, core.NewFieldError("path", ErrUnknownField.Error())
		}
		if _, ok := s.doc.Get(segs[0]); !ok {
			return nil, core.NewFieldError(e.Path, ErrUnknownField.Error())
		}
		if !valuetree.Settable(tree, e.Path) {
			return nil, core.NewFieldError(e.Path, ErrIndexOutOfRange.Error())
		}
		if err := checkLocks(s.doc, tree, e.Path); err != nil {
			return nil, err
		}
		tree = valuetree.Set(tree, e.Path, e.Value)
	}
	s.commit(edits...)
	return s.tree, nil
}

// Do performs a widget operation on the field bound at op.Path.
func (s *Session) Do(op widget.Op) ([]valuetree.Edit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := FieldAt(s.doc, op.Path)
	if !ok {
		return nil, core.NewFieldError(op.Path, ErrUnknownField.Error())
	}
	if err := checkLocks(s.doc, s.tree, op.Path); err != nil {
		return nil, err
	}
	edits, err := widget.Do(f, valuetree.Lookup(s.tree, op.Path), op, s.loc)
	if err != nil {
		return nil, err
	}
	s.commit(edits...)
	return edits, nil
}

// SelectFile stores att as the pending file of the file field at path.
func (s *Session) SelectFile(path string, att *core.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := FieldAt(s.doc, path)
	if !ok || f.Type != schema.TypeFile {
		return core.NewFieldError(path, "not a file field")
	}
	if err := checkLocks(s.doc, s.tree, path); err != nil {
		return err
	}
	edits, err := widget.SelectFile(f, path, att, s.reg.Options().MaxUploadSize)
	if err != nil {
		return err
	}
	s.commit(edits...)
	return nil
}

// Reset drops every value of the form keyed formKey.
func (s *Session) Reset(formKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.doc.Get(formKey); !ok {
		return errors.Wrapf(ErrFormNotFound, "%q", formKey)
	}
	s.commit(valuetree.Edit{Path: formKey, Value: nil})
	return nil
}

// Render walks the form keyed formKey. The initial edits of widgets are committed.
func (s *Session) Render(formKey string) ([]Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	units, tree, _, err := s.walker.WalkDocument(s.doc, formKey, s.tree)
	if err != nil {
		return nil, err
	}
	s.tree = tree
	s.touched = nowFunc()
	return units, nil
}

// Forms lists the forms of the session document, in display order.
func (s *Session) Forms() []*schema.Field {
	return s.doc.All()
}

// SaveFunc persists the processed tree of a session.
type SaveFunc func(ctx context.Context, tree valuetree.Tree) (valuetree.Tree, error)

// Save runs save with a snapshot of the edited tree. Only one save may run at a time:
// concurrent calls fail with ErrSaveInFlight. Edits stay allowed while saving.
// On success the session continues from the saved tree; on failure it is left untouched.
func (s *Session) Save(ctx context.Context, save SaveFunc) (valuetree.Tree, error) {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	s.saving = true
	snapshot := s.tree
	s.mu.Unlock()

	saved, err := save(ctx, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil {
		return nil, err
	}
	s.baseline = saved
	// edits made while saving are kept on top of the saved tree
	for _, path := range valuetree.DiffKeys(snapshot, s.tree) {
		v, _ := valuetree.Get(s.tree, path)
		saved = valuetree.Set(saved, path, v)
	}
	s.tree = saved
	s.touched = nowFunc()
	return s.tree, nil
}
