package session

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// TombstoneSuffix marks an inherited file removed by a session.
const TombstoneSuffix = ".removed"

// file is one staged session entry.
type file struct {
	location types.FileLocation
	data     []byte
	// added is set for data-loader entries registered with AddFile.
	added bool
}

// Session is a mutable staging area that becomes an installed package on
// commit. All fields are guarded by mu.
type Session struct {
	mu        sync.Mutex
	id        int
	params    types.SessionParams
	state     types.SessionState
	files     map[string]*file
	order     []string
	removed   []string
	inherited []string
	result    *types.Result
	createdAt time.Time
	updatedAt time.Time
}

func newSession(id int, params types.SessionParams, inherited []string, now time.Time) *Session {
	return &Session{
		id:        id,
		params:    params,
		state:     types.SessionOpen,
		files:     make(map[string]*file),
		inherited: inherited,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the session id.
func (s *Session) ID() int { return s.id }

func (s *Session) put(name string, f *file, now time.Time) {
	if _, ok := s.files[name]; !ok {
		s.order = append(s.order, name)
	}
	s.files[name] = f
	s.updatedAt = now
}

func (s *Session) drop(name string, now time.Time) bool {
	if _, ok := s.files[name]; !ok {
		return false
	}
	delete(s.files, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	s.updatedAt = now
	return true
}

func (s *Session) tombstone(name string, now time.Time) {
	marker := name + TombstoneSuffix
	if !slices.Contains(s.removed, marker) {
		s.removed = append(s.removed, marker)
	}
	s.updatedAt = now
}

// names lists inherited files, then staged files, then tombstones. Each
// name appears once.
func (s *Session) names() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	if s.params.Mode == types.ModeInheritExisting {
		for _, n := range s.inherited {
			add(n)
		}
	}
	for _, n := range s.order {
		add(n)
	}
	for _, n := range s.removed {
		add(n)
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// removedNames strips tombstone markers back to the inherited names.
func (s *Session) removedNames() []string {
	out := make([]string, 0, len(s.removed))
	for _, n := range s.removed {
		out = append(out, strings.TrimSuffix(n, TombstoneSuffix))
	}
	return out
}

func (s *Session) info() types.SessionInfo {
	info := types.SessionInfo{
		ID:        s.id,
		Params:    s.params,
		State:     s.state,
		Names:     s.names(),
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
	if s.params.DataLoader != nil {
		dl := *s.params.DataLoader
		info.Params.DataLoader = &dl
	}
	if s.result != nil {
		r := *s.result
		info.Result = &r
	}
	return info
}
