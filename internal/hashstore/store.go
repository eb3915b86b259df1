// Package hashstore records content hashes of named inputs between runs so
// that expensive work can be skipped when nothing changed.
//
// A store is loaded from a small text file of sorted "key=hash" lines, fed
// the current inputs with the Add* methods, and asked IsSame. After the work
// is done (or skipped) Save persists the new snapshot. A store is meant for a
// single invocation and is not safe for concurrent writers; concurrent runs
// must use distinct files.
package hashstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lucasnoah/mcpforge/internal/fsutil"
)

// InvalidateEnv forces every IsSame check to report a change when set to "true".
const InvalidateEnv = "MCPFORGE_INVALIDATE_CACHE"

// CorruptionError describes an unreadable or malformed hash store file.
// It never escapes Load: the store logs it and falls back to an empty snapshot.
type CorruptionError struct {
	Path string
	Line int
	Err  error
}

func (e *CorruptionError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("hash store %s: malformed line %d", e.Path, e.Line)
	}
	return fmt.Sprintf("hash store %s: %v", e.Path, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// Store holds the previous and current hash snapshots.
type Store struct {
	root       string
	target     string
	old        map[string]string
	current    map[string]string
	invalidate bool
	log        zerolog.Logger
	loadErr    error
}

// New creates a store whose file keys are made relative to root. An empty
// root keeps paths as given.
func New(root string) *Store {
	return &Store{
		root:       root,
		old:        make(map[string]string),
		current:    make(map[string]string),
		invalidate: os.Getenv(InvalidateEnv) == "true",
		log:        zerolog.Nop(),
	}
}

// WithLogger sets the logger used to report recovered corruption.
func (s *Store) WithLogger(log zerolog.Logger) *Store {
	s.log = log
	return s
}

// Invalidate forces the next IsSame checks to report a change.
func (s *Store) Invalidate(v bool) *Store {
	s.invalidate = v
	return s
}

// Load reads the previous snapshot from path and remembers path as the Save
// target. A missing file is an empty snapshot. A corrupt file is logged and
// also treated as empty, which degrades to a full recompute.
func (s *Store) Load(path string) *Store {
	s.target = path
	s.old = make(map[string]string)
	s.loadErr = nil

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.corrupt(&CorruptionError{Path: path, Err: err})
		}
		return s
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		// Hashes never contain '=', keys may.
		i := strings.LastIndex(line, "=")
		if i <= 0 || i == len(line)-1 {
			s.corrupt(&CorruptionError{Path: path, Line: lineNo})
			return s
		}
		s.old[line[:i]] = line[i+1:]
	}
	if err := sc.Err(); err != nil {
		s.corrupt(&CorruptionError{Path: path, Err: err})
	}
	return s
}

func (s *Store) corrupt(err *CorruptionError) {
	s.loadErr = err
	s.old = make(map[string]string)
	s.log.Warn().Err(err).Msg("ignoring unreadable hash store, inputs will be recomputed")
}

// LoadErr returns the corruption recovered during the last Load, if any.
func (s *Store) LoadErr() error {
	return s.loadErr
}

// Exists reports whether the Save target is present on disk.
func (s *Store) Exists() bool {
	return s.target != "" && fsutil.Exists(s.target)
}

// Add records the hash of a string value under key.
func (s *Store) Add(key, data string) *Store {
	s.current[key] = HashString(data)
	return s
}

// AddBytes records the hash of data under key.
func (s *Store) AddBytes(key string, data []byte) *Store {
	s.current[key] = HashBytes(data)
	return s
}

// AddFile records the hash of the file or directory at path. An empty key
// uses the path relative to the store root. A missing file is recorded as
// absent so that it compares unequal to any earlier content.
func (s *Store) AddFile(key, path string) error {
	if key == "" {
		key = s.keyFor(path)
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.current[key] = "missing"
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}

	var sum string
	if info.IsDir() {
		sum, err = HashTree(path)
	} else {
		sum, err = HashFile(path)
	}
	if err != nil {
		return err
	}
	s.current[key] = sum
	return nil
}

// AddFiles records every path keyed by its root-relative path.
func (s *Store) AddFiles(paths ...string) error {
	for _, p := range paths {
		if err := s.AddFile("", p); err != nil {
			return err
		}
	}
	return nil
}

// IsSame reports whether the current snapshot equals the loaded one.
func (s *Store) IsSame() bool {
	if s.invalidate {
		return false
	}
	if len(s.old) != len(s.current) {
		return false
	}
	for k, v := range s.current {
		if s.old[k] != v {
			return false
		}
	}
	return true
}

// IsSameFile hashes path into the current snapshot and compares it with the
// loaded entry for the same key. A file that was never recorded and still
// does not exist counts as unchanged.
func (s *Store) IsSameFile(path string) (bool, error) {
	key := s.keyFor(path)
	prev, known := s.old[key]
	if !known {
		if !fsutil.Exists(path) {
			return true, nil
		}
		if err := s.AddFile(key, path); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := s.AddFile(key, path); err != nil {
		return false, err
	}
	return !s.invalidate && s.current[key] == prev, nil
}

// AreSame is IsSameFile over several paths; it stops at the first change.
func (s *Store) AreSame(paths ...string) (bool, error) {
	for _, p := range paths {
		same, err := s.IsSameFile(p)
		if err != nil || !same {
			return false, err
		}
	}
	return true, nil
}

// Entries returns a copy of the current snapshot.
func (s *Store) Entries() map[string]string {
	out := make(map[string]string, len(s.current))
	for k, v := range s.current {
		out[k] = v
	}
	return out
}

// Save writes the current snapshot to the Load target as sorted key=hash lines.
func (s *Store) Save() error {
	if s.target == "" {
		return fmt.Errorf("hash store has no target file, call Load first")
	}
	keys := make([]string, 0, len(s.current))
	for k := range s.current {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, s.current[k])
	}
	if err := fsutil.WriteAtomic(s.target, []byte(b.String())); err != nil {
		return fmt.Errorf("save hash store: %w", err)
	}
	return nil
}

func (s *Store) keyFor(path string) string {
	if s.root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
