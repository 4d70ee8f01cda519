// Package workspace implements the Workspace Manager (C2): per-session
// project directory resolution and safe filesystem I/O. Grounded on the
// teacher's temp-file + rename checkpoint-persistence pattern found
// throughout runtime/agent/runtime, generalized here to arbitrary file
// artifacts, plus the .bak rollback and path-containment rules from
// spec.md §4.2.
package workspace

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/codeforge/assistant/runtime/apperr"
	"github.com/codeforge/assistant/runtime/domain"
)

// Manager resolves and mutates per-session workspace directories beneath a
// single root. Workspace I/O is serialized per session (spec.md §5) via a
// per-session mutex, eliminating write races on the same path.
type Manager struct {
	root string

	mu         sync.Mutex
	bound      map[domain.SessionID]string
	sessionMus map[domain.SessionID]*sync.Mutex
}

// New constructs a Manager rooted at root. root is created if absent.
func New(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, "cannot create workspace root", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, "cannot resolve workspace root", err)
	}
	return &Manager{
		root:       abs,
		bound:      make(map[domain.SessionID]string),
		sessionMus: make(map[domain.SessionID]*sync.Mutex),
	}, nil
}

func (m *Manager) lockFor(sessionID domain.SessionID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.sessionMus[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.sessionMus[sessionID] = l
	}
	return l
}

// GetOrCreateWorkspace binds sessionID to a project directory, deriving its
// name from userMessage on first use (spec.md §4.2). The binding is
// permanent for the session's lifetime.
func (m *Manager) GetOrCreateWorkspace(sessionID domain.SessionID, userMessage string) (string, error) {
	lock := m.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	if existing, ok := m.bound[sessionID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	base := slugify(userMessage)
	if base == "" {
		base = "project"
	}

	var dir string
	for n := 0; ; n++ {
		candidate := base
		if n > 0 {
			candidate = base + "_" + strconv.Itoa(n)
		}
		full := filepath.Join(m.root, candidate)
		if _, err := os.Stat(full); os.IsNotExist(err) {
			dir = full
			break
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.KindPermanent, "cannot create session workspace", err)
	}

	m.mu.Lock()
	m.bound[sessionID] = dir
	m.mu.Unlock()
	return dir, nil
}

// Bind forces sessionID to an already-known workspace directory, used on
// resume when the binding is restored from a checkpoint rather than derived.
func (m *Manager) Bind(sessionID domain.SessionID, dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bound[sessionID] = dir
}

func slugify(msg string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(msg) {
		switch {
		case unicode.IsLower(r) && unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case r == ' ' || r == '-' || r == '_':
			if !lastDash && b.Len() > 0 {
				b.WriteRune('-')
				lastDash = true
			}
		default:
			// drop punctuation/unicode entirely
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > 48 {
		out = strings.TrimRight(out[:48], "-")
	}
	return out
}

// resolve normalizes relPath against the session's workspace root and
// rejects any traversal outside of it (spec.md §3 artifact invariant, §4.2
// safety invariant). Symlinks are not followed across the boundary: the
// resolved absolute path is checked against the directory's real path, not
// merely the lexical one.
func (m *Manager) resolve(sessionID domain.SessionID, relPath string) (string, error) {
	m.mu.Lock()
	root, ok := m.bound[sessionID]
	m.mu.Unlock()
	if !ok {
		return "", apperr.New(apperr.KindInvalidInput, "workspace not yet created for session")
	}

	cleaned := filepath.Clean("/" + relPath) // anchors relPath, neutralizing leading ".."
	full := filepath.Join(root, cleaned)

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		realRoot = root
	}
	// EvalSymlinks requires the target to exist; for not-yet-created files we
	// check the parent directory instead.
	checkDir := filepath.Dir(full)
	if realDir, err := filepath.EvalSymlinks(checkDir); err == nil {
		checkDir = realDir
	}
	if !within(realRoot, checkDir) && checkDir != realRoot {
		return "", apperr.New(apperr.KindIntegrity, "path escapes workspace root: "+relPath)
	}
	if !within(realRoot, full) && full != realRoot {
		return "", apperr.New(apperr.KindIntegrity, "path escapes workspace root: "+relPath)
	}
	return full, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ApplyArtifact durably applies a single artifact (spec.md §4.2 apply
// semantics) and returns the artifact with SavedPath/SizeBytes/Digest
// populated. Created writes are atomic (temp + rename); modified writes
// snapshot a .bak sibling first; deletes unlink an existing regular file.
func (m *Manager) ApplyArtifact(sessionID domain.SessionID, artifact domain.Artifact) (domain.Artifact, error) {
	lock := m.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	full, err := m.resolve(sessionID, artifact.RelativePath)
	if err != nil {
		return domain.Artifact{}, err
	}

	action := artifact.Action
	if action == domain.ActionModified {
		if _, err := os.Stat(full); os.IsNotExist(err) {
			// spec.md §3 invariant: modified requires a prior known file;
			// otherwise the engine rewrites the action to created.
			action = domain.ActionCreated
		}
	}

	switch action {
	case domain.ActionDeleted:
		info, err := os.Lstat(full)
		if err != nil {
			if os.IsNotExist(err) {
				out := artifact
				out.Action = domain.ActionDeleted
				return out, nil
			}
			return domain.Artifact{}, apperr.Wrap(apperr.KindPermanent, "stat failed", err)
		}
		if !info.Mode().IsRegular() {
			return domain.Artifact{}, apperr.New(apperr.KindIntegrity, "refusing to delete non-regular file: "+artifact.RelativePath)
		}
		if err := os.Remove(full); err != nil {
			return domain.Artifact{}, apperr.Wrap(apperr.KindPermanent, "delete failed", err)
		}
		out := artifact
		out.Action = domain.ActionDeleted
		out.SavedPath = full
		return out, nil

	case domain.ActionModified:
		bakPath := full + ".bak"
		if err := copyFile(full, bakPath); err != nil {
			return domain.Artifact{}, apperr.Wrap(apperr.KindPermanent, "backup failed", err)
		}
		if err := atomicWrite(full, []byte(artifact.Content)); err != nil {
			return domain.Artifact{}, apperr.Wrap(apperr.KindPermanent, "write failed", err)
		}

	default: // created
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return domain.Artifact{}, apperr.Wrap(apperr.KindPermanent, "mkdir failed", err)
		}
		if err := atomicWrite(full, []byte(artifact.Content)); err != nil {
			return domain.Artifact{}, apperr.Wrap(apperr.KindPermanent, "write failed", err)
		}
	}

	out := artifact
	out.Action = action
	out.SavedPath = full
	out.SizeBytes = int64(len(artifact.Content))
	out.Digest = digest(artifact.Content)
	return out, nil
}

// atomicWrite writes data to path via a temp file in the same directory
// followed by rename, matching the teacher's checkpoint-write idiom.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.CreateTemp(filepath.Dir(dst), ".bak-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return err
	}
	return os.Rename(out.Name(), dst)
}

func digest(content string) string {
	sum := fnv64a(content)
	return fmt.Sprintf("%016x", sum)
}

// fnv64a is a tiny inline FNV-1a; content-addressing here only needs a
// stable, collision-resistant-enough digest for dedup/manifest bookkeeping,
// not cryptographic strength, so FNV-1a written out here suffices without
// pulling a dependency for it.
func fnv64a(s string) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	var h uint64 = offset
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}

// FileEntry describes one file or directory under a listed path.
type FileEntry struct {
	RelativePath string
	IsDir        bool
	SizeBytes    int64
}

// ListFiles lists entries under relPath up to depth levels deep (0 means
// just the immediate children of relPath).
func (m *Manager) ListFiles(sessionID domain.SessionID, relPath string, depth int) ([]FileEntry, error) {
	full, err := m.resolve(sessionID, relPath)
	if err != nil {
		return nil, err
	}
	var out []FileEntry
	baseDepth := strings.Count(filepath.Clean(full), string(filepath.Separator))
	err = filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == full {
			return nil
		}
		curDepth := strings.Count(filepath.Clean(p), string(filepath.Separator)) - baseDepth
		if curDepth > depth+1 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(full, p)
		info, ierr := d.Info()
		var size int64
		if ierr == nil {
			size = info.Size()
		}
		out = append(out, FileEntry{RelativePath: filepath.ToSlash(rel), IsDir: d.IsDir(), SizeBytes: size})
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, "list failed", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelativePath < out[j].RelativePath })
	return out, nil
}

// ReadFile returns the content of relPath within sessionID's workspace.
func (m *Manager) ReadFile(sessionID domain.SessionID, relPath string) ([]byte, error) {
	full, err := m.resolve(sessionID, relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.KindInvalidInput, "file not found: "+relPath)
		}
		return nil, apperr.Wrap(apperr.KindPermanent, "read failed", err)
	}
	return data, nil
}

// DeleteFile removes a regular file within sessionID's workspace. The
// target must be a regular file (spec.md §4.2 safety invariant).
func (m *Manager) DeleteFile(sessionID domain.SessionID, relPath string) error {
	lock := m.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	full, err := m.resolve(sessionID, relPath)
	if err != nil {
		return err
	}
	info, err := os.Lstat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperr.Wrap(apperr.KindPermanent, "stat failed", err)
	}
	if !info.Mode().IsRegular() {
		return apperr.New(apperr.KindIntegrity, "refusing to delete non-regular file: "+relPath)
	}
	if err := os.Remove(full); err != nil {
		return apperr.Wrap(apperr.KindPermanent, "delete failed", err)
	}
	return nil
}

// Root returns the session's bound workspace directory, or "" if unbound.
func (m *Manager) Root(sessionID domain.SessionID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bound[sessionID]
}
