package capture

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/hpungsan/tablesnap/internal/errors"
)

// FileSuffix is appended to "<table>_<label>" to form a capture file name.
const FileSuffix = ".json.gz"

// Header is the metadata written ahead of a capture's rows.
type Header struct {
	Table   string `json:"table"`
	Label   string `json:"label"`
	Mode    Mode   `json:"mode,omitempty"`
	Key     string `json:"key,omitempty"`
	TakenAt int64  `json:"taken_at,omitempty"`
}

// document is the decoded form of a capture file.
type document struct {
	Header
	Rows []Row `json:"rows"`
}

// Info describes a capture file on disk.
type Info struct {
	Label   string    `json:"label"`
	Table   string    `json:"table"`
	Path    string    `json:"path"`
	Bytes   int64     `json:"bytes"`
	ModTime time.Time `json:"mod_time"`
}

// Store reads and writes captures under <dir>/<label>/<table>_<label>.json.gz.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created lazily.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the capture file path for a table under a label.
func (s *Store) Path(label, table string) string {
	return filepath.Join(s.dir, label, table+"_"+label+FileSuffix)
}

// ValidateName rejects labels and table names that would escape the store.
func ValidateName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewInvalidRequest(kind + " must not be empty")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid %s %q", kind, name))
	}
	return nil
}

// Labels returns the labels that have a directory in the store, sorted.
func (s *Store) Labels() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to read capture directory: %w", err))
	}
	var labels []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			labels = append(labels, e.Name())
		}
	}
	sort.Strings(labels)
	return labels, nil
}

// Tables returns the tables captured under label, sorted. A label that was
// never captured has no tables; an unreadable directory is an error.
func (s *Store) Tables(label string) ([]string, error) {
	infos, err := s.Stat(label)
	if err != nil {
		return nil, err
	}
	tables := make([]string, len(infos))
	for i, info := range infos {
		tables[i] = info.Table
	}
	return tables, nil
}

// Stat returns file information for every capture under label, sorted by table.
func (s *Store) Stat(label string) ([]Info, error) {
	if err := ValidateName("label", label); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.dir, label)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to read %q captures: %w", label, err))
	}

	suffix := "_" + label + FileSuffix
	var infos []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		table := strings.TrimSuffix(name, suffix)
		if table == "" {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Label:   label,
			Table:   table,
			Path:    filepath.Join(dir, name),
			Bytes:   fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Table < infos[j].Table })
	return infos, nil
}

// Load reads one capture. mode is the mode the caller compares in; a capture
// written in the other mode is malformed for this caller. key is the
// reconciliation column for full-mode rows (hashing rows are always keyed by "id").
func (s *Store) Load(label, table string, mode Mode, key string) (*Capture, error) {
	if err := ValidateName("label", label); err != nil {
		return nil, err
	}
	if err := ValidateName("table", table); err != nil {
		return nil, err
	}

	path := s.Path(label, table)
	f, err := os.Open(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NewCaptureNotFound(label, table)
		}
		return nil, errors.NewInternal(err)
	}
	defer f.Close()

	doc, err := decode(f)
	if err != nil {
		return nil, errors.NewMalformedCapture(label, table, err)
	}

	docMode := doc.Mode
	if docMode == "" {
		docMode = inferMode(doc.Rows)
	}
	if len(doc.Rows) > 0 && docMode != mode {
		return nil, errors.NewMalformedCapture(label, table,
			fmt.Errorf("capture was taken in %s mode, comparing in %s mode", docMode, mode))
	}

	if key == "" {
		key = doc.Key
	}
	if key == "" {
		key = "id"
	}

	c, err := build(table, label, mode, key, doc.Rows)
	if err != nil {
		return nil, errors.NewMalformedCapture(label, table, err)
	}
	return c, nil
}

// decode reads a gzip-compressed capture document.
func decode(r io.Reader) (*document, error) {
	zr, err := gzip.NewReader(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}

	doc := &document{}
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return doc, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// inferMode recognises documents without a mode field: hashing rows consist of
// exactly an id and a string hash.
func inferMode(rows []Row) Mode {
	if len(rows) == 0 {
		return ModeFull
	}
	for _, row := range rows {
		if len(row) != 2 {
			return ModeFull
		}
		if _, ok := row["id"]; !ok {
			return ModeFull
		}
		if _, ok := row["hash"].(string); !ok {
			return ModeFull
		}
	}
	return ModeHashing
}

func build(table, label string, mode Mode, key string, rows []Row) (*Capture, error) {
	c := NewCapture(table, label, mode)
	for i, row := range rows {
		if row == nil {
			c.Dropped++
			continue
		}
		if mode == ModeHashing {
			k, ok := Key(row["id"])
			hash, isString := row["hash"].(string)
			if !ok || !isString {
				c.Dropped++
				continue
			}
			if _, dup := c.Fingerprints[k]; dup {
				return nil, fmt.Errorf("duplicate key %q at row %d", k, i)
			}
			c.Fingerprints[k] = hash
			continue
		}

		k, ok := Key(row[key])
		if !ok {
			c.Dropped++
			continue
		}
		if _, dup := c.Rows[k]; dup {
			return nil, fmt.Errorf("duplicate key %q at row %d", k, i)
		}
		c.Rows[k] = row
	}
	return c, nil
}

// Writer streams rows into a new capture file. The file only replaces an
// existing capture when Close succeeds.
type Writer struct {
	path    string
	tmpPath string
	file    *os.File
	zw      *gzip.Writer
	bw      *bufio.Writer
	rows    int
	closed  bool
}

// Create starts a capture for hdr.Table under hdr.Label.
func (s *Store) Create(hdr Header) (*Writer, error) {
	if err := ValidateName("label", hdr.Label); err != nil {
		return nil, err
	}
	if err := ValidateName("table", hdr.Table); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.dir, hdr.Label)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create label directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	path := s.Path(hdr.Label, hdr.Table)
	tmpPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create capture file: %w", err))
	}

	zw, err := gzip.NewWriterLevel(f, gzip.BestCompression)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, errors.NewInternal(err)
	}

	w := &Writer{path: path, tmpPath: tmpPath, file: f, zw: zw, bw: bufio.NewWriter(zw)}

	// Header fields first, then the rows array is streamed.
	head, err := json.Marshal(hdr)
	if err != nil {
		w.Abort()
		return nil, errors.NewInternal(err)
	}
	head = append(head[:len(head)-1], []byte(`,"rows":[`)...)
	if _, err := w.bw.Write(head); err != nil {
		w.Abort()
		return nil, errors.NewInternal(err)
	}
	return w, nil
}

// Write appends one row (a Row or a HashedRow).
func (w *Writer) Write(v any) error {
	if row, ok := v.(Row); ok {
		v = textRow(row)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if w.rows > 0 {
		if err := w.bw.WriteByte(','); err != nil {
			return err
		}
	}
	if _, err := w.bw.Write(data); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows returns how many rows have been written.
func (w *Writer) Rows() int {
	return w.rows
}

// Close finishes the document and atomically moves it into place.
// It returns the compressed size in bytes.
func (w *Writer) Close() (int64, error) {
	if w.closed {
		return 0, fmt.Errorf("capture writer already closed")
	}
	w.closed = true

	fail := func(err error) (int64, error) {
		w.file.Close()
		os.Remove(w.tmpPath)
		return 0, errors.NewInternal(err)
	}

	if _, err := w.bw.WriteString("]}"); err != nil {
		return fail(err)
	}
	if err := w.bw.Flush(); err != nil {
		return fail(err)
	}
	if err := w.zw.Close(); err != nil {
		return fail(err)
	}
	if err := w.file.Sync(); err != nil {
		return fail(err)
	}
	info, err := w.file.Stat()
	if err != nil {
		return fail(err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmpPath)
		return 0, errors.NewInternal(fmt.Errorf("failed to close capture file: %w", err))
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		os.Remove(w.tmpPath)
		return 0, errors.NewInternal(fmt.Errorf("failed to finalize capture: %w", err))
	}
	return info.Size(), nil
}

// Abort discards the partially written capture.
func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	w.zw.Close()
	w.file.Close()
	os.Remove(w.tmpPath)
}

// Path returns the final path of the capture being written.
func (w *Writer) Path() string {
	return w.path
}

// Clear removes every capture under label, keeping .gitignore files and any
// directory that still holds one.
func (s *Store) Clear(label string) error {
	if err := ValidateName("label", label); err != nil {
		return err
	}
	return clearTree(filepath.Join(s.dir, label), true)
}

// ClearAll removes every capture of every label. The root directory itself is kept.
func (s *Store) ClearAll() error {
	return clearTree(s.dir, false)
}

func clearTree(root string, removeRoot bool) error {
	if _, err := os.Stat(root); stderrors.Is(err, os.ErrNotExist) {
		return nil
	}

	// Deepest paths first so directories are empty by the time they are visited.
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to walk %s: %w", root, err))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	for _, path := range paths {
		if path == root && !removeRoot {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			if filepath.Base(path) == ".gitignore" {
				continue
			}
			if err := os.Remove(path); err != nil {
				return errors.NewInternal(err)
			}
			continue
		}
		entries, err := os.ReadDir(path)
		if err == nil && len(entries) == 0 {
			if err := os.Remove(path); err != nil {
				return errors.NewInternal(err)
			}
		}
	}
	return nil
}
