// Package diskdict implements DiskDict, the filesystem-backed Location:
// each key maps to exactly one file under a fixed-depth directory tree,
// written through a temp-file-then-rename protocol and made read-only
// once committed.
package diskdict

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tarnconfig "github.com/tarnstore/tarn/config"
	"github.com/tarnstore/tarn/errs"
	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
	pkgfs "github.com/tarnstore/tarn/pkg/fs"
	"github.com/tarnstore/tarn/tools/labels"
	"github.com/tarnstore/tarn/tools/locker"
	"github.com/tarnstore/tarn/tools/size"
	"github.com/tarnstore/tarn/tools/usage"
	"github.com/tarnstore/tarn/value"
)

// toolsDirName is the directory housing usage/labels/size bookkeeping
// state. Contents enumeration skips everything under it, plus the
// config file itself.
const toolsDirName = "tools"

// DiskDict is a Writable Location rooted at a directory on the local
// filesystem.
type DiskDict struct {
	fsys pkgfs.FS
	aw   *pkgfs.AtomicWriter

	root   string
	levels key.Levels
	hash   func() hash.Hash

	permissions os.FileMode

	locker       locker.Locker
	sizeTracker  size.Tracker
	usageTracker usage.Tracker
	labels       labels.Storage

	minFreeSize int64
	maxSize     *int64
}

// Open loads root's config.yml and constructs a DiskDict over it. The
// root directory and its config must already exist; use Init to create
// a fresh one.
func Open(root string) (*DiskDict, error) {
	return OpenFS(pkgfs.NewReal(), root)
}

// OpenFS is Open with an injectable pkgfs.FS. fsys backs only the atomic
// blob commit; loading the config, stat calls, directory creation and
// removal go through the os package directly.
func OpenFS(fsys pkgfs.FS, root string) (*DiskDict, error) {
	cfg, err := tarnconfig.Load(root)
	if err != nil {
		return nil, err
	}
	return newDiskDict(fsys, root, cfg)
}

// Init writes a fresh config.yml under root (creating root if needed)
// and returns the resulting DiskDict. It is an error for root to already
// contain a config.yml.
func Init(root string, cfg tarnconfig.StorageConfig) (*DiskDict, error) {
	if err := tarnconfig.Init(root, cfg, false); err != nil {
		return nil, err
	}
	return Open(root)
}

func newDiskDict(fsys pkgfs.FS, root string, cfg tarnconfig.StorageConfig) (*DiskDict, error) {
	newHash, err := cfg.BuildHash()
	if err != nil {
		return nil, err
	}

	levels := cfg.ResolvedLevels()
	digestSize := newHash().Size()
	if err := levels.Validate(digestSize); err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("diskdict: statting root %q: %w", root, err)
	}
	permissions := info.Mode().Perm()

	toolsRoot := filepath.Join(root, toolsDirName)
	usageRoot := filepath.Join(toolsRoot, "usage")
	labelsRoot := filepath.Join(toolsRoot, "labels")
	if err := os.MkdirAll(usageRoot, 0o777); err != nil {
		return nil, fmt.Errorf("diskdict: creating usage directory: %w", err)
	}
	if err := os.MkdirAll(labelsRoot, 0o777); err != nil {
		return nil, fmt.Errorf("diskdict: creating labels directory: %w", err)
	}

	lkr, err := cfg.MakeLocker()
	if err != nil {
		return nil, err
	}
	sizeTracker, err := cfg.MakeSize(toolsRoot)
	if err != nil {
		return nil, err
	}
	usageTracker, err := cfg.MakeUsage(usageRoot, levels)
	if err != nil {
		return nil, err
	}
	labelStore, err := cfg.MakeLabels(labelsRoot, levels)
	if err != nil {
		return nil, err
	}

	return &DiskDict{
		fsys:         fsys,
		aw:           pkgfs.NewAtomicWriter(fsys),
		root:         root,
		levels:       levels,
		hash:         newHash,
		permissions:  permissions,
		locker:       lkr,
		sizeTracker:  sizeTracker,
		usageTracker: usageTracker,
		labels:       labelStore,
		minFreeSize:  cfg.FreeDiskSize,
		maxSize:      cfg.MaxSize,
	}, nil
}

// Hash implements location.Location.
func (d *DiskDict) Hash() func() hash.Hash { return d.hash }

func (d *DiskDict) pathFor(k key.Key) (string, error) {
	segments, err := key.ToSegments(k, d.levels)
	if err != nil {
		return "", err
	}
	parts := append([]string{d.root}, segments...)
	return filepath.Join(parts...), nil
}

// legacyDataFile resolves the on-disk path a key actually lives at: a
// plain file under the ordinary case, or dir/data under the legacy
// directory-form layout some older stores still carry.
func legacyDataFile(path string) (string, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, err
	}
	if info.IsDir() {
		dataPath := filepath.Join(path, "data")
		dataInfo, err := os.Stat(dataPath)
		if err != nil {
			return "", nil, err
		}
		return dataPath, dataInfo, nil
	}
	return path, info, nil
}

// Read implements location.Location.
func (d *DiskDict) Read(ctx context.Context, k key.Key, withLabels bool) (*location.ReadHandle, error) {
	path, err := d.pathFor(k)
	if err != nil {
		return nil, err
	}

	unlock, err := d.locker.Read(ctx, k)
	if err != nil {
		return nil, err
	}

	dataPath, _, statErr := legacyDataFile(path)
	if os.IsNotExist(statErr) {
		_ = unlock()
		return location.Miss(), nil
	}
	if statErr != nil {
		_ = unlock()
		return nil, fmt.Errorf("diskdict: statting %s: %w", k.Hex(), statErr)
	}

	if err := d.usageTracker.Update(k); err != nil {
		_ = unlock()
		return nil, fmt.Errorf("diskdict: updating usage for %s: %w", k.Hex(), err)
	}

	var lbls location.Labels
	if withLabels {
		stored, err := d.labels.Get(k)
		if err != nil {
			_ = unlock()
			return nil, fmt.Errorf("diskdict: reading labels for %s: %w", k.Hex(), err)
		}
		lbls = stored
	}

	closed := false
	closeFn := func(bodyErr error) error {
		if closed {
			return nil
		}
		closed = true

		if errors.Is(bodyErr, errs.ErrStorageCorruption) {
			slog.Warn("diskdict: quarantining corrupt entry", "key", k.Hex(), "reason", bodyErr)
			unlockErr := unlock()
			if _, delErr := d.Delete(ctx, k); delErr != nil {
				return fmt.Errorf("diskdict: quarantining corrupt entry %s: %w", k.Hex(), delErr)
			}
			return unlockErr
		}

		return unlock()
	}

	return location.NewReadHandle(value.FromPath(dataPath), lbls, closeFn), nil
}

// ReadBatch implements location.Location with a naive per-key loop;
// callers that want cross-key parallelism compose DiskDict behind
// fanout.Fanout or levels.Levels, which batch at their own layer.
func (d *DiskDict) ReadBatch(ctx context.Context, keys []key.Key) ([]location.BatchResult, error) {
	out := make([]location.BatchResult, 0, len(keys))
	for _, k := range keys {
		h, err := d.Read(ctx, k, false)
		if err != nil {
			return nil, err
		}
		out = append(out, location.BatchResult{Key: k, Handle: h})
	}
	return out, nil
}

// Write implements location.Writable. If a value is already stored
// under k, the incoming bytes are compared byte-for-byte against it;
// any mismatch is a collision error. Otherwise, subject to the
// configured capacity quotas, the value is streamed to a hidden scratch
// file in the same directory as its final path (there is no separate
// .tmp staging directory), given read-only permissions, and renamed
// into place.
func (d *DiskDict) Write(ctx context.Context, k key.Key, v value.Value, lbls location.Labels) (*location.WriteHandle, error) {
	path, err := d.pathFor(k)
	if err != nil {
		return nil, err
	}

	unlock, err := d.locker.Write(ctx, k)
	if err != nil {
		return nil, err
	}
	releaseOnce := func() error { return unlock() }

	dataPath, _, statErr := legacyDataFile(path)
	if statErr == nil {
		if err := matchExisting(v, dataPath, k); err != nil {
			_ = releaseOnce()
			return nil, err
		}
		if err := d.labels.Update(k, lbls); err != nil {
			_ = releaseOnce()
			return nil, fmt.Errorf("diskdict: updating labels for %s: %w", k.Hex(), err)
		}
		return location.NewWriteHandle(value.FromPath(dataPath), func(error) error {
			return releaseOnce()
		}), nil
	}
	if !os.IsNotExist(statErr) {
		_ = releaseOnce()
		return nil, fmt.Errorf("diskdict: statting %s: %w", k.Hex(), statErr)
	}

	writable, err := d.writeable()
	if err != nil {
		_ = releaseOnce()
		return nil, err
	}
	if !writable {
		_ = releaseOnce()
		return location.Refused(), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), d.permissions); err != nil {
		_ = releaseOnce()
		return nil, fmt.Errorf("diskdict: creating directory for %s: %w", k.Hex(), err)
	}

	if err := d.stageAndCommit(path, v); err != nil {
		_ = releaseOnce()
		return nil, err
	}

	blobSize, err := fileSize(path)
	if err != nil {
		_ = releaseOnce()
		return nil, err
	}
	if err := d.sizeTracker.Inc(blobSize); err != nil {
		_ = releaseOnce()
		return nil, fmt.Errorf("diskdict: updating size tracker for %s: %w", k.Hex(), err)
	}
	if err := d.usageTracker.Update(k); err != nil {
		_ = releaseOnce()
		return nil, fmt.Errorf("diskdict: updating usage for %s: %w", k.Hex(), err)
	}
	if err := d.labels.Update(k, lbls); err != nil {
		_ = releaseOnce()
		return nil, fmt.Errorf("diskdict: updating labels for %s: %w", k.Hex(), err)
	}

	return location.NewWriteHandle(value.FromPath(path), func(error) error {
		return releaseOnce()
	}), nil
}

// stageAndCommit streams v to a sibling scratch file via the teacher's
// AtomicWriter, which syncs the scratch file, renames it over path, then
// syncs the parent directory -- stronger durability than the reference
// implementation's plain shutil.move, in the teacher's own idiom. The
// scratch file is always cleaned up on failure; path is left untouched
// unless the rename itself completed.
func (d *DiskDict) stageAndCommit(path string, v value.Value) error {
	r, err := v.Open()
	if err != nil {
		return fmt.Errorf("diskdict: opening value to write: %w", err)
	}
	defer r.Close()

	perm := 0o444 & d.permissions
	if perm == 0 {
		perm = 0o400
	}

	opts := pkgfs.AtomicWriteOptions{SyncDir: true, Perm: perm}
	if err := d.aw.Write(path, r, opts); err != nil {
		return fmt.Errorf("diskdict: writing %s: %w", filepath.Base(path), err)
	}

	return nil
}

func matchExisting(v value.Value, existingPath string, k key.Key) error {
	existing, err := os.Open(existingPath)
	if err != nil {
		return fmt.Errorf("diskdict: opening existing value for %s: %w", k.Hex(), err)
	}
	defer existing.Close()

	incoming, err := v.Open()
	if err != nil {
		return fmt.Errorf("diskdict: opening incoming value for %s: %w", k.Hex(), err)
	}
	defer incoming.Close()

	const bufSize = 8 * 1024
	bufA := make([]byte, bufSize)
	bufB := make([]byte, bufSize)

	for {
		nA, errA := existing.Read(bufA)
		nB, errB := incoming.Read(bufB)
		if nA != nB || !bytes.Equal(bufA[:nA], bufB[:nB]) {
			return errs.Collision(fmt.Sprintf("written value doesn't match what's already stored under %s", k.Hex()))
		}
		if errA != nil || errB != nil {
			break
		}
	}

	return nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("diskdict: statting %q: %w", path, err)
	}
	return info.Size(), nil
}

func (d *DiskDict) writeable() (bool, error) {
	if d.minFreeSize > 0 {
		free, err := diskFree(d.root)
		if err != nil {
			return false, err
		}
		if free < d.minFreeSize {
			return false, nil
		}
	}

	if d.maxSize != nil {
		current, err := d.sizeTracker.Get()
		if err != nil {
			return false, fmt.Errorf("diskdict: reading size tracker: %w", err)
		}
		if current > *d.maxSize {
			return false, nil
		}
	}

	return true, nil
}

// Delete implements location.Writable.
func (d *DiskDict) Delete(ctx context.Context, k key.Key) (bool, error) {
	path, err := d.pathFor(k)
	if err != nil {
		return false, err
	}

	unlock, err := d.locker.Write(ctx, k)
	if err != nil {
		return false, err
	}
	defer unlock()

	dataPath, _, statErr := legacyDataFile(path)
	if os.IsNotExist(statErr) {
		return false, nil
	}
	if statErr != nil {
		return false, fmt.Errorf("diskdict: statting %s: %w", k.Hex(), statErr)
	}

	blobSize, err := fileSize(dataPath)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("diskdict: statting %s: %w", k.Hex(), err)
	}
	if info.IsDir() {
		if err := os.RemoveAll(path); err != nil {
			return false, fmt.Errorf("diskdict: removing legacy directory for %s: %w", k.Hex(), err)
		}
	} else {
		if err := os.Remove(path); err != nil {
			return false, fmt.Errorf("diskdict: removing %s: %w", k.Hex(), err)
		}
	}

	if err := d.sizeTracker.Dec(blobSize); err != nil {
		return false, fmt.Errorf("diskdict: updating size tracker for %s: %w", k.Hex(), err)
	}
	if err := d.usageTracker.Delete(k); err != nil {
		return false, fmt.Errorf("diskdict: clearing usage for %s: %w", k.Hex(), err)
	}
	if err := d.labels.Delete(k); err != nil {
		return false, fmt.Errorf("diskdict: clearing labels for %s: %w", k.Hex(), err)
	}

	return true, nil
}

// Touch implements location.Writable: it updates a key's usage
// timestamp without reading its payload.
func (d *DiskDict) Touch(ctx context.Context, k key.Key) (bool, error) {
	path, err := d.pathFor(k)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("diskdict: statting %s: %w", k.Hex(), err)
	}

	if err := d.usageTracker.Update(k); err != nil {
		return false, fmt.Errorf("diskdict: updating usage for %s: %w", k.Hex(), err)
	}

	return true, nil
}

// Contents implements location.Location: it walks the fixed-depth
// directory tree, skipping config.yml and everything under tools/.
func (d *DiskDict) Contents(ctx context.Context, fn func(location.Entry) error) error {
	configPath := filepath.Join(d.root, tarnconfig.FileName)
	toolsPath := filepath.Join(d.root, toolsDirName)

	return filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == d.root {
			return nil
		}
		if path == configPath || path == toolsPath {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel := strings.TrimPrefix(path, d.root+string(filepath.Separator))
		depth := len(strings.Split(rel, string(filepath.Separator)))

		// Above the key's full depth: either an intermediate shard
		// directory (keep descending) or, past the full depth, the
		// "data" file inside a legacy directory-form entry (already
		// handled when we visited the directory itself; skip it).
		if depth < len(d.levels) {
			return nil
		}
		if depth > len(d.levels) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// depth == len(d.levels): this is a key, whether stored as a
		// plain file or (legacy) a directory containing "data".
		hexDigest := strings.ReplaceAll(rel, string(filepath.Separator), "")
		k, err := key.FromHex(hexDigest)
		if err != nil {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		unlock, err := d.locker.Read(ctx, k)
		if err != nil {
			return err
		}

		entryErr := fn(location.Entry{Key: k, Location: d, Meta: &meta{d: d, key: k}})
		if releaseErr := unlock(); entryErr == nil {
			entryErr = releaseErr
		}
		if entryErr != nil {
			return entryErr
		}
		if entry.IsDir() {
			// Legacy directory-form entry: don't descend into "data".
			return filepath.SkipDir
		}
		return nil
	})
}

// meta implements location.Meta by lazily consulting this DiskDict's
// usage/labels trackers.
type meta struct {
	d   *DiskDict
	key key.Key
}

func (m *meta) LastUsed() (time.Time, bool, error) {
	return m.d.usageTracker.Get(m.key)
}

func (m *meta) Labels() (location.Labels, error) {
	return m.d.labels.Get(m.key)
}
