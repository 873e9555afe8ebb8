// Package fs lists mounted filesystems with their usage and identifiers.
package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/mutker/tomography/internal/errors"
	"codeberg.org/mutker/tomography/internal/logger"
	"github.com/shirou/gopsutil/v4/disk"
)

const defaultDevDisk = "/dev/disk"

// FileSystem sizes are in bytes.
type FileSystem struct {
	Device     string
	Type       string
	Mountpoint string
	Label      string
	UUID       string
	Total      uint64
	Free       uint64
	Used       uint64
}

func (f FileSystem) Percent() float64 {
	if f.Total == 0 {
		return 0
	}
	return 100 * float64(f.Used) / float64(f.Total)
}

type FS struct {
	devDisk    string
	partitions func(ctx context.Context, all bool) ([]disk.PartitionStat, error)
	usage      func(ctx context.Context, path string) (*disk.UsageStat, error)
	log        logger.Logger
}

func New() *FS {
	return &FS{
		devDisk:    defaultDevDisk,
		partitions: disk.PartitionsWithContext,
		usage:      disk.UsageWithContext,
		log:        logger.Component("fs"),
	}
}

// All returns every physical mounted filesystem. Mounts whose usage cannot be
// read are skipped.
func (f *FS) All(ctx context.Context) ([]FileSystem, error) {
	parts, err := f.partitions(ctx, false)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrFilesystem, err)
	}

	labels := f.links("by-label")
	uuids := f.links("by-uuid")

	out := make([]FileSystem, 0, len(parts))
	for _, p := range parts {
		u, err := f.usage(ctx, p.Mountpoint)
		if err != nil {
			f.log.Debug().Err(err).Str("mountpoint", p.Mountpoint).Msg("Skipping filesystem")
			continue
		}

		device := canonical(p.Device)
		out = append(out, FileSystem{
			Device:     device,
			Type:       p.Fstype,
			Mountpoint: p.Mountpoint,
			Label:      labels[device],
			UUID:       uuids[device],
			Total:      u.Total,
			Free:       u.Free,
			Used:       u.Used,
		})
	}

	return out, nil
}

// links maps resolved device paths to the names of the udev symlinks pointing
// at them.
func (f *FS) links(kind string) map[string]string {
	dir := filepath.Join(f.devDisk, kind)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	m := make(map[string]string, len(entries))
	for _, e := range entries {
		target, err := filepath.EvalSymlinks(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		m[target] = unescape(e.Name())
	}

	return m
}

// unescape decodes udev's \xNN escapes, used for spaces and slashes in labels.
func unescape(name string) string {
	if !strings.Contains(name, `\x`) {
		return name
	}

	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] == '\\' && i+3 < len(name) && name[i+1] == 'x' {
			if v, ok := hexByte(name[i+2], name[i+3]); ok {
				b.WriteByte(v)
				i += 3
				continue
			}
		}
		b.WriteByte(name[i])
	}

	return b.String()
}

func hexByte(hi, lo byte) (byte, bool) {
	h, ok1 := hexDigit(hi)
	l, ok2 := hexDigit(lo)
	return h<<4 | l, ok1 && ok2
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func canonical(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

func (f *FS) find(ctx context.Context, what string, match func(FileSystem) bool) (FileSystem, error) {
	all, err := f.All(ctx)
	if err != nil {
		return FileSystem{}, err
	}

	for _, fs := range all {
		if match(fs) {
			return fs, nil
		}
	}

	return FileSystem{}, errors.New().WithData(errors.ErrResourceNotFound, what)
}

// ForDevice finds the filesystem on a block device. Symlinks such as
// /dev/disk/by-id entries are resolved first.
func (f *FS) ForDevice(ctx context.Context, device string) (FileSystem, error) {
	device = canonical(device)
	return f.find(ctx, device, func(fs FileSystem) bool { return fs.Device == device })
}

func (f *FS) ForMountpoint(ctx context.Context, path string) (FileSystem, error) {
	path = canonical(path)
	return f.find(ctx, path, func(fs FileSystem) bool { return fs.Mountpoint == path })
}

func (f *FS) ForLabel(ctx context.Context, label string) (FileSystem, error) {
	return f.find(ctx, label, func(fs FileSystem) bool { return fs.Label == label })
}

func (f *FS) ForUUID(ctx context.Context, uuid string) (FileSystem, error) {
	uuid = strings.ToLower(uuid)
	return f.find(ctx, uuid, func(fs FileSystem) bool { return strings.ToLower(fs.UUID) == uuid })
}

// ContainingPath returns the filesystem with the longest mountpoint that
// contains path.
func (f *FS) ContainingPath(ctx context.Context, path string) (FileSystem, error) {
	path = canonical(path)

	all, err := f.All(ctx)
	if err != nil {
		return FileSystem{}, err
	}

	var (
		best  FileSystem
		found bool
	)
	for _, fs := range all {
		if !within(path, fs.Mountpoint) {
			continue
		}
		if !found || len(fs.Mountpoint) > len(best.Mountpoint) {
			best, found = fs, true
		}
	}
	if !found {
		return FileSystem{}, errors.New().WithData(errors.ErrResourceNotFound, path)
	}

	return best, nil
}

func within(path, mountpoint string) bool {
	if mountpoint == "/" || path == mountpoint {
		return strings.HasPrefix(path, "/")
	}
	return strings.HasPrefix(path, mountpoint+"/")
}
