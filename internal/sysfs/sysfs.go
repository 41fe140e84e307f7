// Package sysfs gives textual access to the simtemp attribute tree.
package sysfs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/amaresga/simtemp/internal/errors"
)

// Attribute names exposed by the driver.
const (
	AttrSamplingMs  = "sampling_ms"
	AttrThresholdMC = "threshold_mC"
	AttrMode        = "mode"
	AttrEnabled     = "enabled"
	AttrStats       = "stats"
)

const (
	ErrAttributeMissing = errors.ErrorCode("attribute_missing")
	ErrAttributeIO      = errors.ErrorCode("attribute_io_failed")
	ErrAttributeFormat  = errors.ErrorCode("attribute_format_invalid")
)

func init() {
	errors.Register(ErrAttributeMissing, "Device attribute not present")
	errors.Register(ErrAttributeIO, "Device attribute access failed")
	errors.Register(ErrAttributeFormat, "Device attribute has unexpected format")
}

// DefaultRoots lists the attribute tree locations probed in order.
var DefaultRoots = []string{
	"/sys/class/simtemp/simtemp",
	"/sys/devices/platform/nxp_simtemp",
	"/sys/bus/platform/devices/nxp_simtemp",
}

// Tree is a resolved attribute root. The zero value is not usable; call Resolve.
type Tree struct {
	root     string
	resolved bool
}

// Resolve picks the first candidate directory that exists. When none exist the
// first candidate is kept as the default root and later calls surface
// ErrAttributeMissing individually.
func Resolve(candidates ...string) *Tree {
	if len(candidates) == 0 {
		candidates = DefaultRoots
	}

	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && fi.IsDir() {
			return &Tree{root: c, resolved: true}
		}
	}

	return &Tree{root: candidates[0]}
}

// Root returns the directory backing the tree.
func (t *Tree) Root() string {
	return t.root
}

// Found reports whether the root existed at resolve time.
func (t *Tree) Found() bool {
	return t.resolved
}

func (t *Tree) path(name string) string {
	return filepath.Join(t.root, name)
}

// Read returns an attribute's value with surrounding whitespace removed.
func (t *Tree) Read(name string) (string, error) {
	data, err := os.ReadFile(t.path(name))
	if err != nil {
		return "", t.wrap(name, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// Write stores value into an attribute. The attribute must already exist.
func (t *Tree) Write(name, value string) error {
	f, err := os.OpenFile(t.path(name), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return t.wrap(name, err)
	}

	if _, err := f.WriteString(value); err != nil {
		_ = f.Close()
		return t.wrap(name, err)
	}

	if err := f.Close(); err != nil {
		return t.wrap(name, err)
	}

	return nil
}

// ReadInt reads an attribute holding a base-10 integer.
func (t *Tree) ReadInt(name string) (int64, error) {
	v, err := t.Read(name)
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errors.New().WithData(ErrAttributeFormat, struct {
			Attribute string
			Value     string
		}{
			Attribute: name,
			Value:     v,
		})
	}

	return n, nil
}

// ReadStats reads and parses the stats attribute.
func (t *Tree) ReadStats() (Stats, error) {
	v, err := t.Read(AttrStats)
	if err != nil {
		return nil, err
	}

	return ParseStats(v), nil
}

func (t *Tree) wrap(name string, err error) error {
	errFactory := errors.New()
	if os.IsNotExist(err) {
		return errFactory.WithData(ErrAttributeMissing, t.path(name))
	}

	return errFactory.Wrap(ErrAttributeIO, err).WithMessage("attribute " + name)
}
