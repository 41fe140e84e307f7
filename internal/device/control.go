package device

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/amaresga/simtemp/internal/errors"
	"github.com/amaresga/simtemp/internal/logger"
	"github.com/amaresga/simtemp/internal/sysfs"
)

// Attributes is the textual view of the device. *sysfs.Tree implements it.
type Attributes interface {
	Found() bool
	Read(name string) (string, error)
	ReadInt(name string) (int64, error)
	Write(name, value string) error
	ReadStats() (sysfs.Stats, error)
}

// Controller applies configuration through the attribute tree, falling back
// to the ioctl path when an attribute is missing. Values are validated before
// any I/O happens.
type Controller struct {
	handle Handle
	tree   Attributes
	mu     sync.Mutex
}

// NewController returns a Controller. Either argument may be nil.
func NewController(h Handle, tree Attributes) *Controller {
	return &Controller{handle: h, tree: tree}
}

func (c *Controller) useTree() bool {
	return c.tree != nil && c.tree.Found()
}

// canFallBack reports whether err allows retrying through the ioctl path.
func (c *Controller) canFallBack(err error) bool {
	return c.handle != nil && errors.HasCode(err, sysfs.ErrAttributeMissing)
}

func (c *Controller) noTransport() error {
	return errors.New().WithData(sysfs.ErrAttributeMissing, "no attribute tree or device handle")
}

// Current reads the effective configuration.
func (c *Controller) Current() (Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current()
}

func (c *Controller) current() (Config, error) {
	if c.useTree() {
		cfg, err := c.readTree()
		if err == nil || !c.canFallBack(err) {
			return cfg, err
		}
		logger.Debug().Err(err).Msg("Attribute tree incomplete, reading configuration via ioctl")
	}

	if c.handle == nil {
		return Config{}, c.noTransport()
	}

	cfg, err := c.handle.GetConfig()
	if err != nil {
		return Config{}, err
	}

	// The enabled attribute is authoritative when it exists.
	if c.tree != nil {
		if v, terr := c.tree.Read(sysfs.AttrEnabled); terr == nil {
			cfg.Enabled = v == "1"
		}
	}

	return cfg, nil
}

func (c *Controller) readTree() (Config, error) {
	var cfg Config

	sampling, err := c.readSampling()
	if err != nil {
		return Config{}, err
	}
	threshold, err := c.tree.ReadInt(sysfs.AttrThresholdMC)
	if err != nil {
		return Config{}, err
	}
	if threshold < math.MinInt32 || threshold > math.MaxInt32 {
		return Config{}, attrFormat(sysfs.AttrThresholdMC, threshold)
	}
	modeName, err := c.tree.Read(sysfs.AttrMode)
	if err != nil {
		return Config{}, err
	}
	enabled, err := c.tree.Read(sysfs.AttrEnabled)
	if err != nil {
		return Config{}, err
	}

	mode, err := ParseMode(modeName)
	if err != nil {
		return Config{}, errors.New().Wrap(sysfs.ErrAttributeFormat, err)
	}

	cfg.SamplingMs = sampling
	cfg.ThresholdMC = int32(threshold)
	cfg.Mode = mode
	cfg.Enabled = enabled == "1"

	return cfg, nil
}

// readSampling reads sampling_ms, rejecting values a u32 cannot hold.
func (c *Controller) readSampling() (uint32, error) {
	ms, err := c.tree.ReadInt(sysfs.AttrSamplingMs)
	if err != nil {
		return 0, err
	}
	if ms < 0 || ms > math.MaxUint32 {
		return 0, attrFormat(sysfs.AttrSamplingMs, ms)
	}

	return uint32(ms), nil
}

func attrFormat(name string, value int64) error {
	return errors.New().WithData(sysfs.ErrAttributeFormat, struct {
		Attribute string
		Value     int64
	}{
		Attribute: name,
		Value:     value,
	})
}

// SamplingPeriod returns the device's effective sampling period. The
// attribute is preferred since it does not need the device node.
func (c *Controller) SamplingPeriod() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tree != nil {
		ms, err := c.readSampling()
		if err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
		if !c.canFallBack(err) {
			return 0, err
		}
	}

	if c.handle == nil {
		return 0, c.noTransport()
	}

	cfg, err := c.handle.GetConfig()
	if err != nil {
		return 0, err
	}

	return time.Duration(cfg.SamplingMs) * time.Millisecond, nil
}

// SetSamplingPeriod changes only the sampling period.
func (c *Controller) SetSamplingPeriod(ms uint32) error {
	if err := ValidateSamplingPeriod(ms); err != nil {
		return err
	}

	_, err := c.Update(Update{SamplingMs: &ms})
	return err
}

// SetThreshold changes only the alert threshold.
func (c *Controller) SetThreshold(mC int32) error {
	if err := ValidateThreshold(mC); err != nil {
		return err
	}

	_, err := c.Update(Update{ThresholdMC: &mC})
	return err
}

// SetMode changes only the generator mode.
func (c *Controller) SetMode(m Mode) error {
	if err := ValidateMode(m); err != nil {
		return err
	}

	_, err := c.Update(Update{Mode: &m})
	return err
}

// SetEnabled starts or stops sample generation.
func (c *Controller) SetEnabled(enabled bool) error {
	_, err := c.Update(Update{Enabled: &enabled})
	return err
}

// Apply writes a complete configuration.
func (c *Controller) Apply(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	sampling, threshold, mode, enabled := cfg.SamplingMs, cfg.ThresholdMC, cfg.Mode, cfg.Enabled
	_, err := c.Update(Update{
		SamplingMs:  &sampling,
		ThresholdMC: &threshold,
		Mode:        &mode,
		Enabled:     &enabled,
	})

	return err
}

// Update validates u, then writes the fields it sets. If any write fails the
// fields already written are restored to their previous values, so an update
// either applies fully or not at all. It returns the resulting configuration.
func (c *Controller) Update(u Update) (Config, error) {
	if err := u.Validate(); err != nil {
		return Config{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, err := c.current()
	if err != nil {
		return Config{}, err
	}
	if u.Empty() {
		return prev, nil
	}

	next := u.ApplyTo(prev)
	if err := next.Validate(); err != nil {
		return Config{}, err
	}

	if !c.useTree() {
		if c.handle == nil {
			return Config{}, c.noTransport()
		}
		if err := c.handle.SetConfig(next); err != nil {
			return Config{}, err
		}
		return next, nil
	}

	written, err := c.writeTree(u)
	if err == nil {
		logger.Debug().Interface("config", next).Msg("Device configuration updated")
		return next, nil
	}

	if len(written) == 0 && c.canFallBack(err) {
		logger.Debug().Err(err).Msg("Attribute missing, applying configuration via ioctl")
		if err := c.handle.SetConfig(next); err != nil {
			return Config{}, err
		}
		return next, nil
	}

	c.rollback(prev, written)

	return Config{}, errors.New().Wrap(ErrConfigRejected, err)
}

type attrWrite struct {
	name  string
	value string
}

func attributeWrites(cfg Config, u Update) []attrWrite {
	var writes []attrWrite
	if u.SamplingMs != nil {
		writes = append(writes, attrWrite{sysfs.AttrSamplingMs, strconv.FormatUint(uint64(cfg.SamplingMs), 10)})
	}
	if u.ThresholdMC != nil {
		writes = append(writes, attrWrite{sysfs.AttrThresholdMC, strconv.FormatInt(int64(cfg.ThresholdMC), 10)})
	}
	if u.Mode != nil {
		writes = append(writes, attrWrite{sysfs.AttrMode, cfg.Mode.String()})
	}
	// Enabled goes last so a new configuration is complete before sampling starts.
	if u.Enabled != nil {
		writes = append(writes, attrWrite{sysfs.AttrEnabled, boolAttr(cfg.Enabled)})
	}

	return writes
}

// writeTree returns the names of the attributes written before any failure.
func (c *Controller) writeTree(u Update) ([]string, error) {
	var written []string
	for _, w := range attributeWrites(u.ApplyTo(Config{}), u) {
		if err := c.tree.Write(w.name, w.value); err != nil {
			return written, err
		}
		written = append(written, w.name)
	}

	return written, nil
}

func (c *Controller) rollback(prev Config, written []string) {
	all := Update{
		SamplingMs:  &prev.SamplingMs,
		ThresholdMC: &prev.ThresholdMC,
		Mode:        &prev.Mode,
		Enabled:     &prev.Enabled,
	}
	restore := make(map[string]string)
	for _, w := range attributeWrites(prev, all) {
		restore[w.name] = w.value
	}

	for _, name := range written {
		if err := c.tree.Write(name, restore[name]); err != nil {
			logger.Warn().Err(err).Str("attribute", name).Msg("Failed to restore attribute")
		}
	}
}

// Stats returns the parsed stats attribute.
func (c *Controller) Stats() (sysfs.Stats, error) {
	if c.tree == nil {
		return nil, c.noTransport()
	}

	return c.tree.ReadStats()
}

func boolAttr(b bool) string {
	if b {
		return "1"
	}

	return "0"
}
