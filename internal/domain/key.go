package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	runPattern        = regexp.MustCompile(`^\d{10}$`)
	runPrefixPattern  = regexp.MustCompile(`run=(\d{10})/?`)
	stepPrefixPattern = regexp.MustCompile(`step=(\d{3})/?`)
)

// KeyBuilder maps a (run, step) pair to its object key in the remote store.
// All methods are pure.
type KeyBuilder struct {
	Bucket     string // E.g., "pangu-mvp-data".
	BasePrefix string // E.g., "indices/sti/".
	IndexName  string // E.g., "sti".
	RegionName string // E.g., "chile".
}

// NormalizeStep returns the 3-digit zero-padded form of a step ("48" -> "048").
// Normalizing an already normalized step returns it unchanged.
func NormalizeStep(step string) (string, error) {
	hours, err := strconv.Atoi(strings.TrimSpace(step))
	if err != nil {
		return "", fmt.Errorf("%w: step %q is not an integer", ErrFormat, step)
	}
	return StepFromHours(hours)
}

// StepFromHours formats an integer lead time as a normalized step.
func StepFromHours(hours int) (string, error) {
	if hours < 0 {
		return "", fmt.Errorf("%w: step %d is negative", ErrFormat, hours)
	}
	return fmt.Sprintf("%03d", hours), nil
}

// ValidateRun checks the YYYYMMDDHH shape of a run identifier.
// BuildObjectKey does not call it; the HTTP edge does.
func ValidateRun(run string) error {
	if !runPattern.MatchString(run) {
		return fmt.Errorf("%w: run %q must be YYYYMMDDHH", ErrFormat, run)
	}
	return nil
}

// BuildObjectKey returns
// {base}run={run}/step={step}/{index}_{region}_run={run}_step={step}.nc.
func (b KeyBuilder) BuildObjectKey(run, step string) (string, error) {
	s, err := NormalizeStep(step)
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s_%s_run=%s_step=%s.nc", b.IndexName, b.RegionName, run, s)
	return b.StepsPrefix(run) + "step=" + s + "/" + filename, nil
}

// BuildObjectURI returns s3://{bucket}/{key}. For display only.
func (b KeyBuilder) BuildObjectURI(run, step string) (string, error) {
	key, err := b.BuildObjectKey(run, step)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", b.Bucket, key), nil
}

// LocalFileName returns the cache file name for a run and step,
// e.g. "sti_2024021300_024.nc".
func (b KeyBuilder) LocalFileName(run, step string) (string, error) {
	s, err := NormalizeStep(step)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s_%s.nc", b.IndexName, run, s), nil
}

// RunsPrefix is the listing prefix whose common prefixes are the runs.
func (b KeyBuilder) RunsPrefix() string {
	return b.BasePrefix
}

// StepsPrefix is the listing prefix whose common prefixes are the steps of run.
func (b KeyBuilder) StepsPrefix(run string) string {
	return fmt.Sprintf("%srun=%s/", b.BasePrefix, run)
}

// ParseRunPrefix extracts the run from a common prefix such as
// "indices/sti/run=2024021300/".
func ParseRunPrefix(prefix string) (string, bool) {
	m := runPrefixPattern.FindStringSubmatch(prefix)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseStepPrefix extracts the step from a common prefix such as
// "indices/sti/run=2024021300/step=024/".
func ParseStepPrefix(prefix string) (string, bool) {
	m := stepPrefixPattern.FindStringSubmatch(prefix)
	if m == nil {
		return "", false
	}
	return m[1], true
}
