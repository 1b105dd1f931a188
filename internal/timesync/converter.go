package timesync

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// DefaultStatPath is where the kernel reports its boot time.
const DefaultStatPath = "/proc/stat"

// Converter handles conversion from monotonic timestamps to wall-clock time.
type Converter struct {
	bootTime  time.Time
	estimated bool
}

// NewConverter creates a converter from the host's /proc/stat.
func NewConverter() (*Converter, error) {
	return NewConverterFs(afero.NewOsFs(), DefaultStatPath)
}

// NewConverterFs creates a converter reading the boot time from path on fs.
// If reading fails, it uses a conservative fallback estimate and reports it
// through Estimated.
func NewConverterFs(fs afero.Fs, path string) (*Converter, error) {
	bootTime, err := readBootTime(fs, path)
	if err != nil {
		// Spawn times are informational; an hour-old estimate keeps them ordered.
		return &Converter{
			bootTime:  time.Now().Add(-time.Hour),
			estimated: true,
		}, nil
	}

	return &Converter{
		bootTime: bootTime,
	}, nil
}

// MonotonicToWallClock converts a monotonic timestamp (nanoseconds since boot) to wall-clock time.
func (c *Converter) MonotonicToWallClock(monotonicNanos uint64) time.Time {
	//nolint:gosec // uint64 to int64 conversion for time.Duration is safe for reasonable timestamps
	return c.bootTime.Add(time.Duration(monotonicNanos))
}

// BootTime returns the system boot time used for conversions.
func (c *Converter) BootTime() time.Time {
	return c.bootTime
}

// Estimated reports whether the boot time is a fallback guess.
func (c *Converter) Estimated() bool {
	return c.estimated
}

func readBootTime(fs afero.Fs, path string) (time.Time, error) {
	file, err := fs.Open(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		_ = file.Close() //nolint:errcheck // Read-only file, defer cleanup
	}()

	return parseBootTime(file)
}

// parseBootTime extracts the btime line from a /proc/stat stream.
func parseBootTime(r io.Reader) (time.Time, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "btime ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		bootTimeSec, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse btime: %w", err)
		}
		return time.Unix(bootTimeSec, 0), nil
	}

	if err := scanner.Err(); err != nil {
		return time.Time{}, fmt.Errorf("error reading stat: %w", err)
	}

	return time.Time{}, fmt.Errorf("btime not found in stat")
}
