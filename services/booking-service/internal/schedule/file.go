package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// fileDay is one weekday in the schedule file. An omitted weekday is a day off.
//
//	[monday]
//	start = "09:00"
//	end = "18:00"
//	break_start = "13:00"
//	break_end = "14:00"
type fileDay struct {
	Start      string `toml:"start" json:"start"`
	End        string `toml:"end" json:"end"`
	BreakStart string `toml:"break_start" json:"break_start"`
	BreakEnd   string `toml:"break_end" json:"break_end"`
}

type fileWeek struct {
	Monday    *fileDay `toml:"monday" json:"monday"`
	Tuesday   *fileDay `toml:"tuesday" json:"tuesday"`
	Wednesday *fileDay `toml:"wednesday" json:"wednesday"`
	Thursday  *fileDay `toml:"thursday" json:"thursday"`
	Friday    *fileDay `toml:"friday" json:"friday"`
	Saturday  *fileDay `toml:"saturday" json:"saturday"`
	Sunday    *fileDay `toml:"sunday" json:"sunday"`
}

// LoadFile reads a TOML (.toml) or JSON (.json) schedule file and validates it.
func LoadFile(path string) (Week, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Week{}, fmt.Errorf("reading schedule: %w", err)
	}
	return Parse(data, formatOf(path))
}

type Format string

const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

func formatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatTOML
}

func Parse(data []byte, format Format) (Week, error) {
	var fw fileWeek
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &fw); err != nil {
			return Week{}, fmt.Errorf("decoding schedule json: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, &fw); err != nil {
			return Week{}, fmt.Errorf("decoding schedule toml: %w", err)
		}
	}

	raw := [7]*fileDay{fw.Monday, fw.Tuesday, fw.Wednesday, fw.Thursday, fw.Friday, fw.Saturday, fw.Sunday}
	var w Week
	for i, fd := range raw {
		if fd == nil {
			continue
		}
		d, err := fd.day()
		if err != nil {
			return Week{}, fmt.Errorf("%s: %w", dayNames[i], err)
		}
		w[i] = &d
	}
	if err := w.Validate(); err != nil {
		return Week{}, err
	}
	return w, nil
}

func (fd fileDay) day() (Day, error) {
	start, err := ParseClock(fd.Start)
	if err != nil {
		return Day{}, fmt.Errorf("start: %w", err)
	}
	end, err := ParseClock(fd.End)
	if err != nil {
		return Day{}, fmt.Errorf("end: %w", err)
	}
	d := Day{Open: Interval{Start: start, End: end}}

	if fd.BreakStart == "" && fd.BreakEnd == "" {
		return d, nil
	}
	if fd.BreakStart == "" || fd.BreakEnd == "" {
		return Day{}, fmt.Errorf("break_start and break_end must be set together")
	}
	bs, err := ParseClock(fd.BreakStart)
	if err != nil {
		return Day{}, fmt.Errorf("break_start: %w", err)
	}
	be, err := ParseClock(fd.BreakEnd)
	if err != nil {
		return Day{}, fmt.Errorf("break_end: %w", err)
	}
	d.Break = &Interval{Start: bs, End: be}
	return d, nil
}

// DefaultWeek is used when no schedule file is configured: Mon-Fri 09:00-18:00 with a
// 13:00-14:00 break, Saturday 10:00-15:00, Sunday closed.
func DefaultWeek() Week {
	weekday := func() *Day {
		return &Day{Open: Interval{Start: 9 * 60, End: 18 * 60}, Break: &Interval{Start: 13 * 60, End: 14 * 60}}
	}
	return Week{
		weekday(), weekday(), weekday(), weekday(), weekday(),
		{Open: Interval{Start: 10 * 60, End: 15 * 60}},
		nil,
	}
}
