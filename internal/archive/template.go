package archive

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ExpandTemplate fills an output directory template from a date and the
// archive name. Recognized placeholders are {name}, {year}, {month},
// {month:02d}, {day} and {day:02d}. Forward slashes separate directories on
// every platform.
func ExpandTemplate(tmpl string, t time.Time, name string) string {
	r := strings.NewReplacer(
		"{name}", name,
		"{year}", strconv.Itoa(t.Year()),
		"{month:02d}", fmt.Sprintf("%02d", int(t.Month())),
		"{month}", strconv.Itoa(int(t.Month())),
		"{day:02d}", fmt.Sprintf("%02d", t.Day()),
		"{day}", strconv.Itoa(t.Day()),
	)

	return filepath.FromSlash(r.Replace(tmpl))
}
