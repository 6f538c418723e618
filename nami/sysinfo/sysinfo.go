// Package sysinfo polls the upstream server's /info endpoint and renders a
// compact system panel from it.
package sysinfo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/davide97g/nami/nami/layout"
)

const (
	// MaxLine is the longest value shown on a row.
	MaxLine = 16

	// DefaultInterface is the network interface whose address is shown.
	DefaultInterface = "en0"

	rowPitch  = 10
	tailLimit = 56

	unknown = "Unknown"
)

var (
	ErrNoData = errors.New("sysinfo: empty response")
	ErrParse  = errors.New("sysinfo: decoding")
)

// StatusError is an HTTP response other than 200 OK.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "sysinfo: unexpected status " + strconv.Itoa(e.Code)
}

// Notice returns the status lines shown when a fetch fails and nothing is
// cached.
func Notice(err error) []string {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return []string{"HTTP Error", "Code: " + strconv.Itoa(se.Code)}
	case errors.Is(err, ErrParse):
		return []string{"Parse Error"}
	case errors.Is(err, ErrNoData):
		return []string{"API Error", "No data"}
	default:
		return []string{"HTTP Error"}
	}
}

// Info is the subset of the /info document the panel shows. Every section
// is optional.
type Info struct {
	System  *System                `json:"system"`
	CPU     *CPU                   `json:"cpu"`
	Memory  *Memory                `json:"memory"`
	Network map[string][]Interface `json:"network"`
}

type System struct {
	Hostname string  `json:"hostname"`
	Platform string  `json:"platform"`
	Uptime   float64 `json:"uptime"` // seconds
}

type CPU struct {
	Model string `json:"model"`
	Cores int    `json:"cores"`
	Speed int    `json:"speed"` // MHz
}

type Memory struct {
	Total float64 `json:"total"` // bytes
	Free  float64 `json:"free"`
	Used  float64 `json:"used"`
}

type Interface struct {
	Address  string `json:"address"`
	Family   any    `json:"family"` // "IPv4" or 4 depending on the server runtime
	Internal bool   `json:"internal"`
}

// Parse decodes an /info document.
func Parse(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, ErrNoData
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return info, nil
}

// Address returns the first address of the named interface, or "".
func (i Info) Address(iface string) string {
	for _, a := range i.Network[iface] {
		if a.Address != "" {
			return a.Address
		}
	}
	return ""
}

// Lines lays the panel out top to bottom. Missing sections are left out and
// the uptime and network rows are only kept while they start above the
// bottom band.
func (i Info) Lines(iface string) []layout.Line {
	var lines []layout.Line
	y := 0
	add := func(text string) {
		lines = append(lines, layout.Line{Text: layout.Truncate(text, MaxLine), Y: y})
		y += rowPitch
	}

	if i.System != nil {
		add(orUnknown(i.System.Hostname))
		add(orUnknown(i.System.Platform))
	}
	if i.CPU != nil {
		add("CPU: " + strconv.Itoa(i.CPU.Cores) + "C @ " + strconv.Itoa(i.CPU.Speed) + "MHz")
	}
	if i.Memory != nil {
		add("RAM: " + strconv.Itoa(megabytes(i.Memory.Used)) + "/" + strconv.Itoa(megabytes(i.Memory.Total)) + "MB")
	}
	if i.System != nil && y < tailLimit {
		add("Up: " + formatUptime(i.System.Uptime))
	}
	if addr := i.Address(iface); addr != "" && y < tailLimit {
		add(addr)
	}
	return lines
}

// Render clears c and draws the panel.
func Render(c layout.Canvas, info Info, iface string) error {
	c.Clear()
	layout.Draw(c, info.Lines(iface))
	return c.Flush()
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

func megabytes(b float64) int {
	return int(b / (1024 * 1024))
}

func formatUptime(sec float64) string {
	total := int(sec)
	h := total / 3600
	m := (total % 3600) / 60
	return strconv.Itoa(h) + "h " + strconv.Itoa(m) + "m"
}
