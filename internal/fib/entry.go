package fib

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultFIBPath is where cefnetd reads its static FIB.
const DefaultFIBPath = "/etc/cefnetd/cefnetd.fib"

// Entry is one forwarding rule: a name prefix reachable over Protocol via
// any of NextHops.
type Entry struct {
	Name     string   `toml:"name"`
	Protocol string   `toml:"protocol"`
	NextHops []string `toml:"next_hops"`
}

// Line formats e the way cefnetd.fib stores it: "name protocol hop1 hop2".
func (e Entry) Line() string {
	parts := append([]string{e.Name, e.Protocol}, e.NextHops...)
	return strings.Join(parts, " ")
}

func (e Entry) String() string { return e.Line() }

// Validate checks that e can be written as a single FIB line.
func (e Entry) Validate() error {
	if e.Name == "" {
		return errors.New("entry name is required")
	}
	if e.Protocol == "" {
		return fmt.Errorf("entry %s: protocol is required", e.Name)
	}
	if len(e.NextHops) == 0 {
		return fmt.Errorf("entry %s: at least one next hop is required", e.Name)
	}
	for _, f := range append([]string{e.Name, e.Protocol}, e.NextHops...) {
		if f == "" || strings.ContainsAny(f, " \t\r\n#") {
			return fmt.Errorf("entry %s: invalid field %q", e.Name, f)
		}
	}
	return nil
}

// ParseLine parses a FIB line. Blank and comment lines return ok=false.
func ParseLine(line string) (Entry, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Entry{}, false, nil
	}
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Entry{}, false, fmt.Errorf("malformed FIB line %q", line)
	}
	return Entry{Name: fields[0], Protocol: fields[1], NextHops: fields[2:]}, true, nil
}
