package fib

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// EntrySet groups the entries an agent run applies or removes.
type EntrySet struct {
	// FIBPath overrides DefaultFIBPath when set.
	FIBPath string  `toml:"fib_path"`
	Static  []Entry `toml:"static"`
	Dynamic []Entry `toml:"dynamic"`
}

// LoadEntrySet reads an entry set from a TOML file of the form
//
//	fib_path = "/etc/cefnetd/cefnetd.fib"
//
//	[[static]]
//	name = "ccnx:/my/data"
//	protocol = "udp"
//	next_hops = ["172.18.0.22"]
//
//	[[dynamic]]
//	...
func LoadEntrySet(path string) (EntrySet, error) {
	var set EntrySet
	md, err := toml.DecodeFile(path, &set)
	if err != nil {
		return EntrySet{}, fmt.Errorf("load FIB entries from %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return EntrySet{}, fmt.Errorf("load FIB entries from %s: unknown keys %v", path, undecoded)
	}
	for _, e := range append(append([]Entry(nil), set.Static...), set.Dynamic...) {
		if err := e.Validate(); err != nil {
			return EntrySet{}, fmt.Errorf("load FIB entries from %s: %w", path, err)
		}
	}
	return set, nil
}

// DefaultEntrySet is the testbed topology used when no file is given.
func DefaultEntrySet() EntrySet {
	return EntrySet{
		Static: []Entry{
			{Name: "ccnx:/test/video/demo", Protocol: "udp", NextHops: []string{"172.18.0.21", "172.18.0.31", "172.18.0.32"}},
			{Name: "ccnx:/my/data", Protocol: "udp", NextHops: []string{"172.18.0.22"}},
		},
		Dynamic: []Entry{
			{Name: "ccnx:/dynamic/route", Protocol: "udp", NextHops: []string{"172.18.0.23", "172.18.0.33"}},
		},
	}
}
