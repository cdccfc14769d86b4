package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/perbu/vidmem/pkg/vidmem"
)

// MetadataFlag collects repeated key=value command line arguments.
type MetadataFlag vidmem.Metadata

// String implements flag.Value.
func (f *MetadataFlag) String() string {
	if f == nil || len(*f) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(*f))
	for k, v := range *f {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// Set implements flag.Value.
func (f *MetadataFlag) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	if *f == nil {
		*f = MetadataFlag{}
	}
	(*f)[k] = v
	return nil
}

// Metadata returns a copy of the collected pairs.
func (f MetadataFlag) Metadata() vidmem.Metadata {
	return vidmem.Metadata(f).Clone()
}

// Matches reports whether md carries every collected pair. Values are
// compared in their printed form.
func (f MetadataFlag) Matches(md vidmem.Metadata) bool {
	for k, want := range f {
		got, ok := md[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
