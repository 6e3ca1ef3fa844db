package io

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/matzehuels/metarender/pkg/metadata"
)

// maxLine bounds one index line.
const maxLine = 1 << 20

// WriteRecords writes info records as JSON lines, one record per line, in
// the given order.
func WriteRecords(records []metadata.InfoRecord, w io.Writer) error {
	enc := json.NewEncoder(w)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("record %d (%s): %w", i, r.Name, err)
		}
	}
	return nil
}

// ReadRecords reads JSON lines written by [WriteRecords]. Blank lines are
// skipped. Errors name the offending line.
func ReadRecords(r io.Reader) ([]metadata.InfoRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var out []metadata.InfoRecord
	for line := 1; sc.Scan(); line++ {
		text := sc.Bytes()
		if len(bytes.TrimSpace(text)) == 0 {
			continue
		}
		var rec metadata.InfoRecord
		if err := json.Unmarshal(text, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.Name == "" {
			return nil, fmt.Errorf("line %d: record without name", line)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return out, nil
}

// ExportRecords writes info records to an index.jsonl file at path.
func ExportRecords(records []metadata.InfoRecord, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteRecords(records, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ImportRecords reads an index.jsonl file at path.
func ImportRecords(path string) ([]metadata.InfoRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadRecords(f)
}

// Repodata is the channel index of one subdir.
type Repodata struct {
	Info     RepodataInfo                   `json:"info"`
	Packages map[string]metadata.InfoRecord `json:"packages"`
}

// RepodataInfo describes the subdir of a Repodata.
type RepodataInfo struct {
	Subdir string `json:"subdir"`
}

// NewRepodata groups records by subdir, keyed by package filename. A later
// record with the same filename replaces an earlier one.
func NewRepodata(records []metadata.InfoRecord) map[string]Repodata {
	out := make(map[string]Repodata)
	for _, r := range records {
		rd, ok := out[r.Subdir]
		if !ok {
			rd = Repodata{Info: RepodataInfo{Subdir: r.Subdir}, Packages: make(map[string]metadata.InfoRecord)}
			out[r.Subdir] = rd
		}
		rd.Packages[Filename(r)] = r
	}
	return out
}

// Filename returns the package filename of a record.
func Filename(r metadata.InfoRecord) string {
	return r.Name + "-" + r.Version + "-" + r.Build + ".tar.bz2"
}

// Subdirs returns the subdirs of a repodata map in sorted order.
func Subdirs(rd map[string]Repodata) []string {
	keys := make([]string, 0, len(rd))
	for k := range rd {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteRepodata encodes rd as indented JSON.
func WriteRepodata(rd Repodata, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rd); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
