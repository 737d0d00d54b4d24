package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// ReadAuditFile decodes every complete entry in one audit file. A truncated
// trailing block (a file still being written) ends the read without error.
func ReadAuditFile(path string) ([]AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []AuditEntry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e AuditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return out, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return out, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// ReadAuditDir reads every transfers-*.jsonl.zst file under dir in hour order.
func ReadAuditDir(dir string) ([]AuditEntry, error) {
	files, err := filepath.Glob(filepath.Join(dir, "transfers-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var out []AuditEntry
	for _, p := range files {
		es, err := ReadAuditFile(p)
		out = append(out, es...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
