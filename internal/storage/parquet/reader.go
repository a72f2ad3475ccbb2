package parquet

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	goparquet "github.com/parquet-go/parquet-go"

	"marketetl/internal/schema"
)

// ReadDataset loads every event stored under root, in partition then file
// order.
func ReadDataset(root string) ([]schema.MarketEvent, error) {
	keys, err := Partitions(root)
	if err != nil {
		return nil, err
	}
	var out []schema.MarketEvent
	for _, k := range keys {
		files, err := PartFiles(filepath.Join(root, partitionPrefix+k))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			events, err := ReadFile(f)
			if err != nil {
				return nil, err
			}
			out = append(out, events...)
		}
	}
	return out, nil
}

// ReadFile loads the events stored in one part file.
func ReadFile(path string) ([]schema.MarketEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("parquet: read %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("parquet: read %s: %w", path, err)
	}
	pf, err := goparquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parquet: read %s: %w", path, err)
	}
	cols, err := columnsOf(pf.Schema())
	if err != nil {
		return nil, fmt.Errorf("parquet: read %s: %w", path, err)
	}

	r := goparquet.NewReader(pf)
	defer r.Close()

	out := make([]schema.MarketEvent, 0, pf.NumRows())
	buf := make([]goparquet.Row, 256)
	for {
		n, err := r.ReadRows(buf)
		for _, row := range buf[:n] {
			out = append(out, fromRow(row, cols))
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parquet: read %s: %w", path, err)
		}
	}
}

// PartFiles lists the .parquet files directly under dir, sorted.
func PartFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("parquet: list files: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".parquet") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
