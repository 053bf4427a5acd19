package crawl

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// LoadSeeds reads the seed file: a JSON array of handles and/or DIDs. A missing file is created empty. Blank
// entries are dropped; everything else is passed through unparsed, since bad entries are reported per-account
// during the crawl.
func LoadSeeds(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte("[]\n"), 0o644); err != nil {
			return nil, fmt.Errorf("creating empty seed file: %w", err)
		}
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var entries []string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	seeds := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e) == "" {
			continue
		}
		seeds = append(seeds, e)
	}
	return seeds, nil
}
