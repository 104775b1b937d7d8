package batch

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/manash/chronosnap/pkg/models"
)

var ErrNoEras = errors.New("no eras selected")

// AllEras selects the whole catalog.
const AllEras = "all"

type Item struct {
	Index int
	Era   models.Era
}

// ParseList resolves a comma separated list of era ids, or "all".
func ParseList(list string, catalog *models.Catalog) ([]Item, error) {
	if strings.EqualFold(strings.TrimSpace(list), AllEras) {
		return resolve(catalog.IDs(), catalog)
	}
	return resolve(strings.Split(list, ","), catalog)
}

// ParseFile reads era ids from a .txt file (one per line, # comments) or a
// .json file holding an array of ids.
func ParseFile(path string, catalog *models.Catalog) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return ParseJSON(file, catalog)
	case ".txt", "":
		return ParseText(file, catalog)
	default:
		return nil, fmt.Errorf("unsupported file format %q: use .txt or .json", ext)
	}
}

func ParseText(r io.Reader, catalog *models.Catalog) ([]Item, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return resolve(ids, catalog)
}

func ParseJSON(r io.Reader, catalog *models.Catalog) ([]Item, error) {
	var ids []string
	if err := json.NewDecoder(r).Decode(&ids); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return resolve(ids, catalog)
}

// resolve maps ids to catalog eras, dropping blanks and duplicates.
func resolve(ids []string, catalog *models.Catalog) ([]Item, error) {
	var items []Item
	seen := make(map[string]bool)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		era, ok := catalog.Get(id)
		if !ok {
			return nil, fmt.Errorf("unknown era %q: available eras: %s", id, strings.Join(catalog.IDs(), ", "))
		}
		seen[id] = true
		items = append(items, Item{Index: len(items) + 1, Era: era})
	}
	if len(items) == 0 {
		return nil, ErrNoEras
	}
	return items, nil
}
