package classifier

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var synsetPrefix = regexp.MustCompile(`^n\d{8}\s+`)

// LoadLabels reads one label per line. WordNet synset ids ("n01440764
// tench") are stripped. Blank lines are kept as empty labels so indices stay
// aligned with model outputs.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // configured label file
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing labels file: %v\n", err)
		}
	}()

	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		labels = append(labels, synsetPrefix.ReplaceAllString(line, ""))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}

func labelFor(labels []string, idx int) string {
	if idx >= 0 && idx < len(labels) && labels[idx] != "" {
		return labels[idx]
	}
	return fmt.Sprintf("class %d", idx)
}
