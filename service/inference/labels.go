package inference

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"
)

// ImageNet synset files prefix every line with a WordNet id, e.g.
// "n02123045 tabby, tabby cat".
var wnidPrefix = regexp.MustCompile(`^n\d{8}\s+`)

func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseLabels(f)
}

func ParseLabels(r io.Reader) ([]string, error) {
	labels := []string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, wnidPrefix.ReplaceAllString(line, ""))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return labels, nil
}
