package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ConfigLoadError reports an external configuration resource that could not be read.
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error {
	return e.Err
}

// LoadKeywords reads one search term per line. Order is kept; blank lines are skipped.
func LoadKeywords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	defer f.Close()

	var keywords []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" {
			continue
		}
		keywords = append(keywords, word)
	}
	if err := scanner.Err(); err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	if len(keywords) == 0 {
		return nil, &ConfigLoadError{Path: path, Err: fmt.Errorf("no keywords found")}
	}
	return keywords, nil
}
