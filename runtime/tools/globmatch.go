package tools

import "path/filepath"

func globMatch(pattern, name string) (bool, error) {
	return filepath.Match(pattern, filepath.Base(name))
}
