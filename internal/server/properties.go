package server

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const propertiesFile = "server.properties"

// ReadProperties returns the key/value pairs of <dir>/server.properties; a
// missing file yields an empty map.
func ReadProperties(serverDir string) (map[string]string, error) {
	props := make(map[string]string)
	lines, err := readLines(filepath.Join(serverDir, propertiesFile))
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if key, val, ok := splitProperty(line); ok {
			props[key] = val
		}
	}
	return props, nil
}

// SetProperty rewrites a single key, keeping comments and the order of the
// other lines. The file is left alone when the value already matches.
func SetProperty(serverDir, key, value string) error {
	path := filepath.Join(serverDir, propertiesFile)
	lines, err := readLines(path)
	if err != nil {
		return err
	}

	updated := false
	out := make([]string, 0, len(lines)+1)
	for _, line := range lines {
		k, v, ok := splitProperty(line)
		if ok && k == key {
			if v == value && !updated {
				return nil
			}
			if !updated {
				out = append(out, fmt.Sprintf("%s=%s", key, value))
				updated = true
			}
			continue
		}
		out = append(out, line)
	}
	if !updated {
		out = append(out, fmt.Sprintf("%s=%s", key, value))
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, line := range out {
		writer.WriteString(line + "\n")
	}
	return writer.Flush()
}

func SetPort(serverDir string, port int) error {
	return SetProperty(serverDir, "server-port", strconv.Itoa(port))
}

func WriteEULA(serverDir string) error {
	return os.WriteFile(filepath.Join(serverDir, "eula.txt"), []byte("eula=true\n"), 0644)
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func splitProperty(line string) (string, string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	parts := strings.SplitN(trimmed, "=", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}
