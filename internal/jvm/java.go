package jvm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const DefaultPath = "java"

var versionRe = regexp.MustCompile(`version\s+"([^"]+)"`)
var numberRe = regexp.MustCompile(`\d+`)

type Runtime struct {
	Path    string
	Version string
	Major   int
}

func (r Runtime) String() string {
	return fmt.Sprintf("%s (Java %d)", r.Version, r.Major)
}

// Detect runs `<path> -version` and parses what it prints. The JVM writes the
// banner to stderr, so both streams are read.
func Detect(path string) (*Runtime, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-version").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("java at %q is not usable: %w", path, err)
	}

	rt := &Runtime{Path: path}
	firstLine, _, _ := strings.Cut(string(bytes.TrimSpace(out)), "\n")
	rt.Version = strings.TrimSpace(firstLine)

	m := versionRe.FindStringSubmatch(string(out))
	if len(m) < 2 {
		return nil, fmt.Errorf("java at %q printed no version", path)
	}
	major, err := ParseMajor(m[1])
	if err != nil {
		return nil, err
	}
	rt.Major = major
	return rt, nil
}

func DetectDefault() (*Runtime, error) {
	return Detect(DefaultPath)
}

// ParseMajor understands both the legacy "1.8.0_392" and the modern "21.0.2"
// version strings.
func ParseMajor(version string) (int, error) {
	parts := strings.Split(version, ".")
	field := parts[0]
	if field == "1" && len(parts) > 1 {
		field = parts[1]
	}
	num := numberRe.FindString(field)
	if num == "" {
		return 0, fmt.Errorf("unrecognised java version %q", version)
	}
	return strconv.Atoi(num)
}

// RequiredFor returns the minimum Java major a Minecraft version needs.
// 1.20.5+ -> 21, 1.18+ -> 17, older -> 8. Unparseable input gets 21.
func RequiredFor(mcVersion string) int {
	parts := strings.Split(mcVersion, ".")
	first, err := strconv.Atoi(parts[0])
	if err != nil || first != 1 || len(parts) < 2 {
		return 21
	}

	minor, _ := strconv.Atoi(numberRe.FindString(parts[1]))
	if minor >= 21 {
		return 21
	}
	if minor == 20 && len(parts) > 2 {
		patch, _ := strconv.Atoi(numberRe.FindString(parts[2]))
		if patch >= 5 {
			return 21
		}
	}
	if minor >= 18 {
		return 17
	}
	return 8
}
