package main

import (
	"fmt"
	"regexp"
	"strings"
)

// SPIFFS on the ESP8266 limits object names to 31 characters.
const maxFilenameLength = 31

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func validateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if len(name) > maxFilenameLength {
		return fmt.Errorf("filename too long (max %d characters)", maxFilenameLength)
	}
	if !filenamePattern.MatchString(name) {
		return fmt.Errorf("filename contains invalid characters (allowed: a-z, A-Z, 0-9, ., -, _)")
	}
	if strings.Trim(name, ".") == "" {
		return fmt.Errorf("filename cannot consist of dots only")
	}
	return nil
}

func validateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("code cannot be empty")
	}
	if len(code) > 64*1024 {
		return fmt.Errorf("code too large (max 64KB)")
	}
	if strings.ContainsRune(code, 0) {
		return fmt.Errorf("code contains null character")
	}
	return nil
}
