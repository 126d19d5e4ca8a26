package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MakeFileName builds the filer path for a batch file
func MakeFileName(id, file string) string {
	return filepath.Join(id, file)
}

// MakeValidateFileName builds the filer path making sure the name can't escape the batch dir
func MakeValidateFileName(id, file string) (string, error) {
	if file == "" {
		return "", fmt.Errorf("no file name")
	}
	if strings.ContainsAny(file, "/\\") || strings.Contains(file, "..") {
		return "", fmt.Errorf("wrong file name '%s'", file)
	}
	return filepath.Join(id, file), nil
}

// SupportAudioExt checks if audio ext is supported
func SupportAudioExt(ext string) bool {
	return ext == ".wav" || ext == ".mp3" || ext == ".mp4" || ext == ".m4a"
}

// ParamTrue - returns true if string param indicates true value
func ParamTrue(prm string) bool {
	return strings.ToLower(prm) == "true" || prm == "1"
}
