package memhist

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// formatVersion and writerVersion are the sidecar's fixed version stamps
// from the specification's external interface.
const (
	formatVersion = "1.0.0"
	writerVersion = "1.1.0"
)

// sidecar is the metadata document a Writer stamps next to the database
// file it creates, delegated to the embedded store library in the
// original design and treated here as a small, first-class JSON artifact.
type sidecar struct {
	ResourceType  string    `json:"resource_type"`
	FormatVersion string    `json:"format_version"`
	WriterVersion string    `json:"writer_version"`
	ToolName      string    `json:"tool_name"`
	ToolVersion   string    `json:"tool_version"`
	ToolInfo      string    `json:"tool_info"`
	SessionID     string    `json:"session_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// newSidecar builds a sidecar for one Writer session, NFC-normalizing the
// caller-supplied identity strings the way internal/ir.canonical.go
// normalizes strings before hashing, so two otherwise-identical tool
// identities that differ only in Unicode normalization form produce
// byte-identical sidecars.
func newSidecar(toolName, toolVersion, toolInfo string, now time.Time) sidecar {
	return sidecar{
		ResourceType:  "MemHist",
		FormatVersion: formatVersion,
		WriterVersion: writerVersion,
		ToolName:      norm.NFC.String(toolName),
		ToolVersion:   norm.NFC.String(toolVersion),
		ToolInfo:      norm.NFC.String(toolInfo),
		SessionID:     uuid.New().String(),
		CreatedAt:     now,
	}
}

// sidecarPath returns the metadata file path for a database filename, or
// "" for the in-memory sentinel, which has no path to sidecar against.
func sidecarPath(filename string) string {
	if filename == inMemoryFilename {
		return ""
	}
	return filename + ".meta.json"
}

// writeSidecar stamps s as a JSON document at path. A no-op when path is
// empty.
func writeSidecar(path string, s sidecar) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("memhist: marshal metadata sidecar: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("memhist: write metadata sidecar %s: %w", path, err)
	}
	return nil
}
