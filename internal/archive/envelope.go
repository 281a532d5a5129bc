package archive

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/prosevault/prosevault/internal/story"
)

// Metadata is the self-describing header of every structured snapshot.
type Metadata struct {
	BackupID  string       `json:"backupId"`
	Type      BackupType   `json:"backupType"`
	ProjectID string       `json:"projectId,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	Format    BackupFormat `json:"format"`
}

// Envelope is the structured snapshot payload. Scope-specific keys are
// omitted when empty; readers tolerate missing optional keys.
type Envelope struct {
	Metadata Metadata `json:"backupMetadata"`

	Project  *story.Project  `json:"project,omitempty"`
	Projects []story.Project `json:"projects,omitempty"`

	SceneCards    []story.SceneCard `json:"sceneCards,omitempty"`
	ChangedScenes []story.SceneCard `json:"changedScenes,omitempty"`

	ChainLinks   []story.ChainLink `json:"chainLinks,omitempty"`
	ChangedLinks []story.ChainLink `json:"changedLinks,omitempty"`

	Characters []story.Character `json:"characters,omitempty"`
	Sequences  []story.Sequence  `json:"sequences,omitempty"`

	ProseContent []story.ProseVersion `json:"proseContent,omitempty"`
	ChangedProse []story.ProseVersion `json:"changedProse,omitempty"`

	ValidationLogs []story.ValidationLog `json:"validationLogs,omitempty"`
}

// itemCount totals the entities carried by the envelope.
func (e *Envelope) itemCount() int {
	count := len(e.Projects) + len(e.SceneCards) + len(e.ChangedScenes) +
		len(e.ChainLinks) + len(e.ChangedLinks) + len(e.Characters) +
		len(e.Sequences) + len(e.ProseContent) + len(e.ChangedProse) +
		len(e.ValidationLogs)
	if e.Project != nil {
		count++
	}
	return count
}

// encode serializes the envelope to the final on-disk bytes, gzipping when
// the format asks for it.
func (e *Envelope) encode() ([]byte, error) {
	plain, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive: encode envelope: %w", err)
	}
	if e.Metadata.Format != FormatJSONGzip {
		return plain, nil
	}
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(plain); err != nil {
		return nil, fmt.Errorf("archive: gzip envelope: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("archive: gzip envelope: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeEnvelope parses on-disk bytes back into an envelope and validates
// the required metadata fields.
func decodeEnvelope(data []byte, format BackupFormat) (*Envelope, error) {
	if format == FormatJSONGzip {
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrInvalidFormat, err)
		}
		defer reader.Close()
		data, err = io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrInvalidFormat, err)
		}
	}
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	meta := envelope.Metadata
	if meta.BackupID == "" || meta.Type == "" || meta.Format == "" || meta.CreatedAt.IsZero() {
		return nil, fmt.Errorf("%w: incomplete backup metadata", ErrInvalidFormat)
	}
	return &envelope, nil
}

// fileChecksum is sha256 over exactly the bytes that will be read back.
func fileChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
