package archive

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prosevault/prosevault/internal/story"
)

func TestBackupFullWritesCompletedSnapshot(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "project-1")
	manager := f.newManager(t, Options{IncludeProse: true})

	record, err := manager.BackupFull(context.Background(), "project-1", "nightly")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", record.Status)
	}
	if record.Format != FormatJSON {
		t.Fatalf("expected json format, got %s", record.Format)
	}
	if record.SizeBytes == 0 || record.Checksum == "" {
		t.Fatalf("expected size and checksum, got %#v", record)
	}
	// project + 2 scenes + link + character + sequence + version
	if record.ItemCount != 7 {
		t.Fatalf("expected 7 items, got %d", record.ItemCount)
	}

	data, err := os.ReadFile(record.Path)
	if err != nil {
		t.Fatalf("failed to read backup file: %v", err)
	}
	if fileChecksum(data) != record.Checksum {
		t.Fatalf("checksum must cover on-disk bytes")
	}

	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if envelope.Metadata.BackupID != record.ID || envelope.Metadata.Type != BackupTypeFull {
		t.Fatalf("unexpected metadata: %#v", envelope.Metadata)
	}
	if len(envelope.SceneCards) != 2 || len(envelope.ChainLinks) != 1 || len(envelope.ProseContent) != 1 {
		t.Fatalf("unexpected payload: %d scenes, %d links, %d versions",
			len(envelope.SceneCards), len(envelope.ChainLinks), len(envelope.ProseContent))
	}
	if !strings.HasSuffix(record.Path, ".json") {
		t.Fatalf("unexpected file name %q", record.Path)
	}
}

func TestBackupFullCompressedRoundTrips(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "project-1")
	manager := f.newManager(t, Options{Compress: true, IncludeProse: true})

	record, err := manager.BackupFull(context.Background(), "project-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Format != FormatJSONGzip {
		t.Fatalf("expected gzip format, got %s", record.Format)
	}
	if !strings.HasSuffix(record.Path, ".json.gz") {
		t.Fatalf("unexpected file name %q", record.Path)
	}

	data, err := os.ReadFile(record.Path)
	if err != nil {
		t.Fatalf("failed to read backup file: %v", err)
	}
	envelope, err := decodeEnvelope(data, record.Format)
	if err != nil {
		t.Fatalf("failed to decode gzip envelope: %v", err)
	}
	if len(envelope.SceneCards) != 2 {
		t.Fatalf("expected 2 scenes after decompression, got %d", len(envelope.SceneCards))
	}
}

func TestBackupScenesUnknownSceneFailsAndRecordsAudit(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "project-1")
	manager := f.newManager(t, Options{})

	_, err := manager.BackupScenes(context.Background(), "project-1",
		[]string{"scene-goal", "scene-ghost"}, "")
	requireErrorIs(t, err, story.ErrNotFound)

	records, listErr := manager.ListBackups(context.Background(), "project-1")
	if listErr != nil {
		t.Fatalf("unexpected error: %v", listErr)
	}
	if len(records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(records))
	}
	if records[0].Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", records[0].Status)
	}
	if !strings.Contains(records[0].ErrorMessage, "scene-ghost") {
		t.Fatalf("expected error message to name the missing scene, got %q", records[0].ErrorMessage)
	}
	if records[0].Path != "" {
		t.Fatalf("failed backup must not claim a file, got %q", records[0].Path)
	}
}

func TestBackupSequenceCarriesMembersAndVersions(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "project-1")
	manager := f.newManager(t, Options{})

	record, err := manager.BackupSequence(context.Background(), "project-1", "seq-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(record.Path)
	if err != nil {
		t.Fatalf("failed to read backup file: %v", err)
	}
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if len(envelope.Sequences) != 1 || envelope.Sequences[0].ID != "seq-1" {
		t.Fatalf("expected the sequence, got %#v", envelope.Sequences)
	}
	if len(envelope.SceneCards) != 2 {
		t.Fatalf("expected both member scenes, got %d", len(envelope.SceneCards))
	}
	if len(envelope.ProseContent) != 1 {
		t.Fatalf("expected the member scene's version, got %d", len(envelope.ProseContent))
	}
}

func TestBackupIncrementalHonorsBoundary(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "project-1")
	manager := f.newManager(t, Options{})

	cutoff := time.Now().UTC().Add(time.Hour)
	record, err := manager.BackupIncremental(context.Background(), "project-1", &cutoff, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(record.Path)
	if err != nil {
		t.Fatalf("failed to read backup file: %v", err)
	}
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if len(envelope.ChangedScenes) != 0 || len(envelope.ChangedLinks) != 0 {
		t.Fatalf("nothing is newer than the cutoff, got %d scenes %d links",
			len(envelope.ChangedScenes), len(envelope.ChangedLinks))
	}

	past := time.Now().UTC().Add(-time.Hour)
	record, err = manager.BackupIncremental(context.Background(), "project-1", &past, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err = os.ReadFile(record.Path)
	if err != nil {
		t.Fatalf("failed to read backup file: %v", err)
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if len(envelope.ChangedScenes) != 2 || len(envelope.ChangedLinks) != 1 {
		t.Fatalf("everything is newer than the cutoff, got %d scenes %d links",
			len(envelope.ChangedScenes), len(envelope.ChangedLinks))
	}
}

func TestBackupIncrementalRequiresProject(t *testing.T) {
	f := newFixture(t)
	manager := f.newManager(t, Options{})

	_, err := manager.BackupIncremental(context.Background(), "", nil, "")
	requireErrorIs(t, err, story.ErrConstraintViolation)
}

func TestRetentionKeepsNewestCompleted(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "project-1")
	manager := f.newManager(t, Options{MaxBackupsToKeep: 2})

	var paths []string
	for i := 0; i < 3; i++ {
		record, err := manager.BackupFull(context.Background(), "project-1", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		paths = append(paths, record.Path)
	}

	records, err := manager.ListBackups(context.Background(), "project-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 retained records, got %d", len(records))
	}
	for _, record := range records {
		if record.Path == paths[0] {
			t.Fatalf("oldest backup must be retired")
		}
	}
	if _, err := os.Stat(paths[0]); !os.IsNotExist(err) {
		t.Fatalf("oldest backup file must be removed, stat err = %v", err)
	}
	for _, path := range paths[1:] {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("retained backup file missing: %v", err)
		}
	}
}

func TestEngineSnapshotCopiesStorageFile(t *testing.T) {
	f := newFixture(t)
	enginePath := f.dir + "/engine.db"
	if err := os.WriteFile(enginePath, []byte("raw sqlite bytes"), 0o644); err != nil {
		t.Fatalf("failed to write engine file: %v", err)
	}
	manager := f.newManager(t, Options{EngineSnapshot: true, EnginePath: enginePath})

	record, err := manager.BackupFull(context.Background(), "", "weekly cold copy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Type != BackupTypeEngine || record.Format != FormatEngineCopy {
		t.Fatalf("unexpected record: %#v", record)
	}
	copied, err := os.ReadFile(record.Path)
	if err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}
	if string(copied) != "raw sqlite bytes" {
		t.Fatalf("snapshot must be byte-for-byte, got %q", copied)
	}
}

func TestDeleteBackupRemovesRecordAndFile(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "project-1")
	manager := f.newManager(t, Options{})

	record, err := manager.BackupFull(context.Background(), "project-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := manager.DeleteBackup(context.Background(), record.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = manager.GetBackup(context.Background(), record.ID)
	requireErrorIs(t, err, story.ErrNotFound)
	if _, err := os.Stat(record.Path); !os.IsNotExist(err) {
		t.Fatalf("backup file must be removed, stat err = %v", err)
	}
}

func TestBackupIncrementalResolvesDefaultCutoff(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "project-1")
	// Anchor the injected clock at wall time so the fallback window and the
	// prior record's timestamp bracket the seeded rows.
	f.clock.now = time.Now().UTC()
	manager := f.newManager(t, Options{})

	// No prior incremental: the cutoff falls back to now minus the
	// configured window, so every seeded row counts as changed.
	record, err := manager.BackupIncremental(context.Background(), "project-1", nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(record.Path)
	if err != nil {
		t.Fatalf("failed to read backup file: %v", err)
	}
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if len(envelope.ChangedScenes) != 2 || len(envelope.ChangedLinks) != 1 {
		t.Fatalf("fallback window should cover the seed, got %d scenes %d links",
			len(envelope.ChangedScenes), len(envelope.ChangedLinks))
	}

	// A completed incremental exists now; the next cutoff is its timestamp,
	// which postdates every seeded row.
	record, err = manager.BackupIncremental(context.Background(), "project-1", nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err = os.ReadFile(record.Path)
	if err != nil {
		t.Fatalf("failed to read backup file: %v", err)
	}
	envelope = Envelope{}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if len(envelope.ChangedScenes) != 0 || len(envelope.ChangedLinks) != 0 {
		t.Fatalf("nothing changed since the prior incremental, got %d scenes %d links",
			len(envelope.ChangedScenes), len(envelope.ChangedLinks))
	}
}
