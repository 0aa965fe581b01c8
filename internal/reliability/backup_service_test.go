package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusml/argus/internal/database"
)

func TestSnapshotAndArchive(t *testing.T) {
	dir := t.TempDir()

	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, "monitoring.db"),
		Profile: database.ProfileLedger,
		Name:    "monitoring",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`INSERT INTO alert_events (id, created_at, type, severity, message)
		VALUES ('a1', '2025-08-20T21:00:00Z', 'error', 'INFO', 'note')`)
	require.NoError(t, err)

	// Consistent snapshot via VACUUM INTO
	snapshot := filepath.Join(dir, "snapshot.db")
	require.NoError(t, db.BackupTo(context.Background(), snapshot))

	info, err := os.Stat(snapshot)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// Snapshotting onto an existing file must refuse
	assert.Error(t, db.BackupTo(context.Background(), snapshot))

	checksum, err := checksumFile(snapshot)
	require.NoError(t, err)
	assert.Contains(t, checksum, "sha256:")

	// Metadata and archive
	meta := BackupMetadata{Databases: []DatabaseMetadata{{
		Name: "monitoring", Filename: "snapshot.db", SizeBytes: info.Size(), Checksum: checksum,
	}}}
	require.NoError(t, writeMetadata(filepath.Join(dir, "backup-metadata.json"), meta))

	archivePath := filepath.Join(dir, "backup.tar.gz")
	require.NoError(t, createArchive(archivePath, dir, []string{"snapshot.db", "backup-metadata.json"}))

	// The archive round-trips with both members intact
	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	assert.ElementsMatch(t, []string{"snapshot.db", "backup-metadata.json"}, names)
}

func TestRunWithoutStorageIsNoop(t *testing.T) {
	svc := NewBackupService(nil, nil, t.TempDir(), 30, zerolog.Nop())
	assert.NoError(t, svc.Run())

	_, err := svc.CreateAndUploadBackup(context.Background())
	assert.Error(t, err)
}
