package archive

import (
	"context"
	"testing"
)

func TestOpenDefaultsToFilesystem(t *testing.T) {
	t.Setenv("BATCHLEDGER_ARCHIVE_DRIVER", "")
	t.Setenv("BATCHLEDGER_ARCHIVE_FS_ROOT", t.TempDir())

	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("expected fs driver, got %s", store.Driver())
	}
}

func TestOpenMemoryDriver(t *testing.T) {
	t.Setenv("BATCHLEDGER_ARCHIVE_DRIVER", string(DriverMemory))

	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", store.Driver())
	}
}

func TestOpenS3DriverRequiresBucket(t *testing.T) {
	t.Setenv("BATCHLEDGER_ARCHIVE_DRIVER", string(DriverS3))
	t.Setenv("BATCHLEDGER_ARCHIVE_S3_BUCKET", "")

	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected missing bucket to fail")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Setenv("BATCHLEDGER_ARCHIVE_DRIVER", "tape")

	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}
