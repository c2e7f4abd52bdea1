// Package archive re-exports the archive store abstractions and selects a
// concrete driver from the environment.
package archive

import (
	"context"
	"fmt"
	"os"

	"batchledger/internal/archive/core"
	fsdriver "batchledger/internal/archive/fs"
	memdriver "batchledger/internal/archive/memory"
	s3driver "batchledger/internal/archive/s3"
)

type (
	// Driver identifies an archive backend driver.
	Driver = core.Driver
	// PutOptions configures an artifact write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// ObjectInfo describes stored artifact metadata.
	ObjectInfo = core.ObjectInfo
	// Store is the interface for archive storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// ErrUnsupported indicates an operation is not supported by a driver.
var ErrUnsupported = core.ErrUnsupported

// Open selects an archive Store implementation using environment variables.
//
//	BATCHLEDGER_ARCHIVE_DRIVER: fs|s3|memory (default fs)
//	BATCHLEDGER_ARCHIVE_FS_ROOT: directory root when driver=fs (default ./archive)
//	(S3 specific variables documented in the s3 driver package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("BATCHLEDGER_ARCHIVE_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return fsdriver.New(os.Getenv("BATCHLEDGER_ARCHIVE_FS_ROOT"))
	case DriverS3:
		return s3driver.OpenFromEnv(ctx)
	case DriverMemory:
		return memdriver.New(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}
