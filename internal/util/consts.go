package util

// Application-level names.
const (
	// AppName is the binary name and the prefix of everything it creates.
	AppName = "stylesync"
	// ConfigFilename is the per-workspace configuration file.
	ConfigFilename = ".stylesync.toml"
	// ScratchDirName is the scratch directory created under a storage path.
	ScratchDirName = "sync"
)

// ScratchDirPrefix is the prefix of scratch directories created under the
// OS temp dir when no storage path is configured.
const ScratchDirPrefix = AppName + "_sync_"
