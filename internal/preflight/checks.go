package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"mediaflow/internal/config"
	"mediaflow/internal/deps"
	"mediaflow/internal/store"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps reports each external binary the pipeline executes.
// Optional binaries pass even when missing.
func CheckSystemDeps(cfg *config.Config) []Result {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	results := make([]Result, 0, len(statuses))
	for _, s := range statuses {
		switch {
		case s.Available:
			results = append(results, Result{Name: s.Name, Passed: true, Detail: s.Command})
		case s.Optional:
			results = append(results, Result{Name: s.Name, Passed: true, Detail: s.Detail + " (optional)"})
		default:
			results = append(results, Result{Name: s.Name, Detail: fmt.Sprintf("%s: %s", s.Detail, s.Description)})
		}
	}
	return results
}

// CheckDatabase verifies the store answers and carries the expected schema.
func CheckDatabase(ctx context.Context, st *store.Store) Result {
	const name = "Database"
	if err := st.Ping(ctx); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: st.Path()}
}
