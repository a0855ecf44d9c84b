package classify

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// tmpFolderName is reserved for derived artifacts (NIfTI output, zip
// packages) and is excluded from every walk.
const tmpFolderName = "tmp"

// Inventory is the structural view of a patient folder: which specialized
// subfolders exist and which files live where. It carries no classification
// state, so both the classifier and the reconciler can consume it without
// depending on each other.
type Inventory struct {
	FolderPath string

	// CBCTFolder and IOSFolder are absolute paths to the first matching
	// subfolder per category, empty when none matched.
	CBCTFolder string
	IOSFolder  string

	// CBCTFiles lists every non-ignored file under CBCTFolder, recursive.
	CBCTFiles []string
	// IOSFiles lists every non-ignored file directly inside IOSFolder.
	IOSFiles []string
	// MainFiles lists every other non-ignored file under the patient folder,
	// recursive, excluding the tmp folder and the discovered subfolders.
	MainFiles []string

	Errors []string
}

// AllFiles returns every file in the inventory in walk order.
func (inv *Inventory) AllFiles() []string {
	out := make([]string, 0, len(inv.CBCTFiles)+len(inv.IOSFiles)+len(inv.MainFiles))
	out = append(out, inv.CBCTFiles...)
	out = append(out, inv.IOSFiles...)
	out = append(out, inv.MainFiles...)
	return out
}

// Walk produces the structural inventory of a patient folder. Filenames in
// excludeNames (the cache sidecar and its lock file) are skipped everywhere.
// Unreadable subtrees are recorded in Errors rather than aborting; a missing
// or unreadable root is the only hard error.
func Walk(folderPath string, pats *Patterns, excludeNames ...string) (*Inventory, error) {
	cleaned := filepath.Clean(folderPath)
	info, err := os.Stat(cleaned)
	if err != nil {
		return nil, fmt.Errorf("stat patient folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", cleaned)
	}

	excluded := make(map[string]struct{}, len(excludeNames))
	for _, name := range excludeNames {
		if name = strings.TrimSpace(name); name != "" {
			excluded[name] = struct{}{}
		}
	}
	skippable := func(name string) bool {
		if IsIgnored(name) {
			return true
		}
		_, skip := excluded[name]
		return skip
	}

	inv := &Inventory{FolderPath: cleaned}

	entries, err := os.ReadDir(cleaned)
	if err != nil {
		return nil, fmt.Errorf("read patient folder: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	// First match wins per category; a folder matching both tables is
	// claimed by the CBCT category.
	for _, entry := range entries {
		if !entry.IsDir() || strings.EqualFold(entry.Name(), tmpFolderName) {
			continue
		}
		name := strings.ToLower(entry.Name())
		full := filepath.Join(cleaned, entry.Name())
		if inv.CBCTFolder == "" && matchAny(pats.cbctFolders, name) {
			inv.CBCTFolder = full
			continue
		}
		if inv.IOSFolder == "" && matchAny(pats.iosFolders, name) {
			inv.IOSFolder = full
		}
	}

	if inv.CBCTFolder != "" {
		inv.CBCTFiles = collectRecursive(inv.CBCTFolder, skippable, &inv.Errors)
	}
	if inv.IOSFolder != "" {
		iosEntries, err := os.ReadDir(inv.IOSFolder)
		if err != nil {
			inv.Errors = append(inv.Errors, fmt.Sprintf("read ios folder %s: %v", inv.IOSFolder, err))
		}
		for _, entry := range iosEntries {
			if entry.IsDir() || skippable(entry.Name()) {
				continue
			}
			inv.IOSFiles = append(inv.IOSFiles, filepath.Join(inv.IOSFolder, entry.Name()))
		}
		sort.Strings(inv.IOSFiles)
	}

	walkErr := filepath.WalkDir(cleaned, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			inv.Errors = append(inv.Errors, fmt.Sprintf("walk %s: %v", path, err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path == cleaned {
				return nil
			}
			if strings.EqualFold(d.Name(), tmpFolderName) || path == inv.CBCTFolder || path == inv.IOSFolder {
				return filepath.SkipDir
			}
			return nil
		}
		if skippable(d.Name()) {
			return nil
		}
		inv.MainFiles = append(inv.MainFiles, path)
		return nil
	})
	if walkErr != nil {
		inv.Errors = append(inv.Errors, fmt.Sprintf("walk %s: %v", cleaned, walkErr))
	}
	sort.Strings(inv.MainFiles)

	return inv, nil
}

func collectRecursive(root string, skippable func(string) bool, errs *[]string) []string {
	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("walk %s: %v", path, err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if skippable(d.Name()) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if walkErr != nil {
		*errs = append(*errs, fmt.Sprintf("walk %s: %v", root, walkErr))
	}
	sort.Strings(files)
	return files
}
