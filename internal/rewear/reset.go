package rewear

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

type resetItem struct {
	label string
	path  string
}

func (i resetItem) String() string {
	return fmt.Sprintf("%s (%s)", i.label, i.path)
}

func resetItemsForTarget(cfg *Config) []resetItem {
	configItem := resetItem{label: "config", path: cfg.ConfigFile}
	historyItem := resetItem{label: "history", path: cfg.HistoryFile}

	switch cfg.ResetTarget {
	case "config":
		return []resetItem{configItem}
	case "history":
		return []resetItem{historyItem}
	case "all":
		return []resetItem{configItem, historyItem}
	default:
		return nil
	}
}

// runReset deletes the local files named by cfg.ResetTarget. Unless --yes or
// --dry-run is given the user must confirm on stdin first.
func runReset(cfg *Config, stdin io.Reader, stdout, stderr io.Writer) error {
	items := resetItemsForTarget(cfg)
	if len(items) == 0 {
		return fmt.Errorf("unsupported reset target %q", cfg.ResetTarget)
	}

	if !cfg.Yes && !cfg.DryRun {
		ok, err := confirmReset(stdin, stderr, cfg.ResetTarget, items)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(stderr, "Reset cancelled.")
			return nil
		}
	}

	var present, missing []string
	for _, item := range items {
		existed, err := applyReset(item, cfg.DryRun)
		if err != nil {
			return err
		}
		if existed {
			present = append(present, item.String())
		} else {
			missing = append(missing, item.String())
		}
	}

	if cfg.DryRun {
		fmt.Fprintln(stdout, "Dry run (no files deleted).")
		printResetList(stdout, "Would remove:", "Nothing would be removed.", present)
	} else {
		printResetList(stdout, "Removed:", "Nothing was removed.", present)
	}
	if len(missing) > 0 {
		printResetList(stdout, "Already missing:", "", missing)
	}
	return nil
}

// applyReset removes the item's file, or only checks for it on a dry run,
// and reports whether the file existed.
func applyReset(item resetItem, dryRun bool) (bool, error) {
	var err error
	if dryRun {
		_, err = os.Stat(item.path)
	} else {
		err = os.Remove(item.path)
	}

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("reset %s: %w", item.label, err)
	}
}

func printResetList(w io.Writer, heading, empty string, lines []string) {
	if len(lines) == 0 {
		if empty != "" {
			fmt.Fprintln(w, empty)
		}
		return
	}
	fmt.Fprintln(w, heading)
	for _, line := range lines {
		fmt.Fprintf(w, "- %s\n", line)
	}
}

func confirmReset(stdin io.Reader, stderr io.Writer, target string, items []resetItem) (bool, error) {
	fmt.Fprintf(stderr, "Reset %s? This will delete:\n", target)
	for _, item := range items {
		fmt.Fprintf(stderr, "- %s\n", item)
	}
	fmt.Fprint(stderr, "Continue? [y/N]: ")

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
