package main

import (
	"fmt"
	"io"

	"github.com/oleksiyp/kubecd/pkg/patch"
	"github.com/oleksiyp/kubecd/pkg/updates"
)

// patchUpdates writes the image updates of report into their releases files.
func patchUpdates(w io.Writer, report *updates.Report) error {
	for _, file := range report.Files() {
		var changes []patch.Change
		for _, u := range report.Updates[file] {
			changes = append(changes, patch.ValueChange(u.Release, u.TagValueKey, u.NewTag))
		}
		if err := patchFile(w, file, changes); err != nil {
			return err
		}
	}
	return nil
}

func patchFile(w io.Writer, file string, changes []patch.Change) error {
	fmt.Fprintf(w, "Patching file: %s\n", file)
	diff, err := patch.File(file, changes, true)
	if err != nil {
		return err
	}
	fmt.Fprint(w, diff)
	return nil
}
