package output

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/ritzau/build-state/pkg/fsstate"
)

// PrintDirtyReport prints a colorized summary of what needs recompiling,
// per target and source root
func PrintDirtyReport(workspace string, state *fsstate.BuildFSState, roots *fsstate.RootSet) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	bold.Println("build-state - Dirty File Report")
	bold.Println("===============================")
	fmt.Printf("Workspace: %s\n\n", workspace)

	totalDirty := 0
	for _, t := range roots.Targets() {
		delta := state.Delta(t)
		snapshot := delta.Snapshot()

		dirty := 0
		for _, files := range snapshot {
			dirty += len(files)
		}
		totalDirty += dirty

		if dirty == 0 && !delta.NeedRebuildAll() {
			green.Printf("%s: up to date\n", t)
			continue
		}

		if delta.NeedRebuildAll() {
			red.Printf("%s: full rebuild required\n", t)
		} else {
			yellow.Printf("%s: %d file(s) to recompile\n", t, dirty)
		}
		for rd, files := range snapshot {
			cyan.Printf("  %s\n", rd.RootID())
			for _, f := range files {
				fmt.Printf("    %s\n", f)
			}
		}
	}

	fmt.Println()
	if totalDirty == 0 {
		green.Println("Nothing to recompile.")
	} else {
		yellow.Printf("%d file(s) pending recompilation\n", totalDirty)
	}
}
