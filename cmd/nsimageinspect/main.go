// Copyright 2024 The Tessera authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// nsimageinspect is an operator tool for examining the on-disk layout of a
// namespace's storage directories: VERSION, fstime, and the image's
// wire-format prefix, without going through a live Engine. At start it runs
// the regular start-up analysis, which locks each directory and applies the
// crash-recovery rules to any directory left mid-transaction; after that it
// only reads.
//
// Usage:
//
//	nsimageinspect --image-dir=<path> [--image-dir=<path> ...] [--edits-dir=<path> ...] [--watch]
//
// Without --watch it drops into an interactive REPL; with --watch it opens
// a refreshing dashboard instead.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/peterh/liner"
	"github.com/rivo/tview"
	"github.com/spf13/pflag"

	"github.com/nsimage/nsimage/codec"
	"github.com/nsimage/nsimage/storage"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("nsimageinspect", pflag.ContinueOnError)
	imageDirs := fs.StringArray("image-dir", nil, "an IMAGE-role storage directory (repeatable)")
	editsDirs := fs.StringArray("edits-dir", nil, "an EDITS-role storage directory (repeatable)")
	watch := fs.Bool("watch", false, "open a refreshing dashboard instead of the REPL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(*imageDirs) == 0 {
		return fmt.Errorf("at least one --image-dir is required")
	}

	set := storage.New(*imageDirs, *editsDirs, false)
	if _, err := set.AnalyzeAndRecover(storage.StartupRegular); err != nil {
		return fmt.Errorf("analyzing storage directories: %w", err)
	}

	insp := &inspector{set: set}
	if *watch {
		return insp.runDashboard()
	}
	return insp.runREPL()
}

type inspector struct {
	set *storage.Set
}

// summary renders one line per active storage directory: its role, path,
// recorded layout version, namespace id, cTime, and checkpoint time.
func (insp *inspector) summary() []string {
	var lines []string
	for _, d := range insp.set.Active() {
		v, vErr := d.ReadVersion()
		t, tErr := d.ReadFsTime()
		switch {
		case vErr != nil:
			lines = append(lines, fmt.Sprintf("%-10s %-40s VERSION unreadable: %v", d.Role, d.Path, vErr))
		case tErr != nil:
			lines = append(lines, fmt.Sprintf("%-10s %-40s layout=%d ns=%d fstime unreadable: %v", d.Role, d.Path, v.LayoutVersion, v.NamespaceID, tErr))
		default:
			lines = append(lines, fmt.Sprintf("%-10s %-40s layout=%d ns=%d cTime=%d fstime=%d", d.Role, d.Path, v.LayoutVersion, v.NamespaceID, v.CTime, t))
		}
	}
	return lines
}

// inspectImage decodes a directory's fsimage and returns its prefix, for a
// quick "what's in here" check. The whole image, tree included, is decoded,
// so a corrupt body is reported as an error as well.
func (insp *inspector) inspectImage(path string) (codec.Prefix, error) {
	f, err := os.Open(path)
	if err != nil {
		return codec.Prefix{}, err
	}
	defer f.Close()
	_, prefix, err := codec.LoadImage(f, path, nil)
	return prefix, err
}

func (insp *inspector) runREPL() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("nsimageinspect - type 'help' for commands")
	for {
		input, err := line.Prompt("nsimageinspect> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		fields := strings.Fields(input)
		switch fields[0] {
		case "exit", "quit", "q":
			return nil
		case "help", "?":
			fmt.Println("commands: dirs, image <path>, help, exit")
		case "dirs":
			for _, l := range insp.summary() {
				fmt.Println(l)
			}
		case "image":
			if len(fields) < 2 {
				fmt.Println("usage: image <path-to-fsimage>")
				continue
			}
			prefix, err := insp.inspectImage(fields[1])
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("layoutVersion=%d namespaceID=%d numFiles=%d generationStamp=%d imageTxId=%d compressed=%v codec=%q\n",
				prefix.LayoutVersion, prefix.NamespaceID, prefix.NumFiles, prefix.GenerationStamp, prefix.ImageTxId, prefix.Compressed, prefix.CodecName)
		default:
			fmt.Printf("unknown command %q (type 'help')\n", fields[0])
		}
	}
}

// runDashboard opens a tview application that redraws the directory
// summary on a fixed interval until the user quits.
func (insp *inspector) runDashboard() error {
	app := tview.NewApplication()
	view := tview.NewTextView().SetDynamicColors(false).SetChangedFunc(func() { app.Draw() })
	view.SetBorder(true).SetTitle(" nsimageinspect ")

	render := func() {
		view.Clear()
		fmt.Fprintf(view, "%s\n\n", time.Now().Format(time.RFC3339))
		for _, l := range insp.summary() {
			fmt.Fprintln(view, l)
		}
		fmt.Fprintln(view, "\npress q to quit")
	}
	render()

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				app.QueueUpdateDraw(render)
			case <-stop:
				return
			}
		}
	}()

	view.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'q' {
			close(stop)
			app.Stop()
			return nil
		}
		return event
	})

	return app.SetRoot(view, true).Run()
}
