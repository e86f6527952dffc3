// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Command psgload loads polysomnography recordings into epoch tensors and
// prints a summary of what was loaded.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/OpenPSG/sleepstage"
	"github.com/OpenPSG/sleepstage/cache"
)

var (
	dir         = flag.String("dir", "", "Directory of recordings and annotation files to load as a corpus")
	recording   = flag.String("recording", "", "Single recording to load")
	annotations = flag.String("annotations", "", "Annotation file for -recording; omit to load it unlabeled")
	epochLength = flag.Float64("epoch", sleepstage.DefaultEpochLength, "Epoch length in seconds, 0 to use the annotation file's")
	configPath  = flag.String("config", "", "JSON configuration file")
	cachePath   = flag.String("cache", "", "Cache location: a .db file for SQLite, otherwise a directory")
	quiet       = flag.Bool("quiet", false, "Only print the summary")
)

func main() {
	flag.Parse()

	if err := run(os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(out io.Writer) error {
	if (*dir == "") == (*recording == "") {
		return fmt.Errorf("exactly one of -dir or -recording is required")
	}
	if *quiet {
		sleepstage.SetLogger(nil)
	}

	cfg := sleepstage.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = sleepstage.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	if flagSet("epoch") {
		cfg = cfg.WithEpochLength(*epochLength)
	}

	loader, err := sleepstage.NewLoader(cfg)
	if err != nil {
		return err
	}

	if *cachePath != "" {
		store, closeStore, err := openCache(*cachePath)
		if err != nil {
			return err
		}
		defer closeStore()
		loader.Cache = store
	}

	if *dir != "" {
		corpus, err := loader.LoadAll(*dir)
		if err != nil {
			return err
		}
		printCorpus(out, corpus)
		return nil
	}

	var pkg *sleepstage.RecordingPackage
	if *annotations != "" {
		pkg, err = loader.Load(*recording, *annotations)
	} else {
		pkg, err = loader.LoadUnlabeled(*recording)
	}
	if err != nil {
		return err
	}
	printPackage(out, pkg)
	return nil
}

func openCache(path string) (cache.Store, func(), error) {
	if strings.HasSuffix(path, ".db") {
		db, err := cache.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	}
	d, err := cache.NewDir(path)
	if err != nil {
		return nil, nil, err
	}
	return d, func() {}, nil
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func printPackage(out io.Writer, pkg *sleepstage.RecordingPackage) {
	fmt.Fprintf(out, "Recording %s: %s epochs of %gs\n", pkg.ID, humanize.Comma(int64(pkg.Epochs())), pkg.EpochLength)
	for _, g := range pkg.Present() {
		t, info := pkg.Tensors[g], pkg.Groups[g]
		fmt.Fprintf(out, "  %s (%d, %d, %d) at %g Hz: %s\n",
			strings.ToUpper(string(g)), t.Epochs, t.Channels, t.Samples, info.SampleRate, strings.Join(info.Channels, ", "))
	}
	if pkg.Labels != nil {
		fmt.Fprintf(out, "  Stages: %s\n", sleepstage.FormatDistribution(sleepstage.Distribution(pkg.Labels)))
	}
}

func printCorpus(out io.Writer, c *sleepstage.Corpus) {
	fmt.Fprintf(out, "Corpus: %s epochs from %d of %d recordings\n",
		humanize.Comma(int64(c.Epochs())), c.Loaded(), c.Attempted)
	for _, g := range c.Groups {
		t := c.Tensors[g]
		fmt.Fprintf(out, "  %s (%d, %d, %d) at %g Hz\n",
			strings.ToUpper(string(g)), t.Epochs, t.Channels, t.Samples, c.Info[g].SampleRate)
	}
	fmt.Fprintf(out, "  Stages: %s\n", sleepstage.FormatDistribution(sleepstage.Distribution(c.Labels)))
	for _, id := range c.Recordings() {
		_, test := c.LeaveOneOut(id)
		fmt.Fprintf(out, "  %s: %s epochs\n", id, humanize.Comma(int64(len(test))))
	}
	for _, s := range c.Skipped {
		fmt.Fprintf(out, "  skipped %s: %v\n", s.ID, s.Err)
	}
}
