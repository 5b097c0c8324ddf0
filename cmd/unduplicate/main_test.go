package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

const snapshot = `version: 1
next_id: 3
candidates:
  - id: 1
    text: option
    origin: generated
    selection_count: 1
  - id: 2
    text: OPTION
    origin: user_submitted
    selection_count: 2
  - id: 3
    text: OPTIONS
    origin: generated
`

func openStore(t *testing.T) (*repository.MemoryStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.yaml")
	if err := os.WriteFile(path, []byte(snapshot), 0o600); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	store, err := repository.NewMemoryStore(context.Background(), repository.WithSnapshotPath(path))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store, path
}

func TestRootCommandHelp(t *testing.T) {
	convey.Convey("Given the command help", t, func() {
		convey.Convey("Then it should ask for the server to be stopped", func() {
			convey.So(rootCmd.Long, convey.ShouldContainSubstring, "Stop the server first")
		})
	})
}

func TestUnduplicate(t *testing.T) {
	convey.Convey("Given a store with duplicate options", t, func() {
		ctx := context.Background()
		store, path := openStore(t)
		var out bytes.Buffer

		convey.Convey("When running a dry run", func() {
			err := unduplicate(ctx, store, &out, true, 0)
			convey.So(store.Close(), convey.ShouldBeNil)

			convey.Convey("Then merges should be reported but not applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out.String(), convey.ShouldContainSubstring, `Would merge option 2 into 1 ("OPTION")`)
				convey.So(out.String(), convey.ShouldContainSubstring, `Would rename option 1 to "OPTION"`)
				convey.So(out.String(), convey.ShouldNotContainSubstring, "Similar:")

				reopened, err := repository.NewMemoryStore(ctx, repository.WithSnapshotPath(path))
				convey.So(err, convey.ShouldBeNil)
				defer func() { _ = reopened.Close() }()
				convey.So(reopened.Count(ctx), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When merging for real", func() {
			err := unduplicate(ctx, store, &out, false, 0.85)
			convey.So(store.Close(), convey.ShouldBeNil)

			convey.Convey("Then the snapshot should hold the merged pool", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out.String(), convey.ShouldContainSubstring, `Merging option 2 into 1 ("OPTION")`)
				convey.So(out.String(), convey.ShouldContainSubstring, `Similar: 1 "OPTION" ~ 3 "OPTIONS"`)

				reopened, err := repository.NewMemoryStore(ctx, repository.WithSnapshotPath(path))
				convey.So(err, convey.ShouldBeNil)
				defer func() { _ = reopened.Close() }()
				convey.So(reopened.Count(ctx), convey.ShouldEqual, 2)

				kept, err := reopened.Get(ctx, 1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(kept.SelectionCount, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When nothing is left to merge", func() {
			convey.So(unduplicate(ctx, store, &bytes.Buffer{}, false, 0), convey.ShouldBeNil)
			err := unduplicate(ctx, store, &out, false, 0)
			convey.So(store.Close(), convey.ShouldBeNil)

			convey.Convey("Then it should say so", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out.String(), convey.ShouldContainSubstring, "No duplicates found")
			})
		})
	})
}
