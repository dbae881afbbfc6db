package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logx "newsbot/pkg/logx"
)

func openTestLedger(t *testing.T, driver string) (Ledger, string) {
	t.Helper()
	name := "sent_links.txt"
	if driver == "sqlite" {
		name = "ledger.db"
	}
	path := filepath.Join(t.TempDir(), name)
	l, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func TestLedgerRoundTripAcrossReopen(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			l, path := openTestLedger(t, driver)

			if ok, err := l.Contains(ctx, "https://x/1"); err != nil || ok {
				t.Fatalf("Contains before record = %v, %v; want false, nil", ok, err)
			}
			if err := l.Record(ctx, "https://x/1"); err != nil {
				t.Fatalf("Record: %v", err)
			}
			if ok, _ := l.Contains(ctx, "https://x/1"); !ok {
				t.Fatal("Contains after record = false")
			}
			if err := l.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			fresh, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer fresh.Close()
			ok, err := fresh.Contains(ctx, "https://x/1")
			if err != nil || !ok {
				t.Fatalf("Contains after reopen = %v, %v; want true, nil", ok, err)
			}
			if ok, _ := fresh.Contains(ctx, "https://x/2"); ok {
				t.Fatal("unrelated link reported as present")
			}
		})
	}
}

func TestFileLedgerMissingFileIsEmpty(t *testing.T) {
	l, path := openTestLedger(t, "file")
	ok, err := l.Contains(context.Background(), "https://x/1")
	if err != nil || ok {
		t.Fatalf("Contains on missing file = %v, %v; want false, nil", ok, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Contains must not create the log, stat err = %v", err)
	}
}

func TestFileLedgerFormatIsOneLinkPerLine(t *testing.T) {
	ctx := context.Background()
	l, path := openTestLedger(t, "file")
	for _, link := range []string{"https://a/1", "https://b/2"} {
		if err := l.Record(ctx, link); err != nil {
			t.Fatalf("Record(%s): %v", link, err)
		}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), "https://a/1\nhttps://b/2\n"; got != want {
		t.Fatalf("log contents = %q, want %q", got, want)
	}
}

func TestFileLedgerSeesExternalAppends(t *testing.T) {
	ctx := context.Background()
	l, path := openTestLedger(t, "file")
	if err := os.WriteFile(path, []byte("https://legacy/1\n\n  https://legacy/2  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, link := range []string{"https://legacy/1", "https://legacy/2"} {
		if ok, err := l.Contains(ctx, link); err != nil || !ok {
			t.Fatalf("Contains(%s) = %v, %v", link, ok, err)
		}
	}
}

func TestRecordRejectsInvalidLinks(t *testing.T) {
	l, _ := openTestLedger(t, "file")
	for _, link := range []string{"", "   ", "https://a/1\nhttps://b/2"} {
		if err := l.Record(context.Background(), link); !errors.Is(err, ErrInvalidLink) {
			t.Fatalf("Record(%q) err = %v, want ErrInvalidLink", link, err)
		}
	}
}

func TestFileLedgerWriteFailureSurfaces(t *testing.T) {
	dir := t.TempDir()
	// The ledger path is a directory, so opening it for append must fail.
	l, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if err := l.Record(context.Background(), "https://x/1"); !errors.Is(err, ErrLedgerWrite) {
		t.Fatalf("Record err = %v, want ErrLedgerWrite", err)
	}
}

func TestSQLiteRecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l, _ := openTestLedger(t, "sqlite")
	for i := 0; i < 3; i++ {
		if err := l.Record(ctx, "https://x/1"); err != nil {
			t.Fatalf("Record #%d: %v", i, err)
		}
	}
	links, err := l.(Lister).Links(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("links = %v, want exactly one", links)
	}
}

func TestImportSkipsKnownAndBlankLines(t *testing.T) {
	ctx := context.Background()
	l, _ := openTestLedger(t, "sqlite")
	if err := l.Record(ctx, "https://x/1"); err != nil {
		t.Fatal(err)
	}
	st, err := Import(ctx, l, strings.NewReader("https://x/1\n\nhttps://x/2\nhttps://x/3\nhttps://x/2\n"))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if st.Read != 4 || st.Imported != 2 || st.Skipped != 2 {
		t.Fatalf("stats = %+v, want Read=4 Imported=2 Skipped=2", st)
	}
	for _, link := range []string{"https://x/2", "https://x/3"} {
		if ok, _ := l.Contains(ctx, link); !ok {
			t.Fatalf("%s not imported", link)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
