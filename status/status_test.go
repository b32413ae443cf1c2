package status

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-test/deep"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/jobs"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func reader(dir string) *Reader {
	return NewReader(dir, config.DefaultConfig().Status)
}

func TestReadMissing(t *testing.T) {
	dir := t.TempDir()
	res := reader(dir).Read(jobs.Record{Index: "1"})
	if res.Status != jobs.Missing {
		t.Fatalf("expected missing, got %s", res.Status)
	}
}

func TestReadFrozen(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "1.err", "some warning\nstill going\n")
	res := reader(dir).Read(jobs.Record{Index: "1"})
	if res.Status != jobs.Frozen {
		t.Fatalf("expected frozen, got %s", res.Status)
	}
}

func TestReadFrozenEmptyLog(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "1.err", "")
	res := reader(dir).Read(jobs.Record{Index: "1"})
	if res.Status != jobs.Frozen {
		t.Fatalf("expected frozen, got %s", res.Status)
	}
}

func TestReadError(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "1.err", "oops\nERROR!\n")
	// Stdout content is ignored once the error sentinel is seen.
	write(t, dir, "1.out", `{"a": 1}`)

	res := reader(dir).Read(jobs.Record{Index: "1"})
	if res.Status != jobs.Error {
		t.Fatalf("expected error, got %s", res.Status)
	}
	if res.Fields != nil || res.StdoutData != "" {
		t.Fatalf("expected no stdout data on error, got %#v", res)
	}
}

func TestReadDoneMergesJSON(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "1.err", "DONE!\n")
	write(t, dir, "1.out", `{"a": 1, "b": "two"}`)

	res := reader(dir).Read(jobs.Record{Index: "1", Meta: map[string]string{"row": "7"}})
	if res.Status != jobs.Done {
		t.Fatalf("expected done, got %s", res.Status)
	}
	expected := map[string]interface{}{"a": float64(1), "b": "two"}
	if diff := deep.Equal(res.Fields, expected); diff != nil {
		t.Fatal(diff)
	}
	if res.StdoutData != "" {
		t.Fatalf("expected no raw stdout, got %q", res.StdoutData)
	}
	if res.Meta["row"] != "7" {
		t.Fatal("expected record metadata to carry over")
	}
}

func TestReadDoneRawStdout(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "1.err", "DONE!\n")
	write(t, dir, "1.out", "hello world\n")

	res := reader(dir).Read(jobs.Record{Index: "1"})
	if res.Status != jobs.Done {
		t.Fatalf("expected done, got %s", res.Status)
	}
	if res.StdoutData != "hello world" {
		t.Fatalf("expected trimmed raw stdout, got %q", res.StdoutData)
	}
	if res.Fields != nil {
		t.Fatalf("expected no merged fields, got %#v", res.Fields)
	}
}

func TestReadDoneNonObjectJSON(t *testing.T) {
	dir := t.TempDir()
	for i, content := range []string{"null", "42", `[1, 2]`, `"quoted"`} {
		index := fmt.Sprint(i)
		write(t, dir, index+".err", "done!\n")
		write(t, dir, index+".out", content)

		res := reader(dir).Read(jobs.Record{Index: index})
		if res.Status != jobs.Done {
			t.Fatalf("%q: expected done, got %s", content, res.Status)
		}
		if res.Fields != nil {
			t.Fatalf("%q: expected raw fallback, got fields %#v", content, res.Fields)
		}
		if res.StdoutData != content {
			t.Fatalf("%q: expected raw stdout, got %q", content, res.StdoutData)
		}
	}
}

func TestReadDoneWithoutStdout(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "1.err", "DONE!\n")

	res := reader(dir).Read(jobs.Record{Index: "1"})
	if res.Status != jobs.Done {
		t.Fatalf("expected done, got %s", res.Status)
	}
	if res.Fields != nil || res.StdoutData != "" {
		t.Fatalf("expected empty stdout data, got %#v", res)
	}
}

func TestReadCaseInsensitiveSentinel(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "1.err", "Done!\n")
	write(t, dir, "2.err", "eRrOr!  \n\n")

	r := reader(dir)
	if res := r.Read(jobs.Record{Index: "1"}); res.Status != jobs.Done {
		t.Fatalf("expected done, got %s", res.Status)
	}
	if res := r.Read(jobs.Record{Index: "2"}); res.Status != jobs.Error {
		t.Fatalf("expected error, got %s", res.Status)
	}
}

func TestReadPrefersTmpLog(t *testing.T) {
	dir := t.TempDir()
	// A .tmp log means the job is still writing, even if a stale renamed
	// log from an earlier run sits next to it.
	write(t, dir, "1.err", "DONE!\n")
	write(t, dir, "1.err.tmp", "warming up\n")

	res := reader(dir).Read(jobs.Record{Index: "1"})
	if res.Status != jobs.Frozen {
		t.Fatalf("expected frozen from .tmp log, got %s", res.Status)
	}
}

func TestReadStdoutSizeCap(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "1.err", "DONE!\n")
	write(t, dir, "1.out", `{"key": "0123456789abcdef"}`)

	r := NewReader(dir, config.StatusConfig{MaxStdoutSize: 8})
	res := r.Read(jobs.Record{Index: "1"})
	if res.Status != jobs.Done {
		t.Fatalf("expected done, got %s", res.Status)
	}
	// The truncated read is no longer valid JSON, so it degrades to the
	// raw fallback.
	if res.Fields != nil {
		t.Fatalf("expected raw fallback, got fields %#v", res.Fields)
	}
	if len(res.StdoutData) > 8 {
		t.Fatalf("expected stdout capped at 8 bytes, got %d", len(res.StdoutData))
	}
}

func TestReadTableIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "1.err", "DONE!\n")
	write(t, dir, "1.out", `{"a": 1}`)
	write(t, dir, "2.err", "running\n")

	table := jobs.Table{{Index: "1"}, {Index: "2"}, {Index: "3"}}
	r := reader(dir)

	first := r.ReadTable(table)
	second := r.ReadTable(table)
	if diff := deep.Equal(first, second); diff != nil {
		t.Fatal(diff)
	}
}

func TestReadTableMixture(t *testing.T) {
	dir := t.TempDir()

	// 3360 jobs in the shape of a real sweep: finished, stuck, and never
	// scheduled.
	table := make(jobs.Table, 0, 3360)
	for i := 0; i < 3360; i++ {
		index := fmt.Sprint(i)
		table = append(table, jobs.Record{Index: index})
		switch {
		case i < 2650:
			write(t, dir, index+".err", "DONE!\n")
			write(t, dir, index+".out", "ok\n")
		case i < 2650+387:
			write(t, dir, index+".err", "still running\n")
		}
	}

	results := reader(dir).ReadTable(table)
	if len(results) != 3360 {
		t.Fatalf("expected 3360 results, got %d", len(results))
	}

	counts := Counts(results)
	expected := map[jobs.Status]int{
		jobs.Done:    2650,
		jobs.Frozen:  387,
		jobs.Missing: 323,
	}
	if diff := deep.Equal(counts, expected); diff != nil {
		t.Fatal(diff)
	}
}

func TestReadTableKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "b.err", "DONE!\n")

	table := jobs.Table{{Index: "b"}, {Index: "a"}}
	results := reader(dir).ReadTable(table)
	if results[0].Index != "b" || results[1].Index != "a" {
		t.Fatalf("expected table order preserved, got %#v", results)
	}
}
