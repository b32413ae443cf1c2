package jobs

import (
	"testing"

	"github.com/go-test/deep"
)

func TestDefaultOpts(t *testing.T) {
	o := DefaultOpts("kinase-scan")
	if o.JobID != "kinase-scan" {
		t.Fatal("unexpected job id", o.JobID)
	}
	if o.Nproc != 1 {
		t.Fatal("expected nproc 1, got", o.Nproc)
	}
	if o.Walltime != "02:00:00" {
		t.Fatal("unexpected walltime", o.Walltime)
	}
	if o.Shell != "/bin/bash" {
		t.Fatal("unexpected shell", o.Shell)
	}
	if o.Mem != "" || o.Vmem != "" || o.Gpus != 0 {
		t.Fatal("resource requests should default to unset")
	}
}

func TestOptsClone(t *testing.T) {
	orig := DefaultOpts("clone-test")
	orig.Env = map[string]string{"SYSTEM_COMMAND": "echo hi"}

	c := orig.Clone()
	if diff := deep.Equal(orig, c); diff != nil {
		t.Fatal(diff)
	}

	c.Env["STDOUT_LOG"] = "/tmp/1.out"
	if _, ok := orig.Env["STDOUT_LOG"]; ok {
		t.Fatal("clone shares the env map with the original")
	}
}

func TestTableValidate(t *testing.T) {
	tab := Table{
		{Index: "1", Command: "echo one"},
		{Index: "2", Command: "echo two"},
		{Index: "3", Command: "echo three"},
	}
	if err := tab.Validate(); err != nil {
		t.Fatal(err)
	}

	tab = append(tab, Record{Index: "2", Command: "echo again"})
	err := tab.Validate()
	if err == nil {
		t.Fatal("expected duplicate index error")
	}
	dup, ok := err.(*DuplicateIndexError)
	if !ok {
		t.Fatalf("expected *DuplicateIndexError, got %T", err)
	}
	if dup.Index != "2" {
		t.Fatal("wrong duplicate index reported:", dup.Index)
	}
}

func TestLogPaths(t *testing.T) {
	if p := OutPath("/scratch/run1", "17"); p != "/scratch/run1/17.out" {
		t.Fatal("unexpected stdout path", p)
	}
	if p := ErrPath("/scratch/run1", "17"); p != "/scratch/run1/17.err" {
		t.Fatal("unexpected error log path", p)
	}
}
