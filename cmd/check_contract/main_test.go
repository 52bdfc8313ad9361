package main

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func repoContract(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime caller unavailable")
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "docs", "webhook-contract.yaml")
}

func TestRepositoryContractMatchesEncoder(t *testing.T) {
	doc, err := loadDoc(repoContract(t))
	if err != nil {
		t.Fatalf("load contract: %v", err)
	}
	if err := checkContract(doc); err != nil {
		t.Fatalf("contract drift: %v", err)
	}
}

func TestCheckContractReportsDrift(t *testing.T) {
	doc, err := loadDoc(repoContract(t))
	if err != nil {
		t.Fatalf("load contract: %v", err)
	}
	ev := doc.Events["return_visit"]
	ev.Fields = []string{"userId", "email", "event", "timestamp", "source", "referrer"}
	doc.Events["return_visit"] = ev
	doc.Events["page_view"] = eventContract{Fields: []string{"event"}}

	err = checkContract(doc)
	if err == nil {
		t.Fatal("expected drift to be reported")
	}
	for _, want := range []string{"undocumented: [firstName, lastName]", "not emitted: [referrer]", `unknown event "page_view"`} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q should mention %q", err, want)
		}
	}
}
