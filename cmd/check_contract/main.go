package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pillarfunnel/pkg/domain"
	"pillarfunnel/pkg/webhook"
)

type contractDoc struct {
	TimestampFormat string                   `yaml:"timestampFormat"`
	Encoding        string                   `yaml:"encoding"`
	Events          map[string]eventContract `yaml:"events"`
}

type eventContract struct {
	Fields []string `yaml:"fields"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <webhook-contract.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if err := checkContract(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("Webhook contract check passed.")
}

func loadDoc(path string) (contractDoc, error) {
	var doc contractDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func checkContract(doc contractDoc) error {
	var errs []error
	if doc.TimestampFormat != webhook.TimestampLayout {
		errs = append(errs, fmt.Errorf("timestampFormat = %q, encoder uses %q", doc.TimestampFormat, webhook.TimestampLayout))
	}
	if doc.Encoding != "" && doc.Encoding != "application/x-www-form-urlencoded" {
		errs = append(errs, fmt.Errorf("unsupported encoding %q", doc.Encoding))
	}

	known := map[string]bool{}
	for _, kind := range webhook.EventKinds() {
		known[string(kind)] = true
		ev, ok := doc.Events[string(kind)]
		if !ok {
			errs = append(errs, fmt.Errorf("event %q missing from contract", kind))
			continue
		}
		if err := ensureSameFields(string(kind), "declared", ev.Fields, webhook.Fields(kind)); err != nil {
			errs = append(errs, err)
		}
		if err := ensureSameFields(string(kind), "encoded", ev.Fields, encodedKeys(kind)); err != nil {
			errs = append(errs, err)
		}
	}
	for name := range doc.Events {
		if !known[name] {
			errs = append(errs, fmt.Errorf("contract documents unknown event %q", name))
		}
	}
	return errors.Join(errs...)
}

// encodedKeys encodes a sample event and returns the keys actually emitted.
func encodedKeys(kind domain.EventKind) []string {
	raw := webhook.Encode(webhook.Event{Kind: kind, UserID: "sample"}, webhook.Enrichment{
		Timestamp: time.Unix(0, 0),
		Source:    "https://example.com",
	})
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return keys
}

func ensureSameFields(kind, what string, documented, actual []string) error {
	doc := makeSet(documented)
	act := makeSet(actual)
	if len(doc) != len(documented) {
		return fmt.Errorf("%s: contract lists duplicate fields", kind)
	}
	var missing, extra []string
	for f := range act {
		if !doc[f] {
			missing = append(missing, f)
		}
	}
	for f := range doc {
		if !act[f] {
			extra = append(extra, f)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return fmt.Errorf("%s: %s fields differ (undocumented: [%s], not emitted: [%s])",
		kind, what, strings.Join(missing, ", "), strings.Join(extra, ", "))
}

func makeSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[strings.TrimSpace(v)] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
