package rule_test

import (
	"strings"
	"testing"

	"github.com/yeisme/tagstore/pkg/rule"
)

type tagPayload struct {
	Tag string `json:"tag" rule:"required,tagname"`
}

type uploadPayload struct {
	Label string       `json:"label" rule:"label"`
	Tags  []tagPayload `json:"tags"  rule:"dive"`
}

func TestEngine(t *testing.T) {
	if rule.Engine() == nil {
		t.Error("Engine() returned nil")
	}
}

func TestTagName(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"science", true},
		{"带空格 的标签", true},
		{"", false},
		{" padded", false},
		{"trailing\t", false},
		{strings.Repeat("x", rule.MaxTagLength), true},
		{strings.Repeat("x", rule.MaxTagLength+1), false},
		{strings.Repeat("标", rule.MaxTagLength), true},
	}

	for _, c := range cases {
		err := rule.ValidateVar(c.in, "tagname")
		if got := err == nil; got != c.want {
			t.Errorf("tagname(%q) valid=%v, want %v (err=%v)", c.in, got, c.want, err)
		}
	}
}

func TestLabel(t *testing.T) {
	if err := rule.ValidateVar("5b0f2c1e-7d4a-4b7e-9a57-0c1f1b1c2d3e", "label"); err != nil {
		t.Errorf("valid uuid rejected: %v", err)
	}

	if err := rule.ValidateVar("../etc/passwd", "label"); err == nil {
		t.Error("path traversal accepted as label")
	}
}

func TestValidateStructErrors(t *testing.T) {
	p := uploadPayload{
		Label: "not-a-uuid",
		Tags:  []tagPayload{{Tag: "ok"}, {Tag: ""}},
	}

	err := rule.ValidateStruct(p)
	if err == nil {
		t.Fatal("expected validation error")
	}

	errs := rule.Errors(err)
	if _, ok := errs["uploadPayload.label"]; !ok {
		t.Errorf("missing label error in %v", errs)
	}

	if _, ok := errs["uploadPayload.tags[1].tag"]; !ok {
		t.Errorf("missing tags[1].tag error in %v", errs)
	}

	if rule.Errors(nil) != nil {
		t.Error("Errors(nil) should be nil")
	}
}

func TestRegisterAlias(t *testing.T) {
	rule.RegisterAlias("short_tag", "tagname,max=8")

	if err := rule.ValidateVar("abc", "short_tag"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if err := rule.ValidateVar("abcdefghijk", "short_tag"); err == nil {
		t.Error("expected error for long tag with alias")
	}
}
