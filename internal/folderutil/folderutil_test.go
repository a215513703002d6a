package folderutil

import "testing"

func TestParseListLine(t *testing.T) {
	cases := []struct {
		line     string
		wantName string
		wantOK   bool
	}{
		{`(\HasNoChildren) "/" INBOX`, "INBOX", true},
		{`(\HasNoChildren) "/" "Sent Items"`, "Sent Items", true},
		{`(\Noselect \HasChildren) "/" "[Gmail]"`, "[Gmail]", true},
		{`LIST completed`, "", false},
		{`OK Success`, "", false},
		{``, "", false},
	}
	for _, c := range cases {
		name, ok := ParseListLine(c.line)
		if ok != c.wantOK || name != c.wantName {
			t.Errorf("ParseListLine(%q) = (%q, %v), want (%q, %v)", c.line, name, ok, c.wantName, c.wantOK)
		}
	}
}

func TestIsIgnored(t *testing.T) {
	for _, name := range []string{"Drafts", "JUNK", "Archive", "trash", "Spam"} {
		if !IsIgnored(name) {
			t.Errorf("expected %q to be ignored", name)
		}
	}
	for _, name := range []string{"INBOX", "Sent", "Work"} {
		if IsIgnored(name) {
			t.Errorf("expected %q not to be ignored", name)
		}
	}
}

func TestValidateEmpty(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatal("expected error for empty folder list")
	}
	if err := Validate([]string{"INBOX"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
