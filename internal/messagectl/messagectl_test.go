package messagectl

import (
	"reflect"
	"testing"

	"github.com/emersion/go-imap/v2"
)

func uids(vals ...int) []imap.UID {
	out := make([]imap.UID, len(vals))
	for i, v := range vals {
		out[i] = imap.UID(v)
	}
	return out
}

func TestPaginateMiddlePage(t *testing.T) {
	got := paginate(uids(1, 2, 3, 4, 5), 2, 1)
	if !reflect.DeepEqual(got, uids(2, 3)) {
		t.Errorf("got %v", got)
	}
}

func TestPaginateOffsetPastEnd(t *testing.T) {
	got := paginate(uids(1, 2, 3), 10, 5)
	if got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestPaginateLimitExceedsRemaining(t *testing.T) {
	got := paginate(uids(1, 2, 3), 10, 1)
	if !reflect.DeepEqual(got, uids(2, 3)) {
		t.Errorf("got %v", got)
	}
}

func TestPaginateZeroLimitReturnsRemainder(t *testing.T) {
	got := paginate(uids(1, 2, 3), 0, 1)
	if !reflect.DeepEqual(got, uids(2, 3)) {
		t.Errorf("got %v", got)
	}
}
