package network

import "testing"

func TestUid(t *testing.T) {
	a, b := NewUid(), NewUid()
	if a == b {
		t.Errorf("same uid %v twice", a)
	}
	if s := a.Short(); len(s) != 7 {
		t.Errorf("short id %v has wrong length", s)
	}
	if s := Uid("abc").Short(); s != "abc" {
		t.Errorf("short id of a short uid %v", s)
	}
}
