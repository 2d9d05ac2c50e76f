package cache

import "testing"

type payload struct {
	Name   string
	Values []float32
}

func TestDiskPutGet(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := c.Get("q", "abc", &payload{}); ok || err != nil {
		t.Fatalf("empty cache: ok=%t err=%v", ok, err)
	}
	want := payload{Name: "glass", Values: []float32{1, 2.5}}
	if err := c.Put("q", "abc", &want); err != nil {
		t.Fatal(err)
	}
	var got payload
	ok, err := c.Get("q", "abc", &got)
	if !ok || err != nil {
		t.Fatalf("get: ok=%t err=%v", ok, err)
	}
	if got.Name != want.Name || len(got.Values) != 2 || got.Values[1] != 2.5 {
		t.Fatalf("got %+v", got)
	}
}

func TestDiskDropAll(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put("q", "k", &payload{Name: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := c.DropAll(); err != nil {
		t.Fatal(err)
	}
	if ok, _ := c.Get("q", "k", &payload{}); ok {
		t.Fatalf("entry survived DropAll")
	}
	if err := c.Put("q", "k", &payload{Name: "y"}); err != nil {
		t.Fatalf("cache unusable after DropAll: %v", err)
	}
}
