package session

import "testing"

func TestConsumeRedirectClearsKey(t *testing.T) {
	s := NewMemoryStore()
	s.Set(RedirectKey, "/product/2")

	got, ok := ConsumeRedirect(s)
	if !ok || got != "/product/2" {
		t.Fatalf("expected /product/2, got %q (ok=%v)", got, ok)
	}
	if _, ok := s.Get(RedirectKey); ok {
		t.Fatalf("redirect key must be cleared after reading")
	}
	if _, ok := ConsumeRedirect(s); ok {
		t.Fatalf("second read must find nothing")
	}
}

func TestConsumeRedirectEmptyValue(t *testing.T) {
	s := NewMemoryStore()
	s.Set(RedirectKey, "")
	if _, ok := ConsumeRedirect(s); ok {
		t.Fatalf("empty redirect must be ignored")
	}
	if _, ok := s.Get(RedirectKey); ok {
		t.Fatalf("empty redirect must still be cleared")
	}
	if _, ok := ConsumeRedirect(nil); ok {
		t.Fatalf("nil store must be ignored")
	}
}
