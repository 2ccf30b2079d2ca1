package poll

import "testing"

func TestVisibilityState_NotifiesOnChangeOnly(t *testing.T) {
	v := NewVisibilityState(true)
	var got []bool
	cancel := v.Subscribe(func(visible bool) { got = append(got, visible) })

	v.Set(true)
	v.Set(false)
	v.Set(false)
	v.Set(true)
	if len(got) != 2 || got[0] || !got[1] {
		t.Fatalf("notifications = %v, want [false true]", got)
	}

	cancel()
	v.Set(false)
	if len(got) != 2 {
		t.Fatalf("notified after cancel: %v", got)
	}
	if v.Visible() {
		t.Fatal("Visible() = true, want false")
	}
}
