package roster

import (
	"reflect"
	"testing"

	"github.com/kingctan/sharedpainter/pkg/paint"
)

func TestDirectoryAddIdempotent(t *testing.T) {
	var counts []int
	d := New(WithOnChange(func(n int) { counts = append(counts, n) }))

	if !d.Add(&paint.User{ID: "a", NickName: "Ann"}) {
		t.Error("Add() of new user returned false")
	}
	if d.Add(&paint.User{ID: "a", NickName: "Annie"}) {
		t.Error("Add() of existing user returned true")
	}
	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", d.Len())
	}
	u, _ := d.Find("a")
	if u.NickName != "Annie" {
		t.Errorf("NickName = %q, want Annie", u.NickName)
	}

	d.Remove("a")
	d.Remove("a")
	if !reflect.DeepEqual(counts, []int{1, 1, 0, 0}) {
		t.Errorf("change counts = %v", counts)
	}
}

func TestDirectorySelf(t *testing.T) {
	d := New()
	d.SetSelf(&paint.User{ID: "me", NickName: "Me"})
	d.Add(&paint.User{ID: "you", NickName: "You", Self: true})

	if d.SelfID() != "me" {
		t.Errorf("SelfID() = %q", d.SelfID())
	}
	selves := 0
	for _, u := range d.Users() {
		if u.Self {
			selves++
		}
	}
	if selves != 1 {
		t.Errorf("%d users marked Self, want 1", selves)
	}

	remote := d.RemoteUsers()
	if len(remote) != 1 || remote[0].ID != "you" {
		t.Errorf("RemoteUsers() = %v", remote)
	}

	d.Clear()
	if d.Len() != 1 || d.Self() == nil {
		t.Errorf("Clear() removed the local user")
	}
}

func TestDirectoryUsersSorted(t *testing.T) {
	d := New()
	d.Add(&paint.User{ID: "3", NickName: "carol"})
	d.Add(&paint.User{ID: "1", NickName: "Bob"})
	d.Add(&paint.User{ID: "2", NickName: "alice"})
	d.Add(&paint.User{ID: "0", NickName: "bob"})

	var ids []string
	for _, u := range d.Users() {
		ids = append(ids, u.ID)
	}
	if want := []string{"2", "0", "1", "3"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestDirectoryHistory(t *testing.T) {
	d := New()
	d.Add(&paint.User{ID: "a", NickName: "Ann"})
	d.Add(&paint.User{ID: "b", NickName: "Bo"})
	d.Remove("a")

	if _, ok := d.Find("a"); ok {
		t.Error("removed user still a joiner")
	}
	if u, ok := d.FindHistory("a"); !ok || u.NickName != "Ann" {
		t.Errorf("FindHistory(a) = %v, %v", u, ok)
	}

	added := d.MergeHistory([]*paint.User{
		{ID: "a", NickName: "Other"},
		{ID: "c", NickName: "Cy"},
	})
	if added != 1 {
		t.Errorf("MergeHistory() = %d, want 1", added)
	}

	var ids []string
	for _, u := range d.History() {
		ids = append(ids, u.ID)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("History() = %v, want %v", ids, want)
	}
	if u, _ := d.FindHistory("a"); u.NickName != "Ann" {
		t.Errorf("MergeHistory overwrote a known entry: %q", u.NickName)
	}
}

func TestDirectorySuperPeer(t *testing.T) {
	d := New()
	d.SetSelf(&paint.User{ID: "me"})
	d.Add(&paint.User{ID: "sp"})

	d.SetSuperPeer("sp")
	if d.IsSuperPeer() {
		t.Error("IsSuperPeer() = true for remote super-peer")
	}
	d.Remove("sp")
	if d.SuperPeerID() != "" {
		t.Errorf("SuperPeerID() = %q after super-peer left", d.SuperPeerID())
	}

	d.SetSuperPeer("me")
	if !d.IsSuperPeer() {
		t.Error("IsSuperPeer() = false")
	}
}

func TestDirectorySessionKept(t *testing.T) {
	d := New()
	d.Add(&paint.User{ID: "a"})
	d.Update("a", func(u *paint.User) { u.SessionID = "s1" })
	d.Add(&paint.User{ID: "a", NickName: "again"})

	u, ok := d.FindBySession("s1")
	if !ok || u.NickName != "again" {
		t.Errorf("FindBySession() = %v, %v", u, ok)
	}

	prev, ok := d.ChangeNickName("a", "renamed")
	if !ok || prev != "again" {
		t.Errorf("ChangeNickName() = %q, %v", prev, ok)
	}
}
