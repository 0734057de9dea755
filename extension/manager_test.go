package extension

import (
	"errors"
	"testing"
)

type fakeExtension struct {
	name       string
	loadErr    error
	shutdownErr error
	loaded     *[]string
	shutdown   *[]string
}

func (f *fakeExtension) Name() string { return f.name }

func (f *fakeExtension) Load() error {
	if f.loadErr != nil {
		return f.loadErr
	}
	*f.loaded = append(*f.loaded, f.name)
	return nil
}

func (f *fakeExtension) Shutdown() error {
	*f.shutdown = append(*f.shutdown, f.name)
	return f.shutdownErr
}

func TestLoadAllLoadsInRegistrationOrder(t *testing.T) {
	mgr := New()
	var loaded, shutdown []string

	for _, name := range []string{"a", "b", "c"} {
		if err := mgr.Register(&fakeExtension{name: name, loaded: &loaded, shutdown: &shutdown}); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	if err := mgr.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if got := loaded; len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("load order = %v, want [a b c]", got)
	}

	if err := mgr.ShutdownAll(); err != nil {
		t.Fatalf("ShutdownAll: %v", err)
	}
	if got := shutdown; len(got) != 3 || got[0] != "c" || got[1] != "b" || got[2] != "a" {
		t.Fatalf("shutdown order = %v, want [c b a]", got)
	}
}

func TestLoadAllRollsBackOnFailure(t *testing.T) {
	mgr := New()
	var loaded, shutdown []string

	failErr := errors.New("boom")
	_ = mgr.Register(&fakeExtension{name: "a", loaded: &loaded, shutdown: &shutdown})
	_ = mgr.Register(&fakeExtension{name: "b", loaded: &loaded, shutdown: &shutdown, loadErr: failErr})
	_ = mgr.Register(&fakeExtension{name: "c", loaded: &loaded, shutdown: &shutdown})

	err := mgr.LoadAll()
	if err == nil {
		t.Fatal("expected LoadAll to fail")
	}
	if !errors.Is(err, failErr) {
		t.Fatalf("expected error chain to include the load failure, got: %v", err)
	}

	if len(loaded) != 1 || loaded[0] != "a" {
		t.Fatalf("loaded = %v, want only [a]", loaded)
	}
	if len(shutdown) != 1 || shutdown[0] != "a" {
		t.Fatalf("rollback shutdown = %v, want only [a]", shutdown)
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	mgr := New()
	var loaded, shutdown []string

	if err := mgr.Register(&fakeExtension{name: "a", loaded: &loaded, shutdown: &shutdown}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := mgr.Register(&fakeExtension{name: "a", loaded: &loaded, shutdown: &shutdown})
	if !errors.Is(err, ErrExtensionAlreadyRegistered) {
		t.Fatalf("expected ErrExtensionAlreadyRegistered, got %v", err)
	}
}

func TestShutdownAllCollectsErrorsButShutsDownEverything(t *testing.T) {
	mgr := New()
	var loaded, shutdown []string

	boom := errors.New("boom")
	_ = mgr.Register(&fakeExtension{name: "a", loaded: &loaded, shutdown: &shutdown, shutdownErr: boom})
	_ = mgr.Register(&fakeExtension{name: "b", loaded: &loaded, shutdown: &shutdown})

	if err := mgr.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	err := mgr.ShutdownAll()
	if err == nil {
		t.Fatal("expected ShutdownAll to report the shutdown error")
	}
	if len(shutdown) != 2 {
		t.Fatalf("shutdown = %v, want both extensions shut down despite the error", shutdown)
	}
}
