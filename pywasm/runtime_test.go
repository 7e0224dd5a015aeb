package pywasm

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/VidyaBipin/pythonnet-Csharp-python/errors"
)

// emptyModule is a valid module with no exports: just the wasm magic and
// version.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestLoadRejectsInvalidBinary(t *testing.T) {
	_, err := Load(context.Background(), []byte("not wasm"))
	if err == nil {
		t.Fatal("Load should reject an invalid binary")
	}
	want := &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindInstantiation}
	if !stderrors.Is(err, want) {
		t.Fatalf("err = %v, want load/instantiation", err)
	}
}

func TestLoadRequiresInterpreterABI(t *testing.T) {
	_, err := Load(context.Background(), emptyModule)
	if err == nil {
		t.Fatal("Load should reject a module without the interpreter ABI")
	}
	want := &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindNotFound}
	if !stderrors.Is(err, want) {
		t.Fatalf("err = %v, want load/not_found", err)
	}
}
