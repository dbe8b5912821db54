// Package image defines the Kettle module format: a CBOR-encoded bundle of
// methods, a string constant pool and the native signatures the methods
// import. Linking resolves the imports against a VM's native table.
package image

import (
	"fmt"
	"os"

	"github.com/chazu/kettle/vm"
	"github.com/fxamacker/cbor/v2"
)

// Magic identifies a Kettle image.
const Magic = "KTLI"

// Version is the current image format version.
// Increment when making incompatible changes to the format.
const Version uint16 = 1

// Image is a loadable module.
type Image struct {
	Magic   string   `cbor:"magic"`
	Version uint16   `cbor:"version"`
	Name    string   `cbor:"name"`
	Entry   string   `cbor:"entry"`
	Natives []string `cbor:"natives"` // imported native signatures; invokenative operands index this
	Strings []string `cbor:"strings"`
	Methods []Method `cbor:"methods"`
}

// Method is an unlinked method.
type Method struct {
	Name     string    `cbor:"name"`
	MaxStack int       `cbor:"max_stack"`
	Code     []byte    `cbor:"code"`
	Handlers []Handler `cbor:"handlers,omitempty"`
}

// Handler is an exception table entry. Kind 0 catches every fault.
type Handler struct {
	Start  int          `cbor:"start"`
	End    int          `cbor:"end"`
	Target int          `cbor:"target"`
	Kind   vm.FaultKind `cbor:"kind"`
}

// cborEncMode uses canonical encoding so identical images encode to
// identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Encode serializes an image to CBOR bytes.
func Encode(img *Image) ([]byte, error) {
	return cborEncMode.Marshal(img)
}

// Decode deserializes an image and checks its header.
func Decode(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Magic != Magic {
		return nil, fmt.Errorf("image: bad magic %q", img.Magic)
	}
	if img.Version != Version {
		return nil, fmt.Errorf("image: unsupported version %d (want %d)", img.Version, Version)
	}
	return &img, nil
}

// ReadFile loads an image from path.
func ReadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// WriteFile encodes img and writes it to path.
func WriteFile(path string, img *Image) error {
	data, err := Encode(img)
	if err != nil {
		return fmt.Errorf("image: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}
